package aws

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"

	"github.com/eleven-am/perimeter/internal/domain"
)

const defaultWaitTimeout = 20 * time.Minute

// Client implements domain.Cloud for one account and region.
type Client struct {
	ec2Client   *ec2.Client
	rdsClient   *rds.Client
	elbv2Client *elbv2.Client
	iamClient   *iam.Client
	ssmClient   *ssm.Client
	accountID   string
	region      string
	cache       *ttlCache
	waitTimeout time.Duration
}

type Option func(*Client)

// WithWaitTimeout bounds how long Create* calls wait for a resource to become usable.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

func newRetryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = 5
		o.MaxBackoff = 30 * time.Second
		o.Backoff = retry.NewExponentialJitterBackoff(o.MaxBackoff)
		o.RateLimiter = ratelimit.None
	})
}

func NewClient(cfg aws.Config, accountID, region string, opts ...Option) *Client {
	retryer := newRetryer()
	c := &Client{
		ec2Client:   ec2.NewFromConfig(cfg, func(o *ec2.Options) { o.Retryer = retryer }),
		rdsClient:   rds.NewFromConfig(cfg, func(o *rds.Options) { o.Retryer = retryer }),
		elbv2Client: elbv2.NewFromConfig(cfg, func(o *elbv2.Options) { o.Retryer = retryer }),
		iamClient:   iam.NewFromConfig(cfg, func(o *iam.Options) { o.Retryer = retryer }),
		ssmClient:   ssm.NewFromConfig(cfg, func(o *ssm.Options) { o.Retryer = retryer }),
		accountID:   accountID,
		region:      region,
		cache:       newTTLCache(2*time.Minute, 2000),
		waitTimeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) AccountID() string {
	return c.accountID
}

func (c *Client) Region() string {
	return c.region
}

func (c *Client) cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func isErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

func sortedTagKeys(tags domain.Tags) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ec2TagSpec(resource ec2types.ResourceType, tags domain.Tags) []ec2types.TagSpecification {
	spec := ec2types.TagSpecification{ResourceType: resource}
	for _, k := range sortedTagKeys(tags) {
		spec.Tags = append(spec.Tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return []ec2types.TagSpecification{spec}
}

func identFilters(id domain.Ident) []ec2types.Filter {
	return []ec2types.Filter{
		{Name: aws.String("tag:" + domain.TagProject), Values: []string{id.Project}},
		{Name: aws.String("tag:" + domain.TagResource), Values: []string{id.Name}},
	}
}

func fromEC2Tags(tags []ec2types.Tag) domain.Tags {
	if len(tags) == 0 {
		return nil
	}
	out := make(domain.Tags, len(tags))
	for _, t := range tags {
		out[derefString(t.Key)] = derefString(t.Value)
	}
	return out
}
