package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/eleven-am/perimeter/internal/domain"
)

// Session is a single-account AccountContext: the caller's default credential
// chain, optionally exchanged for a deployment role.
type Session struct {
	client    *Client
	accountID string
	region    string
}

type SessionOptions struct {
	Region      string
	RoleARN     string
	ExternalID  string
	WaitTimeout time.Duration
}

func LoadSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if opts.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), opts.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = fmt.Sprintf("perimeter-%d", time.Now().Unix())
			o.Duration = time.Hour
			if opts.ExternalID != "" {
				o.ExternalID = aws.String(opts.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("get caller identity: %w", err)
	}
	accountID := derefString(identity.Account)

	return &Session{
		client:    NewClient(cfg, accountID, cfg.Region, WithWaitTimeout(opts.WaitTimeout)),
		accountID: accountID,
		region:    cfg.Region,
	}, nil
}

func (s *Session) Client() *Client {
	return s.client
}

func (s *Session) AccountID() string {
	return s.accountID
}

func (s *Session) Region() string {
	return s.region
}

func (s *Session) GetClient(accountID string) (domain.AWSClient, error) {
	if accountID != "" && accountID != s.accountID {
		return nil, fmt.Errorf("account %s is not managed by this session (%s)", accountID, s.accountID)
	}
	return s.client, nil
}
