package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
)

const DefaultTimeout = 10 * time.Second

// StatusError is returned when the endpoint answers with a code the matcher rejects.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Code)
}

// Prober performs single bounded HTTP health checks.
type Prober struct {
	Client  *http.Client
	Timeout time.Duration
	Matcher Matcher
}

func NewProber(timeout time.Duration, matcher Matcher) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		Client:  &http.Client{},
		Timeout: timeout,
		Matcher: matcher,
	}
}

// Probe issues one GET and returns nil when the status satisfies the matcher.
// healthcheck.Timeout bounds it; once the probe returns, a GET still in
// flight is cancelled.
func (p *Prober) Probe(ctx context.Context, url string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	check := healthcheck.Timeout(func() error {
		return p.get(ctx, url)
	}, timeout)
	return check()
}

func (p *Prober) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	matcher := p.Matcher
	if len(matcher.ranges) == 0 {
		matcher = MustParseMatcher("200-399")
	}
	if !matcher.Matches(resp.StatusCode) {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	return nil
}
