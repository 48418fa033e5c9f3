package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heptiolabs/healthcheck"
)

func TestParseMatcher(t *testing.T) {
	tests := []struct {
		spec    string
		match   []int
		reject  []int
		wantErr bool
	}{
		{spec: "200-399", match: []int{200, 302, 399}, reject: []int{199, 400, 503}},
		{spec: "200,302", match: []int{200, 302}, reject: []int{201, 301}},
		{spec: "200", match: []int{200}, reject: []int{204}},
		{spec: " 200 - 204 ", match: []int{204}, reject: []int{205}},
		{spec: "", wantErr: true},
		{spec: "abc", wantErr: true},
		{spec: "399-200", wantErr: true},
		{spec: "700", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			m, err := ParseMatcher(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, code := range tt.match {
				if !m.Matches(code) {
					t.Errorf("%q should match %d", tt.spec, code)
				}
			}
			for _, code := range tt.reject {
				if m.Matches(code) {
					t.Errorf("%q should not match %d", tt.spec, code)
				}
			}
		})
	}
}

func TestTracker_Thresholds(t *testing.T) {
	tr := NewTracker(2, 3)

	if tr.State() != StateInitial {
		t.Fatalf("expected initial, got %s", tr.State())
	}

	state, changed := tr.Observe(true)
	if state != StateInitial || changed {
		t.Fatalf("one success should not mark healthy, got %s changed=%v", state, changed)
	}
	state, changed = tr.Observe(true)
	if state != StateHealthy || !changed {
		t.Fatalf("two successes should mark healthy, got %s changed=%v", state, changed)
	}

	for i := 0; i < 2; i++ {
		if state, _ = tr.Observe(false); state != StateHealthy {
			t.Fatalf("failure %d flipped state to %s", i+1, state)
		}
	}
	state, changed = tr.Observe(false)
	if state != StateUnhealthy || !changed {
		t.Fatalf("three failures should mark unhealthy, got %s changed=%v", state, changed)
	}
}

func TestTracker_TransientFailureDoesNotFlip(t *testing.T) {
	tr := NewTracker(2, 3)
	tr.Observe(true)
	tr.Observe(true)

	sequence := []bool{false, true, false, false, true, true}
	for i, ok := range sequence {
		if state, _ := tr.Observe(ok); state != StateHealthy {
			t.Fatalf("observation %d (%v) flipped state to %s", i, ok, state)
		}
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(1, 1)
	tr.Observe(true)
	tr.Reset()
	if tr.State() != StateInitial {
		t.Fatalf("expected initial after reset, got %s", tr.State())
	}
}

func TestProber_Probe(t *testing.T) {
	up := healthcheck.NewHandler()
	up.AddLivenessCheck("app", func() error { return nil })
	down := healthcheck.NewHandler()
	down.AddLivenessCheck("app", func() error { return errors.New("db unreachable") })

	upServer := httptest.NewServer(up)
	defer upServer.Close()
	downServer := httptest.NewServer(down)
	defer downServer.Close()

	p := NewProber(2*time.Second, MustParseMatcher("200-399"))

	if err := p.Probe(context.Background(), upServer.URL+"/live"); err != nil {
		t.Fatalf("expected healthy probe, got %v", err)
	}

	err := p.Probe(context.Background(), downServer.URL+"/live")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", statusErr.Code)
	}
}

func TestProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	abandoned := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			close(abandoned)
		}
	}))
	defer slow.Close()
	defer close(release)

	p := NewProber(50*time.Millisecond, MustParseMatcher("200"))
	start := time.Now()
	err := p.Probe(context.Background(), slow.URL)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("probe exceeded its bound: %v", elapsed)
	}
	var timeout interface{ Timeout() bool }
	if !errors.As(err, &timeout) || !timeout.Timeout() {
		t.Errorf("expected a timeout error, got %v", err)
	}

	select {
	case <-abandoned:
	case <-time.After(2 * time.Second):
		t.Error("request was not cancelled after the check timed out")
	}
}

func TestProber_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := NewProber(time.Second, MustParseMatcher("200-399")).Probe(context.Background(), url); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestWatch_ReportsTransitions(t *testing.T) {
	handler := healthcheck.NewHandler()
	handler.AddLivenessCheck("app", func() error { return nil })
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr := NewTracker(2, 3)
	var seen []Transition

	err := Watch(ctx, NewProber(time.Second, MustParseMatcher("200")), srv.URL+"/live", time.Millisecond, tr, func(tn Transition) {
		seen = append(seen, tn)
		if tn.State == StateHealthy {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(seen) != 2 || !seen[1].Changed {
		t.Fatalf("expected healthy on the second observation, got %+v", seen)
	}
}
