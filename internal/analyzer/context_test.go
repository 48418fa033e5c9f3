package analyzer

import (
	"context"
	"testing"

	"github.com/eleven-am/perimeter/internal/domain"
)

type stubAccountContext struct{}

func (s *stubAccountContext) GetClient(accountID string) (domain.AWSClient, error) {
	return nil, nil
}

func TestAnalyzerContext_Visited(t *testing.T) {
	actx := NewAnalyzerContext(context.Background(), &stubAccountContext{})

	a := &testComponent{id: "acct:sg-1"}
	b := &testComponent{id: "acct:sg-2"}
	sameAsA := &testComponent{id: "acct:sg-1"}

	if actx.IsVisited(a) {
		t.Fatal("nothing is visited initially")
	}
	actx.MarkVisited(a)

	tests := []struct {
		name string
		c    domain.Component
		want bool
	}{
		{"marked", a, true},
		{"other id", b, false},
		{"same id different value", sameAsA, true},
	}
	for _, tt := range tests {
		if got := actx.IsVisited(tt.c); got != tt.want {
			t.Errorf("%s: IsVisited = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAnalyzerContext_Accessors(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "run-1")
	accountCtx := &stubAccountContext{}
	actx := NewAnalyzerContext(ctx, accountCtx)

	if actx.GetAccountContext() != accountCtx {
		t.Error("account context not returned as given")
	}
	if actx.Context().Value(key{}) != "run-1" {
		t.Error("context not returned as given")
	}
}
