package aws

import (
	"context"
	"errors"
	"testing"
)

type fakePager struct {
	pages  [][]string
	index  int
	failAt int
	err    error
}

func (p *fakePager) hasMore() bool {
	return p.index < len(p.pages)
}

func (p *fakePager) next(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.err != nil && p.index == p.failAt {
		return nil, p.err
	}
	page := p.pages[p.index]
	p.index++
	return page, nil
}

func identity(page []string) []string { return page }

func TestCollectPages(t *testing.T) {
	apiErr := errors.New("throttled")

	tests := []struct {
		name    string
		pager   *fakePager
		want    []string
		wantErr error
	}{
		{
			name:  "single page",
			pager: &fakePager{pages: [][]string{{"a", "b", "c"}}},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "multiple pages",
			pager: &fakePager{pages: [][]string{{"a"}, {"b", "c"}, {"d"}}},
			want:  []string{"a", "b", "c", "d"},
		},
		{
			name:  "no pages",
			pager: &fakePager{},
			want:  nil,
		},
		{
			name:    "error on second page",
			pager:   &fakePager{pages: [][]string{{"a"}, {"b"}}, failAt: 1, err: apiErr},
			wantErr: apiErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CollectPages(context.Background(), tt.pager.hasMore, tt.pager.next, identity)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d items, got %d", len(tt.want), len(got))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("item %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCollectPages_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pager := &fakePager{pages: [][]string{{"a"}}}
	if _, err := CollectPages(ctx, pager.hasMore, pager.next, identity); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFirstOf(t *testing.T) {
	if firstOf([]int{}) != nil {
		t.Error("expected nil for empty slice")
	}
	items := []string{"vpc-1", "vpc-2"}
	first := firstOf(items)
	if first == nil || *first != "vpc-1" {
		t.Fatalf("expected vpc-1, got %v", first)
	}
	if first != &items[0] {
		t.Error("expected pointer into the original slice")
	}
}
