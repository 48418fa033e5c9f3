package analyzer

import (
	"context"

	"github.com/eleven-am/perimeter/internal/domain"
)

// maxHops bounds one walk. The stack's longest real path (instance, SG,
// subnet, route table, NAT, subnet, route table, IGW) is far shorter.
const maxHops = 64

// walk is the state of one directional traversal: the components already
// seen and the path from the source to the component being expanded.
type walk struct {
	ctx      context.Context
	accounts domain.AccountContext
	seen     map[string]struct{}
	path     []string
}

func NewAnalyzerContext(ctx context.Context, accounts domain.AccountContext) domain.AnalyzerContext {
	return &walk{ctx: ctx, accounts: accounts, seen: make(map[string]struct{})}
}

func (w *walk) MarkVisited(c domain.Component) { w.seen[c.GetID()] = struct{}{} }

func (w *walk) IsVisited(c domain.Component) bool {
	_, ok := w.seen[c.GetID()]
	return ok
}

func (w *walk) GetAccountContext() domain.AccountContext { return w.accounts }

func (w *walk) Context() context.Context { return w.ctx }

// enter pushes c onto the path. It reports false once the path is maxHops long.
func (w *walk) enter(c domain.Component) bool {
	if len(w.path) >= maxHops {
		return false
	}
	w.path = append(w.path, c.GetID())
	return true
}

func (w *walk) leave() {
	if len(w.path) > 0 {
		w.path = w.path[:len(w.path)-1]
	}
}

// hops copies the current path, with a final hop when one is given.
func (w *walk) hops(last domain.Component) []string {
	out := make([]string, 0, len(w.path)+1)
	out = append(out, w.path...)
	if last != nil {
		out = append(out, last.GetID())
	}
	return out
}

// pathRecorder is implemented by contexts that keep the walked path.
type pathRecorder interface {
	enter(domain.Component) bool
	leave()
	hops(last domain.Component) []string
}
