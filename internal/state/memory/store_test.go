package memory

import (
	"testing"

	"github.com/eleven-am/perimeter/internal/state"
	"github.com/eleven-am/perimeter/internal/state/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) state.Store {
		return New()
	})
}
