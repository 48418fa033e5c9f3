package health

import "sync"

type State string

const (
	StateInitial   State = "initial"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// Tracker turns individual probe results into a target state the way a load
// balancer does: HealthyThreshold consecutive successes mark the target
// healthy, UnhealthyThreshold consecutive failures mark it unhealthy.
type Tracker struct {
	HealthyThreshold   int
	UnhealthyThreshold int

	mu        sync.Mutex
	state     State
	successes int
	failures  int
}

func NewTracker(healthy, unhealthy int) *Tracker {
	return &Tracker{
		HealthyThreshold:   healthy,
		UnhealthyThreshold: unhealthy,
		state:              StateInitial,
	}
}

// Observe records one probe result and reports the state after it, and
// whether that state differs from the one before.
func (t *Tracker) Observe(ok bool) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == "" {
		t.state = StateInitial
	}
	prev := t.state

	if ok {
		t.successes++
		t.failures = 0
		if t.successes >= max(t.HealthyThreshold, 1) {
			t.state = StateHealthy
		}
	} else {
		t.failures++
		t.successes = 0
		if t.failures >= max(t.UnhealthyThreshold, 1) {
			t.state = StateUnhealthy
		}
	}
	return t.state, t.state != prev
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == "" {
		return StateInitial
	}
	return t.state
}

// Reset returns the tracker to initial, as when a target is re-registered.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.state = StateInitial
	t.successes = 0
	t.failures = 0
	t.mu.Unlock()
}
