package health

import (
	"context"
	"time"
)

// Transition is one observation fed through a Tracker.
type Transition struct {
	At      time.Time
	State   State
	Changed bool
	Err     error
}

// Watch probes url every interval and reports each observation until ctx
// ends. It returns ctx.Err().
func Watch(ctx context.Context, p *Prober, url string, interval time.Duration, t *Tracker, report func(Transition)) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := p.Probe(ctx, url)
		state, changed := t.Observe(err == nil)
		report(Transition{At: time.Now(), State: state, Changed: changed, Err: err})
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
