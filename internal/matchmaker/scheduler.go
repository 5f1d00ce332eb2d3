package matchmaker

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// scheduledTask wraps a clockwork.Timer with a cancel path, giving the
// matchmaker two scheduling primitives: "run f after d" and "cancel a
// previously scheduled f". Firing acquires the matchmaker's mutex
// before calling f, so a fired task observes the
// same total order as any other state mutation.
type scheduledTask struct {
	timer  clockwork.Timer
	cancel chan struct{}
	done   chan struct{}
}

// schedule runs f, under mm's lock, after d elapses on mm's clock.
func (mm *Matchmaker) schedule(d time.Duration, f func()) *scheduledTask {
	t := &scheduledTask{
		timer:  mm.clock.NewTimer(d),
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		select {
		case <-t.timer.Chan():
			mm.mu.Lock()
			f()
			mm.mu.Unlock()
		case <-t.cancel:
			return
		}
	}()
	return t
}

// Cancel stops the timer and releases the waiting goroutine without
// running f. Safe to call more than once; safe to call after the task
// has already fired (it is then a no-op).
func (t *scheduledTask) Cancel() {
	if t == nil {
		return
	}
	t.timer.Stop()
	select {
	case <-t.cancel:
		// already cancelled
	default:
		close(t.cancel)
	}
}
