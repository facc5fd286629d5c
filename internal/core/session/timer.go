package session

import (
	"sync"
	"time"
)

// timer runs fn once after a due time and then every period. Arming it again
// or stopping it bumps its generation, so a callback scheduled by an older
// generation does not run fn. A callback that already passed the generation
// check when arm runs still completes; fn must re-check the state it acts on.
type timer struct {
	mu  sync.Mutex
	gen uint64
	t   *time.Timer
	fn  func()
}

func newTimer(fn func()) *timer {
	return &timer{fn: fn}
}

// arm replaces any pending schedule. A non-positive due disables the timer; a
// non-positive period makes it one-shot.
func (t *timer) arm(due, period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancelLocked()
	if due <= 0 {
		return
	}
	gen := t.gen
	var fire func()
	fire = func() {
		if !t.live(gen) {
			return
		}
		t.fn()

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.gen != gen {
			return
		}
		if period > 0 {
			t.t = time.AfterFunc(period, fire)
		} else {
			t.t = nil
		}
	}
	t.t = time.AfterFunc(due, fire)
}

func (t *timer) stop() {
	t.mu.Lock()
	t.cancelLocked()
	t.mu.Unlock()
}

func (t *timer) armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t != nil
}

func (t *timer) live(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen
}

func (t *timer) cancelLocked() {
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}
