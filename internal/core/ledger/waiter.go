package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/zeusync/msgcomm/internal/core/protocol"
)

// Waiter is a one-shot future for the message correlated with a sent key.
type Waiter struct {
	key  int32
	ch   chan *protocol.Header
	once sync.Once
}

func newWaiter(key int32) *Waiter {
	return &Waiter{key: key, ch: make(chan *protocol.Header, 1)}
}

// Key returns the key of the sent message this waiter belongs to.
func (w *Waiter) Key() int32 {
	return w.key
}

func (w *Waiter) release(rx *protocol.Header) {
	w.once.Do(func() {
		w.ch <- rx
		close(w.ch)
	})
}

// Wait blocks until the waiter is released, the timeout elapses or ctx ends.
// It returns nil unless a correlated message arrived.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) *protocol.Header {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case rx := <-w.ch:
		return rx
	case <-expired:
		return nil
	case <-ctx.Done():
		return nil
	}
}
