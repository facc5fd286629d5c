package bus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zeusync/msgcomm/internal/core/observability/log"
)

type testObserver struct {
	mu             sync.Mutex
	publishCount   int
	deliveredCount int
	lastErr        error
}

func (o *testObserver) OnPublish(_ string, _ Event) {
	o.mu.Lock()
	o.publishCount++
	o.mu.Unlock()
}

func (o *testObserver) OnDelivered(_ string, handlers int, err error, _ int64) {
	o.mu.Lock()
	o.deliveredCount += handlers
	o.lastErr = err
	o.mu.Unlock()
}

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	done := make(chan struct{})
	_, err := b.Subscribe("test.event", func(e Event) error {
		if e.Data().(int) != 123 {
			t.Errorf("unexpected data %v", e.Data())
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err = b.Publish(NewEvent("test.event", "tester", 123, nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handler not called")
	}
}

func TestDeliveryFollowsSubscriptionOrder(t *testing.T) {
	b := New()
	var got []int
	for i := 0; i < 5; i++ {
		_, _ = b.Subscribe("ev", func(Event) error { got = append(got, i); return nil })
	}
	if err := b.Publish(NewEvent("ev", "src", nil, nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("handlers out of order: %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 deliveries, got %d", len(got))
	}
}

func TestPublishAsyncReturnsErrorChannel(t *testing.T) {
	b := New()
	handlerErr := errors.New("fail")
	_, err := b.Subscribe("x", func(e Event) error { return handlerErr })
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	select {
	case e := <-b.PublishAsync(NewEvent("x", "src", nil, nil)):
		if !errors.Is(e, handlerErr) {
			t.Fatalf("expected handler error, got %v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("async publish did not complete")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	count := 0
	sub, _ := b.Subscribe("ev", func(Event) error { count++; return nil })
	_ = b.Publish(NewEvent("ev", "src", nil, nil))
	if err := b.Unsubscribe(sub); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	_ = sub.Cancel()
	_ = b.Publish(NewEvent("ev", "src", nil, nil))

	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
	if sub.IsActive() {
		t.Fatal("subscription still active")
	}
	if n := b.Subscribers("ev"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	if err := b.Unsubscribe(nil); err != nil {
		t.Fatalf("nil unsubscribe: %v", err)
	}
}

func TestNilHandlerRejected(t *testing.T) {
	if _, err := New().Subscribe("ev", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestObserverMetrics(t *testing.T) {
	b := New()
	obs := &testObserver{}
	b.AddObserver(obs)
	b.AddObserver(obs)

	errA := errors.New("a")
	_, _ = b.Subscribe("ev", func(Event) error { return errA })
	_, _ = b.Subscribe("ev", func(Event) error { return nil })

	for i := 0; i < 2; i++ {
		if err := b.Publish(NewEvent("ev", "src", nil, nil)); !errors.Is(err, errA) {
			t.Fatalf("expected joined handler error, got %v", err)
		}
	}

	m := b.GetMetrics()
	if m.Published != 2 || m.DeliveredHandlers != 4 || m.Errors != 2 || m.SubscribersActive != 2 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if obs.publishCount != 2 || obs.deliveredCount != 4 || obs.lastErr == nil {
		t.Fatalf("observer saw publish=%d delivered=%d err=%v", obs.publishCount, obs.deliveredCount, obs.lastErr)
	}

	b.RemoveObserver(obs)
	_ = b.Publish(NewEvent("ev", "src", nil, nil))
	if b.GetMetrics().Published != 2 {
		t.Fatal("metrics must not change without observers")
	}
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, _ := b.Subscribe("ev", func(Event) error { return nil })
			_ = sub.Cancel()
		}()
		go func() {
			defer wg.Done()
			_ = b.Publish(NewEvent("ev", "src", nil, nil))
		}()
	}
	wg.Wait()
}

func TestLogObserverCountsFailures(t *testing.T) {
	b := New()
	obs := NewLogObserver(log.NewNop())
	b.AddObserver(obs)

	_, _ = b.Subscribe("ev", func(Event) error { return errors.New("boom") })
	done := b.PublishAsync(NewEvent("ev", "src", nil, nil))
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected handler error")
		}
	case <-time.After(time.Second):
		t.Fatal("async publish did not finish")
	}

	if m := b.GetMetrics(); m.Published != 1 || m.Errors != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}
