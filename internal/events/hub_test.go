package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestHubScopesByOwner(t *testing.T) {
	h := NewHub()
	alice, bob := uuid.New(), uuid.New()

	var got []uuid.UUID
	var all int
	h.Subscribe(alice, func(_ context.Context, c Change) { got = append(got, c.OwnerID) })
	h.SubscribeAll(func(context.Context, Change) { all++ })

	_ = h.Publish(context.Background(), Change{OwnerID: alice, Action: ActionCreated})
	_ = h.Publish(context.Background(), Change{OwnerID: bob, Action: ActionCreated})

	if len(got) != 1 || got[0] != alice {
		t.Fatalf("alice subscriber got %v", got)
	}
	if all != 2 {
		t.Errorf("global subscriber calls = %d, want 2", all)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	owner := uuid.New()
	calls := 0
	unsubscribe := h.Subscribe(owner, func(context.Context, Change) { calls++ })

	_ = h.Publish(context.Background(), Change{OwnerID: owner})
	unsubscribe()
	unsubscribe() // second call is a no-op
	_ = h.Publish(context.Background(), Change{OwnerID: owner})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

func TestHubHandlerMayUnsubscribeItself(t *testing.T) {
	h := NewHub()
	owner := uuid.New()
	var unsubscribe func()
	calls := 0
	unsubscribe = h.Subscribe(owner, func(context.Context, Change) {
		calls++
		unsubscribe()
	})

	_ = h.Publish(context.Background(), Change{OwnerID: owner})
	_ = h.Publish(context.Background(), Change{OwnerID: owner})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestHubConcurrentUse(t *testing.T) {
	h := NewHub()
	owner := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := h.Subscribe(owner, func(context.Context, Change) {})
			_ = h.Publish(context.Background(), Change{OwnerID: owner})
			unsub()
		}()
	}
	wg.Wait()
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Change) error { return f.err }

func TestMultiReturnsPrimaryError(t *testing.T) {
	primary := errors.New("primary down")
	h := NewHub()
	delivered := false
	h.SubscribeAll(func(context.Context, Change) { delivered = true })

	err := Multi{h, failingPublisher{err: errors.New("ignored")}}.Publish(context.Background(), Change{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delivered {
		t.Error("hub did not receive change")
	}

	err = Multi{failingPublisher{err: primary}, h}.Publish(context.Background(), Change{})
	if !errors.Is(err, primary) {
		t.Errorf("expected primary error, got %v", err)
	}
}
