// Package events fans out transaction change notifications to subscribers.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

const (
	ActionCreated Action = "created"
	ActionDeleted Action = "deleted"
)

type Action string

// Change describes one row-level change to an owner's transactions.
type Change struct {
	OwnerID       uuid.UUID `json:"owner_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Action        Action    `json:"action"`
	Date          core.Date `json:"date"`
	At            time.Time `json:"at"`
}

// Handler receives changes. It must not block for long.
type Handler func(ctx context.Context, c Change)

// Publisher is implemented by anything that can broadcast a change.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

type subscription struct {
	id    uint64
	owner uuid.UUID // uuid.Nil subscribes to every owner
	fn    Handler
}

// Hub is an in-process registry of change subscribers.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]subscription)}
}

// Subscribe registers fn for changes of owner. The returned function removes
// the registration and may be called any number of times.
func (h *Hub) Subscribe(owner uuid.UUID, fn Handler) (unsubscribe func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscription{id: id, owner: owner, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// SubscribeAll registers fn for changes of every owner.
func (h *Hub) SubscribeAll(fn Handler) (unsubscribe func()) {
	return h.Subscribe(uuid.Nil, fn)
}

// Publish delivers c synchronously to every matching subscriber. Handlers are
// invoked outside the lock so they may subscribe or unsubscribe.
func (h *Hub) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	h.mu.RLock()
	targets := make([]Handler, 0, len(h.subs))
	for _, s := range h.subs {
		if s.owner == uuid.Nil || s.owner == c.OwnerID {
			targets = append(targets, s.fn)
		}
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(ctx, c)
	}
	slog.DebugContext(ctx, "Change published",
		"owner_id", c.OwnerID,
		"transaction_id", c.TransactionID,
		"action", c.Action,
		"subscribers", len(targets))
	return nil
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Multi publishes to several publishers, logging failures of all but the first.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, c Change) error {
	var first error
	for i, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, c); err != nil {
			if i == 0 {
				first = err
				continue
			}
			slog.WarnContext(ctx, "Secondary change publisher failed",
				"error", err,
				"owner_id", c.OwnerID,
				"transaction_id", c.TransactionID)
		}
	}
	return first
}
