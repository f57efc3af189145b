package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
)

// Enqueuer schedules one owner's month for export.
type Enqueuer interface {
	Enqueue(owner uuid.UUID, month core.MonthKey)
}

// SyncWorker turns change messages from AMQP into report exports.
type SyncWorker struct {
	queue    Enqueuer
	handled  atomic.Int64
	rejected atomic.Int64
}

func NewSyncWorker(queue Enqueuer) *SyncWorker {
	return &SyncWorker{queue: queue}
}

// HandleChangeMessage queues the month touched by msg. Several changes to the
// same month before the next export collapse into one.
func (w *SyncWorker) HandleChangeMessage(ctx context.Context, msg *amqp.ChangeMessage) error {
	if err := msg.Validate(); err != nil {
		w.rejected.Add(1)
		return fmt.Errorf("validate change message: %w", err)
	}
	change, err := msg.ToChange()
	if err != nil {
		w.rejected.Add(1)
		return fmt.Errorf("decode change: %w", err)
	}
	month := change.Date.Month()

	w.queue.Enqueue(change.OwnerID, month)
	w.handled.Add(1)

	slog.InfoContext(ctx, "Queued report sync",
		"owner_id", change.OwnerID,
		"transaction_id", change.TransactionID,
		"action", change.Action,
		"month", month.String())
	return nil
}

// Stats reports how many messages were queued and rejected since start.
func (w *SyncWorker) Stats() (handled, rejected int64) {
	return w.handled.Load(), w.rejected.Load()
}
