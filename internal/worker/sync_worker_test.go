package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/events"
)

type recordingQueue struct {
	mu    sync.Mutex
	items []string
}

func (q *recordingQueue) Enqueue(owner uuid.UUID, month core.MonthKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, owner.String()+"/"+month.String())
}

func TestSyncWorker_HandleChangeMessage(t *testing.T) {
	owner := uuid.New()
	tests := []struct {
		name    string
		msg     *amqp.ChangeMessage
		wantErr bool
		want    string
	}{
		{
			name: "created",
			msg: amqp.NewChangeMessage(events.Change{OwnerID: owner, TransactionID: uuid.New(),
				Action: events.ActionCreated, Date: core.NewDate(2024, 6, 3), At: time.Now()}),
			want: owner.String() + "/2024-06",
		},
		{
			name: "deleted in december",
			msg: amqp.NewChangeMessage(events.Change{OwnerID: owner, TransactionID: uuid.New(),
				Action: events.ActionDeleted, Date: core.NewDate(2023, 12, 31)}),
			want: owner.String() + "/2023-12",
		},
		{
			name:    "missing owner",
			msg:     &amqp.ChangeMessage{Action: events.ActionCreated, Date: "2024-06-03"},
			wantErr: true,
		},
		{
			name:    "bad date",
			msg:     &amqp.ChangeMessage{OwnerID: owner, Action: events.ActionCreated, Date: "2024-13-03"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &recordingQueue{}
			w := NewSyncWorker(q)
			err := w.HandleChangeMessage(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleChangeMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			handled, rejected := w.Stats()
			if tt.wantErr {
				if len(q.items) != 0 || rejected != 1 {
					t.Errorf("items=%v rejected=%d", q.items, rejected)
				}
				return
			}
			if len(q.items) != 1 || q.items[0] != tt.want || handled != 1 {
				t.Errorf("items = %v, handled = %d, want %s", q.items, handled, tt.want)
			}
		})
	}
}
