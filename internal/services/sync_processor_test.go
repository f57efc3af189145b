package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

type fakeExporter struct {
	mu    sync.Mutex
	calls []syncKey
	fail  int
}

func (f *fakeExporter) ExportFor(_ context.Context, owner uuid.UUID, month core.MonthKey) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncKey{owner, month})
	if f.fail > 0 {
		f.fail--
		return "", errors.New("sheets unavailable")
	}
	return "Report " + month.String(), nil
}

func (f *fakeExporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != 5*time.Second {
		t.Errorf("expected PollInterval 5s, got %v", config.PollInterval)
	}
	if config.ResyncInterval != 15*time.Minute {
		t.Errorf("expected ResyncInterval 15m, got %v", config.ResyncInterval)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.ResyncMonths != 2 {
		t.Errorf("expected ResyncMonths 2, got %d", config.ResyncMonths)
	}
}

func TestSyncProcessorConfig_ZeroValuesUseDefaults(t *testing.T) {
	processor := NewSyncProcessor(&fakeExporter{}, SyncProcessorConfig{PollInterval: time.Second})

	if processor.config.PollInterval != time.Second {
		t.Errorf("custom PollInterval lost: %v", processor.config.PollInterval)
	}
	if processor.config.MaxRetries != 3 {
		t.Errorf("expected default MaxRetries, got %d", processor.config.MaxRetries)
	}
}

func TestSyncProcessor_EnqueueCollapsesDuplicates(t *testing.T) {
	exp := &fakeExporter{}
	processor := NewSyncProcessor(exp, DefaultSyncProcessorConfig())
	owner := uuid.New()
	june := core.NewMonthKey(2024, 6)

	processor.Enqueue(owner, june)
	processor.Enqueue(owner, june)
	processor.Enqueue(owner, june.Previous())
	if processor.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", processor.Pending())
	}

	processor.processBatch(context.Background())
	if exp.count() != 2 {
		t.Errorf("exports = %d, want 2", exp.count())
	}
	if processor.Pending() != 0 {
		t.Errorf("queue not drained: %d", processor.Pending())
	}
}

func TestSyncProcessor_RetriesThenDrops(t *testing.T) {
	exp := &fakeExporter{fail: 10}
	config := DefaultSyncProcessorConfig()
	config.MaxRetries = 2
	processor := NewSyncProcessor(exp, config)
	processor.Enqueue(uuid.New(), core.NewMonthKey(2024, 6))

	processor.processBatch(context.Background())
	if processor.Pending() != 1 {
		t.Fatalf("failed month should be requeued, pending = %d", processor.Pending())
	}
	processor.processBatch(context.Background())
	if processor.Pending() != 0 {
		t.Errorf("month should be dropped after max retries, pending = %d", processor.Pending())
	}
	if exp.count() != 2 {
		t.Errorf("exports = %d, want 2", exp.count())
	}
}

func TestSyncProcessor_ResyncWindowUsesLocation(t *testing.T) {
	cfg := DefaultSyncProcessorConfig()
	cfg.Location = time.FixedZone("WIB", 7*60*60)
	processor := NewSyncProcessor(&fakeExporter{}, cfg)
	// Still May in UTC, already June in the configured zone.
	processor.now = func() time.Time { return time.Date(2024, 5, 31, 20, 0, 0, 0, time.UTC) }
	owner := uuid.New()

	processor.Enqueue(owner, core.NewMonthKey(2024, 6))
	processor.Enqueue(owner, core.NewMonthKey(2024, 5))
	processor.Enqueue(owner, core.NewMonthKey(2024, 4))
	processor.processBatch(context.Background())

	processor.resync()
	if len(processor.tracked) != 2 {
		t.Errorf("tracked = %d, want April outside the window", len(processor.tracked))
	}
	if _, ok := processor.tracked[syncKey{owner, core.NewMonthKey(2024, 4)}]; ok {
		t.Error("April should be forgotten once June is current")
	}
}

func TestSyncProcessor_ResyncWindow(t *testing.T) {
	processor := NewSyncProcessor(&fakeExporter{}, DefaultSyncProcessorConfig())
	processor.now = func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }
	owner := uuid.New()

	processor.Enqueue(owner, core.NewMonthKey(2024, 6))
	processor.Enqueue(owner, core.NewMonthKey(2024, 5))
	processor.Enqueue(owner, core.NewMonthKey(2024, 1))
	processor.processBatch(context.Background())

	processor.resync()
	if processor.Pending() != 2 {
		t.Errorf("resync queued %d months, want 2", processor.Pending())
	}
	if len(processor.tracked) != 2 {
		t.Errorf("tracked = %d, want old month forgotten", len(processor.tracked))
	}
}

func TestSyncProcessor_IsRunning(t *testing.T) {
	processor := NewSyncProcessor(&fakeExporter{}, DefaultSyncProcessorConfig())

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestSyncProcessor_StartStop(t *testing.T) {
	exp := &fakeExporter{}
	config := DefaultSyncProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	processor := NewSyncProcessor(exp, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	processor.Enqueue(uuid.New(), core.NewMonthKey(2024, 6))
	deadline := time.Now().Add(time.Second)
	for exp.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if exp.count() == 0 {
		t.Error("queued month was never exported")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor still running after Stop")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor := NewSyncProcessor(&fakeExporter{}, DefaultSyncProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}
