package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// SyncProcessorConfig holds configuration for the report sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often queued months are exported (default: 5s).
	// Changes arriving within one interval collapse into a single export.
	PollInterval time.Duration

	// ResyncInterval is how often every tracked month is exported again (default: 15m)
	ResyncInterval time.Duration

	// MaxRetries is the number of attempts before a month is dropped from the queue (default: 3)
	MaxRetries int

	// ResyncMonths is how many months back from the current one stay tracked (default: 2)
	ResyncMonths int

	// Location decides which month is current (default: UTC)
	Location *time.Location
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:   5 * time.Second,
		ResyncInterval: 15 * time.Minute,
		MaxRetries:     3,
		ResyncMonths:   2,
		Location:       time.UTC,
	}
}

// ReportExporter writes one owner's month somewhere.
type ReportExporter interface {
	ExportFor(ctx context.Context, owner uuid.UUID, month core.MonthKey) (string, error)
}

type syncKey struct {
	owner uuid.UUID
	month core.MonthKey
}

// SyncProcessor keeps exported reports in step with the ledger. Months are
// queued by Enqueue, exported on the next poll, and periodically re-exported.
type SyncProcessor struct {
	exporter ReportExporter
	config   SyncProcessorConfig
	now      func() time.Time

	queueMu sync.Mutex
	pending map[syncKey]int // value is the number of failed attempts
	tracked map[syncKey]struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(exporter ReportExporter, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = def.ResyncInterval
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	if config.ResyncMonths <= 0 {
		config.ResyncMonths = def.ResyncMonths
	}
	if config.Location == nil {
		config.Location = def.Location
	}
	return &SyncProcessor{
		exporter: exporter,
		config:   config,
		now:      time.Now,
		pending:  make(map[syncKey]int),
		tracked:  make(map[syncKey]struct{}),
	}
}

// Enqueue schedules an export of owner's month.
func (p *SyncProcessor) Enqueue(owner uuid.UUID, month core.MonthKey) {
	key := syncKey{owner, month}
	p.queueMu.Lock()
	if _, ok := p.pending[key]; !ok {
		p.pending[key] = 0
	}
	p.tracked[key] = struct{}{}
	p.queueMu.Unlock()
}

// Pending reports how many months wait for export.
func (p *SyncProcessor) Pending() int {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	return len(p.pending)
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Report sync processor started",
		"poll_interval", p.config.PollInterval,
		"resync_interval", p.config.ResyncInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Report sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Report sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	resyncTicker := time.NewTicker(p.config.ResyncInterval)
	defer resyncTicker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-resyncTicker.C:
			p.resync()
		}
	}
}

// processBatch exports every queued month once.
func (p *SyncProcessor) processBatch(ctx context.Context) {
	p.queueMu.Lock()
	batch := p.pending
	p.pending = make(map[syncKey]int)
	p.queueMu.Unlock()

	if len(batch) == 0 {
		return
	}
	slog.DebugContext(ctx, "Processing report sync batch", "count", len(batch))

	for key, attempts := range batch {
		select {
		case <-p.stopCh:
			p.requeue(key, attempts)
			continue
		case <-ctx.Done():
			p.requeue(key, attempts)
			continue
		default:
		}

		if _, err := p.exporter.ExportFor(ctx, key.owner, key.month); err != nil {
			p.handleFailure(ctx, key, attempts, err)
		}
	}
}

func (p *SyncProcessor) requeue(key syncKey, attempts int) {
	p.queueMu.Lock()
	if prev, ok := p.pending[key]; !ok || prev < attempts {
		p.pending[key] = attempts
	}
	p.queueMu.Unlock()
}

func (p *SyncProcessor) handleFailure(ctx context.Context, key syncKey, attempts int, err error) {
	attempts++
	slog.WarnContext(ctx, "Report sync failed",
		applog.FieldOwnerID, key.owner,
		applog.FieldMonth, key.month.String(),
		"attempt", attempts,
		applog.FieldError, err)

	if attempts >= p.config.MaxRetries {
		slog.ErrorContext(ctx, "Report sync failed permanently after max retries",
			applog.FieldOwnerID, key.owner,
			applog.FieldMonth, key.month.String(),
			"attempts", attempts)
		return
	}
	p.requeue(key, attempts)
}

// resync queues every tracked month still inside the resync window and
// forgets older ones.
func (p *SyncProcessor) resync() {
	oldest := core.Today(p.now(), p.config.Location).Month()
	for i := 1; i < p.config.ResyncMonths; i++ {
		oldest = oldest.Previous()
	}

	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for key := range p.tracked {
		if key.month.First().Before(oldest.First().Time) {
			delete(p.tracked, key)
			continue
		}
		if _, ok := p.pending[key]; !ok {
			p.pending[key] = 0
		}
	}
}
