// Package app contains the application services: ingestion, aggregation,
// retention, and performance reporting.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ambrood/sitepulse/adapters/metrics"
	"github.com/ambrood/sitepulse/domain/event"
	"github.com/ambrood/sitepulse/ports"
)

// BufferedRecorder queues events and writes them to the store in batches,
// keeping the request path free of storage latency. A failed flush drops
// the batch: losing events to a transient storage error is accepted.
type BufferedRecorder struct {
	store         ports.AnalyticsStore
	logger        zerolog.Logger
	metrics       *metrics.Collector
	buffer        []event.Event
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// NewBufferedRecorder creates a recorder flushing at batchSize events or
// every flushInterval, whichever comes first.
func NewBufferedRecorder(store ports.AnalyticsStore, logger zerolog.Logger, m *metrics.Collector, batchSize int, flushInterval time.Duration) *BufferedRecorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	r := &BufferedRecorder{
		store:         store,
		logger:        logger,
		metrics:       m,
		buffer:        make([]event.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record queues an event. Never blocks beyond the buffer append.
func (r *BufferedRecorder) Record(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, e)

	if len(r.buffer) >= r.batchSize {
		r.flushLocked()
	}
}

// Flush forces queued events to storage.
func (r *BufferedRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
	return nil
}

// flushLocked hands the current buffer to a background writer. Events are
// written one at a time so one poison event cannot fail a whole batch.
func (r *BufferedRecorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}

	batch := make([]event.Event, len(r.buffer))
	copy(batch, r.buffer)
	r.buffer = r.buffer[:0]

	go r.writeBatch(batch)
}

func (r *BufferedRecorder) writeBatch(batch []event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if r.metrics != nil {
		r.metrics.FlushBatchSize.Observe(float64(len(batch)))
	}

	for _, e := range batch {
		if err := r.store.RecordEvent(ctx, e); err != nil {
			r.logger.Warn().Err(err).Str("event_id", e.ID).Msg("event write failed, dropping")
			if r.metrics != nil {
				r.metrics.IngestFailures.WithLabelValues("storage").Inc()
			}
		}
	}
}

func (r *BufferedRecorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the background loop and writes remaining events inline.
func (r *BufferedRecorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()

		r.mu.Lock()
		remaining := make([]event.Event, len(r.buffer))
		copy(remaining, r.buffer)
		r.buffer = r.buffer[:0]
		r.mu.Unlock()

		if len(remaining) > 0 {
			r.writeBatch(remaining)
		}
	})
	return nil
}

// SyncRecorder writes events straight through to the store. Used by tests
// and the sweep CLI where buffering only obscures results.
type SyncRecorder struct {
	store  ports.AnalyticsStore
	logger zerolog.Logger
}

// NewSyncRecorder creates a pass-through recorder.
func NewSyncRecorder(store ports.AnalyticsStore, logger zerolog.Logger) *SyncRecorder {
	return &SyncRecorder{store: store, logger: logger}
}

// Record writes the event immediately, logging and swallowing failures.
func (r *SyncRecorder) Record(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.RecordEvent(ctx, e); err != nil {
		r.logger.Warn().Err(err).Str("event_id", e.ID).Msg("event write failed, dropping")
	}
}

// Flush is a no-op for the synchronous recorder.
func (r *SyncRecorder) Flush(ctx context.Context) error { return nil }

// Close is a no-op for the synchronous recorder.
func (r *SyncRecorder) Close() error { return nil }

// Ensure interface compliance.
var (
	_ ports.EventRecorder = (*BufferedRecorder)(nil)
	_ ports.EventRecorder = (*SyncRecorder)(nil)
)
