package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cityzen/config"
	"cityzen/events"
	"cityzen/logx"
	"cityzen/metrics"
	"cityzen/models"
)

const (
	baseRetryDelay = 2 * time.Second
	maxRetryDelay  = 10 * time.Minute
	publishTimeout = 10 * time.Second
)

// OutboxSource is the claim/ack side of the outbox table.
type OutboxSource interface {
	ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error
}

// OutboxRelay is a background worker that periodically publishes committed outbox events
type OutboxRelay struct {
	source    OutboxSource
	publisher events.Publisher
	cfg       config.OutboxConfig
	log       logx.Logger
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewOutboxRelay creates a new outbox relay
func NewOutboxRelay(source OutboxSource, publisher events.Publisher, cfg config.OutboxConfig, log logx.Logger) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &OutboxRelay{source: source, publisher: publisher, cfg: cfg, log: log, now: time.Now}
}

// Start runs the relay in its own goroutine until Stop is called.
func (w *OutboxRelay) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.log.Warn(context.Background(), "outbox_relay_running", "outbox relay is already running")
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	w.log.Info(context.Background(), "outbox_relay_started", "outbox relay started",
		slog.Duration("interval", w.cfg.Interval), slog.Int("batch_size", w.cfg.BatchSize))
	go w.run()
}

// Stop signals the loop and waits for the batch in flight to finish.
func (w *OutboxRelay) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	done := w.done
	w.mu.Unlock()
	<-done
	w.log.Info(context.Background(), "outbox_relay_stopped", "outbox relay stopped")
}

func (w *OutboxRelay) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-w.stopChan
		cancel()
	}()

	for {
		// Drain full batches back to back; wait for the ticker once caught up.
		for {
			n, err := w.ProcessOnce(ctx)
			if err != nil || n < w.cfg.BatchSize {
				break
			}
		}
		select {
		case <-ticker.C:
		case <-w.stopChan:
			return
		}
	}
}

// ProcessOnce claims one batch and publishes it. It returns the number of
// events claimed. Each event is acknowledged individually.
func (w *OutboxRelay) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.source.ClaimPending(ctx, w.cfg.BatchSize, w.cfg.StaleAfter)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error(ctx, "outbox_claim_failed", "failed to claim outbox events", slog.String("error", err.Error()))
		}
		return 0, err
	}
	for _, e := range batch {
		w.deliver(ctx, e)
	}
	return len(batch), nil
}

func (w *OutboxRelay) deliver(ctx context.Context, e models.OutboxEvent) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	err := w.publisher.Publish(pctx, e)
	cancel()
	if err == nil {
		if err := w.source.MarkDelivered(ctx, e.ID); err != nil {
			// The event stays in sending and is reclaimed after StaleAfter; consumers dedupe on event id.
			w.log.Error(ctx, "outbox_ack_failed", "failed to mark event delivered",
				slog.String("event_id", e.ID), slog.String("error", err.Error()))
			return
		}
		metrics.IncOutbox("delivered")
		return
	}

	attempts := e.Attempts + 1
	dead := attempts >= w.cfg.MaxAttempts
	next := w.now().UTC().Add(RetryDelay(attempts))
	if ackErr := w.source.MarkFailed(ctx, e.ID, attempts, &next, err.Error(), dead); ackErr != nil {
		w.log.Error(ctx, "outbox_ack_failed", "failed to record publish failure",
			slog.String("event_id", e.ID), slog.String("error", ackErr.Error()))
		return
	}
	if dead {
		metrics.IncOutbox("dead")
		w.log.Error(ctx, "outbox_event_dead", "giving up on event",
			slog.String("event_id", e.ID), slog.String("event_type", e.EventType), slog.Int("attempts", attempts))
		return
	}
	metrics.IncOutbox("failed")
	w.log.Warn(ctx, "outbox_publish_failed", "event publish failed, will retry",
		slog.String("event_id", e.ID), slog.Int("attempts", attempts), slog.String("error", err.Error()))
}

// RetryDelay doubles from two seconds per attempt, capped at ten minutes.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := baseRetryDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}
