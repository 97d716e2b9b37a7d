package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/therapia/internal/shared/domain"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/convert"
	"github.com/felixgeelhaar/therapia/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/therapia/pkg/observability"
)

// ProcessorConfig controls polling and redelivery of outbox messages.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts is the number of publish attempts before a message is
	// dead-lettered. Zero dead-letters on the first failure.
	MaxAttempts int
	Backoff     Backoff
}

// Backoff doubles the retry delay from Base up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base, ceiling := b.Base, b.Max
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	shift := convert.IntToUintSafe(attempt - 1)
	if shift > 30 {
		return ceiling
	}
	if d := base << shift; d < ceiling {
		return d
	}
	return ceiling
}

// DefaultProcessorConfig polls five times a second and gives a message five
// attempts over roughly fifteen seconds.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval: 200 * time.Millisecond,
		BatchSize:    100,
		MaxAttempts:  5,
		Backoff:      Backoff{Base: time.Second, Max: time.Minute},
	}
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithClock sets the clock used for retry schedules and lag.
func WithClock(clock domain.Clock) ProcessorOption {
	return func(p *Processor) { p.clock = clock }
}

// WithMetrics reports deliveries and lag to m.
func WithMetrics(m observability.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// Processor relays committed outbox rows to the event bus in id order.
// Messages of an aggregate whose earlier message failed in the same pass
// are held back until the next pass.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	clock     domain.Clock
	metrics   observability.Metrics

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	published atomic.Uint64
	retried   atomic.Uint64
	dead      atomic.Uint64

	lastMu sync.Mutex
	last   passInfo
}

type passInfo struct {
	processedAt *time.Time
	oldest      *time.Time
	lag         float64
	err         string
	errAt       *time.Time
}

// NewProcessor creates an outbox processor.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProcessorConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultProcessorConfig().PollInterval
	}
	p := &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger.With("component", "outbox"),
		clock:     domain.SystemClock{},
		metrics:   observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the polling loop until ctx ends or Stop is called. Calling
// Start on a running processor does nothing.
func (p *Processor) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.done != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(runCtx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_attempts", p.config.MaxAttempts,
	)
	return nil
}

// Stop ends the polling loop and waits for the current pass to finish.
func (p *Processor) Stop() {
	p.lifecycle.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.lifecycle.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the polling loop is active.
func (p *Processor) IsRunning() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.done != nil
}

func (p *Processor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox pass failed", "error", err)
			}
		}
	}
}

// ProcessOnce runs a single pass synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	return p.drain(ctx)
}

func (p *Processor) drain(ctx context.Context) error {
	msgs, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.notePass(msgs)

	held := make(map[uuid.UUID]struct{})
	for _, msg := range msgs {
		if _, ok := held[msg.AggregateID]; ok {
			continue
		}
		if err := p.deliver(ctx, msg); err != nil {
			held[msg.AggregateID] = struct{}{}
		}
	}
	return nil
}

func (p *Processor) deliver(ctx context.Context, msg *Message) error {
	envelope, err := msg.Envelope()
	if err == nil {
		err = p.publisher.Publish(ctx, msg.RoutingKey, envelope)
	}
	if err == nil {
		if markErr := p.repo.MarkPublished(ctx, msg.ID); markErr != nil {
			p.logger.Error("mark published failed", "id", msg.ID, "event_id", msg.EventID, "error", markErr)
			return nil
		}
		p.published.Add(1)
		p.count("published", msg.RoutingKey)
		return nil
	}

	trace := traceOf(msg)
	p.logger.Warn("event delivery failed",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"attempt", msg.RetryCount+1,
		"correlation_id", trace.CorrelationID,
		"error", err,
	)
	p.noteError(err)

	if msg.RetryCount+1 >= p.config.MaxAttempts {
		p.dead.Add(1)
		p.count("dead", msg.RoutingKey)
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			p.logger.Error("mark dead failed", "id", msg.ID, "error", markErr)
		}
		return err
	}
	p.retried.Add(1)
	p.count("retry", msg.RoutingKey)
	next := p.clock.Now().Add(p.config.Backoff.Delay(msg.RetryCount + 1))
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
		p.logger.Error("mark failed failed", "id", msg.ID, "error", markErr)
	}
	return err
}

func (p *Processor) count(outcome, routingKey string) {
	p.metrics.Counter(observability.MetricOutboxDeliveries, 1,
		observability.T("outcome", outcome),
		observability.T("routing_key", routingKey),
	)
}

func traceOf(msg *Message) domain.EventMetadata {
	var md domain.EventMetadata
	if len(msg.Metadata) > 0 {
		_ = json.Unmarshal(msg.Metadata, &md)
	}
	return md
}

// Stats is a snapshot of processor activity since start-up.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// GetStats returns the current snapshot.
func (p *Processor) GetStats() Stats {
	p.lastMu.Lock()
	last := p.last
	p.lastMu.Unlock()
	return Stats{
		IsRunning:       p.IsRunning(),
		PublishedCount:  p.published.Load(),
		FailedCount:     p.retried.Load(),
		DeadCount:       p.dead.Load(),
		LagSeconds:      last.lag,
		LastError:       last.err,
		LastErrorAt:     last.errAt,
		LastProcessedAt: last.processedAt,
		OldestMessageAt: last.oldest,
	}
}

func (p *Processor) noteError(err error) {
	now := p.clock.Now()
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	p.last.err = err.Error()
	p.last.errAt = &now
}

func (p *Processor) notePass(msgs []*Message) {
	now := p.clock.Now()
	var oldest *time.Time
	for _, msg := range msgs {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}
	p.metrics.Gauge(observability.MetricOutboxLag, lag)

	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	p.last.processedAt = &now
	p.last.oldest = oldest
	p.last.lag = lag
}
