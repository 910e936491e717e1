package eventpublisher

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/splitledger/internal/domain"
	"github.com/iho/splitledger/internal/infrastructure/metrics"
)

// Drop reasons reported on the notifications_dropped metric.
const (
	DropQueueFull     = "queue_full"
	DropPublishFailed = "publish_failed"
)

// Publisher defines the interface for delivering notifications to listeners.
type Publisher interface {
	Publish(ctx context.Context, n domain.ChangeNotification) error
}

// Dispatcher implements usecase.Notifier. Notify never blocks: notifications
// are queued and handed to the Publisher by a single worker, and dropped when
// the queue is full.
type Dispatcher struct {
	queue     chan domain.ChangeNotification
	publisher Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	timeout   time.Duration
}

// Config for Dispatcher.
type Config struct {
	Publisher Publisher
	Logger    *zerolog.Logger
	Metrics   *metrics.Metrics
	QueueSize int           // Buffered notifications before dropping
	Timeout   time.Duration // Per-publish deadline
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Dispatcher{
		queue:     make(chan domain.ChangeNotification, cfg.QueueSize),
		publisher: cfg.Publisher,
		logger:    logger.With().Str("component", "notification_dispatcher").Logger(),
		metrics:   cfg.Metrics,
		timeout:   cfg.Timeout,
	}
}

// Notify queues n for delivery.
func (d *Dispatcher) Notify(_ context.Context, n domain.ChangeNotification) {
	select {
	case d.queue <- n:
	default:
		d.drop(n, DropQueueFull)
	}
}

// Start delivers queued notifications until ctx is cancelled. Notifications
// still queued at that point are flushed with a fresh deadline each.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info().
		Int("queue_size", cap(d.queue)).
		Dur("timeout", d.timeout).
		Msg("notification dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.flush(context.WithoutCancel(ctx))
			d.logger.Info().Msg("notification dispatcher shutting down")
			return ctx.Err()
		case n := <-d.queue:
			d.publish(ctx, n)
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	for {
		select {
		case n := <-d.queue:
			d.publish(ctx, n)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, n domain.ChangeNotification) {
	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.publisher.Publish(pctx, n); err != nil {
		d.logger.Error().Err(err).
			Str("type", n.Type).
			Str("movement_id", n.MovementID).
			Msg("failed to publish notification")
		d.drop(n, DropPublishFailed)
		return
	}

	if d.metrics != nil {
		d.metrics.NotificationsPublished.Inc()
	}
	d.logger.Debug().
		Str("type", n.Type).
		Str("movement_id", n.MovementID).
		Strs("area_ids", n.AreaIDs).
		Msg("notification published")
}

func (d *Dispatcher) drop(n domain.ChangeNotification, reason string) {
	if d.metrics != nil {
		d.metrics.NotificationsDropped.WithLabelValues(reason).Inc()
	}
	if reason == DropQueueFull {
		d.logger.Warn().
			Str("type", n.Type).
			Str("movement_id", n.MovementID).
			Msg("notification queue full, dropping notification")
	}
}

// LogPublisher is a Publisher that only logs notifications. It is used when
// no Redis instance is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a new LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the notification.
func (p *LogPublisher) Publish(_ context.Context, n domain.ChangeNotification) error {
	p.logger.Info().
		Str("type", n.Type).
		Str("movement_id", n.MovementID).
		Strs("area_ids", n.AreaIDs).
		Int64("amount", n.Amount).
		Str("currency", n.Currency).
		Msg("change notification")
	return nil
}
