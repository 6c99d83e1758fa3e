package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/pkg/metrics"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier tells a user that one of their balances changed.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, topic string, payload []byte) error
}

// AuditSink persists an audit record of a delivered event.
type AuditSink interface {
	Record(ctx context.Context, event models.OutboxEvent) error
}

// Drainer polls unpublished outbox rows in creation order and delivers them.
// Delivery is at least once: a row is marked published only after the
// publisher accepted it.
type Drainer struct {
	repo      ledger.OutboxRepository
	publisher Publisher
	notifier  Notifier
	audit     AuditSink
	cfg       config.OutboxConfig
	logger    *zap.Logger
}

// NewDrainer creates a drainer. publisher and notifier may be nil; audit defaults to the log.
func NewDrainer(repo ledger.OutboxRepository, publisher Publisher, notifier Notifier, audit AuditSink, cfg config.OutboxConfig, logger *zap.Logger) *Drainer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if audit == nil {
		audit = NewLogAuditSink(logger)
	}
	return &Drainer{
		repo:      repo,
		publisher: publisher,
		notifier:  notifier,
		audit:     audit,
		cfg:       cfg,
		logger:    logger.Named("outbox"),
	}
}

// Run drains on a fixed interval until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.Drain(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("Outbox drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Drain delivers one batch and returns how many events were published. It
// stops at the first publish failure so later events do not overtake it.
func (d *Drainer) Drain(ctx context.Context) (int, error) {
	events, err := d.repo.Pending(ctx, d.cfg.BatchSize, d.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	published := 0
	for _, ev := range events {
		if d.publisher != nil {
			if err := d.publisher.Publish(ctx, ev.Topic, ev.UserID.String(), []byte(ev.Payload)); err != nil {
				metrics.OutboxPublished.WithLabelValues(ev.Topic, "failed").Inc()
				if markErr := d.repo.MarkFailed(ctx, ev.ID, err.Error()); markErr != nil {
					d.logger.Error("Failed to record outbox failure", zap.String("event_id", ev.ID.String()), zap.Error(markErr))
				}
				return published, err
			}
		}

		if d.notifier != nil {
			if err := d.notifier.Notify(ctx, ev.UserID, ev.Topic, []byte(ev.Payload)); err != nil {
				d.logger.Warn("Notification failed", zap.String("event_id", ev.ID.String()), zap.Error(err))
			}
		}
		if err := d.audit.Record(ctx, ev); err != nil {
			d.logger.Warn("Audit record failed", zap.String("event_id", ev.ID.String()), zap.Error(err))
		}

		if err := d.repo.MarkPublished(ctx, ev.ID, time.Now().UTC()); err != nil {
			return published, fmt.Errorf("mark %s published: %w", ev.ID, err)
		}
		metrics.OutboxPublished.WithLabelValues(ev.Topic, "ok").Inc()
		published++
	}
	if published > 0 {
		d.logger.Debug("Outbox drained", zap.Int("published", published))
	}
	return published, nil
}

// LogAuditSink writes audit records to a zap logger.
type LogAuditSink struct {
	logger *zap.Logger
}

// NewLogAuditSink creates an audit sink on logger.
func NewLogAuditSink(logger *zap.Logger) *LogAuditSink {
	return &LogAuditSink{logger: logger.Named("audit")}
}

func (s *LogAuditSink) Record(_ context.Context, ev models.OutboxEvent) error {
	s.logger.Info("Ledger event",
		zap.String("event_id", ev.ID.String()),
		zap.String("topic", ev.Topic),
		zap.String("user_id", ev.UserID.String()),
		zap.Time("created_at", ev.CreatedAt),
		zap.String("payload", ev.Payload))
	return nil
}

// RedisNotifier publishes each event on the user's own channel.
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier creates a notifier publishing to prefix + user id.
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix}
}

// Channel returns the channel userID's notifications are published on.
func (n *RedisNotifier) Channel(userID uuid.UUID) string {
	return n.prefix + userID.String()
}

func (n *RedisNotifier) Notify(ctx context.Context, userID uuid.UUID, topic string, payload []byte) error {
	msg := fmt.Sprintf(`{"topic":%q,"event":%s}`, topic, payload)
	return n.client.Publish(ctx, n.Channel(userID), msg).Err()
}
