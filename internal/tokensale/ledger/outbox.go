package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type outboxRepo struct {
	db *gorm.DB
}

func (r *outboxRepo) Append(ctx context.Context, topic string, userID uuid.UUID, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	event := &models.OutboxEvent{
		ID:        uuid.New(),
		Topic:     topic,
		UserID:    userID,
		Payload:   string(body),
		CreatedAt: time.Now().UTC(),
	}
	return dbutil.WrapError(r.db.WithContext(ctx).Create(event).Error)
}

func (r *outboxRepo) Pending(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	q := r.db.WithContext(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	err := q.Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, dbutil.WrapError(err)
}

func (r *outboxRepo) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	return dbutil.WrapError(r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"published_at": at,
			"attempts":     gorm.Expr("attempts + 1"),
		}).Error)
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return dbutil.WrapError(r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error": reason,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error)
}
