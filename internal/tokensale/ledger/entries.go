package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type entryRepo struct {
	db *gorm.DB
}

func (r *entryRepo) Append(ctx context.Context, e *models.WalletLedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return dbutil.WrapError(r.db.WithContext(ctx).Create(e).Error)
}

func (r *entryRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletLedgerEntry, error) {
	var entries []models.WalletLedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, dbutil.WrapError(err)
}
