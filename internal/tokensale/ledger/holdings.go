package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type holdingRepo struct {
	db *gorm.DB
}

func (r *holdingRepo) Get(ctx context.Context, saleID string, userID uuid.UUID) (*models.UserTokenHolding, error) {
	h, err := dbutil.FindOne[models.UserTokenHolding](r.db.WithContext(ctx).
		Where("sale_id = ? AND user_id = ?", saleID, userID))
	if err != nil {
		return nil, notFound(err, "no holding for user %s", userID)
	}
	return h, nil
}

func (r *holdingRepo) GetForUpdate(ctx context.Context, saleID string, userID uuid.UUID) (*models.UserTokenHolding, error) {
	h, err := dbutil.FindOne[models.UserTokenHolding](dbutil.ForUpdate(r.db.WithContext(ctx)).
		Where("sale_id = ? AND user_id = ?", saleID, userID))
	if err != nil {
		return nil, notFound(err, "no holding for user %s", userID)
	}
	return h, nil
}

func (r *holdingRepo) GetOrCreateForUpdate(ctx context.Context, saleID string, userID uuid.UUID) (*models.UserTokenHolding, error) {
	now := time.Now().UTC()
	empty := &models.UserTokenHolding{
		ID:        uuid.New(),
		SaleID:    saleID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(empty).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	return r.GetForUpdate(ctx, saleID, userID)
}

func (r *holdingRepo) Update(ctx context.Context, h *models.UserTokenHolding) error {
	h.UpdatedAt = time.Now().UTC()
	return dbutil.WrapError(r.db.WithContext(ctx).Model(h).
		Select("balance", "locked_until", "dividends_disabled", "updated_at").
		Updates(h).Error)
}
