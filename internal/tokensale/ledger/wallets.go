package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type walletRepo struct {
	db *gorm.DB
}

func (r *walletRepo) ensure(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	w := &models.UserWallet{
		ID:                uuid.New(),
		UserID:            userID,
		SettlementBalance: decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return dbutil.WrapError(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(w).Error)
}

func (r *walletRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return nil, err
	}
	return dbutil.FindOne[models.UserWallet](r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *walletRepo) GetOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	if err := r.ensure(ctx, userID); err != nil {
		return nil, err
	}
	return dbutil.FindOne[models.UserWallet](dbutil.ForUpdate(r.db.WithContext(ctx)).Where("user_id = ?", userID))
}

func (r *walletRepo) Update(ctx context.Context, w *models.UserWallet) error {
	if w.SettlementBalance.IsNegative() {
		return errors.InsufficientFunds.Explain("settlement balance would become negative")
	}
	if w.TokenBalance < 0 {
		return errors.InsufficientBalance.Explain("token balance would become negative")
	}
	w.UpdatedAt = time.Now().UTC()
	return dbutil.WrapError(r.db.WithContext(ctx).Model(w).
		Select("settlement_balance", "token_balance", "updated_at").
		Updates(w).Error)
}
