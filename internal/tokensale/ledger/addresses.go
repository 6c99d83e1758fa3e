package ledger

import (
	"context"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type addressRepo struct {
	db *gorm.DB
}

func (r *addressRepo) Create(ctx context.Context, a *models.WalletAddress) (*models.WalletAddress, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(a).Error
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	return r.Get(ctx, a.UserID, a.Network, a.Asset)
}

func (r *addressRepo) Get(ctx context.Context, userID uuid.UUID, network, asset string) (*models.WalletAddress, error) {
	a, err := dbutil.FindOne[models.WalletAddress](r.db.WithContext(ctx).
		Where("user_id = ? AND network = ? AND asset = ?", userID, network, asset))
	if err != nil {
		return nil, notFound(err, "no %s/%s address for user %s", network, asset, userID)
	}
	return a, nil
}

func (r *addressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WalletAddress, error) {
	var addrs []models.WalletAddress
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&addrs).Error
	return addrs, dbutil.WrapError(err)
}

func (r *addressRepo) ListByNetworkAsset(ctx context.Context, network, asset string) ([]models.WalletAddress, error) {
	var addrs []models.WalletAddress
	err := r.db.WithContext(ctx).
		Where("network = ? AND asset = ?", network, asset).
		Find(&addrs).Error
	return addrs, dbutil.WrapError(err)
}
