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

type depositRepo struct {
	db *gorm.DB
}

func (r *depositRepo) InsertDetected(ctx context.Context, d *models.WalletDeposit) (bool, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Status = models.DepositStatusDetected
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(d)
	if res.Error != nil {
		if dbutil.IsDuplicateKey(res.Error) {
			return false, nil
		}
		return false, dbutil.WrapError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *depositRepo) ListDetected(ctx context.Context, network, asset string, limit int) ([]models.WalletDeposit, error) {
	var deposits []models.WalletDeposit
	err := r.db.WithContext(ctx).
		Where("network = ? AND asset = ? AND status = ?", network, asset, models.DepositStatusDetected).
		Order("block_number ASC").
		Limit(limit).
		Find(&deposits).Error
	return deposits, dbutil.WrapError(err)
}

func (r *depositRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.WalletDeposit, error) {
	d, err := dbutil.FindOne[models.WalletDeposit](dbutil.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
	if err != nil {
		return nil, notFound(err, "deposit %s not found", id)
	}
	return d, nil
}

func (r *depositRepo) Update(ctx context.Context, d *models.WalletDeposit) error {
	d.UpdatedAt = time.Now().UTC()
	return dbutil.WrapError(r.db.WithContext(ctx).Model(d).
		Select("confirmations", "block_number", "status", "reject_reason", "confirmed_at", "updated_at").
		Updates(d).Error)
}

func (r *depositRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletDeposit, error) {
	var deposits []models.WalletDeposit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&deposits).Error
	return deposits, dbutil.WrapError(err)
}
