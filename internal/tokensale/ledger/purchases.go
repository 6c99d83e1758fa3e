package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type purchaseRepo struct {
	db *gorm.DB
}

func (r *purchaseRepo) Create(ctx context.Context, p *models.TokenPurchase) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return dbutil.WrapError(r.db.WithContext(ctx).Create(p).Error)
}

func (r *purchaseRepo) Get(ctx context.Context, id uuid.UUID) (*models.TokenPurchase, error) {
	p, err := dbutil.FindOne[models.TokenPurchase](r.db.WithContext(ctx).Where("id = ?", id))
	if err != nil {
		return nil, notFound(err, "purchase %s not found", id)
	}
	return p, nil
}

func (r *purchaseRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TokenPurchase, error) {
	p, err := dbutil.FindOne[models.TokenPurchase](dbutil.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
	if err != nil {
		return nil, notFound(err, "purchase %s not found", id)
	}
	return p, nil
}

func (r *purchaseRepo) Update(ctx context.Context, p *models.TokenPurchase) error {
	p.UpdatedAt = time.Now().UTC()
	return dbutil.WrapError(r.db.WithContext(ctx).Model(p).
		Select("proof_ref", "status", "confirmed_at", "failed_at", "updated_at").
		Updates(p).Error)
}

func (r *purchaseRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.TokenPurchase, error) {
	var purchases []models.TokenPurchase
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&purchases).Error
	return purchases, dbutil.WrapError(err)
}

func (r *purchaseRepo) ListPending(ctx context.Context, limit int) ([]models.TokenPurchase, error) {
	var purchases []models.TokenPurchase
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PurchaseStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&purchases).Error
	return purchases, dbutil.WrapError(err)
}

func (r *purchaseRepo) PendingVolumeSince(ctx context.Context, saleID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.TokenPurchase{}).
		Select("COALESCE(SUM(token_amount), 0)").
		Where("sale_id = ? AND status = ? AND created_at >= ?", saleID, models.PurchaseStatusPending, since).
		Scan(&total).Error
	return total, dbutil.WrapError(err)
}
