package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type tickRepo struct {
	db *gorm.DB
}

func (r *tickRepo) Append(ctx context.Context, t *models.TokenPriceTick) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return dbutil.WrapError(r.db.WithContext(ctx).Create(t).Error)
}

func (r *tickRepo) Latest(ctx context.Context, saleID string, limit int) ([]models.TokenPriceTick, error) {
	var ticks []models.TokenPriceTick
	err := r.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("created_at DESC").
		Limit(limit).
		Find(&ticks).Error
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}
	return ticks, nil
}

// demandSources are the tick sources that count as buying pressure.
var demandSources = []models.TickSource{models.TickSourcePurchase, models.TickSourceBuy}

// VolumeSince sums the tokens bought since since. Sells are not demand.
func (r *tickRepo) VolumeSince(ctx context.Context, saleID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.TokenPriceTick{}).
		Select("COALESCE(SUM(volume_tokens), 0)").
		Where("sale_id = ? AND created_at >= ? AND source IN ?", saleID, since, demandSources).
		Scan(&total).Error
	return total, dbutil.WrapError(err)
}
