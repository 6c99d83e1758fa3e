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

type candleRepo struct {
	db *gorm.DB
}

// Upsert inserts the bucket's first candle or, when the row exists, locks it
// and folds the event in with compare-and-set semantics on high and low.
func (r *candleRepo) Upsert(ctx context.Context, u CandleUpdate) (*models.TokenCandle, error) {
	db := r.db.WithContext(ctx)
	bucket := u.BucketStart.UTC()
	fresh := &models.TokenCandle{
		ID:               uuid.New(),
		SaleID:           u.SaleID,
		BucketStart:      bucket,
		IntervalSeconds:  u.IntervalSeconds,
		Open:             u.Price,
		High:             u.Price,
		Low:              u.Price,
		Close:            u.Price,
		VolumeTokens:     u.VolumeTokens,
		VolumeSettlement: u.VolumeSettlement,
		TradeCount:       1,
		UpdatedAt:        time.Now().UTC(),
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
	if res.Error != nil {
		return nil, dbutil.WrapError(res.Error)
	}
	if res.RowsAffected == 1 {
		return fresh, nil
	}

	candle, err := dbutil.FindOne[models.TokenCandle](dbutil.ForUpdate(db).
		Where("sale_id = ? AND bucket_start = ? AND interval_seconds = ?", u.SaleID, bucket, u.IntervalSeconds))
	if err != nil {
		return nil, err
	}
	if u.Price.GreaterThan(candle.High) {
		candle.High = u.Price
	}
	if u.Price.LessThan(candle.Low) {
		candle.Low = u.Price
	}
	candle.Close = u.Price
	candle.VolumeTokens += u.VolumeTokens
	candle.VolumeSettlement = candle.VolumeSettlement.Add(u.VolumeSettlement)
	candle.TradeCount++
	candle.UpdatedAt = time.Now().UTC()

	err = db.Model(candle).
		Select("high", "low", "close", "volume_tokens", "volume_settlement", "trade_count", "updated_at").
		Updates(candle).Error
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	return candle, nil
}

func (r *candleRepo) Latest(ctx context.Context, saleID string, intervalSeconds, limit int) ([]models.TokenCandle, error) {
	var candles []models.TokenCandle
	err := r.db.WithContext(ctx).
		Where("sale_id = ? AND interval_seconds = ?", saleID, intervalSeconds).
		Order("bucket_start DESC").
		Limit(limit).
		Find(&candles).Error
	if err != nil {
		return nil, dbutil.WrapError(err)
	}
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}
