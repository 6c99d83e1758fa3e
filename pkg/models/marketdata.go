package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TickSource string

const (
	TickSourcePurchase TickSource = "purchase"
	TickSourceBuy      TickSource = "buy"
	TickSourceSell     TickSource = "sell"
)

// TokenPriceTick is an immutable price observation.
type TokenPriceTick struct {
	ID               uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	SaleID           string          `json:"sale_id" gorm:"type:varchar(64);index:idx_ticks_sale_time;not null"`
	Price            decimal.Decimal `json:"price" gorm:"type:decimal(36,18);not null"`
	SoldSupply       int64           `json:"sold_supply" gorm:"not null"`
	VolumeTokens     int64           `json:"volume_tokens" gorm:"not null"`
	VolumeSettlement decimal.Decimal `json:"volume_settlement" gorm:"type:decimal(36,18);not null"`
	Source           TickSource      `json:"source" gorm:"type:varchar(16);not null"`
	CreatedAt        time.Time       `json:"created_at" gorm:"index:idx_ticks_sale_time"`
}

// TokenCandle is an OHLC aggregate over one bucket of IntervalSeconds.
type TokenCandle struct {
	ID               uuid.UUID       `json:"-" gorm:"primaryKey;type:uuid"`
	SaleID           string          `json:"-" gorm:"type:varchar(64);uniqueIndex:idx_candle_bucket;not null"`
	BucketStart      time.Time       `json:"bucket_start" gorm:"uniqueIndex:idx_candle_bucket;not null"`
	IntervalSeconds  int             `json:"interval_seconds" gorm:"uniqueIndex:idx_candle_bucket;not null"`
	Open             decimal.Decimal `json:"open" gorm:"type:decimal(36,18);not null"`
	High             decimal.Decimal `json:"high" gorm:"type:decimal(36,18);not null"`
	Low              decimal.Decimal `json:"low" gorm:"type:decimal(36,18);not null"`
	Close            decimal.Decimal `json:"close" gorm:"type:decimal(36,18);not null"`
	VolumeTokens     int64           `json:"volume_tokens" gorm:"not null"`
	VolumeSettlement decimal.Decimal `json:"volume_settlement" gorm:"type:decimal(36,18);not null"`
	TradeCount       int             `json:"trade_count" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
