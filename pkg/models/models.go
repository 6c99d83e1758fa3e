package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is the singleton configuration and live counters of the tradeable token.
// SoldSupply is cumulative issuance and never decreases.
type Sale struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Symbol            string          `json:"symbol" gorm:"type:varchar(16);not null"`
	TotalSupply       int64           `json:"total_supply" gorm:"not null;check:chk_sales_total_supply,total_supply >= 0"`
	SoldSupply        int64           `json:"sold_supply" gorm:"not null;check:chk_sales_sold_supply,sold_supply >= 0 AND sold_supply <= total_supply"`
	BasePrice         decimal.Decimal `json:"base_price" gorm:"type:decimal(36,18);not null"`
	CurveSteepness    decimal.Decimal `json:"curve_steepness" gorm:"type:decimal(36,18);not null"`
	DemandSensitivity decimal.Decimal `json:"demand_sensitivity" gorm:"type:decimal(36,18);not null"`
	TargetVelocity    decimal.Decimal `json:"target_velocity" gorm:"type:decimal(36,18);not null"`
	LastPrice         decimal.Decimal `json:"last_price" gorm:"type:decimal(36,18);not null"`
	Active            bool            `json:"active" gorm:"not null"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RemainingSupply returns tokens that can still be issued.
func (s *Sale) RemainingSupply() int64 {
	return s.TotalSupply - s.SoldSupply
}

// UserTokenHolding is a user's staked (locked) token balance.
type UserTokenHolding struct {
	ID                uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	SaleID            string     `json:"sale_id" gorm:"type:varchar(64);uniqueIndex:idx_holding_sale_user;not null"`
	UserID            uuid.UUID  `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_holding_sale_user;not null"`
	Balance           int64      `json:"balance" gorm:"not null;check:chk_holdings_balance,balance >= 0"`
	LockedUntil       *time.Time `json:"locked_until"`
	DividendsDisabled bool       `json:"dividends_disabled" gorm:"not null"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Locked reports whether the holding is still inside its lock window at now.
func (h *UserTokenHolding) Locked(now time.Time) bool {
	return h.LockedUntil != nil && now.Before(*h.LockedUntil)
}

// UserWallet holds a user's liquid balances: settlement currency and tokens.
type UserWallet struct {
	ID                uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID            uuid.UUID       `json:"user_id" gorm:"type:uuid;uniqueIndex;not null"`
	SettlementBalance decimal.Decimal `json:"settlement_balance" gorm:"type:decimal(36,18);not null;check:chk_wallets_settlement,settlement_balance >= 0"`
	TokenBalance      int64           `json:"token_balance" gorm:"not null;check:chk_wallets_token,token_balance >= 0"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// LedgerAsset names the balance a WalletLedgerEntry moved.
type LedgerAsset string

const (
	LedgerAssetSettlement LedgerAsset = "settlement"
	LedgerAssetToken      LedgerAsset = "token"
	LedgerAssetStaked     LedgerAsset = "staked"
)

// WalletLedgerEntry is an append-only record of a balance change.
type WalletLedgerEntry struct {
	ID           uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       uuid.UUID       `json:"user_id" gorm:"type:uuid;index:idx_ledger_user_time;not null"`
	Asset        LedgerAsset     `json:"asset" gorm:"type:varchar(16);not null"`
	Kind         string          `json:"kind" gorm:"type:varchar(32);not null"`
	Delta        decimal.Decimal `json:"delta" gorm:"type:decimal(36,18);not null"`
	BalanceAfter decimal.Decimal `json:"balance_after" gorm:"type:decimal(36,18);not null"`
	Reference    string          `json:"reference" gorm:"type:varchar(128);index"`
	CreatedAt    time.Time       `json:"created_at" gorm:"index:idx_ledger_user_time"`
}

// All returns every model for schema migration.
func All() []interface{} {
	return []interface{}{
		&Sale{},
		&UserTokenHolding{},
		&UserWallet{},
		&WalletLedgerEntry{},
		&TokenPurchase{},
		&TokenPriceTick{},
		&TokenCandle{},
		&WalletAddress{},
		&WalletDeposit{},
		&OutboxEvent{},
	}
}
