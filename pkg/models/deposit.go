package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetKind says which wallet balance a deposit credits.
type AssetKind string

const (
	AssetKindSettlement AssetKind = "settlement"
	AssetKindToken      AssetKind = "token"
)

// WalletAddress is a per (user, network, asset) deposit address. Never regenerated.
type WalletAddress struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_address_owner;not null"`
	Network   string    `json:"network" gorm:"type:varchar(32);uniqueIndex:idx_address_owner;uniqueIndex:idx_address_network;not null"`
	Asset     string    `json:"asset" gorm:"type:varchar(32);uniqueIndex:idx_address_owner;not null"`
	Address   string    `json:"address" gorm:"type:varchar(128);uniqueIndex:idx_address_network;not null"`
	CreatedAt time.Time `json:"created_at"`
}

type DepositStatus string

const (
	DepositStatusDetected  DepositStatus = "DETECTED"
	DepositStatusConfirmed DepositStatus = "CONFIRMED"
	DepositStatusRejected  DepositStatus = "REJECTED"
)

// WalletDeposit is one inbound external transfer. Unique per (network, asset, tx hash).
type WalletDeposit struct {
	ID               uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	UserID           uuid.UUID       `json:"user_id" gorm:"type:uuid;index;not null"`
	Network          string          `json:"network" gorm:"type:varchar(32);uniqueIndex:idx_deposit_tx;not null"`
	Asset            string          `json:"asset" gorm:"type:varchar(32);uniqueIndex:idx_deposit_tx;not null"`
	TxHash           string          `json:"tx_hash" gorm:"type:varchar(128);uniqueIndex:idx_deposit_tx;not null"`
	AssetKind        AssetKind       `json:"asset_kind" gorm:"type:varchar(16);not null"`
	ToAddress        string          `json:"to_address" gorm:"type:varchar(128);not null"`
	RawAmount        string          `json:"raw_amount" gorm:"type:varchar(80);not null"`
	SettlementAmount decimal.Decimal `json:"settlement_amount" gorm:"type:decimal(36,18);not null"`
	TokenAmount      int64           `json:"token_amount" gorm:"not null"`
	BlockNumber      uint64          `json:"block_number" gorm:"not null"`
	Confirmations    uint64          `json:"confirmations" gorm:"not null"`
	Status           DepositStatus   `json:"status" gorm:"type:varchar(16);index;not null"`
	RejectReason     string          `json:"reject_reason,omitempty" gorm:"type:varchar(255)"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
