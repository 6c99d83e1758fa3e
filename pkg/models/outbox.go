package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outbox topics
const (
	TopicPurchaseCreated   = "tokensale.purchase.created"
	TopicPurchaseConfirmed = "tokensale.purchase.confirmed"
	TopicPurchaseRejected  = "tokensale.purchase.rejected"
	TopicTradeExecuted     = "tokensale.trade.executed"
	TopicUnstaked          = "tokensale.holding.unstaked"
	TopicDepositCredited   = "wallet.deposit.credited"
)

// OutboxEvent is a side effect recorded inside a financial transaction and
// delivered after commit.
type OutboxEvent struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Topic       string     `json:"topic" gorm:"type:varchar(64);not null"`
	UserID      uuid.UUID  `json:"user_id" gorm:"type:uuid;not null"`
	Payload     string     `json:"payload" gorm:"type:text;not null"`
	Attempts    int        `json:"attempts" gorm:"not null"`
	LastError   string     `json:"last_error,omitempty" gorm:"type:text"`
	PublishedAt *time.Time `json:"published_at,omitempty" gorm:"index:idx_outbox_pending"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index:idx_outbox_pending"`
}

// PurchaseEvent is the payload of purchase topics.
type PurchaseEvent struct {
	PurchaseID    uuid.UUID       `json:"purchase_id"`
	UserID        uuid.UUID       `json:"user_id"`
	TokenAmount   int64           `json:"token_amount"`
	SettlementDue decimal.Decimal `json:"settlement_due"`
	Status        PurchaseStatus  `json:"status"`
	LockedUntil   *time.Time      `json:"locked_until,omitempty"`
}

// TradeEvent is the payload of TopicTradeExecuted.
type TradeEvent struct {
	TradeID    uuid.UUID       `json:"trade_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Side       string          `json:"side"`
	Tokens     int64           `json:"tokens"`
	Price      decimal.Decimal `json:"price"`
	Settlement decimal.Decimal `json:"settlement"`
}

// UnstakeEvent is the payload of TopicUnstaked.
type UnstakeEvent struct {
	UserID            uuid.UUID `json:"user_id"`
	Requested         int64     `json:"requested"`
	Released          int64     `json:"released"`
	Fee               int64     `json:"fee"`
	EarlyUnlock       bool      `json:"early_unlock"`
	DividendsDisabled bool      `json:"dividends_disabled"`
}

// DepositEvent is the payload of TopicDepositCredited.
type DepositEvent struct {
	DepositID        uuid.UUID       `json:"deposit_id"`
	UserID           uuid.UUID       `json:"user_id"`
	Network          string          `json:"network"`
	Asset            string          `json:"asset"`
	TxHash           string          `json:"tx_hash"`
	AssetKind        AssetKind       `json:"asset_kind"`
	SettlementAmount decimal.Decimal `json:"settlement_amount"`
	TokenAmount      int64           `json:"token_amount"`
}
