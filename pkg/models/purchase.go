package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "PENDING"
	PurchaseStatusConfirmed PurchaseStatus = "CONFIRMED"
	PurchaseStatusFailed    PurchaseStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseStatusConfirmed || s == PurchaseStatusFailed
}

type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCrypto       PaymentMethod = "CRYPTO"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodWallet       PaymentMethod = "WALLET"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodCrypto, PaymentMethodCard, PaymentMethodWallet:
		return true
	}
	return false
}

// TokenPurchase is an off-chain order awaiting admin confirmation.
type TokenPurchase struct {
	ID             uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	SaleID         string          `json:"sale_id" gorm:"type:varchar(64);not null"`
	UserID         uuid.UUID       `json:"user_id" gorm:"type:uuid;index;not null"`
	TokenAmount    int64           `json:"token_amount" gorm:"not null;check:chk_purchases_amount,token_amount > 0"`
	SettlementDue  decimal.Decimal `json:"settlement_due" gorm:"type:decimal(36,18);not null"`
	PriceAtRequest decimal.Decimal `json:"price_at_request" gorm:"type:decimal(36,18);not null"`
	PaymentMethod  PaymentMethod   `json:"payment_method" gorm:"type:varchar(32);not null"`
	ProofRef       string          `json:"proof_ref,omitempty" gorm:"type:varchar(512)"`
	Status         PurchaseStatus  `json:"status" gorm:"type:varchar(16);index:idx_purchases_status_created;not null"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at" gorm:"index:idx_purchases_status_created"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
