// Package ledger is the durable store of the token sale: the sale singleton,
// holdings, wallets, purchases, market data, deposits and the outbox. Every
// entity has its own typed repository; mutations that must commit together
// run through Store.Transact.
package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleRepository manages the sale singleton.
type SaleRepository interface {
	// Ensure inserts defaults unless a sale with the same id exists, then returns the stored row.
	Ensure(ctx context.Context, defaults *models.Sale) (*models.Sale, error)
	Get(ctx context.Context, id string) (*models.Sale, error)
	GetForUpdate(ctx context.Context, id string) (*models.Sale, error)
	// AddSoldSupply increments sold supply, failing with InsufficientSupply past total supply.
	AddSoldSupply(ctx context.Context, id string, delta int64) error
	SetLastPrice(ctx context.Context, id string, price decimal.Decimal) error
	SetActive(ctx context.Context, id string, active bool) error
}

// HoldingRepository manages staked token holdings.
type HoldingRepository interface {
	Get(ctx context.Context, saleID string, userID uuid.UUID) (*models.UserTokenHolding, error)
	// GetOrCreateForUpdate returns the locked holding, creating an empty one first if needed.
	GetOrCreateForUpdate(ctx context.Context, saleID string, userID uuid.UUID) (*models.UserTokenHolding, error)
	GetForUpdate(ctx context.Context, saleID string, userID uuid.UUID) (*models.UserTokenHolding, error)
	Update(ctx context.Context, h *models.UserTokenHolding) error
}

// WalletRepository manages liquid wallets. Wallets are created lazily.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error)
	GetOrCreateForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error)
	Update(ctx context.Context, w *models.UserWallet) error
}

// EntryRepository stores the wallet audit trail.
type EntryRepository interface {
	Append(ctx context.Context, e *models.WalletLedgerEntry) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletLedgerEntry, error)
}

// PurchaseRepository manages off-chain purchase orders.
type PurchaseRepository interface {
	Create(ctx context.Context, p *models.TokenPurchase) error
	Get(ctx context.Context, id uuid.UUID) (*models.TokenPurchase, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.TokenPurchase, error)
	Update(ctx context.Context, p *models.TokenPurchase) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.TokenPurchase, error)
	ListPending(ctx context.Context, limit int) ([]models.TokenPurchase, error)
	// PendingVolumeSince sums token amounts of PENDING purchases created at or after since.
	PendingVolumeSince(ctx context.Context, saleID string, since time.Time) (int64, error)
}

// TickRepository stores price ticks.
type TickRepository interface {
	Append(ctx context.Context, t *models.TokenPriceTick) error
	// Latest returns the newest limit ticks in ascending time order.
	Latest(ctx context.Context, saleID string, limit int) ([]models.TokenPriceTick, error)
	VolumeSince(ctx context.Context, saleID string, since time.Time) (int64, error)
}

// CandleUpdate is one event folded into a candle.
type CandleUpdate struct {
	SaleID           string
	BucketStart      time.Time
	IntervalSeconds  int
	Price            decimal.Decimal
	VolumeTokens     int64
	VolumeSettlement decimal.Decimal
}

// CandleRepository stores OHLC candles.
type CandleRepository interface {
	// Upsert folds u into its candle row. Must run inside a transaction.
	Upsert(ctx context.Context, u CandleUpdate) (*models.TokenCandle, error)
	// Latest returns the newest limit candles for interval in ascending bucket order.
	Latest(ctx context.Context, saleID string, intervalSeconds, limit int) ([]models.TokenCandle, error)
}

// AddressRepository stores deposit addresses.
type AddressRepository interface {
	// Create stores a unless the owner already has one, then returns the stored row.
	Create(ctx context.Context, a *models.WalletAddress) (*models.WalletAddress, error)
	Get(ctx context.Context, userID uuid.UUID, network, asset string) (*models.WalletAddress, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WalletAddress, error)
	ListByNetworkAsset(ctx context.Context, network, asset string) ([]models.WalletAddress, error)
}

// DepositRepository stores inbound external transfers.
type DepositRepository interface {
	// InsertDetected stores d and reports false when the transfer was already recorded.
	InsertDetected(ctx context.Context, d *models.WalletDeposit) (bool, error)
	ListDetected(ctx context.Context, network, asset string, limit int) ([]models.WalletDeposit, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.WalletDeposit, error)
	Update(ctx context.Context, d *models.WalletDeposit) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletDeposit, error)
}

// OutboxRepository stores side effects to deliver after commit.
type OutboxRepository interface {
	Append(ctx context.Context, topic string, userID uuid.UUID, payload interface{}) error
	Pending(ctx context.Context, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
