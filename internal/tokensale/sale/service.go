// Package sale serves the read model of the token sale and its admin switches.
package sale

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Info is what a user sees of the sale.
type Info struct {
	SaleID            string                 `json:"sale_id"`
	Symbol            string                 `json:"symbol"`
	Active            bool                   `json:"active"`
	LivePrice         decimal.Decimal        `json:"live_price"`
	TotalSupply       int64                  `json:"total_supply"`
	SoldSupply        int64                  `json:"sold_supply"`
	UserBalance       int64                  `json:"user_balance"`
	LockExpiry        *time.Time             `json:"lock_expiry,omitempty"`
	DividendsDisabled bool                   `json:"dividends_disabled"`
	EarningsEstimate  decimal.Decimal        `json:"earnings_estimate"`
	DepositAddresses  []models.WalletAddress `json:"deposit_addresses"`
}

// Service reads the sale and toggles it.
type Service struct {
	store        *ledger.Store
	quoter       *pricing.Quoter
	saleID       string
	dividendPool decimal.Decimal
	logger       *zap.Logger
}

// NewService creates a sale service for saleID.
func NewService(store *ledger.Store, quoter *pricing.Quoter, saleID string, dividendPool decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		quoter:       quoter,
		saleID:       saleID,
		dividendPool: dividendPool,
		logger:       logger.Named("sale"),
	}
}

// Bootstrap creates the sale from configuration unless it already exists.
// An existing sale keeps its stored parameters and counters.
func Bootstrap(ctx context.Context, store *ledger.Store, cfg config.SaleConfig, logger *zap.Logger) (*models.Sale, error) {
	s, err := store.Repos().Sales.Ensure(ctx, &models.Sale{
		ID:                cfg.ID,
		Symbol:            cfg.Symbol,
		TotalSupply:       cfg.TotalSupply,
		BasePrice:         cfg.BasePrice,
		CurveSteepness:    cfg.CurveSteepness,
		DemandSensitivity: cfg.DemandSensitivity,
		TargetVelocity:    cfg.TargetVelocity,
		LastPrice:         cfg.BasePrice.Round(pricing.PricePrecision),
		Active:            true,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Sale ready",
		zap.String("sale_id", s.ID),
		zap.String("symbol", s.Symbol),
		zap.Int64("total_supply", s.TotalSupply),
		zap.Int64("sold_supply", s.SoldSupply),
		zap.Bool("active", s.Active))
	return s, nil
}

// Quote returns the live price without recording anything.
func (s *Service) Quote(ctx context.Context) (*models.Sale, pricing.Quote, error) {
	r := s.store.Repos()
	sale, err := r.Sales.Get(ctx, s.saleID)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	q, err := s.quoter.Quote(ctx, r, sale)
	if err != nil {
		return nil, pricing.Quote{}, err
	}
	return sale, q, nil
}

// Info returns the sale state together with userID's position in it.
func (s *Service) Info(ctx context.Context, userID uuid.UUID) (*Info, error) {
	sale, quote, err := s.Quote(ctx)
	if err != nil {
		return nil, err
	}
	info := &Info{
		SaleID:           sale.ID,
		Symbol:           sale.Symbol,
		Active:           sale.Active,
		LivePrice:        quote.Price,
		TotalSupply:      sale.TotalSupply,
		SoldSupply:       sale.SoldSupply,
		EarningsEstimate: decimal.Zero,
	}

	holding, err := s.store.Repos().Holdings.Get(ctx, sale.ID, userID)
	switch {
	case errors.Is(err, errors.NotFound):
	case err != nil:
		return nil, err
	default:
		info.UserBalance = holding.Balance
		info.LockExpiry = holding.LockedUntil
		info.DividendsDisabled = holding.DividendsDisabled
		info.EarningsEstimate = EarningsEstimate(s.dividendPool, holding, sale.SoldSupply)
	}

	addrs, err := s.store.Repos().Addresses.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if addrs == nil {
		addrs = []models.WalletAddress{}
	}
	info.DepositAddresses = addrs
	return info, nil
}

// EarningsEstimate is the holding's pro-rata share of pool, zero when
// dividends are disabled or nothing has been sold.
func EarningsEstimate(pool decimal.Decimal, h *models.UserTokenHolding, soldSupply int64) decimal.Decimal {
	if h == nil || h.DividendsDisabled || h.Balance <= 0 || soldSupply <= 0 || !pool.IsPositive() {
		return decimal.Zero
	}
	return pool.Mul(decimal.NewFromInt(h.Balance)).
		Div(decimal.NewFromInt(soldSupply)).
		Round(pricing.PricePrecision)
}

// SetActive pauses or resumes the sale.
func (s *Service) SetActive(ctx context.Context, active bool) (*models.Sale, error) {
	if err := s.store.Repos().Sales.SetActive(ctx, s.saleID, active); err != nil {
		return nil, err
	}
	s.logger.Info("Sale active flag changed", zap.String("sale_id", s.saleID), zap.Bool("active", active))
	return s.store.Repos().Sales.Get(ctx, s.saleID)
}
