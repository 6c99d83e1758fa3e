// Package market is the ledger-only market maker: users buy tokens from and
// sell tokens back to the platform at the live quote, and release staked
// tokens into their liquid balance.
package market

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/marketdata"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/pkg/metrics"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("tokenledger/market")

// Side of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Recorder records market data after a trade commits.
type Recorder interface {
	Record(ctx context.Context, ev marketdata.Event) (*models.TokenPriceTick, error)
}

// Order sizes a trade either in whole tokens or in settlement currency, never both.
type Order struct {
	Tokens     int64
	Settlement decimal.Decimal
}

// Trade is an executed buy or sell.
type Trade struct {
	ID            uuid.UUID       `json:"trade_id"`
	Side          Side            `json:"side"`
	ExecutedPrice decimal.Decimal `json:"executed_price"`
	Tokens        int64           `json:"tokens"`
	Settlement    decimal.Decimal `json:"settlement"`
}

// UnstakeResult reports how a holding was released.
type UnstakeResult struct {
	Requested         int64      `json:"requested"`
	Released          int64      `json:"released"`
	Fee               int64      `json:"fee"`
	StakedBalance     int64      `json:"staked_balance"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	DividendsDisabled bool       `json:"dividends_disabled"`
}

// Service executes trades and unstakes against the ledger store.
type Service struct {
	store    *ledger.Store
	quoter   *pricing.Quoter
	recorder Recorder
	saleID   string
	feeRate  decimal.Decimal
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a market maker for saleID. feeRate is the share of an
// early unstake that is burned.
func NewService(store *ledger.Store, quoter *pricing.Quoter, recorder Recorder, saleID string, feeRate decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		quoter:   quoter,
		recorder: recorder,
		saleID:   saleID,
		feeRate:  feeRate,
		logger:   logger.Named("market"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Buy debits settlement and credits tokens at the live price. Sold supply
// grows by the tokens bought.
func (s *Service) Buy(ctx context.Context, userID uuid.UUID, order Order) (*Trade, error) {
	return s.execute(ctx, SideBuy, userID, order)
}

// Sell debits tokens and credits settlement at the live price. Sold supply
// is cumulative issuance and does not shrink.
func (s *Service) Sell(ctx context.Context, userID uuid.UUID, order Order) (*Trade, error) {
	return s.execute(ctx, SideSell, userID, order)
}

func (s *Service) execute(ctx context.Context, side Side, userID uuid.UUID, order Order) (*Trade, error) {
	ctx, span := tracer.Start(ctx, "market."+string(side))
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID.String()))
	start := time.Now()

	if err := validateOrder(order); err != nil {
		return nil, err
	}

	trade := &Trade{ID: uuid.New(), Side: side}
	var soldSupply int64
	err := s.store.Transact(ctx, func(r *ledger.Repos) error {
		sale, err := r.Sales.GetForUpdate(ctx, s.saleID)
		if err != nil {
			return err
		}
		if side == SideBuy && !sale.Active {
			return errors.SaleInactive.Explain("sale %s is not active", sale.ID)
		}

		quote, err := s.quoter.Quote(ctx, r, sale)
		if err != nil {
			return err
		}
		tokens, settlement := size(order, quote.Price)
		if tokens <= 0 {
			return errors.InvalidArgument.Explain("settlement amount buys no whole token at %s", quote.Price.String()).
				WithField("invalid", "settlement_amount", "too small for one token")
		}

		move := ledger.Movement{Reference: trade.ID.String()}
		switch side {
		case SideBuy:
			if tokens > sale.RemainingSupply() {
				return errors.InsufficientSupply.Explain("only %d tokens remain", sale.RemainingSupply())
			}
			move.Kind = ledger.KindMarketBuy
			move.Settlement = settlement.Neg()
			move.Tokens = tokens
		case SideSell:
			move.Kind = ledger.KindMarketSell
			move.Settlement = settlement
			move.Tokens = -tokens
		}

		wallet, err := r.Wallets.GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := r.ApplyMovement(ctx, wallet, move); err != nil {
			return err
		}
		soldSupply = sale.SoldSupply
		if side == SideBuy {
			if err := r.Sales.AddSoldSupply(ctx, sale.ID, tokens); err != nil {
				return err
			}
			soldSupply += tokens
		}

		trade.ExecutedPrice = quote.Price
		trade.Tokens = tokens
		trade.Settlement = settlement
		return r.Outbox.Append(ctx, models.TopicTradeExecuted, userID, models.TradeEvent{
			TradeID:    trade.ID,
			UserID:     userID,
			Side:       string(side),
			Tokens:     tokens,
			Price:      quote.Price,
			Settlement: settlement,
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.TradesExecuted.WithLabelValues(string(side)).Inc()
	metrics.TradeLatency.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int64("trade.tokens", trade.Tokens),
		attribute.String("trade.price", trade.ExecutedPrice.String()))
	s.logger.Info("Trade executed",
		zap.String("trade_id", trade.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("side", string(side)),
		zap.Int64("tokens", trade.Tokens),
		zap.String("price", trade.ExecutedPrice.String()),
		zap.String("settlement", trade.Settlement.String()))

	if s.recorder != nil {
		source := models.TickSourceBuy
		if side == SideSell {
			source = models.TickSourceSell
		}
		if _, err := s.recorder.Record(ctx, marketdata.Event{
			SaleID:           s.saleID,
			Source:           source,
			Price:            trade.ExecutedPrice,
			SoldSupply:       &soldSupply,
			VolumeTokens:     trade.Tokens,
			VolumeSettlement: trade.Settlement,
		}); err != nil {
			s.logger.Error("Failed to record market data for trade",
				zap.String("trade_id", trade.ID.String()), zap.Error(err))
		}
	}
	return trade, nil
}

func validateOrder(o Order) error {
	byTokens := o.Tokens != 0
	bySettlement := !o.Settlement.IsZero()
	switch {
	case byTokens && bySettlement:
		return errors.InvalidArgument.Explain("give either a token amount or a settlement amount, not both")
	case !byTokens && !bySettlement:
		return errors.InvalidArgument.Explain("a token amount or a settlement amount is required")
	case o.Tokens < 0:
		return errors.InvalidArgument.Explain("token amount must be positive").
			WithField("invalid", "token_amount", "must be greater than zero")
	case o.Settlement.IsNegative():
		return errors.InvalidArgument.Explain("settlement amount must be positive").
			WithField("invalid", "settlement_amount", "must be greater than zero")
	}
	return nil
}

// size converts an order to whole tokens and the settlement they cost.
func size(o Order, price decimal.Decimal) (int64, decimal.Decimal) {
	if o.Tokens > 0 {
		return o.Tokens, pricing.Cost(o.Tokens, price)
	}
	return pricing.TokensFor(o.Settlement, price)
}

// Unstake releases amount staked tokens into the liquid balance. Without
// earlyUnlock a holding still inside its lock window is refused. With
// earlyUnlock a fee of ceil(amount × rate) is burned and dividends are
// disabled for good.
func (s *Service) Unstake(ctx context.Context, userID uuid.UUID, amount int64, earlyUnlock bool) (*UnstakeResult, error) {
	if amount <= 0 {
		return nil, errors.InvalidArgument.Explain("unstake amount must be positive").
			WithField("invalid", "token_amount", "must be greater than zero")
	}

	var result *UnstakeResult
	err := s.store.Transact(ctx, func(r *ledger.Repos) error {
		holding, err := r.Holdings.GetForUpdate(ctx, s.saleID, userID)
		if errors.Is(err, errors.NotFound) {
			return errors.InsufficientBalance.Explain("no staked tokens")
		}
		if err != nil {
			return err
		}
		if !earlyUnlock && holding.Locked(s.now()) {
			return errors.TokensLocked.Explain("tokens are locked until %s", holding.LockedUntil.Format(time.RFC3339))
		}
		if amount > holding.Balance {
			return errors.InsufficientBalance.Explain("staked balance %d is less than %d", holding.Balance, amount)
		}

		var fee int64
		if earlyUnlock {
			fee = decimal.NewFromInt(amount).Mul(s.feeRate).Ceil().IntPart()
			holding.DividendsDisabled = true
		}
		released := amount - fee
		ref := uuid.New().String()

		holding.Balance -= released
		if err := r.RecordStake(ctx, holding, ledger.KindUnstake, ref, -released); err != nil {
			return err
		}
		if fee > 0 {
			holding.Balance -= fee
			if err := r.RecordStake(ctx, holding, ledger.KindEarlyUnlockFee, ref, -fee); err != nil {
				return err
			}
		}
		if err := r.Holdings.Update(ctx, holding); err != nil {
			return err
		}

		wallet, err := r.Wallets.GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if released > 0 {
			if err := r.ApplyMovement(ctx, wallet, ledger.Movement{
				Kind:      ledger.KindUnstake,
				Reference: ref,
				Tokens:    released,
			}); err != nil {
				return err
			}
		}

		result = &UnstakeResult{
			Requested:         amount,
			Released:          released,
			Fee:               fee,
			StakedBalance:     holding.Balance,
			LockedUntil:       holding.LockedUntil,
			DividendsDisabled: holding.DividendsDisabled,
		}
		return r.Outbox.Append(ctx, models.TopicUnstaked, userID, models.UnstakeEvent{
			UserID:            userID,
			Requested:         amount,
			Released:          released,
			Fee:               fee,
			EarlyUnlock:       earlyUnlock,
			DividendsDisabled: holding.DividendsDisabled,
		})
	})
	if err != nil {
		return nil, err
	}

	mode := "regular"
	if earlyUnlock {
		mode = "early"
	}
	metrics.Unstakes.WithLabelValues(mode).Inc()
	s.logger.Info("Tokens unstaked",
		zap.String("user_id", userID.String()),
		zap.Int64("released", result.Released),
		zap.Int64("fee", result.Fee),
		zap.Bool("early", earlyUnlock))
	return result, nil
}

// GetWallet returns the user's liquid balances, creating an empty wallet on first use.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	return s.store.Repos().Wallets.GetOrCreate(ctx, userID)
}

// History returns the user's most recent balance changes, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletLedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.Repos().Entries.ListByUser(ctx, userID, limit)
}
