// Package purchase implements the off-chain purchase lifecycle:
// PENDING -> CONFIRMED by an admin, or PENDING -> FAILED.
package purchase

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/marketdata"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/pkg/metrics"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/Aidin1998/tokenledger/pkg/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// MaxProofLength bounds a sanitized proof-of-payment reference.
const MaxProofLength = 512

var tracer = otel.Tracer("tokenledger/purchase")

// Recorder records market data after a confirmation commits.
type Recorder interface {
	Record(ctx context.Context, ev marketdata.Event) (*models.TokenPriceTick, error)
}

// Service manages token purchases.
type Service struct {
	store      *ledger.Store
	quoter     *pricing.Quoter
	recorder   Recorder
	validator  *validation.Validator
	saleID     string
	lockPeriod time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a purchase service for saleID. Every confirmation locks
// the buyer's holding for lockPeriod from the confirmation time.
func NewService(store *ledger.Store, quoter *pricing.Quoter, recorder Recorder, v *validation.Validator, saleID string, lockPeriod time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		quoter:     quoter,
		recorder:   recorder,
		validator:  v,
		saleID:     saleID,
		lockPeriod: lockPeriod,
		logger:     logger.Named("purchase"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create records a PENDING purchase priced at the live quote. No balances move.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, tokenAmount int64, method models.PaymentMethod) (*models.TokenPurchase, error) {
	if tokenAmount <= 0 {
		return nil, errors.InvalidArgument.Explain("token amount must be positive").
			WithField("invalid", "token_amount", "must be greater than zero")
	}
	if !method.Valid() {
		return nil, errors.InvalidArgument.Explain("unsupported payment method %q", method).
			WithField("invalid", "payment_method", "unsupported")
	}

	var purchase *models.TokenPurchase
	err := s.store.Transact(ctx, func(r *ledger.Repos) error {
		sale, err := r.Sales.Get(ctx, s.saleID)
		if err != nil {
			return err
		}
		if !sale.Active {
			return errors.SaleInactive.Explain("sale %s is not active", sale.ID)
		}
		if tokenAmount > sale.RemainingSupply() {
			return errors.InsufficientSupply.Explain("only %d tokens remain", sale.RemainingSupply())
		}
		quote, err := s.quoter.Quote(ctx, r, sale)
		if err != nil {
			return err
		}

		purchase = &models.TokenPurchase{
			ID:             uuid.New(),
			SaleID:         sale.ID,
			UserID:         userID,
			TokenAmount:    tokenAmount,
			SettlementDue:  pricing.Cost(tokenAmount, quote.Price),
			PriceAtRequest: quote.Price,
			PaymentMethod:  method,
			Status:         models.PurchaseStatusPending,
		}
		if err := r.Purchases.Create(ctx, purchase); err != nil {
			return err
		}
		return r.Outbox.Append(ctx, models.TopicPurchaseCreated, userID, eventFor(purchase, nil))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Purchase created",
		zap.String("purchase_id", purchase.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int64("tokens", tokenAmount),
		zap.String("settlement_due", purchase.SettlementDue.String()))
	return purchase, nil
}

// SubmitProof attaches a proof-of-payment reference to the user's PENDING purchase.
func (s *Service) SubmitProof(ctx context.Context, userID, purchaseID uuid.UUID, proofRef string) (*models.TokenPurchase, error) {
	clean := s.validator.Sanitize(proofRef, MaxProofLength)
	if clean == "" {
		return nil, errors.InvalidArgument.Explain("proof reference is empty").
			WithField("invalid", "proof_ref", "must contain text")
	}

	var purchase *models.TokenPurchase
	err := s.store.Transact(ctx, func(r *ledger.Repos) error {
		p, err := r.Purchases.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			return errors.NotFound.Explain("purchase %s not found", purchaseID)
		}
		if p.Status != models.PurchaseStatusPending {
			return errors.AlreadyFinalized.Explain("purchase %s is %s", p.ID, p.Status)
		}
		p.ProofRef = clean
		if err := r.Purchases.Update(ctx, p); err != nil {
			return err
		}
		purchase = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

// Confirm moves a PENDING purchase to CONFIRMED: sold supply grows by the
// purchase amount and the buyer's holding is credited and locked, in one
// transaction. Confirming an already CONFIRMED purchase succeeds without
// effect. The returned flag reports whether this call applied the change.
func (s *Service) Confirm(ctx context.Context, purchaseID uuid.UUID) (*models.TokenPurchase, bool, error) {
	ctx, span := tracer.Start(ctx, "purchase.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("purchase.id", purchaseID.String()))

	var (
		purchase   *models.TokenPurchase
		applied    bool
		soldSupply int64
	)
	err := s.store.Transact(ctx, func(r *ledger.Repos) error {
		applied = false
		p, err := r.Purchases.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		switch p.Status {
		case models.PurchaseStatusConfirmed:
			purchase = p
			return nil
		case models.PurchaseStatusFailed:
			return errors.AlreadyFinalized.Explain("purchase %s was rejected", p.ID)
		}

		sale, err := r.Sales.GetForUpdate(ctx, p.SaleID)
		if err != nil {
			return err
		}
		if p.TokenAmount > sale.RemainingSupply() {
			return errors.InsufficientSupply.Explain("purchase needs %d tokens, %d remain", p.TokenAmount, sale.RemainingSupply())
		}
		if err := r.Sales.AddSoldSupply(ctx, sale.ID, p.TokenAmount); err != nil {
			return err
		}
		soldSupply = sale.SoldSupply + p.TokenAmount

		now := s.now()
		lockedUntil := now.Add(s.lockPeriod)
		holding, err := r.Holdings.GetOrCreateForUpdate(ctx, sale.ID, p.UserID)
		if err != nil {
			return err
		}
		holding.Balance += p.TokenAmount
		holding.LockedUntil = &lockedUntil
		if err := r.Holdings.Update(ctx, holding); err != nil {
			return err
		}
		if err := r.RecordStake(ctx, holding, ledger.KindPurchaseStake, p.ID.String(), p.TokenAmount); err != nil {
			return err
		}

		p.Status = models.PurchaseStatusConfirmed
		p.ConfirmedAt = &now
		if err := r.Purchases.Update(ctx, p); err != nil {
			return err
		}
		if err := r.Outbox.Append(ctx, models.TopicPurchaseConfirmed, p.UserID, eventFor(p, &lockedUntil)); err != nil {
			return err
		}
		purchase = p
		applied = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("purchase.applied", applied))

	if !applied {
		s.logger.Info("Purchase already confirmed", zap.String("purchase_id", purchaseID.String()))
		return purchase, false, nil
	}

	metrics.PurchasesConfirmed.Inc()
	s.logger.Info("Purchase confirmed",
		zap.String("purchase_id", purchase.ID.String()),
		zap.String("user_id", purchase.UserID.String()),
		zap.Int64("tokens", purchase.TokenAmount))

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, marketdata.Event{
			SaleID:           purchase.SaleID,
			Source:           models.TickSourcePurchase,
			SoldSupply:       &soldSupply,
			VolumeTokens:     purchase.TokenAmount,
			VolumeSettlement: purchase.SettlementDue,
		}); err != nil {
			s.logger.Error("Failed to record market data for confirmation",
				zap.String("purchase_id", purchase.ID.String()), zap.Error(err))
		}
	}
	return purchase, true, nil
}

// Reject moves a PENDING purchase to FAILED. Terminal purchases fail with AlreadyFinalized.
func (s *Service) Reject(ctx context.Context, purchaseID uuid.UUID) (*models.TokenPurchase, error) {
	var purchase *models.TokenPurchase
	err := s.store.Transact(ctx, func(r *ledger.Repos) error {
		p, err := r.Purchases.GetForUpdate(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.Status.Terminal() {
			return errors.AlreadyFinalized.Explain("purchase %s is %s", p.ID, p.Status)
		}
		now := s.now()
		p.Status = models.PurchaseStatusFailed
		p.FailedAt = &now
		if err := r.Purchases.Update(ctx, p); err != nil {
			return err
		}
		purchase = p
		return r.Outbox.Append(ctx, models.TopicPurchaseRejected, p.UserID, eventFor(p, nil))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Purchase rejected", zap.String("purchase_id", purchaseID.String()))
	return purchase, nil
}

// Get returns a purchase owned by userID.
func (s *Service) Get(ctx context.Context, userID, purchaseID uuid.UUID) (*models.TokenPurchase, error) {
	p, err := s.store.Repos().Purchases.Get(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, errors.NotFound.Explain("purchase %s not found", purchaseID)
	}
	return p, nil
}

// ListByUser returns the user's purchases, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.TokenPurchase, error) {
	return s.store.Repos().Purchases.ListByUser(ctx, userID, clampLimit(limit))
}

// ListPending returns PENDING purchases, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]models.TokenPurchase, error) {
	return s.store.Repos().Purchases.ListPending(ctx, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func eventFor(p *models.TokenPurchase, lockedUntil *time.Time) models.PurchaseEvent {
	return models.PurchaseEvent{
		PurchaseID:    p.ID,
		UserID:        p.UserID,
		TokenAmount:   p.TokenAmount,
		SettlementDue: p.SettlementDue,
		Status:        p.Status,
		LockedUntil:   lockedUntil,
	}
}
