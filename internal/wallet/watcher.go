package wallet

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/wallet/blockchain"
	"github.com/Aidin1998/tokenledger/pkg/metrics"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// detectedBatch bounds how many DETECTED deposits one cycle re-checks per asset.
const detectedBatch = 500

// Lease elects the single replica allowed to poll.
type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
}

// Watcher polls the external ledger for transfers into users' deposit
// addresses and credits them once they are deep enough.
type Watcher struct {
	store  *ledger.Store
	chain  blockchain.ChainClient
	cfg    config.WatcherConfig
	lease  Lease
	logger *zap.Logger
	now    func() time.Time
}

// NewWatcher creates a deposit watcher. A nil lease means this replica always polls.
func NewWatcher(store *ledger.Store, chain blockchain.ChainClient, cfg config.WatcherConfig, lease Lease, logger *zap.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.RequiredConfirmations == 0 {
		cfg.RequiredConfirmations = 1
	}
	return &Watcher{
		store:  store,
		chain:  chain,
		cfg:    cfg,
		lease:  lease,
		logger: logger.Named("watcher"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run polls on a fixed interval until ctx is cancelled. Errors never stop the loop.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("Deposit watcher started",
		zap.Duration("interval", w.cfg.PollInterval),
		zap.Int("assets", len(w.cfg.Assets)))

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		w.tick(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("Deposit watcher stopped")
			return
		case <-ticker.C:
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	if w.lease != nil {
		ok, err := w.lease.Acquire(ctx, w.cfg.LeaseTTL)
		if err != nil {
			metrics.WatcherErrors.WithLabelValues("lease").Inc()
			w.logger.Warn("Watcher lease check failed", zap.Error(err))
			return
		}
		if !ok {
			w.logger.Debug("Another replica holds the watcher lease")
			return
		}
	}

	cycleCtx := ctx
	if w.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, w.cfg.CycleTimeout)
		defer cancel()
	}
	w.Poll(cycleCtx)
}

// Poll runs one cycle over every tracked asset. A failing asset or
// transaction is logged and skipped.
func (w *Watcher) Poll(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.WatcherCycleDuration.Observe(time.Since(start).Seconds()) }()

	head, err := w.chain.HeadBlock(ctx)
	if err != nil {
		metrics.WatcherErrors.WithLabelValues("head").Inc()
		w.logger.Warn("External ledger unavailable", zap.Error(err))
		return
	}

	for _, asset := range w.cfg.Assets {
		if ctx.Err() != nil {
			return
		}
		if err := w.scan(ctx, asset, head); err != nil {
			metrics.WatcherErrors.WithLabelValues("scan").Inc()
			w.logger.Warn("Deposit scan failed",
				zap.String("network", asset.Network),
				zap.String("asset", asset.Asset),
				zap.Error(err))
		}
		w.confirm(ctx, asset, head)
	}
}

func (w *Watcher) scan(ctx context.Context, asset config.AssetConfig, head uint64) error {
	repos := w.store.Repos()
	addrs, err := repos.Addresses.ListByNetworkAsset(ctx, asset.Network, asset.Asset)
	if err != nil || len(addrs) == 0 {
		return err
	}

	owners := make(map[string]uuid.UUID, len(addrs))
	recipients := make([]string, 0, len(addrs))
	for _, a := range addrs {
		owners[strings.ToLower(a.Address)] = a.UserID
		recipients = append(recipients, a.Address)
	}

	from := uint64(0)
	if head > w.cfg.LookbackBlocks {
		from = head - w.cfg.LookbackBlocks
	}
	transfers, err := w.chain.Transfers(ctx, asset.Contract, recipients, from, head)
	if err != nil {
		return err
	}

	kind := models.AssetKind(asset.Kind)
	for _, t := range transfers {
		owner, ok := owners[strings.ToLower(t.To)]
		if !ok {
			continue
		}
		settlement, tokens, ok := Amounts(kind, t.Value, asset.Decimals)
		if !ok {
			w.logger.Info("Skipping dust transfer",
				zap.String("tx_hash", t.TxHash),
				zap.String("asset", asset.Asset),
				zap.String("raw_amount", t.Value.String()))
			continue
		}

		inserted, err := repos.Deposits.InsertDetected(ctx, &models.WalletDeposit{
			ID:               uuid.New(),
			UserID:           owner,
			Network:          asset.Network,
			Asset:            asset.Asset,
			TxHash:           strings.ToLower(t.TxHash),
			AssetKind:        kind,
			ToAddress:        t.To,
			RawAmount:        t.Value.String(),
			SettlementAmount: settlement,
			TokenAmount:      tokens,
			BlockNumber:      t.BlockNumber,
		})
		if err != nil {
			metrics.WatcherErrors.WithLabelValues("insert").Inc()
			w.logger.Warn("Failed to record deposit", zap.String("tx_hash", t.TxHash), zap.Error(err))
			continue
		}
		if inserted {
			metrics.Deposits.WithLabelValues(asset.Network, asset.Asset, string(models.DepositStatusDetected)).Inc()
			w.logger.Info("Deposit detected",
				zap.String("tx_hash", t.TxHash),
				zap.String("user_id", owner.String()),
				zap.String("asset", asset.Asset),
				zap.String("raw_amount", t.Value.String()))
		}
	}
	return nil
}

func (w *Watcher) confirm(ctx context.Context, asset config.AssetConfig, head uint64) {
	deposits, err := w.store.Repos().Deposits.ListDetected(ctx, asset.Network, asset.Asset, detectedBatch)
	if err != nil {
		metrics.WatcherErrors.WithLabelValues("list").Inc()
		w.logger.Warn("Failed to list detected deposits", zap.String("asset", asset.Asset), zap.Error(err))
		return
	}

	for _, d := range deposits {
		if ctx.Err() != nil {
			return
		}
		rcpt, err := w.chain.Receipt(ctx, d.TxHash)
		if err != nil {
			metrics.WatcherErrors.WithLabelValues("receipt").Inc()
			w.logger.Warn("Failed to fetch receipt", zap.String("tx_hash", d.TxHash), zap.Error(err))
			continue
		}
		if rcpt == nil {
			continue
		}

		var status models.DepositStatus
		if !rcpt.Success {
			status, err = w.reject(ctx, d.ID, "transaction reverted")
		} else {
			var depth uint64
			if head >= rcpt.BlockNumber {
				depth = head - rcpt.BlockNumber + 1
			}
			status, err = w.settle(ctx, d.ID, depth, rcpt.BlockNumber)
		}
		if err != nil {
			metrics.WatcherErrors.WithLabelValues("settle").Inc()
			w.logger.Warn("Failed to settle deposit", zap.String("tx_hash", d.TxHash), zap.Error(err))
			continue
		}
		if status != models.DepositStatusDetected {
			metrics.Deposits.WithLabelValues(asset.Network, asset.Asset, string(status)).Inc()
		}
	}
}

// settle records the confirmation depth and, once it reaches the threshold,
// flips the deposit to CONFIRMED and credits the wallet in the same transaction.
func (w *Watcher) settle(ctx context.Context, id uuid.UUID, depth, block uint64) (models.DepositStatus, error) {
	var (
		status   models.DepositStatus
		credited *models.WalletDeposit
	)
	err := w.store.Transact(ctx, func(r *ledger.Repos) error {
		credited = nil
		d, err := r.Deposits.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// already settled by an earlier cycle; report no transition
		status = models.DepositStatusDetected
		if d.Status != models.DepositStatusDetected {
			return nil
		}
		if depth > d.Confirmations {
			d.Confirmations = depth
		}
		d.BlockNumber = block
		if d.Confirmations < w.cfg.RequiredConfirmations {
			return r.Deposits.Update(ctx, d)
		}

		now := w.now()
		d.Status = models.DepositStatusConfirmed
		d.ConfirmedAt = &now
		if err := r.Deposits.Update(ctx, d); err != nil {
			return err
		}

		wallet, err := r.Wallets.GetOrCreateForUpdate(ctx, d.UserID)
		if err != nil {
			return err
		}
		move := ledger.Movement{Kind: ledger.KindDepositCredit, Reference: d.ID.String()}
		switch d.AssetKind {
		case models.AssetKindToken:
			move.Tokens = d.TokenAmount
		default:
			move.Settlement = d.SettlementAmount
		}
		if err := r.ApplyMovement(ctx, wallet, move); err != nil {
			return err
		}
		status = models.DepositStatusConfirmed
		credited = d
		return r.Outbox.Append(ctx, models.TopicDepositCredited, d.UserID, models.DepositEvent{
			DepositID:        d.ID,
			UserID:           d.UserID,
			Network:          d.Network,
			Asset:            d.Asset,
			TxHash:           d.TxHash,
			AssetKind:        d.AssetKind,
			SettlementAmount: d.SettlementAmount,
			TokenAmount:      d.TokenAmount,
		})
	})
	if err != nil {
		return "", err
	}
	if credited != nil {
		w.logger.Info("Deposit credited",
			zap.String("deposit_id", credited.ID.String()),
			zap.String("user_id", credited.UserID.String()),
			zap.String("tx_hash", credited.TxHash),
			zap.Uint64("confirmations", credited.Confirmations))
	}
	return status, nil
}

func (w *Watcher) reject(ctx context.Context, id uuid.UUID, reason string) (models.DepositStatus, error) {
	status := models.DepositStatusDetected
	err := w.store.Transact(ctx, func(r *ledger.Repos) error {
		d, err := r.Deposits.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d.Status != models.DepositStatusDetected {
			return nil
		}
		d.Status = models.DepositStatusRejected
		d.RejectReason = reason
		status = models.DepositStatusRejected
		return r.Deposits.Update(ctx, d)
	})
	if err != nil {
		return "", err
	}
	if status == models.DepositStatusRejected {
		w.logger.Info("Deposit rejected", zap.String("deposit_id", id.String()), zap.String("reason", reason))
	}
	return status, nil
}

// Amounts converts a raw on-chain value. Settlement assets keep every
// decimal; token assets count whole tokens only. ok is false for a transfer
// that credits nothing or does not fit.
func Amounts(kind models.AssetKind, raw *big.Int, decimals int32) (settlement decimal.Decimal, tokens int64, ok bool) {
	if raw == nil || raw.Sign() <= 0 {
		return decimal.Zero, 0, false
	}
	switch kind {
	case models.AssetKindToken:
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		whole := new(big.Int).Quo(raw, unit)
		if whole.Sign() == 0 || !whole.IsInt64() {
			return decimal.Zero, 0, false
		}
		return decimal.Zero, whole.Int64(), true
	default:
		return decimal.NewFromBigInt(raw, -decimals), 0, true
	}
}
