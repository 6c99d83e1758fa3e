package ledger

import (
	"context"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/shopspring/decimal"
)

// Entry kinds recorded in the wallet audit trail.
const (
	KindMarketBuy      = "market_buy"
	KindMarketSell     = "market_sell"
	KindUnstake        = "unstake"
	KindPurchaseStake  = "purchase_stake"
	KindDepositCredit  = "deposit_credit"
	KindEarlyUnlockFee = "early_unlock_fee"
)

// Movement is a change applied to one wallet. Deltas may be negative.
type Movement struct {
	Kind       string
	Reference  string
	Settlement decimal.Decimal
	Tokens     int64
}

// ApplyMovement applies m to a wallet read under lock in the same transaction
// and appends one audit entry per touched asset. A debit that would take a
// balance below zero fails without writing anything.
func (r *Repos) ApplyMovement(ctx context.Context, w *models.UserWallet, m Movement) error {
	settlement := w.SettlementBalance.Add(m.Settlement)
	if settlement.IsNegative() {
		return errors.InsufficientFunds.Explain("settlement balance %s is less than %s",
			w.SettlementBalance.String(), m.Settlement.Neg().String())
	}
	tokens := w.TokenBalance + m.Tokens
	if tokens < 0 {
		return errors.InsufficientBalance.Explain("token balance %d is less than %d", w.TokenBalance, -m.Tokens)
	}

	w.SettlementBalance = settlement
	w.TokenBalance = tokens
	if err := r.Wallets.Update(ctx, w); err != nil {
		return err
	}

	if !m.Settlement.IsZero() {
		if err := r.Entries.Append(ctx, &models.WalletLedgerEntry{
			UserID:       w.UserID,
			Asset:        models.LedgerAssetSettlement,
			Kind:         m.Kind,
			Delta:        m.Settlement,
			BalanceAfter: settlement,
			Reference:    m.Reference,
		}); err != nil {
			return err
		}
	}
	if m.Tokens != 0 {
		if err := r.Entries.Append(ctx, &models.WalletLedgerEntry{
			UserID:       w.UserID,
			Asset:        models.LedgerAssetToken,
			Kind:         m.Kind,
			Delta:        decimal.NewFromInt(m.Tokens),
			BalanceAfter: decimal.NewFromInt(tokens),
			Reference:    m.Reference,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RecordStake appends an audit entry for a change of a staked holding.
func (r *Repos) RecordStake(ctx context.Context, h *models.UserTokenHolding, kind, reference string, delta int64) error {
	return r.Entries.Append(ctx, &models.WalletLedgerEntry{
		UserID:       h.UserID,
		Asset:        models.LedgerAssetStaked,
		Kind:         kind,
		Delta:        decimal.NewFromInt(delta),
		BalanceAfter: decimal.NewFromInt(h.Balance),
		Reference:    reference,
	})
}
