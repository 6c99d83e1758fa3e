package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/Aidin1998/tokenledger/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func baseInputs() Inputs {
	return Inputs{
		TotalSupply:       1000,
		SoldSupply:        0,
		BasePrice:         decimal.RequireFromString("0.10"),
		CurveSteepness:    decimal.NewFromInt(2),
		DemandSensitivity: decimal.RequireFromString("0.5"),
		TargetVelocity:    decimal.NewFromInt(1000),
		Window:            10 * time.Minute,
	}
}

func TestComputeFreshSaleQuotesBasePrice(t *testing.T) {
	q := Compute(baseInputs())
	assert.True(t, q.Price.Equal(decimal.RequireFromString("0.1")), "got %s", q.Price)
	assert.True(t, q.SupplyMultiplier.Equal(decimal.NewFromInt(1)))
	assert.True(t, q.DemandMultiplier.Equal(decimal.NewFromInt(1)))
}

func TestComputeSupplyCurve(t *testing.T) {
	in := baseInputs()
	in.SoldSupply = 500
	// 0.10 * (1 + 2 * 0.25)
	assert.Equal(t, "0.15", Compute(in).Price.String())

	in.SoldSupply = 1000
	assert.Equal(t, "0.3", Compute(in).Price.String())
}

func TestComputeMonotonicInSupply(t *testing.T) {
	in := baseInputs()
	in.RecentVolumeTokens = 25_000
	prev := decimal.Zero
	for sold := int64(0); sold <= in.TotalSupply; sold += 7 {
		in.SoldSupply = sold
		price := Compute(in).Price
		require.True(t, price.GreaterThanOrEqual(prev), "price dropped at sold=%d: %s < %s", sold, price, prev)
		prev = price
	}
}

func TestComputeDemandOnlyRaisesPrice(t *testing.T) {
	in := baseInputs()
	in.RecentVolumeTokens = 0
	low := Compute(in)
	assert.True(t, low.DemandMultiplier.Equal(decimal.NewFromInt(1)))

	// 3000 tokens/min against a target of 1000: 1 + 0.5*(3-1) = 2
	in.RecentVolumeTokens = 30_000
	high := Compute(in)
	assert.True(t, high.DemandMultiplier.Equal(decimal.NewFromInt(2)), "got %s", high.DemandMultiplier)
	assert.Equal(t, "0.2", high.Price.String())

	in.RecentVolumeTokens = 10_000_000
	assert.True(t, Compute(in).DemandMultiplier.Equal(decimal.NewFromInt(3)))
}

func TestComputeGuards(t *testing.T) {
	in := baseInputs()
	in.TotalSupply = 0
	in.SoldSupply = 0
	in.TargetVelocity = decimal.Zero
	in.Window = 0
	q := Compute(in)
	assert.True(t, q.SoldRatio.IsZero())
	assert.True(t, q.Price.IsPositive())

	in = baseInputs()
	in.CurveSteepness = decimal.NewFromInt(500)
	in.SoldSupply = 1000
	// steepness clamps to 10
	assert.Equal(t, "1.1", Compute(in).Price.String())

	in = baseInputs()
	in.BasePrice = decimal.RequireFromString("0.00000001")
	assert.Equal(t, "0.0001", Compute(in).Price.String())

	in = baseInputs()
	in.BasePrice = decimal.NewFromInt(5000)
	assert.Equal(t, "1000", Compute(in).Price.String())
}

func TestTokensFor(t *testing.T) {
	tokens, cost := TokensFor(decimal.NewFromInt(50), decimal.RequireFromString("0.10"))
	assert.Equal(t, int64(500), tokens)
	assert.True(t, cost.Equal(decimal.NewFromInt(50)))

	tokens, cost = TokensFor(decimal.RequireFromString("1.05"), decimal.RequireFromString("0.3"))
	assert.Equal(t, int64(3), tokens)
	assert.True(t, cost.Equal(decimal.RequireFromString("0.9")))

	tokens, _ = TokensFor(decimal.RequireFromString("0.05"), decimal.RequireFromString("0.10"))
	assert.Equal(t, int64(0), tokens)

	// a quotient that would round up to a whole token must not cost more than was offered
	tokens, cost = TokensFor(decimal.RequireFromString("0.99999999999999999"), decimal.NewFromInt(1))
	assert.Equal(t, int64(0), tokens)
	assert.True(t, cost.IsZero())

	offered := decimal.RequireFromString("2.99999999999999999")
	tokens, cost = TokensFor(offered, decimal.NewFromInt(1))
	assert.Equal(t, int64(2), tokens)
	assert.True(t, cost.LessThanOrEqual(offered))
}

func TestQuoterIncludesPendingPurchases(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewStore(testutil.NewDB(t), 3, zaptest.NewLogger(t))
	repos := store.Repos()
	sale, err := repos.Sales.Ensure(ctx, testutil.Sale("default"))
	require.NoError(t, err)

	quoter := NewQuoter(time.Minute)
	q, err := quoter.Quote(ctx, repos, sale)
	require.NoError(t, err)
	assert.Equal(t, "0.1", q.Price.String())

	require.NoError(t, repos.Purchases.Create(ctx, &models.TokenPurchase{
		SaleID: sale.ID, UserID: uuid.New(), TokenAmount: 3000,
		SettlementDue: decimal.NewFromInt(300), PriceAtRequest: decimal.RequireFromString("0.1"),
		PaymentMethod: models.PaymentMethodBankTransfer, Status: models.PurchaseStatusPending,
	}))

	volume, err := quoter.RecentVolume(ctx, repos, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), volume)

	q, err = quoter.Quote(ctx, repos, sale)
	require.NoError(t, err)
	assert.Equal(t, "0.2", q.Price.String())
}
