package sale

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/Aidin1998/tokenledger/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setup(t *testing.T, pool string) (*Service, *ledger.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := ledger.NewStore(testutil.NewDB(t), 3, logger)
	_, err := store.Repos().Sales.Ensure(context.Background(), testutil.Sale("default"))
	require.NoError(t, err)
	return NewService(store, pricing.NewQuoter(10*time.Minute), "default", decimal.RequireFromString(pool), logger), store
}

func TestBootstrapKeepsExistingSale(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	store := ledger.NewStore(testutil.NewDB(t), 3, logger)

	cfg := config.Default().Sale
	s, err := Bootstrap(ctx, store, cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, s.ID)
	assert.Equal(t, cfg.TotalSupply, s.TotalSupply)
	assert.True(t, s.Active)
	assert.True(t, s.LastPrice.Equal(cfg.BasePrice))

	require.NoError(t, store.Repos().Sales.AddSoldSupply(ctx, cfg.ID, 42))
	cfg.TotalSupply = 7
	s, err = Bootstrap(ctx, store, cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.SoldSupply)
	assert.Equal(t, config.Default().Sale.TotalSupply, s.TotalSupply)
}

func TestInfoForNewUser(t *testing.T) {
	svc, _ := setup(t, "1000")

	info, err := svc.Info(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "EDU", info.Symbol)
	assert.True(t, info.LivePrice.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, int64(1000), info.TotalSupply)
	assert.Equal(t, int64(0), info.SoldSupply)
	assert.Equal(t, int64(0), info.UserBalance)
	assert.Nil(t, info.LockExpiry)
	assert.True(t, info.EarningsEstimate.IsZero())
	assert.NotNil(t, info.DepositAddresses)
	assert.Empty(t, info.DepositAddresses)
}

func TestInfoWithHoldingAndAddresses(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, "1000")
	user := uuid.New()
	until := time.Now().UTC().Add(time.Hour)
	testutil.SeedHolding(t, store.DB(), "default", user, 100, &until)
	require.NoError(t, store.Repos().Sales.AddSoldSupply(ctx, "default", 300))
	_, err := store.Repos().Addresses.Create(ctx, &models.WalletAddress{
		ID: uuid.New(), UserID: user, Network: "ethereum", Asset: "USDT",
		Address: "0x00000000000000000000000000000000000000aa",
	})
	require.NoError(t, err)

	info, err := svc.Info(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.UserBalance)
	require.NotNil(t, info.LockExpiry)
	assert.WithinDuration(t, until, *info.LockExpiry, time.Second)
	assert.Equal(t, "333.33333333", info.EarningsEstimate.String())
	require.Len(t, info.DepositAddresses, 1)
	assert.Equal(t, "USDT", info.DepositAddresses[0].Asset)
	// 300 of 1000 sold: 0.10 * (1 + 2 * 0.09)
	assert.Equal(t, "0.118", info.LivePrice.String())
}

func TestEarningsEstimate(t *testing.T) {
	pool := decimal.NewFromInt(500)
	h := &models.UserTokenHolding{Balance: 50}

	assert.Equal(t, "25", EarningsEstimate(pool, h, 1000).String())
	assert.True(t, EarningsEstimate(pool, h, 0).IsZero())
	assert.True(t, EarningsEstimate(decimal.Zero, h, 1000).IsZero())
	assert.True(t, EarningsEstimate(pool, nil, 1000).IsZero())

	h.DividendsDisabled = true
	assert.True(t, EarningsEstimate(pool, h, 1000).IsZero())
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, "0")

	s, err := svc.SetActive(ctx, false)
	require.NoError(t, err)
	assert.False(t, s.Active)

	info, err := svc.Info(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, info.Active)

	s, err = svc.SetActive(ctx, true)
	require.NoError(t, err)
	assert.True(t, s.Active)
}
