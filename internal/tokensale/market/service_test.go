package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/marketdata"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/Aidin1998/tokenledger/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setup(t *testing.T) (*Service, *ledger.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := ledger.NewStore(testutil.NewDB(t), 5, logger)
	_, err := store.Repos().Sales.Ensure(context.Background(), testutil.Sale("default"))
	require.NoError(t, err)

	quoter := pricing.NewQuoter(10 * time.Minute)
	recorder := marketdata.NewService(store, quoter, "default", []int{60}, 2, logger)
	return NewService(store, quoter, recorder, "default", decimal.RequireFromString("0.10"), logger), store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func soldSupply(t *testing.T, store *ledger.Store) int64 {
	t.Helper()
	sale, err := store.Repos().Sales.Get(context.Background(), "default")
	require.NoError(t, err)
	return sale.SoldSupply
}

func wallet(t *testing.T, store *ledger.Store, userID uuid.UUID) *models.UserWallet {
	t.Helper()
	w, err := store.Repos().Wallets.GetOrCreate(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func TestBuyBySettlementAmount(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	testutil.SeedWallet(t, store.DB(), user, "50", 0)

	trade, err := svc.Buy(ctx, user, Order{Settlement: dec("50")})
	require.NoError(t, err)
	assert.Equal(t, SideBuy, trade.Side)
	assert.Equal(t, int64(500), trade.Tokens)
	assert.True(t, trade.ExecutedPrice.Equal(dec("0.1")), "price %s", trade.ExecutedPrice)
	assert.True(t, trade.Settlement.Equal(dec("50")))

	w := wallet(t, store, user)
	assert.True(t, w.SettlementBalance.IsZero(), "settlement %s", w.SettlementBalance)
	assert.Equal(t, int64(500), w.TokenBalance)
	assert.Equal(t, int64(500), soldSupply(t, store))

	ticks, err := store.Repos().Ticks.Latest(ctx, "default", 10)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, models.TickSourceBuy, ticks[0].Source)
	assert.Equal(t, int64(500), ticks[0].VolumeTokens)
	assert.Equal(t, int64(500), ticks[0].SoldSupply)

	entries, err := svc.History(ctx, user, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBuyFloorsSettlementAmount(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	testutil.SeedWallet(t, store.DB(), user, "1.05", 0)

	trade, err := svc.Buy(ctx, user, Order{Settlement: dec("1.05")})
	require.NoError(t, err)
	assert.Equal(t, int64(10), trade.Tokens)
	assert.True(t, trade.Settlement.Equal(dec("1")))
	assert.True(t, wallet(t, store, user).SettlementBalance.Equal(dec("0.05")))
}

func TestBuyRejections(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	testutil.SeedWallet(t, store.DB(), user, "5", 0)

	_, err := svc.Buy(ctx, user, Order{Tokens: 100})
	assert.True(t, errors.Is(err, errors.InsufficientFunds))

	_, err = svc.Buy(ctx, user, Order{Tokens: 1, Settlement: dec("1")})
	assert.True(t, errors.Is(err, errors.InvalidArgument))

	_, err = svc.Buy(ctx, user, Order{})
	assert.True(t, errors.Is(err, errors.InvalidArgument))

	_, err = svc.Buy(ctx, user, Order{Tokens: -3})
	assert.True(t, errors.Is(err, errors.InvalidArgument))

	_, err = svc.Buy(ctx, user, Order{Settlement: dec("0.01")})
	assert.True(t, errors.Is(err, errors.InvalidArgument))

	_, err = svc.Buy(ctx, user, Order{Tokens: 1001})
	assert.True(t, errors.Is(err, errors.InsufficientSupply))

	require.NoError(t, store.Repos().Sales.SetActive(ctx, "default", false))
	_, err = svc.Buy(ctx, user, Order{Tokens: 1})
	assert.True(t, errors.Is(err, errors.SaleInactive))

	w := wallet(t, store, user)
	assert.True(t, w.SettlementBalance.Equal(dec("5")))
	assert.Equal(t, int64(0), w.TokenBalance)
	assert.Equal(t, int64(0), soldSupply(t, store))

	entries, err := svc.History(ctx, user, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSellKeepsSoldSupply(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	testutil.SeedWallet(t, store.DB(), user, "50", 0)

	_, err := svc.Buy(ctx, user, Order{Tokens: 500})
	require.NoError(t, err)

	trade, err := svc.Sell(ctx, user, Order{Tokens: 100})
	require.NoError(t, err)
	assert.Equal(t, SideSell, trade.Side)
	assert.True(t, trade.ExecutedPrice.Equal(dec("0.15")), "price %s", trade.ExecutedPrice)
	assert.True(t, trade.Settlement.Equal(dec("15")))

	w := wallet(t, store, user)
	assert.Equal(t, int64(400), w.TokenBalance)
	assert.True(t, w.SettlementBalance.Equal(dec("15")), "settlement %s", w.SettlementBalance)
	assert.Equal(t, int64(500), soldSupply(t, store))

	_, err = svc.Sell(ctx, user, Order{Tokens: 401})
	assert.True(t, errors.Is(err, errors.InsufficientBalance))

	// selling stays open while the sale is paused
	require.NoError(t, store.Repos().Sales.SetActive(ctx, "default", false))
	_, err = svc.Sell(ctx, user, Order{Tokens: 1})
	require.NoError(t, err)
}

func TestSellLeavesQuoteUnchanged(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	store := ledger.NewStore(testutil.NewDB(t), 5, logger)
	sale := testutil.Sale("default")
	sale.TargetVelocity = decimal.NewFromInt(1)
	_, err := store.Repos().Sales.Ensure(ctx, sale)
	require.NoError(t, err)
	quoter := pricing.NewQuoter(10 * time.Minute)
	recorder := marketdata.NewService(store, quoter, "default", []int{60}, 2, logger)
	svc := NewService(store, quoter, recorder, "default", dec("0.10"), logger)

	quote := func() decimal.Decimal {
		current, err := store.Repos().Sales.Get(ctx, "default")
		require.NoError(t, err)
		q, err := quoter.Quote(ctx, store.Repos(), current)
		require.NoError(t, err)
		return q.Price
	}

	user := uuid.New()
	testutil.SeedWallet(t, store.DB(), user, "0", 50000)
	before := quote()

	_, err = svc.Sell(ctx, user, Order{Tokens: 25000})
	require.NoError(t, err)
	_, err = svc.Sell(ctx, user, Order{Tokens: 25000})
	require.NoError(t, err)

	after := quote()
	assert.True(t, before.Equal(after), "quote moved from %s to %s", before, after)

	// buying pressure still moves the price
	buyer := uuid.New()
	testutil.SeedWallet(t, store.DB(), buyer, "100", 0)
	_, err = svc.Buy(ctx, buyer, Order{Tokens: 100})
	require.NoError(t, err)
	assert.True(t, quote().GreaterThan(after))
}

func TestConcurrentBuysConserveSupply(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)

	const users = 10
	ids := make([]uuid.UUID, users)
	for i := range ids {
		ids[i] = uuid.New()
		testutil.SeedWallet(t, store.DB(), ids[i], "3", 0)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		latencies []time.Duration
	)
	for _, id := range ids {
		for j := 0; j < 3; j++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				start := time.Now()
				_, err := svc.Buy(ctx, id, Order{Tokens: 10})
				if err != nil && !errors.Is(err, errors.InsufficientFunds) {
					t.Errorf("buy failed: %v", err)
				}
				mu.Lock()
				latencies = append(latencies, time.Since(start))
				mu.Unlock()
			}(id)
		}
	}
	wg.Wait()
	t.Logf("p95 buy latency %s", testutil.Percentile(latencies, 0.95))

	var held int64
	for _, id := range ids {
		w := wallet(t, store, id)
		assert.False(t, w.SettlementBalance.IsNegative())
		assert.GreaterOrEqual(t, w.TokenBalance, int64(0))
		held += w.TokenBalance
	}
	sold := soldSupply(t, store)
	assert.Equal(t, held, sold)
	assert.LessOrEqual(t, sold, int64(1000))
}

func TestUnstakeLockedWithoutEarlyUnlock(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	until := time.Now().UTC().Add(24 * time.Hour)
	testutil.SeedHolding(t, store.DB(), "default", user, 1000, &until)

	_, err := svc.Unstake(ctx, user, 10, false)
	assert.True(t, errors.Is(err, errors.TokensLocked))

	_, err = svc.Unstake(ctx, uuid.New(), 10, false)
	assert.True(t, errors.Is(err, errors.InsufficientBalance))

	_, err = svc.Unstake(ctx, user, 0, true)
	assert.True(t, errors.Is(err, errors.InvalidArgument))
}

func TestEarlyUnlockBurnsFeeAndDisablesDividends(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	until := time.Now().UTC().Add(365 * 24 * time.Hour)
	testutil.SeedHolding(t, store.DB(), "default", user, 1000, &until)

	res, err := svc.Unstake(ctx, user, 1000, true)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Fee)
	assert.Equal(t, int64(900), res.Released)
	assert.Equal(t, int64(0), res.StakedBalance)
	assert.True(t, res.DividendsDisabled)

	h, err := store.Repos().Holdings.Get(ctx, "default", user)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.Balance)
	assert.True(t, h.DividendsDisabled)
	assert.Equal(t, int64(900), wallet(t, store, user).TokenBalance)

	_, err = svc.Unstake(ctx, user, 1, true)
	assert.True(t, errors.Is(err, errors.InsufficientBalance))
}

func TestEarlyUnlockFeeRoundsUp(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	until := time.Now().UTC().Add(time.Hour)
	testutil.SeedHolding(t, store.DB(), "default", user, 9, &until)

	res, err := svc.Unstake(ctx, user, 9, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Fee)
	assert.Equal(t, int64(8), res.Released)
	assert.Equal(t, int64(8), wallet(t, store, user).TokenBalance)
}

func TestDividendsStayDisabledAfterRegularUnstake(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	user := uuid.New()
	until := time.Now().UTC().Add(time.Hour)
	testutil.SeedHolding(t, store.DB(), "default", user, 200, &until)

	res, err := svc.Unstake(ctx, user, 15, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Fee)
	assert.Equal(t, int64(14), res.Released)

	svc.now = func() time.Time { return until.Add(time.Minute) }
	res, err = svc.Unstake(ctx, user, 85, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Fee)
	assert.Equal(t, int64(85), res.Released)
	assert.Equal(t, int64(100), res.StakedBalance)
	assert.True(t, res.DividendsDisabled)

	assert.Equal(t, int64(99), wallet(t, store, user).TokenBalance)

	events, err := store.Repos().Outbox.Pending(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.TopicUnstaked, events[0].Topic)
}

func TestGetWalletCreatesEmpty(t *testing.T) {
	svc, _ := setup(t)
	w, err := svc.GetWallet(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, w.SettlementBalance.IsZero())
	assert.Equal(t, int64(0), w.TokenBalance)
}
