//go:build integration

package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/database"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/marketdata"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func setupPostgres(t *testing.T) (*Service, *ledger.Store) {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tokenledger"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := database.NewPostgresDB(dsn, 20, 20, 60)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger := zaptest.NewLogger(t)
	store := ledger.NewStore(db, 10, logger)
	_, err = store.Repos().Sales.Ensure(ctx, testutil.Sale("default"))
	require.NoError(t, err)

	quoter := pricing.NewQuoter(10 * time.Minute)
	recorder := marketdata.NewService(store, quoter, "default", []int{60, 300}, 5, logger)
	return NewService(store, quoter, recorder, "default", decimal.RequireFromString("0.10"), logger), store
}

func TestPostgresConcurrentBuysNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, store := setupPostgres(t)

	const buyers = 30
	users := make([]uuid.UUID, buyers)
	for i := range users {
		users[i] = uuid.New()
		testutil.SeedWallet(t, store.DB(), users[i], "100", 0)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		filled   int64
		rejected int
	)
	for _, user := range users {
		wg.Add(1)
		go func(user uuid.UUID) {
			defer wg.Done()
			trade, err := svc.Buy(ctx, user, Order{Tokens: 50})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, errors.Is(err, errors.InsufficientSupply) || errors.Is(err, errors.Conflict), "unexpected %v", err)
				rejected++
				return
			}
			filled += trade.Tokens
		}(user)
	}
	wg.Wait()

	sale, err := store.Repos().Sales.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, filled, sale.SoldSupply)
	assert.LessOrEqual(t, sale.SoldSupply, sale.TotalSupply)
	assert.Equal(t, buyers, int(filled/50)+rejected)

	var credited int64
	for _, user := range users {
		w, err := store.Repos().Wallets.GetOrCreate(ctx, user)
		require.NoError(t, err)
		credited += w.TokenBalance
	}
	assert.Equal(t, filled, credited)
}

func TestPostgresConcurrentUnstakeRespectsBalance(t *testing.T) {
	ctx := context.Background()
	svc, store := setupPostgres(t)
	user := uuid.New()
	testutil.SeedHolding(t, store.DB(), "default", user, 100, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		released int64
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Unstake(ctx, user, 30, false)
			if err != nil {
				return
			}
			mu.Lock()
			released += res.Released
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(90), released)
	w, err := store.Repos().Wallets.GetOrCreate(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(90), w.TokenBalance)
}
