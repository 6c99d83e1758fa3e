package wallet

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/wallet/blockchain"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/Aidin1998/tokenledger/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	usdtContract = "0x1111111111111111111111111111111111111111"
	eduContract  = "0x4444444444444444444444444444444444444444"
)

type fakeChain struct {
	mu        sync.Mutex
	head      uint64
	headErr   error
	transfers map[string][]blockchain.Transfer
	failScan  map[string]bool
	receipts  map[string]*blockchain.Receipt
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{
		head:      head,
		transfers: map[string][]blockchain.Transfer{},
		failScan:  map[string]bool{},
		receipts:  map[string]*blockchain.Receipt{},
	}
}

func (f *fakeChain) HeadBlock(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeChain) Transfers(_ context.Context, contract string, recipients []string, from, to uint64) ([]blockchain.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failScan[contract] {
		return nil, errors.ExternalLedgerUnavailable.Explain("scan %s", contract)
	}
	var out []blockchain.Transfer
	for _, t := range f.transfers[contract] {
		if t.BlockNumber < from || t.BlockNumber > to {
			continue
		}
		for _, r := range recipients {
			if blockchain.SameAddress(r, t.To) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (f *fakeChain) Receipt(_ context.Context, txHash string) (*blockchain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[strings.ToLower(txHash)], nil
}

func (f *fakeChain) send(contract, to string, value *big.Int, block uint64, success bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := common.BigToHash(big.NewInt(int64(len(f.receipts) + 1))).Hex()
	f.transfers[contract] = append(f.transfers[contract], blockchain.Transfer{
		TxHash: hash, BlockNumber: block, Contract: contract, To: to, Value: value,
	})
	f.receipts[strings.ToLower(hash)] = &blockchain.Receipt{BlockNumber: block, Success: success}
	return hash
}

func (f *fakeChain) setHead(h uint64) {
	f.mu.Lock()
	f.head = h
	f.mu.Unlock()
}

func watcherConfig() config.WatcherConfig {
	return config.WatcherConfig{
		Enabled:               true,
		PollInterval:          10 * time.Millisecond,
		LookbackBlocks:        100,
		RequiredConfirmations: 3,
		AddressSeed:           "test-seed-0123456789",
		Assets: []config.AssetConfig{
			{Network: "ethereum", Asset: "USDT", Contract: usdtContract, Decimals: 6, Kind: "settlement"},
			{Network: "ethereum", Asset: "EDU", Contract: eduContract, Decimals: 18, Kind: "token"},
		},
	}
}

type fixture struct {
	store    *ledger.Store
	chain    *fakeChain
	registry *Registry
	watcher  *Watcher
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := ledger.NewStore(testutil.NewDB(t), 3, logger)
	chain := newFakeChain(100)
	cfg := watcherConfig()
	return &fixture{
		store:    store,
		chain:    chain,
		registry: NewRegistry(store, cfg, logger),
		watcher:  NewWatcher(store, chain, cfg, nil, logger),
	}
}

func (f *fixture) wallet(t *testing.T, user uuid.UUID) *models.UserWallet {
	t.Helper()
	w, err := f.store.Repos().Wallets.GetOrCreate(context.Background(), user)
	require.NoError(t, err)
	return w
}

func units(whole int64, decimals int) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}

func TestLinkIsDeterministicAndStoredOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := uuid.New()

	a, err := f.registry.Link(ctx, user, "ethereum", "USDT")
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(a.Address))

	again, err := f.registry.Link(ctx, user, "Ethereum", "usdt")
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)
	assert.Equal(t, a.Address, again.Address)

	other, err := f.registry.Link(ctx, uuid.New(), "ethereum", "USDT")
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, other.Address)

	derived, err := DeriveAddress([]byte("test-seed-0123456789"), user, "ethereum", "USDT")
	require.NoError(t, err)
	assert.Equal(t, a.Address, derived)

	_, err = f.registry.Link(ctx, user, "bitcoin", "BTC")
	assert.True(t, errors.Is(err, errors.InvalidArgument))

	list, err := f.registry.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDepositConfirmsAtThresholdExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := uuid.New()
	addr, err := f.registry.Link(ctx, user, "ethereum", "USDT")
	require.NoError(t, err)

	f.chain.send(usdtContract, addr.Address, big.NewInt(1_500_000), 99, true)

	// depth 2 of 3
	f.watcher.Poll(ctx)
	deposits, err := f.registry.Deposits(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, models.DepositStatusDetected, deposits[0].Status)
	assert.Equal(t, uint64(2), deposits[0].Confirmations)
	assert.True(t, deposits[0].SettlementAmount.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, f.wallet(t, user).SettlementBalance.IsZero())

	f.chain.setHead(101)
	for i := 0; i < 3; i++ {
		f.watcher.Poll(ctx)
	}

	deposits, err = f.registry.Deposits(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, models.DepositStatusConfirmed, deposits[0].Status)
	assert.NotNil(t, deposits[0].ConfirmedAt)
	assert.True(t, f.wallet(t, user).SettlementBalance.Equal(decimal.RequireFromString("1.5")))

	events, err := f.store.Repos().Outbox.Pending(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TopicDepositCredited, events[0].Topic)
}

func TestConcurrentPollsCreditOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := uuid.New()
	addr, err := f.registry.Link(ctx, user, "ethereum", "USDT")
	require.NoError(t, err)
	f.chain.send(usdtContract, addr.Address, big.NewInt(2_000_000), 90, true)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.watcher.Poll(ctx)
		}()
	}
	wg.Wait()

	assert.True(t, f.wallet(t, user).SettlementBalance.Equal(decimal.NewFromInt(2)))
}

func TestRevertedDepositIsRejected(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := uuid.New()
	addr, err := f.registry.Link(ctx, user, "ethereum", "USDT")
	require.NoError(t, err)
	f.chain.send(usdtContract, addr.Address, big.NewInt(9_000_000), 50, false)

	f.watcher.Poll(ctx)
	f.watcher.Poll(ctx)

	deposits, err := f.registry.Deposits(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, models.DepositStatusRejected, deposits[0].Status)
	assert.Equal(t, "transaction reverted", deposits[0].RejectReason)
	assert.True(t, f.wallet(t, user).SettlementBalance.IsZero())
}

func TestTokenDepositsCreditWholeTokens(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := uuid.New()
	addr, err := f.registry.Link(ctx, user, "ethereum", "EDU")
	require.NoError(t, err)

	value := new(big.Int).Add(units(2, 18), units(5, 17))
	f.chain.send(eduContract, addr.Address, value, 80, true)
	f.chain.send(eduContract, addr.Address, units(5, 17), 80, true)

	f.watcher.Poll(ctx)

	deposits, err := f.registry.Deposits(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, int64(2), deposits[0].TokenAmount)
	assert.Equal(t, value.String(), deposits[0].RawAmount)
	assert.Equal(t, int64(2), f.wallet(t, user).TokenBalance)
}

func TestPendingAndOutOfRangeTransfers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := uuid.New()
	addr, err := f.registry.Link(ctx, user, "ethereum", "USDT")
	require.NoError(t, err)

	// outside the lookback window
	f.chain.send(usdtContract, addr.Address, big.NewInt(1_000_000), 1, true)
	hash := f.chain.send(usdtContract, addr.Address, big.NewInt(3_000_000), 95, true)
	f.chain.mu.Lock()
	delete(f.chain.receipts, strings.ToLower(hash))
	f.chain.mu.Unlock()
	f.chain.setHead(150)

	f.watcher.Poll(ctx)

	deposits, err := f.registry.Deposits(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, models.DepositStatusDetected, deposits[0].Status)
	assert.Equal(t, uint64(0), deposits[0].Confirmations)
}

func TestFailingAssetDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	user := uuid.New()
	usdt, err := f.registry.Link(ctx, user, "ethereum", "USDT")
	require.NoError(t, err)
	edu, err := f.registry.Link(ctx, user, "ethereum", "EDU")
	require.NoError(t, err)

	f.chain.send(usdtContract, usdt.Address, big.NewInt(1_000_000), 90, true)
	f.chain.send(eduContract, edu.Address, units(7, 18), 90, true)
	f.chain.failScan[usdtContract] = true

	f.watcher.Poll(ctx)

	w := f.wallet(t, user)
	assert.True(t, w.SettlementBalance.IsZero())
	assert.Equal(t, int64(7), w.TokenBalance)

	f.chain.mu.Lock()
	f.chain.headErr = fmt.Errorf("rpc down")
	f.chain.mu.Unlock()
	f.watcher.Poll(ctx)
}

type fakeLease struct{ granted bool }

func (l *fakeLease) Acquire(context.Context, time.Duration) (bool, error) { return l.granted, nil }

func TestRunSkipsWithoutLease(t *testing.T) {
	f := setup(t)
	user := uuid.New()
	addr, err := f.registry.Link(context.Background(), user, "ethereum", "USDT")
	require.NoError(t, err)
	f.chain.send(usdtContract, addr.Address, big.NewInt(1_000_000), 90, true)

	lease := &fakeLease{}
	w := NewWatcher(f.store, f.chain, watcherConfig(), lease, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	w.Run(ctx)
	cancel()
	assert.True(t, f.wallet(t, user).SettlementBalance.IsZero())

	lease.granted = true
	ctx, cancel = context.WithTimeout(context.Background(), 60*time.Millisecond)
	w.Run(ctx)
	cancel()
	assert.True(t, f.wallet(t, user).SettlementBalance.Equal(decimal.NewFromInt(1)))
}

func TestAmounts(t *testing.T) {
	s, tok, ok := Amounts(models.AssetKindSettlement, big.NewInt(1_234_567), 6)
	require.True(t, ok)
	assert.Equal(t, "1.234567", s.String())
	assert.Equal(t, int64(0), tok)

	_, tok, ok = Amounts(models.AssetKindToken, units(3, 18), 18)
	require.True(t, ok)
	assert.Equal(t, int64(3), tok)

	_, _, ok = Amounts(models.AssetKindToken, big.NewInt(999), 18)
	assert.False(t, ok)

	_, _, ok = Amounts(models.AssetKindSettlement, big.NewInt(0), 6)
	assert.False(t, ok)
}
