package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	head     uint64
	logs     []types.Log
	receipts map[common.Hash]*types.Receipt
	queries  []ethereum.FilterQuery
	fail     error
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.fail
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	return f.logs, f.fail
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

var (
	token = common.HexToAddress("0x1111111111111111111111111111111111111111")
	alice = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bob   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func transferLog(tx common.Hash, to common.Address, value int64, block uint64) types.Log {
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{TransferTopic, common.BytesToHash(bob.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        common.LeftPadBytes(big.NewInt(value).Bytes(), 32),
		BlockNumber: block,
		TxHash:      tx,
	}
}

func TestTransfersDecodesLogs(t *testing.T) {
	tx := common.HexToHash("0xabc")
	removed := transferLog(common.HexToHash("0xdef"), alice, 5, 9)
	removed.Removed = true
	backend := &fakeBackend{logs: []types.Log{transferLog(tx, alice, 1_500_000, 10), removed}}
	c := NewEVMClient(backend, time.Second, 0, zaptest.NewLogger(t))

	out, err := c.Transfers(context.Background(), token.Hex(), []string{alice.Hex()}, 5, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tx.Hex(), out[0].TxHash)
	assert.True(t, SameAddress(alice.Hex(), out[0].To))
	assert.Equal(t, int64(1_500_000), out[0].Value.Int64())
	assert.Equal(t, uint64(10), out[0].BlockNumber)

	require.Len(t, backend.queries, 1)
	q := backend.queries[0]
	assert.Equal(t, int64(5), q.FromBlock.Int64())
	assert.Equal(t, []common.Address{token}, q.Addresses)
	assert.Equal(t, common.BytesToHash(alice.Bytes()), q.Topics[2][0])
}

func TestTransfersChunksRecipients(t *testing.T) {
	backend := &fakeBackend{}
	c := NewEVMClient(backend, time.Second, 0, zaptest.NewLogger(t))

	recipients := make([]string, maxAddressesPerQuery+1)
	for i := range recipients {
		recipients[i] = common.BigToAddress(big.NewInt(int64(i + 1))).Hex()
	}
	_, err := c.Transfers(context.Background(), token.Hex(), recipients, 1, 2)
	require.NoError(t, err)
	assert.Len(t, backend.queries, 2)

	out, err := c.Transfers(context.Background(), token.Hex(), nil, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReceipt(t *testing.T) {
	ok := common.HexToHash("0x01")
	reverted := common.HexToHash("0x02")
	backend := &fakeBackend{receipts: map[common.Hash]*types.Receipt{
		ok:       {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)},
		reverted: {Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(101)},
	}}
	c := NewEVMClient(backend, time.Second, 100, zaptest.NewLogger(t))
	ctx := context.Background()

	r, err := c.Receipt(ctx, ok.Hex())
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(100), r.BlockNumber)

	r, err = c.Receipt(ctx, reverted.Hex())
	require.NoError(t, err)
	assert.False(t, r.Success)

	r, err = c.Receipt(ctx, common.HexToHash("0x03").Hex())
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestTransportErrorsAreExternalLedgerUnavailable(t *testing.T) {
	backend := &fakeBackend{fail: fmt.Errorf("connection refused")}
	c := NewEVMClient(backend, time.Second, 0, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := c.HeadBlock(ctx)
	assert.True(t, errors.Is(err, errors.ExternalLedgerUnavailable))

	_, err = c.Transfers(ctx, token.Hex(), []string{alice.Hex()}, 1, 2)
	assert.True(t, errors.Is(err, errors.ExternalLedgerUnavailable))

	_, err = c.Receipt(ctx, "0x01")
	assert.True(t, errors.Is(err, errors.ExternalLedgerUnavailable))

	_, err = c.Transfers(ctx, "not-an-address", []string{alice.Hex()}, 1, 2)
	assert.True(t, errors.Is(err, errors.InvalidArgument))
}
