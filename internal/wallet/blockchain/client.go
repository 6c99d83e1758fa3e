// Package blockchain reads the external ledger the deposit watcher scans.
package blockchain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TransferTopic is the ERC-20 Transfer(address,address,uint256) event signature.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// maxAddressesPerQuery bounds the topic list of one log filter.
const maxAddressesPerQuery = 200

// Transfer is one token transfer read from the chain.
type Transfer struct {
	TxHash      string
	LogIndex    uint
	BlockNumber uint64
	Contract    string
	From        string
	To          string
	Value       *big.Int
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	BlockNumber uint64
	Success     bool
}

// ChainClient is the read surface of an external ledger.
type ChainClient interface {
	// HeadBlock returns the latest block number.
	HeadBlock(ctx context.Context) (uint64, error)
	// Transfers returns contract transfers into any of recipients within [fromBlock, toBlock].
	Transfers(ctx context.Context, contract string, recipients []string, fromBlock, toBlock uint64) ([]Transfer, error)
	// Receipt returns the receipt of txHash, or nil while it is not mined.
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}

// Backend is the subset of ethclient.Client used here.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EVMClient implements ChainClient over an EVM JSON-RPC endpoint. Every call
// waits on a shared rate limiter and runs under its own timeout.
type EVMClient struct {
	backend Backend
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// DialEVM connects to rpcURL.
func DialEVM(ctx context.Context, rpcURL string, timeout time.Duration, ratePerSecond float64, logger *zap.Logger) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.ExternalLedgerUnavailable.Explain("dial %s", rpcURL).Wrap(err)
	}
	return NewEVMClient(client, timeout, ratePerSecond, logger), nil
}

// NewEVMClient wraps backend. A non-positive ratePerSecond disables throttling.
func NewEVMClient(backend Backend, timeout time.Duration, ratePerSecond float64, logger *zap.Logger) *EVMClient {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &EVMClient{
		backend: backend,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		logger:  logger.Named("evm"),
	}
}

func (c *EVMClient) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, errors.ExternalLedgerUnavailable.Explain("rpc rate limiter").Wrap(err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	return callCtx, cancel, nil
}

func (c *EVMClient) HeadBlock(ctx context.Context) (uint64, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	head, err := c.backend.BlockNumber(callCtx)
	if err != nil {
		return 0, errors.ExternalLedgerUnavailable.Explain("block number").Wrap(err)
	}
	return head, nil
}

func (c *EVMClient) Transfers(ctx context.Context, contract string, recipients []string, fromBlock, toBlock uint64) ([]Transfer, error) {
	if len(recipients) == 0 || fromBlock > toBlock {
		return nil, nil
	}
	if !common.IsHexAddress(contract) {
		return nil, errors.InvalidArgument.Explain("contract %q is not an address", contract)
	}
	token := common.HexToAddress(contract)

	var out []Transfer
	for start := 0; start < len(recipients); start += maxAddressesPerQuery {
		end := start + maxAddressesPerQuery
		if end > len(recipients) {
			end = len(recipients)
		}
		topics := make([]common.Hash, 0, end-start)
		for _, r := range recipients[start:end] {
			topics = append(topics, common.BytesToHash(common.HexToAddress(r).Bytes()))
		}

		logs, err := c.filter(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(fromBlock),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{token},
			Topics:    [][]common.Hash{{TransferTopic}, nil, topics},
		})
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			t, ok := DecodeTransfer(l)
			if !ok {
				c.logger.Debug("Skipping malformed transfer log",
					zap.String("tx_hash", l.TxHash.Hex()), zap.Uint("index", l.Index))
				continue
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *EVMClient) filter(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	logs, err := c.backend.FilterLogs(callCtx, q)
	if err != nil {
		return nil, errors.ExternalLedgerUnavailable.Explain("filter logs %s-%s", q.FromBlock, q.ToBlock).Wrap(err)
	}
	return logs, nil
}

func (c *EVMClient) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	callCtx, cancel, err := c.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	rcpt, err := c.backend.TransactionReceipt(callCtx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ExternalLedgerUnavailable.Explain("receipt %s", txHash).Wrap(err)
	}
	if rcpt.BlockNumber == nil {
		return nil, nil
	}
	return &Receipt{
		BlockNumber: rcpt.BlockNumber.Uint64(),
		Success:     rcpt.Status == types.ReceiptStatusSuccessful,
	}, nil
}

// DecodeTransfer reads an ERC-20 Transfer log. Removed (reorged) logs are rejected.
func DecodeTransfer(l types.Log) (Transfer, bool) {
	if l.Removed || len(l.Topics) != 3 || l.Topics[0] != TransferTopic || len(l.Data) != 32 {
		return Transfer{}, false
	}
	return Transfer{
		TxHash:      l.TxHash.Hex(),
		LogIndex:    l.Index,
		BlockNumber: l.BlockNumber,
		Contract:    l.Address.Hex(),
		From:        common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
		Value:       new(big.Int).SetBytes(l.Data),
	}, true
}

// SameAddress compares two hex addresses ignoring checksum case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(common.HexToAddress(a).Hex(), common.HexToAddress(b).Hex())
}
