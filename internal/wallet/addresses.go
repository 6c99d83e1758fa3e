// Package wallet links users to deposit addresses on external ledgers and
// credits confirmed inbound transfers to their wallets.
package wallet

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
)

// Registry hands out one deterministic deposit address per (user, network, asset).
type Registry struct {
	store  *ledger.Store
	cfg    config.WatcherConfig
	seed   []byte
	logger *zap.Logger
}

// NewRegistry creates an address registry. Only assets listed in cfg.Assets can be linked.
func NewRegistry(store *ledger.Store, cfg config.WatcherConfig, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		cfg:    cfg,
		seed:   []byte(cfg.AddressSeed),
		logger: logger.Named("addresses"),
	}
}

// Link returns the user's address for network/asset, deriving and storing
// it on first use. An address is never regenerated.
func (r *Registry) Link(ctx context.Context, userID uuid.UUID, network, asset string) (*models.WalletAddress, error) {
	tracked, ok := r.cfg.FindAsset(network, asset)
	if !ok {
		return nil, errors.InvalidArgument.Explain("%s/%s is not a supported deposit asset", network, asset).
			WithField("invalid", "asset", "not supported")
	}
	if len(r.seed) == 0 {
		return nil, errors.Internal.Explain("deposit address seed is not configured")
	}

	repo := r.store.Repos().Addresses
	existing, err := repo.Get(ctx, userID, tracked.Network, tracked.Asset)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.NotFound) {
		return nil, err
	}

	address, err := DeriveAddress(r.seed, userID, tracked.Network, tracked.Asset)
	if err != nil {
		return nil, err
	}
	stored, err := repo.Create(ctx, &models.WalletAddress{
		ID:      uuid.New(),
		UserID:  userID,
		Network: tracked.Network,
		Asset:   tracked.Asset,
		Address: address,
	})
	if err != nil {
		return nil, fmt.Errorf("store deposit address: %w", err)
	}
	r.logger.Info("Deposit address linked",
		zap.String("user_id", userID.String()),
		zap.String("network", stored.Network),
		zap.String("asset", stored.Asset),
		zap.String("address", stored.Address))
	return stored, nil
}

// List returns the user's deposit addresses.
func (r *Registry) List(ctx context.Context, userID uuid.UUID) ([]models.WalletAddress, error) {
	return r.store.Repos().Addresses.ListByUser(ctx, userID)
}

// Deposits returns the user's inbound transfers, newest first.
func (r *Registry) Deposits(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletDeposit, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.store.Repos().Deposits.ListByUser(ctx, userID, limit)
}

// DeriveAddress returns the EVM address of the secp256k1 key derived with
// HKDF-SHA256 from seed and "user|network|asset".
func DeriveAddress(seed []byte, userID uuid.UUID, network, asset string) (string, error) {
	info := strings.Join([]string{userID.String(), strings.ToLower(network), strings.ToUpper(asset)}, "|")
	kdf := hkdf.New(sha256.New, seed, nil, []byte(info))

	buf := make([]byte, 32)
	// a candidate outside the curve order is skipped for the next block of output
	for i := 0; i < 8; i++ {
		if _, err := io.ReadFull(kdf, buf); err != nil {
			return "", fmt.Errorf("derive key: %w", err)
		}
		key, err := crypto.ToECDSA(buf)
		if err != nil {
			continue
		}
		return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
	}
	return "", errors.Internal.Explain("no valid key derived for %s", info)
}
