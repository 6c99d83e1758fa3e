package ledger

import (
	"context"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repos groups the repositories bound to one connection or transaction.
type Repos struct {
	Sales     SaleRepository
	Holdings  HoldingRepository
	Wallets   WalletRepository
	Entries   EntryRepository
	Purchases PurchaseRepository
	Ticks     TickRepository
	Candles   CandleRepository
	Addresses AddressRepository
	Deposits  DepositRepository
	Outbox    OutboxRepository
}

func newRepos(db *gorm.DB) *Repos {
	return &Repos{
		Sales:     &saleRepo{db: db},
		Holdings:  &holdingRepo{db: db},
		Wallets:   &walletRepo{db: db},
		Entries:   &entryRepo{db: db},
		Purchases: &purchaseRepo{db: db},
		Ticks:     &tickRepo{db: db},
		Candles:   &candleRepo{db: db},
		Addresses: &addressRepo{db: db},
		Deposits:  &depositRepo{db: db},
		Outbox:    &outboxRepo{db: db},
	}
}

// Store is the entry point to the ledger.
type Store struct {
	db     *gorm.DB
	retry  dbutil.RetryOptions
	logger *zap.Logger
	repos  *Repos
}

// NewStore creates a Store over db. maxRetries bounds transaction retries on conflict.
func NewStore(db *gorm.DB, maxRetries int, logger *zap.Logger) *Store {
	retry := dbutil.DefaultRetryOptions()
	if maxRetries > 0 {
		retry.MaxRetries = maxRetries
	}
	return &Store{
		db:     db,
		retry:  retry,
		logger: logger.Named("ledger"),
		repos:  newRepos(db),
	}
}

// Repos returns repositories bound to the pool, for reads outside a transaction.
func (s *Store) Repos() *Repos {
	return s.repos
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transact runs fn in one database transaction. The transaction is retried
// on serialization failures and deadlocks, so fn must not have effects
// outside the database.
func (s *Store) Transact(ctx context.Context, fn func(r *Repos) error) error {
	attempt := 0
	return dbutil.Transact(ctx, s.db, s.retry, func(tx *gorm.DB) error {
		attempt++
		if attempt > 1 {
			s.logger.Debug("Retrying ledger transaction", zap.Int("attempt", attempt))
		}
		return fn(newRepos(tx))
	})
}
