package dbutil

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func FindOne[T any](db *gorm.DB) (*T, error) {
	var item T
	result := db.Limit(1).Find(&item)
	if result.Error != nil {
		return nil, WrapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errors.NotFound
	}
	return &item, nil
}

// ForUpdate adds a row lock to the query. SQLite ignores the clause.
func ForUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// RetryOptions bounds Transact retries.
type RetryOptions struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryOptions returns default transaction retry options
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 3,
		Backoff:    20 * time.Millisecond,
	}
}

// Transact runs fn inside a database transaction and retries it when the
// database reports a serialization failure or deadlock. When retries are
// exhausted a Conflict error is returned. Any other error rolls back and is
// returned as is.
func Transact(ctx context.Context, db *gorm.DB, opts RetryOptions, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.Backoff * time.Duration(attempt)):
			}
		}
		err := db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return WrapError(err)
		}
		lastErr = err
	}
	return errors.Conflict.Explain("transaction retries exhausted").Wrap(lastErr)
}
