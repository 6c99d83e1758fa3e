package dbutil

import (
	"strings"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	DuplicateKeyErrorCode         = "23505"
	SerializationFailureErrorCode = "40001"
	DeadlockDetectedErrorCode     = "40P01"
)

// ErrRetryable marks a conflict that is worth retrying the whole transaction for.
var ErrRetryable = errors.Conflict.Explain("transaction conflict, retry")

// WrapError wraps a gorm error.
func WrapError(err error) error {
	var pgErr *pgconn.PgError

	if err == nil {
		return nil
	} else if _, ok := err.(*errors.Error); ok {
		return err
	} else if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound.Wrap(err)
	} else if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Conflict.Explain("duplication of key").Wrap(err)
	} else if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case DuplicateKeyErrorCode:
			return errors.Conflict.
				Explain("duplication of key").
				Wrap(err)
		case SerializationFailureErrorCode, DeadlockDetectedErrorCode:
			return ErrRetryable.Wrap(err)
		}
	} else if isSQLiteBusy(err) {
		return ErrRetryable.Wrap(err)
	}

	return err
}

// IsDuplicateKey reports whether err is a unique constraint violation.
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == DuplicateKeyErrorCode
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsRetryable reports whether the transaction that produced err may be retried.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == SerializationFailureErrorCode || pgErr.Code == DeadlockDetectedErrorCode
	}
	var e *errors.Error
	if errors.As(err, &e) && e.Kind == errors.KindConflict && e.Message == ErrRetryable.Message {
		return true
	}
	return isSQLiteBusy(err)
}

func isSQLiteBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
