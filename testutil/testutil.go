package testutil

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/Aidin1998/tokenledger/internal/database"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB returns a migrated, private in-memory sqlite database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.NewSQLiteDB(dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Sale returns sale parameters for tests: 1000 tokens at 0.10 with curve and demand effects.
func Sale(id string) *models.Sale {
	return &models.Sale{
		ID:                id,
		Symbol:            "EDU",
		TotalSupply:       1000,
		BasePrice:         decimal.RequireFromString("0.10"),
		CurveSteepness:    decimal.NewFromInt(2),
		DemandSensitivity: decimal.RequireFromString("0.5"),
		TargetVelocity:    decimal.NewFromInt(1000),
		LastPrice:         decimal.RequireFromString("0.10"),
		Active:            true,
	}
}

// SeedWallet creates or overwrites a user's liquid balances.
func SeedWallet(t testing.TB, db *gorm.DB, userID uuid.UUID, settlement string, tokens int64) {
	t.Helper()
	now := time.Now().UTC()
	w := &models.UserWallet{
		ID:                uuid.New(),
		UserID:            userID,
		SettlementBalance: decimal.RequireFromString(settlement),
		TokenBalance:      tokens,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, db.WithContext(context.Background()).
		Where("user_id = ?", userID).Delete(&models.UserWallet{}).Error)
	require.NoError(t, db.Create(w).Error)
}

// SeedHolding creates a staked holding locked until lockedUntil (nil for unlocked).
func SeedHolding(t testing.TB, db *gorm.DB, saleID string, userID uuid.UUID, balance int64, lockedUntil *time.Time) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&models.UserTokenHolding{
		ID:          uuid.New(),
		SaleID:      saleID,
		UserID:      userID,
		Balance:     balance,
		LockedUntil: lockedUntil,
		CreatedAt:   now,
		UpdatedAt:   now,
	}).Error)
}

// Percentile returns the p-th percentile value from a slice of durations.
func Percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*p + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
