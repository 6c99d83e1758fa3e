package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/tokenledger/pkg/metrics"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate creates or updates the ledger schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping checks that the database answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ReportPoolStats samples connection pool usage into prometheus until ctx is done.
func ReportPoolStats(ctx context.Context, db *gorm.DB, name string, every time.Duration, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("Pool stats unavailable", zap.Error(err))
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := sqlDB.Stats()
			metrics.DBOpenConns.WithLabelValues(name).Set(float64(stats.OpenConnections))
			metrics.DBInUseConns.WithLabelValues(name).Set(float64(stats.InUse))
		}
	}
}
