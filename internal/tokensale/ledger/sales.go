package ledger

import (
	"context"
	"time"

	"github.com/Aidin1998/tokenledger/common/dbutil"
	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type saleRepo struct {
	db *gorm.DB
}

func (r *saleRepo) Ensure(ctx context.Context, defaults *models.Sale) (*models.Sale, error) {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(defaults).Error; err != nil {
		return nil, dbutil.WrapError(err)
	}
	return r.Get(ctx, defaults.ID)
}

func (r *saleRepo) Get(ctx context.Context, id string) (*models.Sale, error) {
	sale, err := dbutil.FindOne[models.Sale](r.db.WithContext(ctx).Where("id = ?", id))
	if err != nil {
		return nil, notFound(err, "sale %s not found", id)
	}
	return sale, nil
}

func (r *saleRepo) GetForUpdate(ctx context.Context, id string) (*models.Sale, error) {
	sale, err := dbutil.FindOne[models.Sale](dbutil.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
	if err != nil {
		return nil, notFound(err, "sale %s not found", id)
	}
	return sale, nil
}

func (r *saleRepo) AddSoldSupply(ctx context.Context, id string, delta int64) error {
	if delta <= 0 {
		return errors.InvalidArgument.Explain("supply delta must be positive")
	}
	res := r.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND sold_supply + ? <= total_supply", id, delta).
		Updates(map[string]interface{}{
			"sold_supply": gorm.Expr("sold_supply + ?", delta),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return dbutil.WrapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.InsufficientSupply.Explain("not enough supply left for %d tokens", delta)
	}
	return nil
}

func (r *saleRepo) SetLastPrice(ctx context.Context, id string, price decimal.Decimal) error {
	return r.update(ctx, id, map[string]interface{}{"last_price": price})
}

func (r *saleRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, id, map[string]interface{}{"active": active})
}

func (r *saleRepo) update(ctx context.Context, id string, values map[string]interface{}) error {
	values["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Sale{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return dbutil.WrapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NotFound.Explain("sale %s not found", id)
	}
	return nil
}

// notFound replaces a bare NotFound with a descriptive one and passes other errors through.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, errors.NotFound) {
		return errors.NotFound.Explain(format, args...)
	}
	return err
}
