// Package marketdata records price ticks and OHLC candles after ledger
// mutations and serves them back to readers.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Aidin1998/tokenledger/common/errors"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/pkg/metrics"
	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Query bounds
const (
	MinInterval  = 60
	MaxInterval  = 86400
	MinLimit     = 10
	MaxLimit     = 2000
	MaxTickLimit = 1000
)

// Event is a ledger change to record. A zero Price means the price is
// recomputed from the committed sale state. SoldSupply is the supply the
// producing transaction committed; nil reads the current sale row.
type Event struct {
	SaleID           string
	Source           models.TickSource
	Price            decimal.Decimal
	SoldSupply       *int64
	VolumeTokens     int64
	VolumeSettlement decimal.Decimal
	At               time.Time
}

// Publisher receives every recorded tick.
type Publisher interface {
	Publish(ctx context.Context, tick *models.TokenPriceTick) error
}

// Service records and queries market data for one sale.
type Service struct {
	store      *ledger.Store
	quoter     *pricing.Quoter
	saleID     string
	intervals  []int
	maxRetries int
	publisher  Publisher
	logger     *zap.Logger
}

// NewService creates a market data service. intervals are the candle
// lengths in seconds written on every event.
func NewService(store *ledger.Store, quoter *pricing.Quoter, saleID string, intervals []int, maxRetries int, logger *zap.Logger) *Service {
	ivs := append([]int(nil), intervals...)
	sort.Ints(ivs)
	if len(ivs) == 0 {
		ivs = []int{MinInterval}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Service{
		store:      store,
		quoter:     quoter,
		saleID:     saleID,
		intervals:  ivs,
		maxRetries: maxRetries,
		logger:     logger.Named("marketdata"),
	}
}

// SetPublisher sets where recorded ticks are fanned out. nil disables publishing.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// Record appends a tick and folds it into every configured candle interval.
// It runs in its own transaction, retried on failure, and never touches the
// financial transaction that produced the event.
func (s *Service) Record(ctx context.Context, ev Event) (*models.TokenPriceTick, error) {
	if ev.SaleID == "" {
		ev.SaleID = s.saleID
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	var (
		tick *models.TokenPriceTick
		err  error
	)
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
			}
		}
		tick, err = s.record(ctx, ev)
		if err == nil {
			break
		}
		s.logger.Warn("Market data write failed",
			zap.Int("attempt", attempt+1),
			zap.String("source", string(ev.Source)),
			zap.Error(err))
	}
	if err != nil {
		metrics.RecorderFailures.Inc()
		return nil, fmt.Errorf("record market data: %w", err)
	}

	price, _ := tick.Price.Float64()
	metrics.LivePrice.Set(price)
	metrics.SoldSupply.Set(float64(tick.SoldSupply))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, tick); err != nil {
			s.logger.Warn("Failed to publish tick", zap.Error(err))
		}
	}
	return tick, nil
}

func (s *Service) record(ctx context.Context, ev Event) (*models.TokenPriceTick, error) {
	var tick *models.TokenPriceTick
	err := s.store.Transact(ctx, func(r *ledger.Repos) error {
		sale, err := r.Sales.Get(ctx, ev.SaleID)
		if err != nil {
			return err
		}
		price := ev.Price
		if !price.IsPositive() {
			q, err := s.quoter.Quote(ctx, r, sale)
			if err != nil {
				return err
			}
			price = q.Price
		}

		soldSupply := sale.SoldSupply
		if ev.SoldSupply != nil {
			soldSupply = *ev.SoldSupply
		}
		tick = &models.TokenPriceTick{
			SaleID:           sale.ID,
			Price:            price,
			SoldSupply:       soldSupply,
			VolumeTokens:     ev.VolumeTokens,
			VolumeSettlement: ev.VolumeSettlement,
			Source:           ev.Source,
			CreatedAt:        ev.At.UTC(),
		}
		if err := r.Ticks.Append(ctx, tick); err != nil {
			return err
		}
		if err := r.Sales.SetLastPrice(ctx, sale.ID, price); err != nil {
			return err
		}
		for _, iv := range s.intervals {
			if _, err := r.Candles.Upsert(ctx, ledger.CandleUpdate{
				SaleID:           sale.ID,
				BucketStart:      BucketStart(ev.At, iv),
				IntervalSeconds:  iv,
				Price:            price,
				VolumeTokens:     ev.VolumeTokens,
				VolumeSettlement: ev.VolumeSettlement,
			}); err != nil {
				return fmt.Errorf("candle %ds: %w", iv, err)
			}
		}
		return nil
	})
	return tick, err
}

// BucketStart floors t to a multiple of intervalSeconds since the Unix epoch.
func BucketStart(t time.Time, intervalSeconds int) time.Time {
	sec := t.Unix()
	iv := int64(intervalSeconds)
	floor := sec - sec%iv
	if sec < 0 && sec%iv != 0 {
		floor -= iv
	}
	return time.Unix(floor, 0).UTC()
}

// Ticks returns the newest ticks in ascending time order.
func (s *Service) Ticks(ctx context.Context, limit int) ([]models.TokenPriceTick, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > MaxTickLimit {
		limit = MaxTickLimit
	}
	return s.store.Repos().Ticks.Latest(ctx, s.saleID, limit)
}

// ClampCandleQuery bounds interval and limit to the supported ranges.
func ClampCandleQuery(intervalSeconds, limit int) (int, int) {
	if intervalSeconds < MinInterval {
		intervalSeconds = MinInterval
	}
	if intervalSeconds > MaxInterval {
		intervalSeconds = MaxInterval
	}
	if limit < MinLimit {
		limit = MinLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return intervalSeconds, limit
}

// Candles returns the newest candles of intervalSeconds in ascending bucket
// order. Stored intervals are read directly; others are rolled up from the
// smallest stored interval.
func (s *Service) Candles(ctx context.Context, intervalSeconds, limit int) ([]models.TokenCandle, error) {
	intervalSeconds, limit = ClampCandleQuery(intervalSeconds, limit)
	for _, iv := range s.intervals {
		if iv == intervalSeconds {
			return s.store.Repos().Candles.Latest(ctx, s.saleID, iv, limit)
		}
	}

	base := s.intervals[0]
	if intervalSeconds < base {
		return nil, errors.InvalidArgument.Explain("interval %ds is finer than the stored %ds candles", intervalSeconds, base)
	}
	intervalSeconds -= intervalSeconds % base
	perBucket := intervalSeconds / base
	need := limit * perBucket
	if need > MaxLimit*60 {
		need = MaxLimit * 60
	}
	baseCandles, err := s.store.Repos().Candles.Latest(ctx, s.saleID, base, need)
	if err != nil {
		return nil, err
	}
	rolled := Rollup(baseCandles, intervalSeconds)
	if len(rolled) > limit {
		rolled = rolled[len(rolled)-limit:]
	}
	return rolled, nil
}

// Rollup aggregates ascending candles into buckets of intervalSeconds.
func Rollup(candles []models.TokenCandle, intervalSeconds int) []models.TokenCandle {
	var out []models.TokenCandle
	for _, c := range candles {
		bucket := BucketStart(c.BucketStart, intervalSeconds)
		if n := len(out); n > 0 && out[n-1].BucketStart.Equal(bucket) {
			agg := &out[n-1]
			if c.High.GreaterThan(agg.High) {
				agg.High = c.High
			}
			if c.Low.LessThan(agg.Low) {
				agg.Low = c.Low
			}
			agg.Close = c.Close
			agg.VolumeTokens += c.VolumeTokens
			agg.VolumeSettlement = agg.VolumeSettlement.Add(c.VolumeSettlement)
			agg.TradeCount += c.TradeCount
			if c.UpdatedAt.After(agg.UpdatedAt) {
				agg.UpdatedAt = c.UpdatedAt
			}
			continue
		}
		c.BucketStart = bucket
		c.IntervalSeconds = intervalSeconds
		out = append(out, c)
	}
	return out
}
