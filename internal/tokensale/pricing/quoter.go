package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/pkg/models"
)

// Quoter prices a sale snapshot against the recent volume stored in the ledger.
type Quoter struct {
	window time.Duration
	now    func() time.Time
}

// NewQuoter creates a Quoter that looks back window for recent volume.
func NewQuoter(window time.Duration) *Quoter {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Quoter{window: window, now: func() time.Time { return time.Now().UTC() }}
}

// Window returns the demand look-back window.
func (q *Quoter) Window() time.Duration {
	return q.window
}

// RecentVolume sums ticked volume and in-flight purchase volume inside the window.
func (q *Quoter) RecentVolume(ctx context.Context, r *ledger.Repos, saleID string) (int64, error) {
	since := q.now().Add(-q.window)
	ticked, err := r.Ticks.VolumeSince(ctx, saleID, since)
	if err != nil {
		return 0, fmt.Errorf("tick volume: %w", err)
	}
	pending, err := r.Purchases.PendingVolumeSince(ctx, saleID, since)
	if err != nil {
		return 0, fmt.Errorf("pending volume: %w", err)
	}
	return ticked + pending, nil
}

// Quote prices sale using repositories r. When r is transaction-bound and
// sale was read under lock, the quote and the settlement share one snapshot.
func (q *Quoter) Quote(ctx context.Context, r *ledger.Repos, sale *models.Sale) (Quote, error) {
	volume, err := q.RecentVolume(ctx, r, sale.ID)
	if err != nil {
		return Quote{}, err
	}
	return Compute(InputsFromSale(sale, volume, q.window)), nil
}
