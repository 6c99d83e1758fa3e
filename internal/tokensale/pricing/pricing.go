// Package pricing computes the live unit price of the sale token from supply
// consumption and recent trading volume.
package pricing

import (
	"time"

	"github.com/Aidin1998/tokenledger/pkg/models"
	"github.com/shopspring/decimal"
)

// PricePrecision is the number of decimal places of a quoted price.
const PricePrecision = 8

var (
	one               = decimal.NewFromInt(1)
	minPrice          = decimal.RequireFromString("0.0001")
	maxPrice          = decimal.NewFromInt(1000)
	maxSteepness      = decimal.NewFromInt(10)
	maxDemandMultiple = decimal.NewFromInt(3)
)

// Inputs is everything a quote depends on.
type Inputs struct {
	TotalSupply        int64
	SoldSupply         int64
	BasePrice          decimal.Decimal
	CurveSteepness     decimal.Decimal
	DemandSensitivity  decimal.Decimal
	TargetVelocity     decimal.Decimal
	RecentVolumeTokens int64
	Window             time.Duration
}

// InputsFromSale builds Inputs from a sale snapshot and the volume traded in window.
func InputsFromSale(s *models.Sale, recentVolume int64, window time.Duration) Inputs {
	return Inputs{
		TotalSupply:        s.TotalSupply,
		SoldSupply:         s.SoldSupply,
		BasePrice:          s.BasePrice,
		CurveSteepness:     s.CurveSteepness,
		DemandSensitivity:  s.DemandSensitivity,
		TargetVelocity:     s.TargetVelocity,
		RecentVolumeTokens: recentVolume,
		Window:             window,
	}
}

// Quote is a computed price with the factors that produced it.
type Quote struct {
	Price            decimal.Decimal `json:"price"`
	SoldRatio        decimal.Decimal `json:"sold_ratio"`
	SupplyMultiplier decimal.Decimal `json:"supply_multiplier"`
	DemandMultiplier decimal.Decimal `json:"demand_multiplier"`
}

// Compute returns the price for in. It has no side effects.
//
//	price = clamp(base * (1 + k*ratio^2) * clamp(1 + s*(v/target - 1), 1, 3), 0.0001, 1000)
func Compute(in Inputs) Quote {
	soldRatio := decimal.Zero
	if in.TotalSupply > 0 {
		soldRatio = decimal.NewFromInt(in.SoldSupply).Div(decimal.NewFromInt(in.TotalSupply))
	}
	steepness := clamp(in.CurveSteepness, decimal.Zero, maxSteepness)
	supplyMultiplier := one.Add(steepness.Mul(soldRatio).Mul(soldRatio))

	minutes := decimal.NewFromFloat(in.Window.Minutes())
	if !minutes.IsPositive() {
		minutes = one
	}
	perMinute := decimal.NewFromInt(in.RecentVolumeTokens).Div(minutes)
	target := in.TargetVelocity
	if target.LessThan(one) {
		target = one
	}
	demandRatio := perMinute.Div(target)
	demandMultiplier := clamp(one.Add(in.DemandSensitivity.Mul(demandRatio.Sub(one))), one, maxDemandMultiple)

	price := in.BasePrice.Mul(supplyMultiplier).Mul(demandMultiplier)
	price = clamp(price, minPrice, maxPrice).Round(PricePrecision)

	return Quote{
		Price:            price,
		SoldRatio:        soldRatio,
		SupplyMultiplier: supplyMultiplier,
		DemandMultiplier: demandMultiplier,
	}
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// TokensFor converts a settlement amount into whole tokens at price, rounding
// down. It returns the tokens and the settlement they actually cost.
func TokensFor(settlement, price decimal.Decimal) (int64, decimal.Decimal) {
	if !price.IsPositive() || !settlement.IsPositive() {
		return 0, decimal.Zero
	}
	tokens, _ := settlement.QuoRem(price, 0)
	if tokens.Sign() <= 0 {
		return 0, decimal.Zero
	}
	n := tokens.IntPart()
	return n, price.Mul(decimal.NewFromInt(n))
}

// Cost returns the settlement value of tokens at price.
func Cost(tokens int64, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(tokens))
}
