// Package cost turns the usage counter into a spend estimate.
package cost

import "math"

const (
	CurrencyUSD = "USD"
	CurrencyMYR = "MYR"
)

// Pricing holds the per-generation rates.
type Pricing struct {
	BaseUSD  float64
	InputUSD float64
	TaxRate  float64
	FXRate   float64
}

// DefaultPricing is the try-on list price plus input token charge, 8% tax and
// the MYR exchange rate.
var DefaultPricing = Pricing{BaseUSD: 0.12, InputUSD: 0.0011, TaxRate: 0.08, FXRate: 3.95}

// Estimate is a spend estimate for count generations.
type Estimate struct {
	Count       int     `json:"count"`
	UnitUSD     float64 `json:"unit_usd"`
	SubtotalUSD float64 `json:"subtotal_usd"`
	TotalUSD    float64 `json:"total_usd"`
	TotalMYR    float64 `json:"total_myr"`
}

type Calculator struct {
	pricing Pricing
}

func NewCalculator(p Pricing) *Calculator {
	return &Calculator{pricing: p}
}

func (c *Calculator) Estimate(count int) Estimate {
	if count < 0 {
		count = 0
	}
	unit := c.pricing.BaseUSD + c.pricing.InputUSD
	subtotal := unit * float64(count)
	total := subtotal * (1 + c.pricing.TaxRate)
	return Estimate{
		Count:       count,
		UnitUSD:     unit,
		SubtotalUSD: round2(subtotal),
		TotalUSD:    round2(total),
		TotalMYR:    round2(total * c.pricing.FXRate),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
