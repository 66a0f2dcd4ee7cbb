// Package cost estimates service charges from route distance. Pricing is a
// banded lookup, not a per-km formula: each band covers distances up to its
// MaxKm, and the final band is open-ended.
package cost

import "math"

const earthRadiusKm = 6371.0

// Band is one pricing tier. A zero MaxKm marks the open-ended final band.
type Band struct {
	MaxKm float64 `yaml:"max_km" mapstructure:"max_km"`
	Cost  float64 `yaml:"cost" mapstructure:"cost"`
}

// Rates holds the banded pricing configuration.
type Rates struct {
	Currency string `yaml:"currency" mapstructure:"currency"`
	Bands    []Band `yaml:"bands" mapstructure:"bands"`
}

// Calculator computes route costs from the configured bands.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate returns the charge for a route of the given length. Bands are
// scanned in order; the first whose MaxKm covers the distance wins, and the
// open-ended band catches everything past the last threshold.
func (c *Calculator) Estimate(distanceKm float64) float64 {
	if distanceKm < 0 {
		distanceKm = 0
	}
	for _, b := range c.rates.Bands {
		if b.MaxKm > 0 && distanceKm <= b.MaxKm {
			return b.Cost
		}
		if b.MaxKm == 0 {
			return b.Cost
		}
	}
	return 0
}

// Currency returns the configured currency code.
func (c *Calculator) Currency() string {
	return c.rates.Currency
}

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// DefaultRates returns the default pricing bands.
func DefaultRates() Rates {
	return Rates{
		Currency: "USD",
		Bands: []Band{
			{MaxKm: 5, Cost: 10.00},
			{MaxKm: 15, Cost: 18.00},
			{MaxKm: 50, Cost: 35.00},
			{MaxKm: 150, Cost: 75.00},
			{MaxKm: 0, Cost: 120.00},
		},
	}
}
