package main

import (
	"time"

	"github.com/sells-group/placegate/internal/config"
	"github.com/sells-group/placegate/internal/cost"
	"github.com/sells-group/placegate/internal/resilience"
	"github.com/sells-group/placegate/pkg/business"
	"github.com/sells-group/placegate/pkg/geocode"
	"github.com/sells-group/placegate/pkg/places"
)

// env wires the configured components together. Commands build only what
// they need via the individual constructors; serve builds everything.
type env struct {
	registry   *geocode.Registry
	selector   *geocode.Selector
	census     *geocode.CensusProvider
	aggregator *places.Aggregator
	costs      *cost.Calculator
	business   *business.Service
	breakers   *resilience.ServiceBreakers
}

func newEnv(cfg *config.Config) *env {
	// One breaker per upstream, shared by every client of that upstream,
	// so the geocoder and any future Google-backed client pool failures.
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())

	census := geocode.NewCensusProvider(
		geocode.WithCensusRateLimit(float64(cfg.Census.RateLimit)))
	google := geocode.NewGoogleProvider(cfg.Google.Key,
		geocode.WithGoogleRateLimit(float64(cfg.Google.RateLimit)),
		geocode.WithGoogleBreaker(breakers.Get("google")))

	// Registration order is priority order: free tier first.
	registry := geocode.NewRegistry()
	registry.Register(census)
	registry.Register(google)

	cache := geocode.NewOutcomeCache(time.Duration(cfg.Census.CacheTTLHours) * time.Hour)
	selector := geocode.NewSelector(registry, geocode.WithOutcomeCache(cache))

	placesClient := places.NewClient(cfg.Google.Key,
		places.WithBreaker(breakers.Get("places")))
	aggregator := places.NewAggregator(placesClient,
		places.WithCacheTTL(time.Duration(cfg.Reviews.CacheTTLHours)*time.Hour),
		places.WithPageSizes(cfg.Reviews.PageSize, cfg.Reviews.MaxPageSize))

	return &env{
		registry:   registry,
		selector:   selector,
		census:     census,
		aggregator: aggregator,
		costs:      cost.NewCalculator(costRates(cfg.Cost)),
		business: business.NewService(
			cfg.Business.ClientID, cfg.Business.ClientSecret, cfg.Business.RedirectURL),
		breakers: breakers,
	}
}

// costRates maps the config bands onto the calculator's rate table, falling
// back to the defaults when none are configured.
func costRates(c config.CostConfig) cost.Rates {
	if len(c.Bands) == 0 {
		r := cost.DefaultRates()
		if c.Currency != "" {
			r.Currency = c.Currency
		}
		return r
	}
	r := cost.Rates{Currency: c.Currency}
	for _, b := range c.Bands {
		r.Bands = append(r.Bands, cost.Band{MaxKm: b.MaxKm, Cost: b.Cost})
	}
	return r
}
