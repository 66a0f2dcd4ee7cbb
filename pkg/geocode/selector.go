package geocode

import (
	"context"

	"go.uber.org/zap"
)

// ResolveOptions extends Options with selection controls.
type ResolveOptions struct {
	// Provider pins resolution to the named provider. When set, no fallback
	// occurs: callers requesting a provider by name get that provider's
	// outcome, including its failures.
	Provider string

	Geocode Options
}

// Selector picks geocoding providers from a registry and runs the
// cheapest-first fallback loop. It never returns a Go error; every failure
// mode is represented in the Outcome.
type Selector struct {
	registry *Registry
	cache    *OutcomeCache
}

// SelectorOption configures the Selector.
type SelectorOption func(*Selector)

// WithOutcomeCache attaches a process-lifetime TTL cache for accepted
// outcomes keyed by normalized address and options.
func WithOutcomeCache(c *OutcomeCache) SelectorOption {
	return func(s *Selector) {
		s.cache = c
	}
}

// NewSelector creates a Selector over the given registry.
func NewSelector(registry *Registry, opts ...SelectorOption) *Selector {
	s := &Selector{registry: registry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectProvider returns the provider to use for an explicit name, or a
// not-found failure outcome. It performs no availability probe: pinning a
// provider means taking whatever that provider does.
func (s *Selector) SelectProvider(name string) (Provider, *Outcome) {
	p, ok := s.registry.Get(name)
	if !ok {
		return nil, Failure(name, ErrCodeProviderNotFound, "no provider registered under "+name)
	}
	return p, nil
}

// Resolve geocodes an address. With an explicit provider name it invokes
// exactly that provider. Otherwise it walks the registry in priority order:
// unavailable providers are skipped, a successful outcome with at least one
// result is accepted immediately, a successful-but-empty outcome is a soft
// miss, and a failure is recorded and skipped. Exhausting every provider
// yields a synthetic "multiple" outcome carrying the last recorded error.
func (s *Selector) Resolve(ctx context.Context, address string, opts ResolveOptions) *Outcome {
	if opts.Provider != "" {
		p, notFound := s.SelectProvider(opts.Provider)
		if notFound != nil {
			return notFound
		}
		return p.Geocode(ctx, address, opts.Geocode)
	}

	if s.cache != nil {
		if cached, ok := s.cache.get(address, opts.Geocode); ok {
			return cached
		}
	}

	var lastErr *Error
	for _, p := range s.registry.Providers() {
		if !p.Available(ctx) {
			zap.L().Debug("selector: provider unavailable, skipping",
				zap.String("provider", p.Name()))
			continue
		}

		outcome := p.Geocode(ctx, address, opts.Geocode)
		if outcome.HasResults() {
			if s.cache != nil {
				s.cache.put(address, opts.Geocode, outcome)
			}
			return outcome
		}
		if outcome.Success {
			// Understood but found nothing: soft miss, try the next tier.
			zap.L().Debug("selector: provider returned no matches",
				zap.String("provider", p.Name()),
				zap.String("address", address))
			continue
		}
		if outcome.Error != nil {
			lastErr = outcome.Error
			zap.L().Debug("selector: provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("code", outcome.Error.Code),
				zap.String("message", outcome.Error.Message))
		}
	}

	exhausted := &Outcome{Success: false, Provider: "multiple"}
	if lastErr != nil {
		exhausted.Error = lastErr
	} else {
		exhausted.Error = &Error{
			Code:    ErrCodeAllProvidersFailed,
			Message: "all providers failed to geocode the address",
		}
	}
	return exhausted
}
