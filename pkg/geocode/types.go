// Package geocode provides unified address geocoding across a free national
// geocoder (US Census) and a commercial fallback (Google), selected in
// cheapest-first priority order.
package geocode

import (
	"encoding/json"
	"time"
)

// Components holds the structured pieces of a matched address. Fields the
// upstream did not report are left empty, never defaulted.
type Components struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Result is one matched location in canonical form. Immutable once built.
type Result struct {
	Latitude         float64         `json:"latitude"`
	Longitude        float64         `json:"longitude"`
	FormattedAddress string          `json:"formattedAddress"`
	Confidence       float64         `json:"confidence"` // 0.0–1.0
	Components       Components      `json:"components"`
	Raw              json.RawMessage `json:"raw,omitempty"` // upstream payload, kept for diagnostics
}

// Error is a provider-level failure surfaced as data, never returned across
// the selection boundary as a Go error.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome is the canonical envelope every provider returns. Success with zero
// results means "provider understood the request but found nothing", which is
// distinct from a failure.
type Outcome struct {
	Success  bool     `json:"success"`
	Provider string   `json:"provider"`
	Results  []Result `json:"results"`
	Error    *Error   `json:"error,omitempty"`
}

// HasResults reports whether the outcome carries at least one match.
func (o *Outcome) HasResults() bool {
	return o != nil && o.Success && len(o.Results) > 0
}

// Failure builds a failed outcome for the named provider.
func Failure(provider, code, message string) *Outcome {
	return &Outcome{
		Success:  false,
		Provider: provider,
		Error:    &Error{Code: code, Message: message},
	}
}

// Empty builds a successful outcome with no matches.
func Empty(provider string) *Outcome {
	return &Outcome{Success: true, Provider: provider, Results: []Result{}}
}

// RateLimit is the advisory request budget a provider declares. It is not
// enforced by the registry; adapters apply their own limiters.
type RateLimit struct {
	Requests int
	Per      time.Duration
}

// Error codes shared across providers.
const (
	ErrCodeNonUSAddress       = "non_us_address"
	ErrCodeUpstream           = "upstream_error"
	ErrCodeProviderNotFound   = "provider_not_found"
	ErrCodeAllProvidersFailed = "all_providers_failed"
	ErrCodeMissingAPIKey      = "missing_api_key"
)
