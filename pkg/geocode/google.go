package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/placegate/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleMatch `json:"results"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
}

type googleMatch struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
}

// GoogleProvider geocodes through the paid Google Geocoding API. It sits
// after the free tier in the registry and accepts any address worldwide.
// Transport failures trip a circuit breaker so a broken upstream stops
// burning metered calls; domain responses (no match, denied key) never trip
// it.
type GoogleProvider struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
}

// GoogleOption configures the GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleHTTPClient sets a custom HTTP client (used by tests to rewrite
// the upstream URL).
func WithGoogleHTTPClient(hc *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.httpClient = hc
	}
}

// WithGoogleRateLimit sets the requests-per-second limit for Google calls.
func WithGoogleRateLimit(rps float64) GoogleOption {
	return func(p *GoogleProvider) {
		p.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithGoogleBreaker shares a circuit breaker with the other clients of the
// same upstream; without it the provider keeps a private one.
func WithGoogleBreaker(cb *resilience.CircuitBreaker) GoogleOption {
	return func(p *GoogleProvider) {
		p.breaker = cb
	}
}

// NewGoogleProvider creates the commercial provider.
func NewGoogleProvider(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return "google" }

// RateLimit implements Provider. Advisory only.
func (p *GoogleProvider) RateLimit() RateLimit {
	return RateLimit{Requests: 10, Per: time.Second}
}

// Available implements Provider: without a key the provider is never
// available; with one, a live probe decides.
func (p *GoogleProvider) Available(ctx context.Context) bool {
	if p.apiKey == "" {
		return false
	}
	if p.breaker.State() == resilience.CircuitOpen {
		return false
	}
	return p.Geocode(ctx, probeAddress, Options{}).HasResults()
}

// Geocode implements Provider.
func (p *GoogleProvider) Geocode(ctx context.Context, address string, opts Options) *Outcome {
	if p.apiKey == "" {
		return Failure(p.Name(), ErrCodeMissingAPIKey, "google api key not configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "google rate limit wait: "+err.Error())
	}

	params := url.Values{
		"address": {address},
		"key":     {p.apiKey},
	}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}
	if opts.Country != "" {
		params.Set("region", opts.Country)
	}
	if b := opts.Bounds; b != nil {
		// Google takes bounds as lat,lng|lat,lng (southwest|northeast).
		params.Set("bounds", fmt.Sprintf("%f,%f|%f,%f",
			b.Min(1), b.Min(0), b.Max(1), b.Max(0)))
	}

	body, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) ([]byte, error) {
		return p.fetch(ctx, googleGeocodeURL+"?"+params.Encode())
	})
	if err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "google request: "+err.Error())
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "google parse response: "+err.Error())
	}

	switch googleResp.Status {
	case "OK":
	case "ZERO_RESULTS":
		zap.L().Debug("google: no match", zap.String("address", address))
		return Empty(p.Name())
	default:
		msg := googleResp.Status
		if googleResp.ErrorMessage != "" {
			msg += ": " + googleResp.ErrorMessage
		}
		return Failure(p.Name(), ErrCodeUpstream, "google geocode failed: "+msg)
	}

	results := make([]Result, 0, len(googleResp.Results))
	for _, m := range googleResp.Results {
		results = append(results, googleResultFromMatch(m))
	}
	results = filterBounds(opts.Bounds, results)

	return &Outcome{Success: true, Provider: p.Name(), Results: results}
}

// fetch performs one upstream call. Only transport-level failures reach the
// breaker: a well-formed response counts as upstream health regardless of
// its geocoding status.
func (p *GoogleProvider) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: google returned status %s", resp.Status)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}
	return body, nil
}

// googleResultFromMatch maps one upstream match into the canonical Result.
// Google ranks matches internally, so any accepted match carries maximal
// confidence.
func googleResultFromMatch(m googleMatch) Result {
	raw, _ := json.Marshal(m)

	var c Components
	var streetNumber, route string
	for _, ac := range m.AddressComponents {
		for _, t := range ac.Types {
			switch t {
			case "street_number":
				streetNumber = ac.LongName
			case "route":
				route = ac.LongName
			case "locality", "postal_town":
				c.City = ac.LongName
			case "administrative_area_level_1":
				c.State = ac.LongName
			case "country":
				c.Country = ac.LongName
			case "postal_code":
				c.PostalCode = ac.LongName
			}
		}
	}
	switch {
	case streetNumber != "" && route != "":
		c.Street = streetNumber + " " + route
	case route != "":
		c.Street = route
	}

	return Result{
		Latitude:         m.Geometry.Location.Lat,
		Longitude:        m.Geometry.Location.Lng,
		FormattedAddress: m.FormattedAddress,
		Confidence:       1.0,
		Components:       c,
		Raw:              raw,
	}
}
