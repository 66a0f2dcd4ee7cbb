package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/placegate/internal/resilience"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBatchURL   = "https://geocoding.geo.census.gov/geocoder/locations/addressbatch"
	censusBenchmark  = "Public_AR_Current"

	// probeAddress is a stable, always-geocodable address used by the live
	// availability probe.
	probeAddress = "1600 Pennsylvania Ave NW, Washington, DC 20500"
)

// censusOneLineResponse is the JSON response from the Census single-address API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress    string `json:"matchedAddress"`
	AddressComponents struct {
		FromAddress  string `json:"fromAddress"`
		PreDirection string `json:"preDirection"`
		StreetName   string `json:"streetName"`
		SuffixType   string `json:"suffixType"`
		SuffixDir    string `json:"suffixDirection"`
		City         string `json:"city"`
		State        string `json:"state"`
		Zip          string `json:"zip"`
	} `json:"addressComponents"`
}

// CensusProvider geocodes US addresses through the free Census Bureau
// one-line API. It refuses clearly non-US addresses before touching the
// network (see LooksDomestic).
type CensusProvider struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	batchRetry resilience.RetryConfig
}

// CensusOption configures the CensusProvider.
type CensusOption func(*CensusProvider)

// WithCensusHTTPClient sets a custom HTTP client (used by tests to rewrite
// the upstream URL).
func WithCensusHTTPClient(hc *http.Client) CensusOption {
	return func(p *CensusProvider) {
		p.httpClient = hc
	}
}

// WithCensusRateLimit sets the requests-per-second limit for Census calls.
func WithCensusRateLimit(rps float64) CensusOption {
	return func(p *CensusProvider) {
		p.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithCensusBatchRetry overrides the retry policy for batch uploads.
func WithCensusBatchRetry(cfg resilience.RetryConfig) CensusOption {
	return func(p *CensusProvider) {
		p.batchRetry = cfg
	}
}

// NewCensusProvider creates the free-tier provider.
func NewCensusProvider(opts ...CensusOption) *CensusProvider {
	batchRetry := resilience.DefaultRetryConfig()
	batchRetry.OnRetry = resilience.RetryLogger("census", "batch_geocode")
	p := &CensusProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
		batchRetry: batchRetry,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *CensusProvider) Name() string { return "census" }

// RateLimit implements Provider. Advisory only.
func (p *CensusProvider) RateLimit() RateLimit {
	return RateLimit{Requests: 50, Per: time.Second}
}

// Available implements Provider with a live probe: geocode a known-good
// address and report whether it matched. The probe is a real network call;
// a failed probe means "skip me this time", never a fatal condition.
func (p *CensusProvider) Available(ctx context.Context) bool {
	return p.Geocode(ctx, probeAddress, Options{}).HasResults()
}

// Geocode implements Provider. Country and language options are ignored —
// the Census geocoder is US-only and English-only. Bounds, if set, filter
// the returned matches.
func (p *CensusProvider) Geocode(ctx context.Context, address string, opts Options) *Outcome {
	if !LooksDomestic(address) {
		return Failure(p.Name(), ErrCodeNonUSAddress,
			"address does not appear to be in the United States; census geocoder only covers US addresses")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "census rate limit wait: "+err.Error())
	}

	params := url.Values{
		"address":   {address},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, censusOneLineURL+"?"+params.Encode(), nil)
	if err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "census build request: "+err.Error())
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "census request: "+err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Failure(p.Name(), ErrCodeUpstream, "census returned status "+resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "census read body: "+err.Error())
	}

	var censusResp censusOneLineResponse
	if err := json.Unmarshal(body, &censusResp); err != nil {
		return Failure(p.Name(), ErrCodeUpstream, "census parse response: "+err.Error())
	}

	if len(censusResp.Result.AddressMatches) == 0 {
		zap.L().Debug("census: no match", zap.String("address", address))
		return Empty(p.Name())
	}

	results := make([]Result, 0, len(censusResp.Result.AddressMatches))
	for _, m := range censusResp.Result.AddressMatches {
		results = append(results, censusResultFromMatch(m))
	}
	results = filterBounds(opts.Bounds, results)

	return &Outcome{Success: true, Provider: p.Name(), Results: results}
}

// censusResultFromMatch maps one upstream match into the canonical Result.
func censusResultFromMatch(m censusAddressMatch) Result {
	raw, _ := json.Marshal(m)

	c := Components{
		Street:     censusStreet(m),
		City:       m.AddressComponents.City,
		State:      m.AddressComponents.State,
		PostalCode: m.AddressComponents.Zip,
	}
	// The Census geocoder only serves US addresses, so country is known
	// from the upstream's scope rather than defaulted.
	c.Country = "United States"

	hasCoords := m.Coordinates.X != 0 || m.Coordinates.Y != 0
	return Result{
		Latitude:         m.Coordinates.Y,
		Longitude:        m.Coordinates.X,
		FormattedAddress: m.MatchedAddress,
		Confidence:       censusConfidence(m.MatchedAddress != "", hasCoords),
		Components:       c,
		Raw:              raw,
	}
}

// censusConfidence averages the presence of a formatted match address and a
// coordinate pair, capped at 1.0. The Census API does not score matches, so
// this completeness heuristic stands in.
func censusConfidence(hasAddress, hasCoords bool) float64 {
	score := 0.0
	if hasAddress {
		score += 1.0
	}
	if hasCoords {
		score += 1.0
	}
	score /= 2.0
	return min(score, 1.0)
}

func censusStreet(m censusAddressMatch) string {
	parts := []string{
		m.AddressComponents.FromAddress,
		m.AddressComponents.PreDirection,
		m.AddressComponents.StreetName,
		m.AddressComponents.SuffixType,
		m.AddressComponents.SuffixDir,
	}
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
