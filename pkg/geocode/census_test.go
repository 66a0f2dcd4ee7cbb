package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const censusMatchBody = `{
	"result": {
		"addressMatches": [{
			"coordinates": {"x": -77.03654, "y": 38.89768},
			"matchedAddress": "1600 PENNSYLVANIA AVE NW, WASHINGTON, DC, 20500",
			"addressComponents": {
				"fromAddress": "1600",
				"preDirection": "",
				"streetName": "PENNSYLVANIA",
				"suffixType": "AVE",
				"suffixDirection": "NW",
				"city": "WASHINGTON",
				"state": "DC",
				"zip": "20500"
			}
		}]
	}
}`

func newCensusTestProvider(srvURL string) *CensusProvider {
	return NewCensusProvider(
		WithCensusHTTPClient(newRewriteClient(srvURL, censusOneLineURL)),
		WithCensusRateLimit(1e6),
	)
}

func TestCensusGeocode_Match(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, censusMatchBody)
	}))
	defer srv.Close()

	p := newCensusTestProvider(srv.URL)
	outcome := p.Geocode(context.Background(), "1600 Pennsylvania Avenue NW, Washington, DC 20500", Options{})

	require.True(t, outcome.Success)
	assert.Equal(t, "census", outcome.Provider)
	require.Len(t, outcome.Results, 1)

	r := outcome.Results[0]
	assert.InDelta(t, 38.89768, r.Latitude, 0.0001)
	assert.InDelta(t, -77.03654, r.Longitude, 0.0001)
	assert.Equal(t, "1600 PENNSYLVANIA AVE NW, WASHINGTON, DC, 20500", r.FormattedAddress)
	assert.InDelta(t, 1.0, r.Confidence, 0.0001)
	assert.Equal(t, "DC", r.Components.State)
	assert.Equal(t, "United States", r.Components.Country)
	assert.Equal(t, "WASHINGTON", r.Components.City)
	assert.Equal(t, "20500", r.Components.PostalCode)
	assert.Equal(t, "1600 PENNSYLVANIA AVE NW", r.Components.Street)
	assert.NotEmpty(t, r.Raw)
}

func TestCensusGeocode_EmptyIsSoftMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	p := newCensusTestProvider(srv.URL)
	outcome := p.Geocode(context.Background(), "123 Nowhere St, Faketown, XX 00000", Options{})

	assert.True(t, outcome.Success)
	assert.Empty(t, outcome.Results)
	assert.Nil(t, outcome.Error)
	assert.False(t, outcome.HasResults())
}

func TestCensusGeocode_NonUSShortCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newCensusTestProvider(srv.URL)
	outcome := p.Geocode(context.Background(), "10 Downing Street, London, UK", Options{})

	assert.False(t, outcome.Success)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, ErrCodeNonUSAddress, outcome.Error.Code)
	assert.Equal(t, int32(0), calls.Load(), "non-US address must not reach the upstream")
}

func TestCensusGeocode_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newCensusTestProvider(srv.URL)
	outcome := p.Geocode(context.Background(), "1600 Pennsylvania Ave NW, Washington, DC 20500", Options{})

	assert.False(t, outcome.Success)
	require.NotNil(t, outcome.Error)
	assert.Equal(t, ErrCodeUpstream, outcome.Error.Code)
}

func TestCensusAvailable_ProbesUpstream(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, censusMatchBody)
	}))
	defer srv.Close()

	p := newCensusTestProvider(srv.URL)
	assert.True(t, p.Available(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCensusAvailable_FalseOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newCensusTestProvider(srv.URL)
	assert.False(t, p.Available(context.Background()))
}

func TestCensusGeocode_BoundsFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, censusMatchBody)
	}))
	defer srv.Close()

	p := newCensusTestProvider(srv.URL)

	inside := boundsAround(-77.03654, 38.89768, 0.1)
	outcome := p.Geocode(context.Background(), "1600 Pennsylvania Ave NW, Washington, DC 20500", Options{Bounds: inside})
	assert.Len(t, outcome.Results, 1)

	elsewhere := boundsAround(-122.4, 37.8, 0.1)
	outcome = p.Geocode(context.Background(), "1600 Pennsylvania Ave NW, Washington, DC 20500", Options{Bounds: elsewhere})
	assert.Empty(t, outcome.Results)
	assert.True(t, outcome.Success, "out-of-bounds matches degrade to a soft miss")
}
