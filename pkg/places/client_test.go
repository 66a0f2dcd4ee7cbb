package places

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/placegate/internal/resilience"
)

const placeDetailsBody = `{
	"displayName": {"text": "Blue Bottle Coffee"},
	"rating": 4.4,
	"userRatingCount": 812,
	"googleMapsUri": "https://maps.google.com/?cid=123",
	"reviews": [
		{
			"relativePublishTimeDescription": "a month ago",
			"rating": 5,
			"text": {"text": "Great pour-over.", "languageCode": "en"},
			"authorAttribution": {"displayName": "Ada", "photoUri": "https://example.com/ada.png"},
			"publishTime": "2026-07-14T09:30:00Z"
		},
		{
			"relativePublishTimeDescription": "two months ago",
			"rating": 3,
			"text": {"text": "Long line.", "languageCode": "en"},
			"authorAttribution": {"displayName": "Grace", "photoUri": ""},
			"publishTime": "2026-06-02T17:05:00Z"
		}
	]
}`

func TestClientPlaceDetails(t *testing.T) {
	var gotPath, gotQuery, gotKey, gotMask string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-Goog-Api-Key")
		gotMask = r.Header.Get("X-Goog-FieldMask")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(placeDetailsBody)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	details, err := client.PlaceDetails(context.Background(), "ChIJabc123", FetchOptions{
		Language: "en",
		Sort:     SortNewest,
	})
	require.NoError(t, err)

	assert.Equal(t, "/places/ChIJabc123", gotPath)
	assert.Contains(t, gotQuery, "languageCode=en")
	assert.Contains(t, gotQuery, "reviewsSort=newest")
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, fieldMask, gotMask)

	assert.Equal(t, "Blue Bottle Coffee", details.Summary.Name)
	assert.InDelta(t, 4.4, details.Summary.Rating, 0.001)
	assert.Equal(t, 812, details.Summary.ReviewCount)
	assert.Equal(t, "https://maps.google.com/?cid=123", details.Summary.MapURL)

	require.Len(t, details.Reviews, 2)
	first := details.Reviews[0]
	assert.Equal(t, "Ada", first.Author)
	assert.Equal(t, 5, first.Rating)
	assert.Equal(t, "Great pour-over.", first.Text)
	assert.Equal(t, "2026-07-14T09:30:00Z", first.PublishTime)
	assert.Equal(t, "a month ago", first.RelativeTime)
	assert.Equal(t, "en", first.Language)
	assert.Equal(t, "Ada|2026-07-14T09:30:00Z", first.Key())
	assert.NotEmpty(t, first.Raw)
}

func TestClientPlaceDetailsEmptyID(t *testing.T) {
	client := NewClient("test-key")
	_, err := client.PlaceDetails(context.Background(), "", FetchOptions{})
	require.Error(t, err)
}

func TestClientDoesNotRetryDomainErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error": {"status": "NOT_FOUND"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}))
	_, err := client.PlaceDetails(context.Background(), "missing", FetchOptions{})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a 404 is not transient and must not be retried")
}

func TestClientRetriesTransientFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(placeDetailsBody)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}))
	details, err := client.PlaceDetails(context.Background(), "ChIJabc123", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "Blue Bottle Coffee", details.Summary.Name)
}

func TestClientSharedBreakerShortCircuits(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// Another client of the same upstream already tripped the shared breaker.
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Execute(context.Background(), func(context.Context) error {
		return resilience.NewTransientError(assert.AnError, http.StatusServiceUnavailable)
	})
	require.Equal(t, resilience.CircuitOpen, cb.State())

	client := NewClient("test-key", WithBaseURL(srv.URL), WithBreaker(cb))
	_, err := client.PlaceDetails(context.Background(), "ChIJabc123", FetchOptions{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Zero(t, calls, "open circuit must not reach the upstream")
}
