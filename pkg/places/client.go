package places

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placegate/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// fieldMask lists the place fields the gateway consumes. Requesting less
// keeps the per-call cost down.
const fieldMask = "displayName,rating,userRatingCount,googleMapsUri,reviews"

// PlaceDetails is one upstream fetch: the place summary plus whatever small
// review slice the upstream chose to return for the requested sort order.
type PlaceDetails struct {
	Summary PlaceSummary
	Reviews []Review
}

// FetchOptions controls a single upstream place-details call.
type FetchOptions struct {
	Language string
	Sort     SortMethod
}

// Client fetches place details with reviews from the upstream review API.
type Client interface {
	PlaceDetails(ctx context.Context, placeID string, opts FetchOptions) (*PlaceDetails, error)
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy for transient upstream failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker shares a circuit breaker with the other clients of the same
// upstream; without it the client keeps a private one.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a review-upstream client.
func NewClient(apiKey string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("places", "place_details")
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// upstream wire types.

type placeResponse struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	Rating          float64         `json:"rating"`
	UserRatingCount int             `json:"userRatingCount"`
	GoogleMapsURI   string          `json:"googleMapsUri"`
	Reviews         []reviewPayload `json:"reviews"`
}

type reviewPayload struct {
	RelativePublishTimeDescription string `json:"relativePublishTimeDescription"`
	Rating                         int    `json:"rating"`
	Text                           struct {
		Text         string `json:"text"`
		LanguageCode string `json:"languageCode"`
	} `json:"text"`
	AuthorAttribution struct {
		DisplayName string `json:"displayName"`
		PhotoURI    string `json:"photoUri"`
	} `json:"authorAttribution"`
	PublishTime string `json:"publishTime"`
}

// PlaceDetails fetches one sort order's review slice. Transient upstream
// failures (network, 429, 5xx) are retried and count toward the circuit
// breaker; domain errors (bad place id, denied key) do neither.
func (c *httpClient) PlaceDetails(ctx context.Context, placeID string, opts FetchOptions) (*PlaceDetails, error) {
	if placeID == "" {
		return nil, eris.New("places: empty place id")
	}

	params := url.Values{}
	if opts.Language != "" {
		params.Set("languageCode", opts.Language)
	}
	if opts.Sort != "" {
		params.Set("reviewsSort", string(opts.Sort))
	}
	reqURL := c.baseURL + "/places/" + url.PathEscape(placeID)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*PlaceDetails, error) {
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*PlaceDetails, error) {
			return c.fetch(ctx, reqURL)
		})
	})
}

func (c *httpClient) fetch(ctx context.Context, reqURL string) (*PlaceDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var pr placeResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}

	details := &PlaceDetails{
		Summary: PlaceSummary{
			Name:        pr.DisplayName.Text,
			Rating:      pr.Rating,
			ReviewCount: pr.UserRatingCount,
			MapURL:      pr.GoogleMapsURI,
		},
		Reviews: make([]Review, 0, len(pr.Reviews)),
	}
	for _, rp := range pr.Reviews {
		raw, _ := json.Marshal(rp)
		details.Reviews = append(details.Reviews, Review{
			Author:         rp.AuthorAttribution.DisplayName,
			AuthorPhotoURL: rp.AuthorAttribution.PhotoURI,
			Rating:         rp.Rating,
			Text:           rp.Text.Text,
			PublishTime:    rp.PublishTime,
			RelativeTime:   rp.RelativePublishTimeDescription,
			Language:       rp.Text.LanguageCode,
			Raw:            raw,
		})
	}
	return details, nil
}
