package places

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// ProviderName tags every review page with its upstream source.
	ProviderName = "google"

	defaultPageSize = 5
	defaultMaxSize  = 20
	defaultCacheTTL = time.Hour
)

// Aggregator implements standard (pre-fetch) review pagination. A cold
// cache triggers three concurrent upstream fetches, one per sort order —
// the upstream returns only ~5 reviews per call with no real pagination, so
// varying the sort order is the only way to surface more. The merged,
// deduplicated set is cached per (placeID, language) for a fixed TTL and
// paged over with plain offset slices.
type Aggregator struct {
	client   Client
	clock    clockwork.Clock
	ttl      time.Duration
	pageSize int
	maxSize  int

	mu    sync.Mutex
	cache map[string]aggregateEntry
}

// aggregateEntry is an immutable cache value; refreshes replace it
// wholesale, never mutate it.
type aggregateEntry struct {
	reviews  []Review
	summary  PlaceSummary
	storedAt time.Time
}

// AggregatorOption configures the Aggregator.
type AggregatorOption func(*Aggregator)

// WithCacheTTL overrides the merged-set cache TTL.
func WithCacheTTL(ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.ttl = ttl
	}
}

// WithClock injects a clock, letting tests control TTL expiry.
func WithClock(clock clockwork.Clock) AggregatorOption {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

// WithPageSizes sets the default and maximum page sizes.
func WithPageSizes(def, maximum int) AggregatorOption {
	return func(a *Aggregator) {
		if def > 0 {
			a.pageSize = def
		}
		if maximum > 0 {
			a.maxSize = maximum
		}
	}
}

// NewAggregator creates an Aggregator over the given upstream client.
func NewAggregator(client Client, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		client:   client,
		clock:    clockwork.NewRealClock(),
		ttl:      defaultCacheTTL,
		pageSize: defaultPageSize,
		maxSize:  defaultMaxSize,
		cache:    make(map[string]aggregateEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetReviews returns one page of the merged, deduplicated review set.
// Failures are data on the returned page; the method never returns a Go
// error across this boundary.
func (a *Aggregator) GetReviews(ctx context.Context, placeID string, opts PageOptions) *ReviewPage {
	if placeID == "" {
		return failurePage(ProviderName, ErrCodeInvalidPlaceID, "place id is required")
	}

	pageSize := a.clampPageSize(opts.PageSize)
	lang := normalizeLanguage(opts.Language)

	// A malformed or cross-mode token degrades to "start from page one".
	startIndex := 0
	minRating := opts.MinRating
	if cursor, ok := decodeOffsetCursor(opts.PageToken); ok && cursor.PlaceID == placeID {
		startIndex = cursor.StartIndex
		minRating = cursor.MinRating
	}

	entry, errPage := a.lookupOrFetch(ctx, placeID, lang)
	if errPage != nil {
		return errPage
	}

	filtered := filterByRating(entry.reviews, minRating)
	total := len(filtered)

	endIndex := startIndex + pageSize
	if startIndex > total {
		startIndex = total
	}
	if endIndex > total {
		endIndex = total
	}

	pagination := &Pagination{
		CurrentPage:    startIndex/pageSize + 1,
		TotalPages:     (total + pageSize - 1) / pageSize,
		PageSize:       pageSize,
		TotalReviews:   total,
		HasMoreReviews: endIndex < total,
	}
	if pagination.HasMoreReviews {
		pagination.NextPageToken = encodeOffsetCursor(offsetCursor{
			StartIndex:   endIndex,
			PlaceID:      placeID,
			TotalReviews: total,
			MinRating:    minRating,
		})
	}

	summary := entry.summary
	return &ReviewPage{
		Success:    true,
		Provider:   ProviderName,
		Reviews:    filtered[startIndex:endIndex],
		Summary:    &summary,
		Pagination: pagination,
	}
}

// lookupOrFetch returns a fresh cache entry, fetching and merging all three
// sort orders when the cache is cold or expired.
func (a *Aggregator) lookupOrFetch(ctx context.Context, placeID, lang string) (aggregateEntry, *ReviewPage) {
	key := placeID + "|" + lang

	a.mu.Lock()
	entry, ok := a.cache[key]
	if ok && a.clock.Since(entry.storedAt) >= a.ttl {
		// Expired entries read as absent; eviction is lazy.
		delete(a.cache, key)
		ok = false
	}
	a.mu.Unlock()
	if ok {
		return entry, nil
	}

	// Plain Group rather than WithContext: one sort order failing must not
	// cancel its siblings, since a partial merge is still useful.
	fetched := make([]*PlaceDetails, len(sortOrder))
	var g errgroup.Group
	for i, sort := range sortOrder {
		g.Go(func() error {
			d, err := a.client.PlaceDetails(ctx, placeID, FetchOptions{Language: lang, Sort: sort})
			if err != nil {
				zap.L().Warn("places: sort-order fetch failed",
					zap.String("place_id", placeID),
					zap.String("sort", string(sort)),
					zap.Error(err))
				return err
			}
			fetched[i] = d
			return nil
		})
	}
	// Partial failures are tolerated: the merge proceeds over whatever
	// succeeded, and only a total wipeout fails the request.
	_ = g.Wait()

	merged, summary, any := mergeDetails(fetched)
	if !any {
		return aggregateEntry{}, failurePage(ProviderName, ErrCodeUpstream,
			"all review fetches failed for place "+placeID)
	}

	entry = aggregateEntry{reviews: merged, summary: summary, storedAt: a.clock.Now()}
	a.mu.Lock()
	a.cache[key] = entry
	a.mu.Unlock()
	return entry, nil
}

// mergeDetails concatenates the per-sort fetches in rotation order and
// deduplicates by identity key, preserving first-seen order. Merging is
// idempotent: feeding the same slices twice yields the same set.
func mergeDetails(fetched []*PlaceDetails) (merged []Review, summary PlaceSummary, any bool) {
	seen := make(map[string]struct{})
	for _, d := range fetched {
		if d == nil {
			continue
		}
		if !any {
			summary = d.Summary
			any = true
		}
		for _, r := range d.Reviews {
			key := r.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged, summary, any
}

// filterByRating applies the minimum-rating view filter to the merged set.
// The filter is a view concern over the canonical result, deliberately not
// an upstream query parameter.
func filterByRating(reviews []Review, minRating int) []Review {
	if minRating <= 0 {
		return reviews
	}
	kept := make([]Review, 0, len(reviews))
	for _, r := range reviews {
		if r.Rating >= minRating {
			kept = append(kept, r)
		}
	}
	return kept
}

func (a *Aggregator) clampPageSize(size int) int {
	switch {
	case size <= 0:
		return a.pageSize
	case size > a.maxSize:
		return a.maxSize
	default:
		return size
	}
}
