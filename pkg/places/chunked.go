package places

import (
	"context"

	"go.uber.org/zap"
)

// GetReviewsChunked implements on-demand pagination: exactly one upstream
// fetch per call, rotating through the sort orders as earlier calls exhaust
// them. All continuation state — which sort orders have been tried and
// which identity keys have already been emitted — lives in the chunk
// cursor, so no merged set is ever pre-built or cached. Totals are
// therefore estimates only.
func (a *Aggregator) GetReviewsChunked(ctx context.Context, placeID string, opts PageOptions) *ReviewPage {
	if placeID == "" {
		return failurePage(ProviderName, ErrCodeInvalidPlaceID, "place id is required")
	}

	pageSize := a.clampPageSize(opts.PageSize)
	lang := normalizeLanguage(opts.Language)

	minRating := opts.MinRating
	var fetchedMethods []SortMethod
	seen := make(map[string]struct{})
	if cursor, ok := decodeChunkCursor(opts.PageToken); ok {
		minRating = cursor.MinRating
		fetchedMethods = cursor.FetchedMethods
		for _, k := range cursor.SeenKeys {
			seen[k] = struct{}{}
		}
	}

	// First sort order not yet tried; once all three have been, wrap back
	// around — the upstream may surface previously-unseen reviews even on a
	// repeated sort order, so exhaustion is not permanent.
	candidate, wrapped := nextSortMethod(fetchedMethods)
	if wrapped {
		fetchedMethods = nil
	}

	details, err := a.client.PlaceDetails(ctx, placeID, FetchOptions{Language: lang, Sort: candidate})
	if err != nil {
		zap.L().Warn("places: chunked fetch failed",
			zap.String("place_id", placeID),
			zap.String("sort", string(candidate)),
			zap.Error(err))
		return failurePage(ProviderName, ErrCodeUpstream,
			"review fetch failed for place "+placeID)
	}

	var page []Review
	leftover := 0
	for _, r := range details.Reviews {
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		if minRating > 0 && r.Rating < minRating {
			continue
		}
		if len(page) < pageSize {
			page = append(page, r)
			seen[key] = struct{}{}
		} else {
			// Unique but past the page boundary: it stays unemitted (and
			// out of seenKeys) so a later call can pick it up.
			leftover++
		}
	}

	fetchedMethods = append(fetchedMethods, candidate)
	hasMore := leftover > 0 || len(fetchedMethods) < len(sortOrder)

	pagination := &Pagination{
		PageSize:        pageSize,
		TotalReviews:    details.Summary.ReviewCount,
		TotalIsEstimate: true,
		HasMoreReviews:  hasMore,
	}
	if hasMore {
		pagination.NextPageToken = encodeChunkCursor(chunkCursor{
			SortMethod:     candidate,
			FetchedMethods: fetchedMethods,
			SeenKeys:       allSeenKeys(seen),
			MinRating:      minRating,
		})
	}

	summary := details.Summary
	if page == nil {
		page = []Review{}
	}
	return &ReviewPage{
		Success:    true,
		Provider:   ProviderName,
		Reviews:    page,
		Summary:    &summary,
		Pagination: pagination,
	}
}

// nextSortMethod picks the first sort order not yet in fetched, wrapping to
// the start of the rotation when every order has been tried.
func nextSortMethod(fetched []SortMethod) (SortMethod, bool) {
	tried := make(map[SortMethod]struct{}, len(fetched))
	for _, m := range fetched {
		tried[m] = struct{}{}
	}
	for _, m := range sortOrder {
		if _, ok := tried[m]; !ok {
			return m, false
		}
	}
	return sortOrder[0], true
}

func allSeenKeys(seen map[string]struct{}) []string {
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}
