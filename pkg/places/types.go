// Package places retrieves and aggregates place reviews from an upstream
// that only ever returns small, overlapping, non-deterministic slices of the
// full review set. Querying the same place under several sort orders and
// merging is the only way to surface more reviews; this package owns that
// merge, its deduplication, and both pagination strategies over the result.
package places

import (
	"encoding/json"

	"golang.org/x/text/language"
)

// SortMethod is an upstream review sort order.
type SortMethod string

// The three sort orders the upstream supports. Order here is the rotation
// order used by chunked pagination and the merge order of the aggregator.
const (
	SortMostRelevant  SortMethod = "most_relevant"
	SortNewest        SortMethod = "newest"
	SortHighestRating SortMethod = "highest_rating"
)

// sortOrder is the canonical rotation sequence.
var sortOrder = []SortMethod{SortMostRelevant, SortNewest, SortHighestRating}

// Review is one observed review in canonical form.
//
// The upstream assigns no stable review identifier, so (Author, PublishTime)
// is the de facto identity: two observations agreeing on both are treated as
// the same review. This is an acknowledged heuristic — it can collapse
// distinct reviews or split an edited repost — not a uniqueness guarantee.
type Review struct {
	Author         string          `json:"author"`
	AuthorPhotoURL string          `json:"authorPhotoUrl,omitempty"`
	Rating         int             `json:"rating"` // 1–5
	Text           string          `json:"text"`
	PublishTime    string          `json:"publishTime"` // ISO-8601
	RelativeTime   string          `json:"relativeTime,omitempty"`
	Language       string          `json:"language,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Key returns the identity key used for deduplication.
func (r Review) Key() string {
	return r.Author + "|" + r.PublishTime
}

// PlaceSummary is the upstream's own description of the place. ReviewCount
// is the upstream-reported aggregate and routinely exceeds the number of
// reviews actually retrievable.
type PlaceSummary struct {
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
	MapURL      string  `json:"mapUrl,omitempty"`
}

// Error mirrors the geocoding error envelope: failures are data.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pagination describes a page's position in its continuation chain. In
// standard mode every count is exact over the deduplicated, filtered set;
// in chunked mode TotalReviews is the upstream's estimate
// (TotalIsEstimate=true) and page counts are unknown.
type Pagination struct {
	CurrentPage     int    `json:"currentPage,omitempty"`
	TotalPages      int    `json:"totalPages,omitempty"`
	PageSize        int    `json:"pageSize"`
	TotalReviews    int    `json:"totalReviews"`
	TotalIsEstimate bool   `json:"totalIsEstimate,omitempty"`
	HasMoreReviews  bool   `json:"hasMoreReviews"`
	NextPageToken   string `json:"nextPageToken,omitempty"`
}

// ReviewPage is the canonical envelope returned by both pagination modes.
type ReviewPage struct {
	Success    bool          `json:"success"`
	Provider   string        `json:"provider"`
	Reviews    []Review      `json:"reviews"`
	Summary    *PlaceSummary `json:"summary,omitempty"`
	Pagination *Pagination   `json:"pagination,omitempty"`
	Error      *Error        `json:"error,omitempty"`
}

// PageOptions carries per-request review retrieval options.
type PageOptions struct {
	PageSize  int    // capped; default applies when zero
	Language  string // BCP 47, normalized before use
	MinRating int    // 1–5; zero means no filter
	PageToken string // opaque continuation cursor
}

// failurePage builds a failed review page.
func failurePage(provider, code, message string) *ReviewPage {
	return &ReviewPage{
		Success:  false,
		Provider: provider,
		Reviews:  []Review{},
		Error:    &Error{Code: code, Message: message},
	}
}

// Error codes used by this package.
const (
	ErrCodeUpstream       = "upstream_error"
	ErrCodeInvalidPlaceID = "invalid_place_id"
)

// normalizeLanguage canonicalizes a BCP 47 tag; unparseable tags collapse to
// "" so cache keys stay well-formed.
func normalizeLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	return parsed.String()
}
