package geocode

import (
	"context"

	"github.com/twpayne/go-geom"
)

// Options carries optional geocoding hints supplied by the caller.
type Options struct {
	// Country is an ISO 3166-1 alpha-2 bias hint. The free provider only
	// serves US addresses regardless; the commercial provider passes it
	// through as a region bias.
	Country string

	// Language is a BCP 47 tag for localized formatted addresses.
	Language string

	// Bounds, when set, biases the upstream query and filters returned
	// results to matches inside the box (XY layout, lng/lat order).
	Bounds *geom.Bounds
}

// Provider is a single geocoding backend. All implementations translate their
// upstream's success/empty/error signals into the canonical Outcome so callers
// can treat every provider identically.
type Provider interface {
	// Name returns the unique provider identifier used for explicit selection.
	Name() string

	// Geocode resolves an address. Failures are represented in the returned
	// Outcome; the method itself never fails.
	Geocode(ctx context.Context, address string, opts Options) *Outcome

	// Available reports whether the provider can currently serve requests.
	// Implementations probe with a live known-good request, so this is a
	// network call; callers treat probe failure as "try the next provider".
	Available(ctx context.Context) bool

	// RateLimit returns the provider's declared request budget. Advisory only.
	RateLimit() RateLimit
}

// inBounds reports whether a result's coordinates fall inside b.
// A nil bounds accepts everything.
func inBounds(b *geom.Bounds, r Result) bool {
	if b == nil {
		return true
	}
	return b.OverlapsPoint(geom.XY, geom.Coord{r.Longitude, r.Latitude})
}

// filterBounds drops results outside the requested bounding box, preserving
// order. With no bounds set the slice is returned untouched.
func filterBounds(b *geom.Bounds, results []Result) []Result {
	if b == nil {
		return results
	}
	kept := results[:0:0]
	for _, r := range results {
		if inBounds(b, r) {
			kept = append(kept, r)
		}
	}
	return kept
}
