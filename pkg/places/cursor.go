package places

import (
	"encoding/base64"
	"encoding/json"
)

// Continuation tokens are base64url-encoded JSON records. An explicit mode
// discriminant selects the pagination strategy on decode; shape-sniffing is
// deliberately avoided so cross-mode or malformed tokens are rejected
// deterministically. Decoding never fails loudly: every malformed input
// degrades to "no cursor, start from page one".

const (
	cursorModeOffset = "offset"
	cursorModeChunk  = "chunk"
)

// offsetCursor resumes standard (pre-fetch) pagination.
type offsetCursor struct {
	Mode         string `json:"mode"`
	StartIndex   int    `json:"startIndex"`
	PlaceID      string `json:"placeId"`
	TotalReviews int    `json:"totalReviews"`
	MinRating    int    `json:"minRating"`
}

// chunkCursor resumes chunked (on-demand) pagination.
type chunkCursor struct {
	Mode           string       `json:"mode"`
	SortMethod     SortMethod   `json:"sortMethod"`     // last sort order used
	FetchedMethods []SortMethod `json:"fetchedMethods"` // sort orders already exhausted
	SeenKeys       []string     `json:"seenKeys"`       // identity keys already emitted
	MinRating      int          `json:"minRating"`
}

func encodeOffsetCursor(c offsetCursor) string {
	c.Mode = cursorModeOffset
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

func encodeChunkCursor(c chunkCursor) string {
	c.Mode = cursorModeChunk
	raw, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// decodeOffsetCursor returns the decoded state and whether it is usable.
// Invalid base64, invalid JSON, a wrong or missing mode, wrong-typed or
// negative numeric fields all yield ok=false.
func decodeOffsetCursor(token string) (offsetCursor, bool) {
	var c offsetCursor
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return offsetCursor{}, false
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return offsetCursor{}, false
	}
	if c.Mode != cursorModeOffset {
		return offsetCursor{}, false
	}
	if c.StartIndex < 0 || c.TotalReviews < 0 {
		return offsetCursor{}, false
	}
	if c.MinRating < 0 || c.MinRating > 5 {
		return offsetCursor{}, false
	}
	return c, true
}

// decodeChunkCursor returns the decoded state and whether it is usable,
// under the same leniency rules as decodeOffsetCursor.
func decodeChunkCursor(token string) (chunkCursor, bool) {
	var c chunkCursor
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return chunkCursor{}, false
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return chunkCursor{}, false
	}
	if c.Mode != cursorModeChunk {
		return chunkCursor{}, false
	}
	if c.MinRating < 0 || c.MinRating > 5 {
		return chunkCursor{}, false
	}
	for _, m := range c.FetchedMethods {
		if !validSortMethod(m) {
			return chunkCursor{}, false
		}
	}
	return c, true
}

func validSortMethod(m SortMethod) bool {
	for _, s := range sortOrder {
		if m == s {
			return true
		}
	}
	return false
}
