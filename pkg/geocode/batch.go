package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placegate/internal/resilience"
)

// BatchAddress is one row submitted to the Census batch geocoder.
type BatchAddress struct {
	ID      string // optional correlation id; row index when empty
	Street  string
	City    string
	State   string
	ZipCode string
}

// BatchGeocode geocodes up to 10,000 addresses in one call against the free
// upstream's batch endpoint. Unlike single-address resolution there is no
// commercial fallback: the batch surface exists to keep bulk work on the
// free tier. Per-row misses come back as unmatched results, not errors.
func (p *CensusProvider) BatchGeocode(ctx context.Context, addrs []BatchAddress) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch rate limit")
	}

	// Upload format: id,street,city,state,zip — one row per address.
	var csv strings.Builder
	idToIdx := make(map[string]int, len(addrs))
	for i, addr := range addrs {
		id := addr.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		idToIdx[id] = i
		fmt.Fprintf(&csv, "%s,%s,%s,%s,%s\n", id, addr.Street, addr.City, addr.State, addr.ZipCode)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("benchmark", censusBenchmark); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write benchmark")
	}
	part, err := writer.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch create form file")
	}
	if _, err := part.Write([]byte(csv.String())); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write csv")
	}
	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch close writer")
	}

	// The batch endpoint sheds load under pressure; retry transient
	// failures before giving up on the whole upload.
	payload := buf.Bytes()
	contentType := writer.FormDataContentType()
	var body []byte
	err = resilience.Do(ctx, p.batchRetry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, censusBatchURL, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "geocode: census batch build request")
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "geocode: census batch request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("geocode: census batch returned status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "geocode: census batch read body")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseCensusBatchResponse(string(body), idToIdx, len(addrs))
}

// parseCensusBatchResponse parses the Census batch CSV response.
// Format: "id","input address","Match","Exact/Non_Exact","matched address","lon,lat",tigerlineid,side
func parseCensusBatchResponse(body string, idToIdx map[string]int, total int) ([]Result, error) {
	results := make([]Result, total)

	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := splitCSVLine(line)
		if len(fields) < 6 {
			continue
		}

		id := strings.Trim(fields[0], "\"")
		idx, ok := idToIdx[id]
		if !ok {
			continue
		}

		matchType := strings.Trim(fields[2], "\"")
		if !strings.EqualFold(matchType, "Match") {
			continue // leave the zero Result: no coordinates, zero confidence
		}

		coords := strings.Trim(fields[5], "\"")
		lon, lat, parseErr := parseCensusCoords(coords)
		if parseErr != nil {
			continue
		}

		matched := strings.Trim(fields[4], "\"")
		raw, _ := json.Marshal(map[string]string{"line": line})
		results[idx] = Result{
			Latitude:         lat,
			Longitude:        lon,
			FormattedAddress: matched,
			Confidence:       censusConfidence(matched != "", true),
			Components:       Components{Country: "United States"},
			Raw:              raw,
		}
	}

	return results, nil
}

// parseCensusCoords parses "lon,lat" from a Census batch response field.
func parseCensusCoords(coords string) (lon, lat float64, err error) {
	parts := strings.SplitN(coords, ",", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("geocode: invalid census coords %q", coords)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lat")
	}
	return lon, lat, nil
}

// splitCSVLine splits a CSV line handling quoted fields.
func splitCSVLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}
