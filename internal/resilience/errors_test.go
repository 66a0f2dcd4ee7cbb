package resilience

import (
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped transient", NewTransientError(eris.New("upstream 503"), http.StatusServiceUnavailable), true},
		{"transient below eris wrap", eris.Wrap(NewTransientError(eris.New("upstream 429"), 429), "places: fetch"), true},
		{"network timeout", &net.DNSError{IsTimeout: true}, true},
		{"connection refused", eris.Wrap(syscall.ECONNREFUSED, "geocode: dial"), true},
		{"connection reset", eris.Wrap(syscall.ECONNRESET, "geocode: read"), true},
		{"stringly transport failure", eris.New("Get \"https://example.com\": tls handshake timeout"), true},
		{"domain refusal", eris.New("geocode: request denied"), false},
		{"bad place id", eris.New("places: unexpected status 404: not found"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestTransientErrorUnwraps(t *testing.T) {
	cause := eris.New("upstream 502")
	te := NewTransientError(cause, http.StatusBadGateway)

	assert.Equal(t, cause.Error(), te.Error())
	assert.ErrorIs(t, te, cause)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	retryable := []int{408, 429, 500, 502, 503, 504}
	for _, code := range retryable {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}

	terminal := []int{200, 301, 400, 401, 403, 404, 422, 501}
	for _, code := range terminal {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
