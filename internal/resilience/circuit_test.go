package resilience

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transportDown() error {
	return NewTransientError(eris.New("upstream returned status 503"), http.StatusServiceUnavailable)
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerOpensAfterConsecutiveTransportFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	for range 3 {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return transportDown()
		})
	}
	require.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Fatal("open circuit must not reach the upstream")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerIgnoresDomainErrors(t *testing.T) {
	// A bad address or a denied key is the caller's problem, not upstream
	// health. Those must never stop traffic to a working upstream.
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	for range 10 {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return eris.New("geocode: address not found")
		})
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerSuccessResetsFailureRun(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	for range 2 {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return transportDown()
		})
	}
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error {
		return nil
	}))

	// The run restarts: two more failures must not open the circuit.
	for range 2 {
		_ = cb.Execute(context.Background(), func(context.Context) error {
			return transportDown()
		})
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenProbeRecovers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     30 * time.Second,
		Clock:            clock,
	})

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return transportDown()
	})
	require.Equal(t, CircuitOpen, cb.State())

	clock.Advance(30 * time.Second)
	require.Equal(t, CircuitHalfOpen, cb.State())

	// One successful probe closes the circuit again.
	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error {
		return nil
	}))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		Clock:            clock,
	})

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return transportDown()
	})
	clock.Advance(time.Minute)

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return transportDown()
	})
	require.Equal(t, CircuitOpen, cb.State())

	// The failed probe restarts the full timeout.
	clock.Advance(30 * time.Second)
	err := cb.Execute(context.Background(), func(context.Context) error {
		t.Fatal("circuit must stay open until the timeout elapses again")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	type change struct{ from, to CircuitState }
	var changes []change
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			changes = append(changes, change{from, to})
		},
	})

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return transportDown()
	})
	require.Equal(t, []change{{CircuitClosed, CircuitOpen}}, changes)
}

func TestExecuteValCarriesResultThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	body, err := ExecuteVal(context.Background(), cb, func(context.Context) ([]byte, error) {
		return []byte(`{"status":"OK"}`), nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK"}`, string(body))
}

func TestServiceBreakersShareTripStatePerUpstream(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 2})

	// Two clients of the same upstream see the same breaker, so their
	// failures pool toward one threshold.
	geocoder := sb.Get("google")
	reviews := sb.Get("google")
	require.Same(t, geocoder, reviews)

	_ = geocoder.Execute(context.Background(), func(context.Context) error {
		return transportDown()
	})
	_ = reviews.Execute(context.Background(), func(context.Context) error {
		return transportDown()
	})
	assert.Equal(t, CircuitOpen, geocoder.State())

	// A different upstream keeps its own state.
	assert.Equal(t, CircuitClosed, sb.Get("census").State())
}

func TestServiceBreakersStatesSnapshot(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1})
	sb.Get("census")
	google := sb.Get("google")

	_ = google.Execute(context.Background(), func(context.Context) error {
		return transportDown()
	})

	states := sb.States()
	assert.Equal(t, map[string]CircuitState{
		"census": CircuitClosed,
		"google": CircuitOpen,
	}, states)
}

func TestServiceBreakersConcurrentGet(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())

	var wg sync.WaitGroup
	results := make([]*CircuitBreaker, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = sb.Get("places")
		}()
	}
	wg.Wait()

	for _, cb := range results {
		require.Same(t, results[0], cb)
	}
}
