package circuitbreaker_test

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/peerex-network/peerex-daemon/pkg/circuitbreaker"
)

func TestCircuitBreakerTripsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.NewCircuitBreaker()
	boom := errors.New("backend unreachable")

	for i := 0; i <= circuitbreaker.MaxNumOfFailingRequests; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		require.Error(t, err)
	}

	// the breaker is open now and short-circuits without calling through
	called := false
	_, err := cb.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.False(t, called)
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	t.Parallel()

	cb := circuitbreaker.NewCircuitBreaker()
	for i := 0; i < 2*circuitbreaker.MaxNumOfFailingRequests; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, nil })
		require.NoError(t, err)
	}
	require.Equal(t, gobreaker.StateClosed, cb.State())
}
