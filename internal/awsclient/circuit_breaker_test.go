package awsclient

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name: "test", FailureThreshold: 3, SuccessThreshold: 1, CooldownPeriod: time.Hour, MaxHalfOpen: 1,
	})

	failing := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return failing })
		require.ErrorIs(t, err, failing)
	}

	require.Equal(t, StateOpen, cb.State())
	err := cb.Execute(func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		Name: "test", FailureThreshold: 1, SuccessThreshold: 2, CooldownPeriod: time.Millisecond, MaxHalfOpen: 1,
	})

	failing := errors.New("boom")
	require.ErrorIs(t, cb.Execute(func() error { return failing }), failing)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Equal(t, StateClosed, cb.State())
}
