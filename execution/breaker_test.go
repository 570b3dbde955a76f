package execution

import (
	"testing"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAfterThreeFailures(t *testing.T) {
	st := &core.BreakerState{}
	b := NewBreaker(st, nopLogger{})

	require.False(t, b.RecordFailure("ETH/USDT:USDT"))
	require.False(t, b.RecordFailure("ETH/USDT:USDT"))
	require.False(t, b.Open())

	require.True(t, b.RecordFailure("ETH/USDT:USDT"))
	require.True(t, b.Open())
	require.Greater(t, b.Remaining(), 9*time.Minute)
	require.LessOrEqual(t, b.Remaining(), 10*time.Minute)
	// Counter starts fresh for the next window
	require.Zero(t, st.Failures)
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	st := &core.BreakerState{}
	b := NewBreaker(st, nopLogger{})

	b.RecordFailure("ETH/USDT:USDT")
	b.RecordFailure("ETH/USDT:USDT")
	b.RecordSuccess()

	require.False(t, b.RecordFailure("ETH/USDT:USDT"))
	require.False(t, b.Open())
}

func TestBreakerExpiredHaltIsClosed(t *testing.T) {
	st := &core.BreakerState{OpenUntil: time.Now().Add(-time.Second)}
	b := NewBreaker(st, nopLogger{})
	require.False(t, b.Open())
	require.Zero(t, b.Remaining())
}
