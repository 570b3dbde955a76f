package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeriesLast(t *testing.T) {
	s := Series[float64]{1, 2, 3}
	require.Equal(t, 3.0, s.Last(0))
	require.Equal(t, 1.0, s.Last(2))
}

func TestSeriesLastValues(t *testing.T) {
	s := Series[float64]{1, 2, 3, 4}
	require.Equal(t, Series[float64]{3, 4}, s.LastValues(2))
	// Shorter series are returned whole
	require.Equal(t, s, s.LastValues(10))
}

func TestSeriesMinMax(t *testing.T) {
	s := Series[float64]{3, 1, 4, 1.5}
	require.Equal(t, 1.0, s.Min())
	require.Equal(t, 4.0, s.Max())
}

func TestSeriesCrossover(t *testing.T) {
	fast := Series[float64]{-1, 1}
	slow := Series[float64]{0, 0}
	require.True(t, fast.Crossover(slow))
	require.False(t, fast.Crossunder(slow))

	require.True(t, Series[float64]{1, -1}.Crossunder(slow))
	// Already above: no fresh cross
	require.False(t, Series[float64]{1, 2}.Crossover(slow))
}
