package trader

import (
	"testing"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/signal"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(args ...interface{})                   {}
func (nopLogger) Debugf(format string, args ...interface{})   {}
func (nopLogger) Info(args ...interface{})                    {}
func (nopLogger) Infof(format string, args ...interface{})    {}
func (nopLogger) Warn(args ...interface{})                    {}
func (nopLogger) Warnf(format string, args ...interface{})    {}
func (nopLogger) Error(args ...interface{})                   {}
func (nopLogger) Errorf(format string, args ...interface{})   {}
func (l nopLogger) WithFields(fields core.Fields) core.Logger { return l }

func newBareTrader(cfg Config) *Trader {
	return &Trader{
		cfg: cfg,
		log: nopLogger{},
		st:  &core.SymbolState{Symbol: cfg.Symbol.Symbol},
	}
}

func longPos(entry float64) *core.Position {
	return &core.Position{
		Side:       core.PositionLong,
		EntryPrice: entry,
		Contracts:  1,
		CoinSize:   1,
	}
}

func shortPos(entry float64) *core.Position {
	return &core.Position{
		Side:       core.PositionShort,
		EntryPrice: entry,
		Contracts:  1,
		CoinSize:   1,
	}
}

func TestHardStopHit(t *testing.T) {
	dr := &core.DynamicRisk{StopLoss: 95, TakeProfit: 120}

	_, hit := hardStopHit(longPos(100), dr, 100)
	require.False(t, hit)

	reason, hit := hardStopHit(longPos(100), dr, 94.5)
	require.True(t, hit)
	require.Contains(t, reason, "stop-loss")

	reason, hit = hardStopHit(longPos(100), dr, 121)
	require.True(t, hit)
	require.Contains(t, reason, "take-profit")

	// Short direction inverts both comparisons
	drShort := &core.DynamicRisk{StopLoss: 105, TakeProfit: 80}
	_, hit = hardStopHit(shortPos(100), drShort, 100)
	require.False(t, hit)
	_, hit = hardStopHit(shortPos(100), drShort, 106)
	require.True(t, hit)
	_, hit = hardStopHit(shortPos(100), drShort, 79)
	require.True(t, hit)
}

func TestHardStopUnsetLevelsNeverHit(t *testing.T) {
	dr := &core.DynamicRisk{}
	_, hit := hardStopHit(longPos(100), dr, 1)
	require.False(t, hit)
}

func trailFrame(lows, highs []float64) *core.IndicatorFrame {
	n := len(lows)
	frame := &core.IndicatorFrame{
		Time:  make([]time.Time, n),
		Open:  make(core.Series[float64], n),
		High:  append(core.Series[float64]{}, highs...),
		Low:   append(core.Series[float64]{}, lows...),
		Close: make(core.Series[float64], n),
	}
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range frame.Time {
		frame.Time[i] = t0.Add(time.Duration(i) * 15 * time.Minute)
	}
	return frame
}

func TestAdjustHardStopArmsBreakevenOnce(t *testing.T) {
	tr := newBareTrader(Config{})
	dr := &core.DynamicRisk{StopLoss: 90}
	frame := trailFrame([]float64{80, 80, 80}, []float64{101, 101, 101})

	tr.adjustHardStop(frame, longPos(100), dr, 0.025)
	require.True(t, dr.BreakevenSet)
	require.InDelta(t, 100*1.001, dr.StopLoss, 1e-9)
}

func TestAdjustHardStopBelowTriggerDoesNothing(t *testing.T) {
	tr := newBareTrader(Config{})
	dr := &core.DynamicRisk{StopLoss: 90}
	frame := trailFrame([]float64{95, 95, 95}, []float64{101, 101, 101})

	tr.adjustHardStop(frame, longPos(100), dr, 0.01)
	require.False(t, dr.BreakevenSet)
	require.Equal(t, 90.0, dr.StopLoss)
}

func TestAdjustHardStopTrailsBarLows(t *testing.T) {
	tr := newBareTrader(Config{})
	dr := &core.DynamicRisk{BreakevenSet: true, StopLoss: 100.1}
	frame := trailFrame([]float64{103, 104, 102.5}, []float64{106, 107, 106})

	tr.adjustHardStop(frame, longPos(100), dr, 0.05)
	// Stop rises to the lowest of the last three bar lows
	require.Equal(t, 102.5, dr.StopLoss)

	// The trail never loosens
	lower := trailFrame([]float64{101, 101, 101}, []float64{106, 106, 106})
	tr.adjustHardStop(lower, longPos(100), dr, 0.05)
	require.Equal(t, 102.5, dr.StopLoss)
}

func TestAdjustHardStopTrailsShortSide(t *testing.T) {
	tr := newBareTrader(Config{})
	dr := &core.DynamicRisk{BreakevenSet: true, StopLoss: 99.9}
	frame := trailFrame([]float64{92, 93, 92}, []float64{96, 97.5, 96})

	tr.adjustHardStop(frame, shortPos(100), dr, 0.05)
	require.Equal(t, 97.5, dr.StopLoss)
}

func TestAnalysisDueThrottle(t *testing.T) {
	tr := newBareTrader(Config{AIInterval: 5 * time.Minute})
	frame := trailFrame([]float64{100}, []float64{100})
	now := time.Now()

	tr.st.LastAnalysis = now.Add(-time.Minute)
	require.False(t, tr.analysisDue(now, frame, false))

	tr.st.LastAnalysis = now.Add(-6 * time.Minute)
	require.True(t, tr.analysisDue(now, frame, false))

	// Surge bypasses the throttle entirely
	tr.st.LastAnalysis = now.Add(-time.Second)
	require.True(t, tr.analysisDue(now, frame, true))
}

func TestAnalysisDueSlack(t *testing.T) {
	// One second short of the interval is still due under the slack
	tr := newBareTrader(Config{AIInterval: 5 * time.Minute})
	frame := trailFrame([]float64{100}, []float64{100})
	now := time.Now()

	tr.st.LastAnalysis = now.Add(-5*time.Minute + time.Second)
	require.True(t, tr.analysisDue(now, frame, false))
}

func TestAnalysisDueBarCloseGate(t *testing.T) {
	tr := newBareTrader(Config{AIInterval: time.Minute, BarClose: true})
	frame := trailFrame([]float64{100, 100}, []float64{100, 100})
	now := time.Now()

	tr.st.LastAnalysis = now.Add(-2 * time.Minute)

	// Same bar as last analysis: wait for a new close
	tr.st.LastBarTime = frame.LastTime()
	require.False(t, tr.analysisDue(now, frame, false))

	// A newer bar opens the gate
	tr.st.LastBarTime = frame.LastTime().Add(-15 * time.Minute)
	require.True(t, tr.analysisDue(now, frame, false))
}

func TestDecisionFromPattern(t *testing.T) {
	bull := signal.PatternSignal{
		Pattern:    signal.PatternBullishStrike,
		Entry:      106,
		StopLoss:   98,
		TakeProfit: 146,
	}
	d := decisionFromPattern(bull, 0.5)
	require.Equal(t, core.SignalBuy, d.Signal)
	require.Equal(t, core.ConfidenceHigh, d.Confidence)
	require.Equal(t, 0.5, d.Amount)
	require.Equal(t, 98.0, d.StopLoss)
	require.Equal(t, 146.0, d.TakeProfit)
	require.Equal(t, "pattern", d.Source)

	bear := signal.PatternSignal{Pattern: signal.PatternBearishStrike}
	require.Equal(t, core.SignalSell, decisionFromPattern(bear, 1).Signal)
}

func TestMarkSimPosition(t *testing.T) {
	tr := newBareTrader(Config{TestMode: true})

	pos := longPos(100)
	pos.CoinSize = 2
	tr.markSimPosition(pos, 105)
	require.Equal(t, 105.0, pos.MarkPrice)
	require.InDelta(t, 10, pos.UnrealizedPnL, 1e-9)

	short := shortPos(100)
	short.CoinSize = 2
	tr.markSimPosition(short, 105)
	require.InDelta(t, -10, short.UnrealizedPnL, 1e-9)
}
