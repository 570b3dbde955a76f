package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cryptooracle/oraclebot/config"
	"github.com/cryptooracle/oraclebot/execution"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	titles []string
}

func (n *recordingNotifier) Notify(title, message string) {
	n.titles = append(n.titles, title)
}

func newSimTrader(cfg Config) *Trader {
	tr := newBareTrader(cfg)
	tr.sim = execution.NewSimulator(cfg.Symbol.Symbol, "isolated", 0.001, nopLogger{})
	return tr
}

func TestClosePositionCooldownOnlyOnLoss(t *testing.T) {
	tr := newSimTrader(Config{
		Symbol:   config.SymbolConfig{Symbol: "ETH/USDT:USDT"},
		TestMode: true,
	})
	tr.st.Sim.Balance = 1000

	winner := longPos(100)
	winner.UnrealizedPnL = 10
	tr.st.Sim.Position = winner
	require.NoError(t, tr.closePosition(context.Background(), winner, 1.0, 110, "target"))
	require.Nil(t, tr.st.Sim.Position)
	require.True(t, tr.st.LastCloseTime.IsZero())

	loser := longPos(100)
	loser.UnrealizedPnL = -10
	tr.st.Sim.Position = loser
	require.NoError(t, tr.closePosition(context.Background(), loser, 1.0, 90, "stop-loss"))
	require.Nil(t, tr.st.Sim.Position)
	require.False(t, tr.st.LastCloseTime.IsZero())
}

func TestTickFailedAlertsAtStreak(t *testing.T) {
	notifier := &recordingNotifier{}
	tr := newBareTrader(Config{Symbol: config.SymbolConfig{Symbol: "ETH/USDT:USDT"}})
	tr.deps.Notifier = notifier

	err := errors.New("ticker timeout")
	for i := 0; i < errAlertStreak; i++ {
		tr.tickFailed(err)
	}
	require.Equal(t, errAlertStreak, tr.st.ErrorStreak)
	require.Len(t, notifier.titles, 1)
	require.Contains(t, notifier.titles[0], "repeated failures")
	require.True(t, tr.st.HaltUntil.IsZero())
}

func TestTickFailedHaltsSymbol(t *testing.T) {
	notifier := &recordingNotifier{}
	tr := newBareTrader(Config{Symbol: config.SymbolConfig{Symbol: "ETH/USDT:USDT"}})
	tr.deps.Notifier = notifier

	err := errors.New("ticker timeout")
	for i := 0; i < errHaltStreak; i++ {
		tr.tickFailed(err)
	}
	require.True(t, tr.st.HaltUntil.After(time.Now()))
	// Streak resets so the next failure after the halt starts fresh
	require.Zero(t, tr.st.ErrorStreak)
	require.Contains(t, notifier.titles[len(notifier.titles)-1], "halted")
}

func TestTickSkipsHaltedSymbol(t *testing.T) {
	tr := newBareTrader(Config{Symbol: config.SymbolConfig{Symbol: "ETH/USDT:USDT"}})
	tr.st.HaltUntil = time.Now().Add(10 * time.Minute)

	// No pipeline wired: reaching past the halt gate would panic
	tr.Tick(context.Background(), Env{})
	require.Equal(t, StatusStopped, tr.Snapshot().Status)
}

func TestTickFailedWarnOnlyBelowAlert(t *testing.T) {
	tr := newBareTrader(Config{Symbol: config.SymbolConfig{Symbol: "ETH/USDT:USDT"}})
	tr.st.ErrorStreak = errWarnStreak - 1
	tr.tickFailed(errors.New("transient"))
	require.Equal(t, errWarnStreak, tr.st.ErrorStreak)
	require.True(t, tr.st.HaltUntil.IsZero())
}
