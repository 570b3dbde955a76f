// Package market fetches candles, merges them with the local store,
// aligns and cleans the series, computes indicators and classifies
// the market regime.
package market

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cryptooracle/oraclebot/core"
	"github.com/cryptooracle/oraclebot/storage"
	"github.com/jpillora/backoff"
)

const (
	fetchTimeout   = 10 * time.Second
	fetchAttempts  = 3
	persistTailLen = 5

	// Candles fetched beyond the display window so Wilder-smoothed
	// indicators (ADX, MACD signal line) are fully warmed up
	warmupCandles = 100

	// Outlier cleaning parameters
	cleanWindow = 20
	cleanZMax   = 3.0

	// Safety bound on synthetic gap rows inserted per normalization
	maxGapFill = 500
)

// Pipeline produces indicator frames for symbol/timeframe pairs
type Pipeline struct {
	feeder core.Feeder
	store  *storage.KlineStore
	log    core.Logger
}

// NewPipeline wires the market data pipeline. The store may be nil,
// in which case local resume and persistence are skipped.
func NewPipeline(feeder core.Feeder, store *storage.KlineStore, log core.Logger) *Pipeline {
	return &Pipeline{feeder: feeder, store: store, log: log}
}

// Snapshot fetches and prepares the candle window for a symbol and
// returns the computed indicator frame. Indicators are computed over
// the full warmup history; the frame is then trimmed to the display
// window so downstream consumers see a bounded tail.
func (p *Pipeline) Snapshot(ctx context.Context, symbol, timeframe string) (*core.IndicatorFrame, error) {
	limit := WindowSize(timeframe)
	fetch := warmupCandles
	if limit > fetch {
		fetch = limit
	}

	dur, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	fresh, err := p.fetchWithRetry(ctx, symbol, timeframe, fetch)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, timeframe, err)
	}

	var local []core.Candle
	if p.store != nil {
		local, err = p.store.RecentKlines(ctx, symbol, timeframe, fetch)
		if err != nil {
			p.log.Warnf("local kline read failed for %s: %v", symbol, err)
		}
	}

	candles := Merge(local, fresh)
	candles = Normalize(candles, dur)
	candles = CleanOutliers(candles)

	if len(candles) > fetch {
		candles = candles[len(candles)-fetch:]
	}

	frame := ComputeIndicators(symbol, timeframe, candles).Tail(limit)
	frame.Regime = Classify(frame)

	if p.store != nil {
		p.persistTail(frame)
	}
	return frame, nil
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, symbol, timeframe string, limit int) ([]core.Candle, error) {
	b := &backoff.Backoff{Min: time.Second, Max: 8 * time.Second, Factor: 2}

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		candles, err := p.feeder.Candles(fetchCtx, symbol, timeframe, limit)
		cancel()
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if !core.IsRetryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return nil, lastErr
}

// persistTail writes the most recent rows back to the local store in
// the background so the pipeline never blocks on disk
func (p *Pipeline) persistTail(frame *core.IndicatorFrame) {
	tail := frame.Candles(persistTailLen)
	regime := frame.Regime
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.store.SaveKlines(ctx, tail, regime); err != nil {
			p.log.Warnf("kline persist failed for %s: %v", frame.Symbol, err)
		}
	}()
}

// Merge concatenates stored and fresh candles, deduplicates by
// timestamp keeping the freshest record (the venue copy wins over the
// stored tail, which may be an unfinished bar) and sorts ascending
func Merge(local, fresh []core.Candle) []core.Candle {
	byTime := make(map[int64]core.Candle, len(local)+len(fresh))
	for _, c := range local {
		byTime[c.Time.UTC().Unix()] = c
	}
	for _, c := range fresh {
		byTime[c.Time.UTC().Unix()] = c
	}

	out := make([]core.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Normalize aligns candles to the timeframe grid. Sub-second jitter
// is floored away first; gaps are filled with zero-volume doji rows
// carrying the previous close forward.
func Normalize(candles []core.Candle, timeframe time.Duration) []core.Candle {
	if len(candles) == 0 {
		return candles
	}

	aligned := make(map[int64]core.Candle, len(candles))
	for _, c := range candles {
		t := FloorToGrid(c.Time.Truncate(time.Second), timeframe)
		c.Time = t
		// Keep the last record for a grid slot
		aligned[t.Unix()] = c
	}

	keys := make([]int64, 0, len(aligned))
	for k := range aligned {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]core.Candle, 0, len(keys))
	step := int64(timeframe.Seconds())
	filled := 0
	for i, k := range keys {
		c := aligned[k]
		if i > 0 {
			prev := out[len(out)-1]
			for next := prev.Time.Unix() + step; next < k && filled < maxGapFill; next += step {
				out = append(out, core.Candle{
					Symbol:    c.Symbol,
					Timeframe: c.Timeframe,
					Time:      time.Unix(next, 0).UTC(),
					Open:      prev.Close,
					High:      prev.Close,
					Low:       prev.Close,
					Close:     prev.Close,
					Volume:    0,
					Complete:  true,
				})
				filled++
			}
		}
		out = append(out, c)
	}
	return out
}

// CleanOutliers replaces closes whose rolling z-score exceeds the
// threshold with the rolling mean and clamps high/low to contain the
// new close
func CleanOutliers(candles []core.Candle) []core.Candle {
	if len(candles) < cleanWindow {
		return candles
	}

	out := make([]core.Candle, len(candles))
	copy(out, candles)

	for i := cleanWindow; i < len(out); i++ {
		var sum, sumSq float64
		for j := i - cleanWindow; j < i; j++ {
			sum += out[j].Close
			sumSq += out[j].Close * out[j].Close
		}
		mean := sum / cleanWindow
		variance := sumSq/cleanWindow - mean*mean
		if variance <= 0 {
			continue
		}
		std := math.Sqrt(variance)
		if z := math.Abs(out[i].Close-mean) / std; z > cleanZMax {
			out[i].Close = mean
			if out[i].High < mean {
				out[i].High = mean
			}
			if out[i].Low > mean {
				out[i].Low = mean
			}
		}
	}
	return out
}
