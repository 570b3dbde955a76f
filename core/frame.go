package core

import "time"

// Regime classifies the current market volatility/trend environment
type Regime string

const (
	RegimeHighTrend  Regime = "HIGH_TREND"
	RegimeHighChoppy Regime = "HIGH_CHOPPY"
	RegimeLow        Regime = "LOW"
	RegimeNormal     Regime = "NORMAL"
)

// IndicatorFrame holds aligned candle and indicator series for one
// symbol/timeframe window. All series share the same length and index.
type IndicatorFrame struct {
	Symbol    string
	Timeframe string

	Time   []time.Time
	Open   Series[float64]
	High   Series[float64]
	Low    Series[float64]
	Close  Series[float64]
	Volume Series[float64]

	RSI        Series[float64]
	MACD       Series[float64]
	MACDSignal Series[float64]
	MACDHist   Series[float64]
	BBUpper    Series[float64]
	BBMiddle   Series[float64]
	BBLower    Series[float64]
	ADX        Series[float64]
	ATR        Series[float64]
	ATRRatio   Series[float64]
	VolRatio   Series[float64]
	OBV        Series[float64]
	BuyVolProp Series[float64]

	Regime     Regime
	LastUpdate time.Time
}

// Len returns the number of rows in the frame
func (f *IndicatorFrame) Len() int {
	return len(f.Close)
}

// Tail trims the frame to its last n rows in place and returns it.
// Frames shorter than n are untouched.
func (f *IndicatorFrame) Tail(n int) *IndicatorFrame {
	if f.Len() <= n {
		return f
	}
	f.Time = f.Time[len(f.Time)-n:]
	for _, s := range []*Series[float64]{
		&f.Open, &f.High, &f.Low, &f.Close, &f.Volume,
		&f.RSI, &f.MACD, &f.MACDSignal, &f.MACDHist,
		&f.BBUpper, &f.BBMiddle, &f.BBLower,
		&f.ADX, &f.ATR, &f.ATRRatio, &f.VolRatio,
		&f.OBV, &f.BuyVolProp,
	} {
		if len(*s) > n {
			*s = (*s)[len(*s)-n:]
		}
	}
	return f
}

// LastPrice returns the most recent close, or zero for an empty frame
func (f *IndicatorFrame) LastPrice() float64 {
	if f == nil || len(f.Close) == 0 {
		return 0
	}
	return f.Close.Last(0)
}

// LastTime returns the timestamp of the most recent bar
func (f *IndicatorFrame) LastTime() time.Time {
	if f == nil || len(f.Time) == 0 {
		return time.Time{}
	}
	return f.Time[len(f.Time)-1]
}

// Candles rebuilds the tail n rows of the frame as candles,
// with indicator values attached as metadata
func (f *IndicatorFrame) Candles(n int) []Candle {
	if n > f.Len() {
		n = f.Len()
	}
	out := make([]Candle, 0, n)
	for i := f.Len() - n; i < f.Len(); i++ {
		out = append(out, Candle{
			Symbol:    f.Symbol,
			Timeframe: f.Timeframe,
			Time:      f.Time[i],
			Open:      f.Open[i],
			High:      f.High[i],
			Low:       f.Low[i],
			Close:     f.Close[i],
			Volume:    f.Volume[i],
			Complete:  true,
			Metadata: map[string]float64{
				"rsi":  f.at(f.RSI, i),
				"adx":  f.at(f.ADX, i),
				"atr":  f.at(f.ATR, i),
				"macd": f.at(f.MACD, i),
			},
		})
	}
	return out
}

func (f *IndicatorFrame) at(s Series[float64], i int) float64 {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}
