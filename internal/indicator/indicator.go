// Package indicator computes derived series over candle data.
//
// Compute is a pure function: given the same candles and config it always
// produces the same output, with no side effects. Values are positionally
// aligned with the input; math.NaN() marks positions where a window is not
// yet fully populated. Detectors must treat NaN as "cannot evaluate".
package indicator

import (
	"math"

	"signal-screenerv1/internal/model"
)

// Config holds the window sizes for all derived series.
type Config struct {
	Fast    int // fast moving average window
	Mid     int // mid moving average window
	Slow    int // slow moving average window
	Long    int // long moving average window
	Channel int // rolling high/low channel lookback
}

// DefaultConfig mirrors the production windows: MA 5/10/20/200, channel 28.
func DefaultConfig() Config {
	return Config{Fast: 5, Mid: 10, Slow: 20, Long: 200, Channel: 28}
}

// Set holds every derived series, aligned 1:1 with the input candles.
type Set struct {
	Fast        []float64 // SMA(fast) of close
	Mid         []float64 // SMA(mid) of close
	Slow        []float64 // SMA(slow) of close
	Long        []float64 // SMA(long) of close
	ChannelHigh []float64 // rolling max(high) over channel period
	ChannelLow  []float64 // rolling min(low) over channel period
	ChannelMid  []float64 // (ChannelHigh + ChannelLow) / 2
	Osc         []float64 // RSI-style momentum oscillator in [0,100]
}

const (
	oscAlpha  = 1.0 / 6.0 // exponential smoothing decay
	oscWarmup = 6         // periods before the oscillator is defined
	lossFloor = 1e-8      // avoids division by zero on flat series
)

// Compute derives all indicator series for the given candles.
func Compute(candles []model.Candle, cfg Config) Set {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	set := Set{
		Fast:        SMA(closes, cfg.Fast),
		Mid:         SMA(closes, cfg.Mid),
		Slow:        SMA(closes, cfg.Slow),
		Long:        SMA(closes, cfg.Long),
		ChannelHigh: RollingMax(highs, cfg.Channel),
		ChannelLow:  RollingMin(lows, cfg.Channel),
		Osc:         Oscillator(closes),
	}

	set.ChannelMid = make([]float64, n)
	for i := 0; i < n; i++ {
		set.ChannelMid[i] = (set.ChannelHigh[i] + set.ChannelLow[i]) / 2
	}
	return set
}

// SMA returns the simple moving average over a trailing window.
// Positions before window-1 are NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RollingMax returns the trailing-window maximum. NaN before window-1.
func RollingMax(values []float64, period int) []float64 {
	return rollingExtreme(values, period, func(a, b float64) bool { return a > b })
}

// RollingMin returns the trailing-window minimum. NaN before window-1.
func RollingMin(values []float64, period int) []float64 {
	return rollingExtreme(values, period, func(a, b float64) bool { return a < b })
}

func rollingExtreme(values []float64, period int, better func(a, b float64) bool) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	// Window sizes here are small (28), so a direct scan per position is
	// simpler than a monotonic deque and fast enough.
	for i := period - 1; i < len(values); i++ {
		best := values[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if better(values[j], best) {
				best = values[j]
			}
		}
		out[i] = best
	}
	return out
}

// Oscillator computes the RSI-style momentum oscillator: per-step gains and
// losses on close deltas smoothed with a weighted EWM (alpha = 1/6), then
// 100 - 100/(1 + avgGain/avgLoss). The average loss is floored at a small
// epsilon so flat or all-gain series map to ~100 instead of dividing by
// zero. NaN until the warm-up window (6 periods) has passed. Values outside
// [0,100] are impossible by construction.
func Oscillator(closes []float64) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if n == 0 {
		return out
	}

	// Weighted EWM running sums: num_t = x_t + (1-a)*num_{t-1},
	// den_t = 1 + (1-a)*den_{t-1}. The first bar has no delta; its
	// gain and loss are taken as zero.
	decay := 1 - oscAlpha
	var gainNum, lossNum, den float64
	for i := 0; i < n; i++ {
		gain, loss := 0.0, 0.0
		if i > 0 {
			delta := closes[i] - closes[i-1]
			if delta > 0 {
				gain = delta
			} else {
				loss = -delta
			}
		}
		gainNum = gain + decay*gainNum
		lossNum = loss + decay*lossNum
		den = 1 + decay*den

		if i < oscWarmup-1 {
			continue
		}
		avgGain := gainNum / den
		avgLoss := lossNum / den
		if avgLoss < lossFloor {
			avgLoss = lossFloor
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// Defined reports whether every value is a real number (not NaN).
func Defined(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
