package indicator

import (
	"math"
	"testing"
	"time"

	"signal-screenerv1/internal/model"
)

func candlesFromCloses(closes []float64) []model.Candle {
	out := make([]model.Candle, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = model.Candle{
			TS:    base.Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		}
	}
	return out
}

func TestSMA_WarmupAndValue(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	out := SMA(values, 3)

	for i := 0; i < 2; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("index %d: expected NaN before warm-up, got %v", i, out[i])
		}
	}
	want := []float64{2, 3, 4, 5}
	for i, w := range want {
		if math.Abs(out[i+2]-w) > 1e-9 {
			t.Errorf("index %d: expected SMA=%v, got %v", i+2, w, out[i+2])
		}
	}
}

func TestSMA_ShortSeries(t *testing.T) {
	out := SMA([]float64{1, 2}, 5)
	for i, v := range out {
		if !math.IsNaN(v) {
			t.Errorf("index %d: expected NaN for short series, got %v", i, v)
		}
	}
}

func TestRollingMaxMin(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	maxOut := RollingMax(values, 3)
	minOut := RollingMin(values, 3)

	if !math.IsNaN(maxOut[1]) || !math.IsNaN(minOut[1]) {
		t.Error("expected NaN before window fills")
	}
	if maxOut[4] != 5 {
		t.Errorf("expected max(4,1,5)=5, got %v", maxOut[4])
	}
	if minOut[5] != 1 {
		t.Errorf("expected min(1,5,9)=1, got %v", minOut[5])
	}
	if maxOut[7] != 9 {
		t.Errorf("expected max(9,2,6)=9, got %v", maxOut[7])
	}
}

func TestOscillator_Warmup(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107}
	out := Oscillator(closes)

	for i := 0; i < 5; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("index %d: expected NaN before warm-up, got %v", i, out[i])
		}
	}
	for i := 5; i < len(out); i++ {
		if math.IsNaN(out[i]) {
			t.Errorf("index %d: expected defined value after warm-up", i)
		}
	}
}

func TestOscillator_Bounds(t *testing.T) {
	// Mixed series — values must stay within [0,100].
	closes := []float64{100, 95, 103, 99, 110, 104, 108, 101, 97, 120, 90, 115}
	out := Oscillator(closes)
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("index %d: oscillator %v outside [0,100]", i, v)
		}
	}
}

func TestOscillator_AllGainsNearHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	out := Oscillator(closes)
	last := out[len(out)-1]
	if last < 99.9 {
		t.Errorf("monotone gains should drive oscillator to ~100, got %v", last)
	}
}

func TestOscillator_AllLossesNearZero(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	out := Oscillator(closes)
	last := out[len(out)-1]
	if last > 0.1 {
		t.Errorf("monotone losses should drive oscillator to ~0, got %v", last)
	}
}

func TestCompute_AlignmentAndIdempotence(t *testing.T) {
	candles := candlesFromCloses([]float64{
		10, 11, 12, 13, 14, 15, 16, 17, 18, 19,
		20, 21, 22, 23, 24, 25, 26, 27, 28, 29,
		30, 31, 32, 33, 34, 35, 36, 37, 38, 39,
	})
	cfg := Config{Fast: 5, Mid: 10, Slow: 20, Long: 25, Channel: 28}

	a := Compute(candles, cfg)
	b := Compute(candles, cfg)

	series := map[string][]float64{
		"fast": a.Fast, "mid": a.Mid, "slow": a.Slow, "long": a.Long,
		"chHigh": a.ChannelHigh, "chLow": a.ChannelLow, "chMid": a.ChannelMid,
		"osc": a.Osc,
	}
	for name, s := range series {
		if len(s) != len(candles) {
			t.Errorf("%s: length %d, want %d", name, len(s), len(candles))
		}
	}

	// Repeated calls must produce identical output.
	for i := range a.ChannelMid {
		sameNaN := math.IsNaN(a.ChannelMid[i]) && math.IsNaN(b.ChannelMid[i])
		if !sameNaN && a.ChannelMid[i] != b.ChannelMid[i] {
			t.Fatalf("index %d: Compute not idempotent", i)
		}
	}

	// Channel mid at index 27: highs are close+1, lows are close-1, so
	// mid = (high_max + low_min)/2 = ((37+1)+(10-1))/2 = 23.5.
	if math.Abs(a.ChannelMid[27]-23.5) > 1e-9 {
		t.Errorf("channel mid[27]: expected 23.5, got %v", a.ChannelMid[27])
	}
}

func TestDefined(t *testing.T) {
	if Defined(1, math.NaN()) {
		t.Error("Defined should be false when any value is NaN")
	}
	if !Defined(1, 2, 3) {
		t.Error("Defined should be true for real numbers")
	}
}
