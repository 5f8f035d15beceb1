package detector

import (
	"context"
	"log/slog"

	"signal-screenerv1/internal/indicator"
	"signal-screenerv1/internal/model"
	"signal-screenerv1/internal/occurrence"
)

// Consolidation finds the three-phase reference/resistance/support pattern
// on the daily granularity:
//
//  1. reference — a bullish candle whose high touches the rolling channel
//     high during a confirmed uptrend (fast > mid > slow, close > fast);
//  2. resistance — the first later bullish candle whose high sits below the
//     reference bar's low;
//  3. support — the first bullish candle after that whose high sits below
//     the resistance bar's low.
//
// Resistance and support may be absent (partial pattern). The occurrence
// store suppresses re-alerting while the phase timestamps are unchanged.
type Consolidation struct {
	store occurrence.Store
}

// NewConsolidation creates the detector backed by the given dedup store.
func NewConsolidation(store occurrence.Store) *Consolidation {
	return &Consolidation{store: store}
}

func (*Consolidation) Name() string { return "consolidation" }

func (d *Consolidation) Detect(ctx context.Context, s Series) ([]model.Signal, error) {
	if s.Granularity != model.Daily {
		return nil, nil
	}
	if len(s.Candles) < minSeriesLen {
		return nil, nil
	}

	refIdx, resIdx, supIdx := d.findPhases(s)
	if refIdx < 0 {
		return nil, nil
	}

	sig := model.Consolidation{
		Base: model.Base{
			Symbol: s.Instrument,
			Gran:   s.Granularity,
			Time:   s.Candles[refIdx].TS,
		},
		RefTime: s.Candles[refIdx].TS,
	}
	if resIdx >= 0 {
		t := s.Candles[resIdx].TS
		sig.ResTime = &t
	}
	if supIdx >= 0 {
		t := s.Candles[supIdx].TS
		sig.SupTime = &t
	}

	key := sig.OccurrenceKey()
	prev, ok, err := d.store.Get(ctx, s.Instrument, d.Name())
	if err != nil {
		// A broken dedup record must not kill the cycle: treat as absent.
		slog.Warn("consolidation: occurrence read failed, treating as absent",
			"instrument", s.Instrument, "error", err)
		ok = false
	}
	if ok && prev == key {
		return nil, nil
	}
	if err := d.store.Set(ctx, s.Instrument, d.Name(), key); err != nil {
		slog.Warn("consolidation: occurrence write failed, may re-alert next cycle",
			"instrument", s.Instrument, "error", err)
	}
	return []model.Signal{sig}, nil
}

// findPhases scans the fully closed bars (the in-progress final row is
// excluded) and returns the phase indices, -1 for absent phases.
func (d *Consolidation) findPhases(s Series) (refIdx, resIdx, supIdx int) {
	refIdx, resIdx, supIdx = -1, -1, -1
	candles, ind := s.Candles, s.Ind
	lastClosed := len(candles) - 2

	// Reference: scan backward so the most recent qualifying bar wins.
	for i := lastClosed; i >= 1; i-- {
		c := candles[i]
		if !indicator.Defined(ind.ChannelHigh[i], ind.Fast[i], ind.Mid[i], ind.Slow[i]) {
			continue
		}
		uptrend := ind.Fast[i] > ind.Mid[i] && ind.Mid[i] > ind.Slow[i] && c.Close > ind.Fast[i]
		if c.Bullish() && c.High == ind.ChannelHigh[i] && uptrend {
			refIdx = i
			break
		}
	}
	if refIdx < 0 {
		return
	}

	refLow := candles[refIdx].Low
	for j := refIdx + 1; j <= lastClosed; j++ {
		if candles[j].Bullish() && candles[j].High < refLow {
			resIdx = j
			break
		}
	}
	if resIdx < 0 {
		return
	}

	resLow := candles[resIdx].Low
	for k := resIdx + 1; k <= lastClosed; k++ {
		if candles[k].Bullish() && candles[k].High < resLow {
			supIdx = k
			break
		}
	}
	return
}
