package detector

import (
	"context"
	"log/slog"

	"signal-screenerv1/internal/indicator"
	"signal-screenerv1/internal/model"
)

const (
	momentumHigh = 95.0
	momentumLow  = 5.0
)

// Momentum flags oscillator extremes on the latest candle. The latest bar
// may still be forming: this signal is instantaneous status, aggregated into
// a per-cycle digest rather than persisted, so evaluating the live bar is
// intentional. Both thresholds are inclusive.
type Momentum struct{}

// NewMomentum creates the momentum-extreme detector.
func NewMomentum() *Momentum { return &Momentum{} }

func (*Momentum) Name() string { return "momentum_extreme" }

func (d *Momentum) Detect(_ context.Context, s Series) ([]model.Signal, error) {
	if len(s.Candles) < minSeriesLen {
		return nil, nil
	}
	last := len(s.Candles) - 1
	osc := s.Ind.Osc[last]
	if !indicator.Defined(osc) {
		slog.Warn("momentum: oscillator undefined, abstaining",
			"instrument", s.Instrument, "granularity", string(s.Granularity))
		return nil, nil
	}
	if osc < momentumHigh && osc > momentumLow {
		return nil, nil
	}

	c := s.Candles[last]
	return []model.Signal{model.MomentumExtreme{
		Base:  model.Base{Symbol: s.Instrument, Gran: s.Granularity, Time: c.TS},
		Osc:   osc,
		Close: c.Close,
	}}, nil
}
