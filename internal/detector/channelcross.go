package detector

import (
	"context"
	"log/slog"

	"signal-screenerv1/internal/indicator"
	"signal-screenerv1/internal/model"
)

// channelCrossMinLen is the long MA window (200) plus the buffer needed to
// compare the two most recent fully closed bars.
const channelCrossMinLen = 203

// ChannelCross is the turtle breakout detector: the channel midpoint
// crossing the long moving average, confirmed by the last closed candle.
// The in-progress bar (the final row) is excluded — the comparison uses the
// second- and third-to-last rows.
type ChannelCross struct{}

// NewChannelCross creates the turtle detector.
func NewChannelCross() *ChannelCross { return &ChannelCross{} }

func (*ChannelCross) Name() string { return "channel_cross" }

func (d *ChannelCross) Detect(_ context.Context, s Series) ([]model.Signal, error) {
	if len(s.Candles) < channelCrossMinLen {
		return nil, nil
	}
	last := len(s.Candles) - 2 // last closed bar
	prev := len(s.Candles) - 3

	mid, long := s.Ind.ChannelMid[last], s.Ind.Long[last]
	prevMid, prevLong := s.Ind.ChannelMid[prev], s.Ind.Long[prev]
	if !indicator.Defined(mid, long, prevMid, prevLong) {
		slog.Warn("channel cross: indicator undefined, abstaining",
			"instrument", s.Instrument, "granularity", string(s.Granularity))
		return nil, nil
	}

	c := s.Candles[last]
	base := model.Base{Symbol: s.Instrument, Gran: s.Granularity, Time: c.TS}

	// Buy and sell are mutually exclusive: the midpoint cannot cross the
	// long MA in both directions on the same bar pair.
	switch {
	case prevMid <= prevLong && mid > long:
		if c.Close > mid && c.Open > mid {
			return []model.Signal{model.ChannelCross{
				Base: base, Side: model.CrossBuy,
				Open: c.Open, Close: c.Close, LongMA: long, ChannelMid: mid,
			}}, nil
		}
	case prevMid >= prevLong && mid < long:
		if c.Close < mid && c.Open < mid {
			return []model.Signal{model.ChannelCross{
				Base: base, Side: model.CrossSell,
				Open: c.Open, Close: c.Close, LongMA: long, ChannelMid: mid,
			}}, nil
		}
	}
	return nil, nil
}
