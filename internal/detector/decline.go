package detector

import (
	"context"

	"signal-screenerv1/internal/model"
)

const declineRun = 5

// ConsecutiveDecline fires when the trailing five candles are all bearish.
// It is restricted to a designated set of instruments and carries no dedup
// state: the signal repeats every cycle the condition holds.
type ConsecutiveDecline struct {
	eligible map[string]bool
}

// NewConsecutiveDecline creates the detector limited to the given
// instruments.
func NewConsecutiveDecline(instruments []string) *ConsecutiveDecline {
	m := make(map[string]bool, len(instruments))
	for _, ins := range instruments {
		m[ins] = true
	}
	return &ConsecutiveDecline{eligible: m}
}

func (*ConsecutiveDecline) Name() string { return "five_down" }

func (d *ConsecutiveDecline) Detect(_ context.Context, s Series) ([]model.Signal, error) {
	if !d.eligible[s.Instrument] {
		return nil, nil
	}
	if len(s.Candles) < declineRun {
		return nil, nil
	}

	tail := s.Candles[len(s.Candles)-declineRun:]
	var sig model.ConsecutiveDecline
	for i, c := range tail {
		if !c.Bearish() {
			return nil, nil
		}
		sig.Opens[i] = c.Open
		sig.Closes[i] = c.Close
	}
	sig.Base = model.Base{
		Symbol: s.Instrument,
		Gran:   s.Granularity,
		Time:   tail[declineRun-1].TS,
	}
	return []model.Signal{sig}, nil
}
