package model

import (
	"strings"
	"time"
)

// Kind identifies a signal variant. Kinds double as the preference tokens
// subscribers use with /setsignals.
type Kind string

const (
	KindMomentumExtreme    Kind = "momentum_extreme"
	KindTurtleBuy          Kind = "turtle_buy"
	KindTurtleSell         Kind = "turtle_sell"
	KindConsolidation      Kind = "consolidation"
	KindConsecutiveDecline Kind = "five_down"
)

// AllKinds lists every signal kind.
func AllKinds() []Kind {
	return []Kind{KindMomentumExtreme, KindTurtleBuy, KindTurtleSell, KindConsolidation, KindConsecutiveDecline}
}

// ParseKinds parses a comma-separated kind list, validating each entry.
func ParseKinds(csv string) ([]Kind, error) {
	known := map[Kind]bool{}
	for _, k := range AllKinds() {
		known[k] = true
	}
	seen := map[Kind]bool{}
	var out []Kind
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k := Kind(p)
		if !known[k] {
			return nil, &UnknownKindError{Value: p}
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, &UnknownKindError{Value: csv}
	}
	return out, nil
}

// UnknownKindError reports an unrecognized signal kind token.
type UnknownKindError struct{ Value string }

func (e *UnknownKindError) Error() string { return "unknown signal kind " + e.Value }

// Signal is the closed union of detector outputs. Each variant carries the
// instrument, granularity and trigger time plus its own payload. Signals are
// immutable once created.
type Signal interface {
	Kind() Kind
	Instrument() string
	Granularity() Granularity
	At() time.Time
}

// Base carries the fields common to every signal variant.
type Base struct {
	Symbol string
	Gran   Granularity
	Time   time.Time
}

func (b Base) Instrument() string       { return b.Symbol }
func (b Base) Granularity() Granularity { return b.Gran }
func (b Base) At() time.Time            { return b.Time }

// MomentumExtreme fires when the oscillator on the latest bar reaches an
// extreme (>= 95 or <= 5). Instantaneous status: aggregated per cycle,
// never persisted.
type MomentumExtreme struct {
	Base
	Osc   float64
	Close float64
}

func (MomentumExtreme) Kind() Kind { return KindMomentumExtreme }

// Extremity is the distance of the oscillator from the midpoint, used to
// order digest rows (most extreme first).
func (s MomentumExtreme) Extremity() float64 {
	if s.Osc >= 50 {
		return s.Osc
	}
	return 100 - s.Osc
}

// CrossSide distinguishes turtle buy from sell.
type CrossSide int

const (
	CrossBuy CrossSide = iota
	CrossSell
)

// ChannelCross is the turtle breakout signal: the channel midpoint crossing
// the long moving average, confirmed by the last closed bar.
type ChannelCross struct {
	Base
	Side       CrossSide
	Open       float64
	Close      float64
	LongMA     float64
	ChannelMid float64
}

func (s ChannelCross) Kind() Kind {
	if s.Side == CrossBuy {
		return KindTurtleBuy
	}
	return KindTurtleSell
}

// Consolidation is the three-phase reference/resistance/support pattern on
// the daily granularity. Resistance and support may be absent.
type Consolidation struct {
	Base // Time = reference bar time
	RefTime time.Time
	ResTime *time.Time
	SupTime *time.Time
}

func (Consolidation) Kind() Kind { return KindConsolidation }

// OccurrenceKey is the dedup fingerprint: the three phase timestamps joined
// with commas, "-" marking an absent phase. Equal keys for the same
// instrument describe the same logical pattern instance.
func (s Consolidation) OccurrenceKey() string {
	part := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	ref := s.RefTime
	return part(&ref) + "," + part(s.ResTime) + "," + part(s.SupTime)
}

// ConsecutiveDecline fires when the trailing five candles are all bearish.
// Restricted to the extra-signal eligible instrument set.
type ConsecutiveDecline struct {
	Base
	Opens  [5]float64
	Closes [5]float64
}

func (ConsecutiveDecline) Kind() Kind { return KindConsecutiveDecline }
