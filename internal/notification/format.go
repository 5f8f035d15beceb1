package notification

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"signal-screenerv1/internal/model"
)

// MaxMessageLen is the platform's hard limit on one message.
const MaxMessageLen = 4096

const timeLayout = "2006-01-02 15:04 MST"

// Format renders a single signal as a message body.
func Format(sig model.Signal) string {
	switch s := sig.(type) {
	case model.MomentumExtreme:
		return fmt.Sprintf(
			"[Momentum] %s %s oscillator extreme\nTime  : %s\nValue : %.2f\nClose : %g",
			s.Instrument(), s.Granularity(), s.At().UTC().Format(timeLayout), s.Osc, s.Close)

	case model.ChannelCross:
		action := "buy"
		if s.Side == model.CrossSell {
			action = "sell"
		}
		return fmt.Sprintf(
			"[Turtle] %s %s %s signal\nTime        : %s\nOpen        : %g\nClose       : %g\nLong MA     : %.4f\nChannel mid : %.4f",
			s.Instrument(), s.Granularity(), action,
			s.At().UTC().Format(timeLayout), s.Open, s.Close, s.LongMA, s.ChannelMid)

	case model.Consolidation:
		day := func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.UTC().Format("2006-01-02")
		}
		ref := s.RefTime
		return fmt.Sprintf(
			"[Consolidation] %s %s three-phase pattern\nReference  : %s\nResistance : %s\nSupport    : %s\n\nEach phase's low caps the next phase; the last low is the strongest support.",
			s.Instrument(), s.Granularity(), day(&ref), day(s.ResTime), day(s.SupTime))

	case model.ConsecutiveDecline:
		return fmt.Sprintf(
			"[Five Down] %s %s five consecutive bearish candles\nTime   : %s\nOpens  : %v\nCloses : %v",
			s.Instrument(), s.Granularity(), s.At().UTC().Format(timeLayout), s.Opens, s.Closes)

	default:
		return fmt.Sprintf("[%s] %s %s at %s", sig.Kind(), sig.Instrument(), sig.Granularity(), sig.At().UTC().Format(timeLayout))
	}
}

// MomentumDigest renders all momentum extremes from one detection cycle as
// a single monospace table, most extreme values first.
func MomentumDigest(sigs []model.MomentumExtreme) string {
	sorted := make([]model.MomentumExtreme, len(sigs))
	copy(sorted, sigs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Extremity() != sorted[j].Extremity() {
			return sorted[i].Extremity() > sorted[j].Extremity()
		}
		return sorted[i].Osc > sorted[j].Osc
	})

	var b strings.Builder
	b.WriteString("Momentum extremes this cycle:\n```\n")
	fmt.Fprintf(&b, "%-18s%-7s%-7s\n", "Instrument", "Gran", "Osc")
	b.WriteString(strings.Repeat("-", 32) + "\n")
	for _, s := range sorted {
		fmt.Fprintf(&b, "%-18s%-7s%-7.2f\n", s.Instrument(), s.Granularity(), s.Osc)
	}
	b.WriteString("```")
	return b.String()
}

// Split chunks a message at the platform limit. Splitting is rune-safe so a
// multi-byte character never straddles two messages.
func Split(text string, max int) []string {
	if max <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	var parts []string
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
