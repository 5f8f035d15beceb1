// Package model defines the core domain types shared across the screener:
// candles, granularities, detector signals, and subscribers.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Granularity is a candle aggregation period.
type Granularity string

const (
	Hourly     Granularity = "1h"
	FourHourly Granularity = "4h"
	Daily      Granularity = "1d"
)

// AllGranularities lists every supported granularity in ascending order.
func AllGranularities() []Granularity {
	return []Granularity{Hourly, FourHourly, Daily}
}

// ParseGranularities parses a comma-separated list (e.g. "1h,4h") and
// validates each entry against the known set. Order is normalized and
// duplicates are removed.
func ParseGranularities(csv string) ([]Granularity, error) {
	known := map[Granularity]int{Hourly: 0, FourHourly: 1, Daily: 2}
	seen := map[Granularity]bool{}
	var out []Granularity
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g := Granularity(p)
		if _, ok := known[g]; !ok {
			return nil, fmt.Errorf("unknown granularity %q", p)
		}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no valid granularities in %q", csv)
	}
	sort.Slice(out, func(i, j int) bool { return known[out[i]] < known[out[j]] })
	return out, nil
}

// Candle represents one OHLCV bar for a single instrument.
// TS is the bar open time in UTC. Series are ordered ascending by TS
// with unique timestamps per (instrument, granularity).
type Candle struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Bearish reports whether the candle closed below its open.
func (c Candle) Bearish() bool { return c.Close < c.Open }
