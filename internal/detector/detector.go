// Package detector implements the pattern detectors that turn an
// indicator-annotated candle series into typed signals.
//
// Detectors are independent: each one abstains (returns no signals, no
// error) when the series is too short or a required indicator value is
// undefined, so one instrument's bad data never disturbs the rest of a
// detection cycle.
package detector

import (
	"context"

	"signal-screenerv1/internal/indicator"
	"signal-screenerv1/internal/model"
)

// Series is one unit of detection input: the candles for a single
// (instrument, granularity) pair plus their derived indicator values.
type Series struct {
	Instrument  string
	Granularity model.Granularity
	Candles     []model.Candle
	Ind         indicator.Set
}

// Detector evaluates a series and emits zero or more signals.
type Detector interface {
	// Name identifies the detector; it also keys the occurrence store.
	Name() string

	// Detect inspects the series. Returning (nil, nil) means the detector
	// abstained this cycle.
	Detect(ctx context.Context, s Series) ([]model.Signal, error)
}

// minSeriesLen is the floor below which no detector evaluates at all.
const minSeriesLen = 30
