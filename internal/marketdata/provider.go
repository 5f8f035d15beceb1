// Package marketdata fetches instrument listings and OHLCV candle history
// from the exchange's public REST API.
package marketdata

import (
	"context"

	"signal-screenerv1/internal/model"
)

// Provider is the exchange boundary consumed by the orchestrator.
type Provider interface {
	// Instruments returns the tradable instrument universe.
	Instruments(ctx context.Context) ([]string, error)

	// Candles returns up to limit candles for one instrument and
	// granularity, oldest first. The newest candle may still be forming.
	Candles(ctx context.Context, symbol string, gran model.Granularity, limit int) ([]model.Candle, error)
}
