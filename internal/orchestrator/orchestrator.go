// Package orchestrator drives one detection cycle: list instruments, fan
// the (instrument, granularity) work units across a bounded worker pool,
// fetch and validate candles, compute indicators, run every detector, and
// hand the collected signals to the dispatcher.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signal-screenerv1/internal/detector"
	"signal-screenerv1/internal/dispatch"
	"signal-screenerv1/internal/indicator"
	"signal-screenerv1/internal/logger"
	"signal-screenerv1/internal/marketdata"
	"signal-screenerv1/internal/metrics"
	"signal-screenerv1/internal/model"
)

const (
	defaultWorkers     = 10
	defaultUnitTimeout = 45 * time.Second
	defaultFetchLimit  = 500
)

// Sink receives the signals a cycle produces. *dispatch.Dispatcher is the
// production implementation.
type Sink interface {
	Dispatch(ctx context.Context, sig model.Signal)
	DispatchDigest(ctx context.Context, sigs []model.MomentumExtreme)
}

var _ Sink = (*dispatch.Dispatcher)(nil)

// Orchestrator runs detection cycles.
type Orchestrator struct {
	provider  marketdata.Provider
	detectors []detector.Detector
	sink      Sink
	m         *metrics.Metrics

	indCfg      indicator.Config
	grans       []model.Granularity
	workers     int
	unitTimeout time.Duration
	fetchLimit  int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the fetch+detect concurrency limit.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithUnitTimeout bounds each work unit's fetch and detection.
func WithUnitTimeout(t time.Duration) Option {
	return func(o *Orchestrator) {
		if t > 0 {
			o.unitTimeout = t
		}
	}
}

// WithIndicatorConfig overrides the indicator windows.
func WithIndicatorConfig(cfg indicator.Config) Option {
	return func(o *Orchestrator) { o.indCfg = cfg }
}

// New creates an Orchestrator screening the given granularities with the
// given detectors.
func New(provider marketdata.Provider, detectors []detector.Detector, sink Sink, m *metrics.Metrics, grans []model.Granularity, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		detectors:   detectors,
		sink:        sink,
		m:           m,
		indCfg:      indicator.DefaultConfig(),
		grans:       grans,
		workers:     defaultWorkers,
		unitTimeout: defaultUnitTimeout,
		fetchLimit:  defaultFetchLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetchLimit < o.indCfg.Long+3 {
		o.fetchLimit = o.indCfg.Long + 3
	}
	return o
}

type unit struct {
	symbol string
	gran   model.Granularity
}

// RunCycle executes one full detection cycle. It returns an error only when
// the instrument listing itself fails; individual unit failures are counted
// and logged but never abort the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if o.m != nil {
		o.m.CyclesTotal.Inc()
	}
	start := time.Now()
	ctx = logger.WithCycleID(ctx, logger.GenerateCycleID(start))

	instruments, err := o.provider.Instruments(ctx)
	if err != nil {
		return fmt.Errorf("listing instruments: %w", err)
	}
	if len(instruments) == 0 {
		return fmt.Errorf("instrument universe is empty")
	}

	units := make([]unit, 0, len(instruments)*len(o.grans))
	for _, sym := range instruments {
		for _, g := range o.grans {
			units = append(units, unit{symbol: sym, gran: g})
		}
	}
	slog.Info("cycle started", append([]any{
		"instruments", len(instruments), "units", len(units),
	}, logger.LogWithCycle(ctx)...)...)

	var (
		mu       sync.Mutex
		momentum []model.MomentumExtreme
		others   []model.Signal
		failed   int
	)

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for _, u := range units {
		wg.Add(1)
		sem <- struct{}{}
		go func(u unit) {
			defer wg.Done()
			defer func() { <-sem }()

			sigs, err := o.runUnit(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				if o.m != nil {
					o.m.UnitFailures.Inc()
				}
				slog.Warn("unit failed", "instrument", u.symbol, "granularity", u.gran, "error", err)
				return
			}
			for _, sig := range sigs {
				if me, ok := sig.(model.MomentumExtreme); ok {
					momentum = append(momentum, me)
				} else {
					others = append(others, sig)
				}
			}
		}(u)
	}
	wg.Wait()

	o.publish(ctx, momentum, others)
	slog.Info("cycle finished", append([]any{
		"units", len(units), "failed", failed,
		"momentum", len(momentum), "signals", len(others),
		"elapsed", time.Since(start).Round(time.Millisecond),
	}, logger.LogWithCycle(ctx)...)...)
	return nil
}

func (o *Orchestrator) runUnit(ctx context.Context, u unit) ([]model.Signal, error) {
	uctx, cancel := context.WithTimeout(ctx, o.unitTimeout)
	defer cancel()

	if o.m != nil {
		o.m.UnitsTotal.Inc()
	}

	fetchStart := time.Now()
	candles, err := o.provider.Candles(uctx, u.symbol, u.gran, o.fetchLimit)
	if o.m != nil {
		o.m.FetchDur.Observe(time.Since(fetchStart).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("empty candle history")
	}

	s := detector.Series{
		Instrument:  u.symbol,
		Granularity: u.gran,
		Candles:     candles,
		Ind:         indicator.Compute(candles, o.indCfg),
	}

	var out []model.Signal
	for _, det := range o.detectors {
		sigs, err := det.Detect(uctx, s)
		if err != nil {
			return nil, fmt.Errorf("detector %s: %w", det.Name(), err)
		}
		for _, sig := range sigs {
			if o.m != nil {
				o.m.SignalsTotal.WithLabelValues(string(sig.Kind())).Inc()
			}
		}
		out = append(out, sigs...)
	}
	return out, nil
}

// publish hands the cycle's signals to the sink: momentum extremes as one
// digest batch, everything else individually.
func (o *Orchestrator) publish(ctx context.Context, momentum []model.MomentumExtreme, others []model.Signal) {
	if len(momentum) > 0 {
		o.sink.DispatchDigest(ctx, momentum)
	}
	for _, sig := range others {
		o.sink.Dispatch(ctx, sig)
	}
}
