// Package dispatch fans signal messages out to subscribers over a bounded
// worker pool, applying per-subscriber preference filtering and evicting
// recipients the platform reports as permanently unreachable.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"signal-screenerv1/internal/metrics"
	"signal-screenerv1/internal/model"
	"signal-screenerv1/internal/notification"
	"signal-screenerv1/internal/subscription"
)

const (
	defaultWorkers     = 4
	defaultSendTimeout = 20 * time.Second
)

// Dispatcher delivers formatted messages to the subscriber base.
type Dispatcher struct {
	reg     *subscription.Registry
	tr      notification.Transport
	m       *metrics.Metrics
	adminID string

	workers     int
	sendTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the concurrent send limit.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithSendTimeout bounds each individual send attempt.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// New creates a Dispatcher. adminID may be empty, in which case eviction
// notices are only logged.
func New(reg *subscription.Registry, tr notification.Transport, m *metrics.Metrics, adminID string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:         reg,
		tr:          tr,
		m:           m,
		adminID:     adminID,
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch formats one signal and delivers it to every subscriber whose
// preferences match its granularity and kind.
func (d *Dispatcher) Dispatch(ctx context.Context, sig model.Signal) {
	text := notification.Format(sig)
	var ids []string
	for _, sub := range d.reg.Snapshot() {
		if sub.Wants(sig) {
			ids = append(ids, sub.ID)
		}
	}
	d.deliver(ctx, ids, text, d.tr.Send)
}

// DispatchText delivers pre-formatted text to subscribers filtered by the
// given predicate. A nil predicate matches everyone.
func (d *Dispatcher) DispatchText(ctx context.Context, text string, match func(model.Subscriber) bool) {
	var ids []string
	for _, sub := range d.reg.Snapshot() {
		if match == nil || match(sub) {
			ids = append(ids, sub.ID)
		}
	}
	d.deliver(ctx, ids, text, d.tr.Send)
}

// Broadcast delivers text to the entire subscriber base.
func (d *Dispatcher) Broadcast(ctx context.Context, text string) {
	d.DispatchText(ctx, text, nil)
}

// PinBroadcast delivers text to the entire subscriber base and pins it in
// each chat, using the same fan-out as Broadcast.
func (d *Dispatcher) PinBroadcast(ctx context.Context, text string) {
	var ids []string
	for _, sub := range d.reg.Snapshot() {
		ids = append(ids, sub.ID)
	}
	d.deliver(ctx, ids, text, d.tr.Pin)
}

// DispatchDigest renders the cycle's momentum extremes per subscriber,
// restricted to each subscriber's enabled granularities, so nobody sees rows
// from a timeframe they turned off. Subscribers sharing the same enabled
// set share one rendering.
func (d *Dispatcher) DispatchDigest(ctx context.Context, sigs []model.MomentumExtreme) {
	if len(sigs) == 0 {
		return
	}
	type view struct {
		text string
		ids  []string
	}
	views := map[string]*view{}
	for _, sub := range d.reg.Snapshot() {
		if !sub.SignalKinds[model.KindMomentumExtreme] {
			continue
		}
		var key strings.Builder
		for _, g := range model.AllGranularities() {
			if sub.Granularities[g] {
				key.WriteString(string(g))
				key.WriteByte(',')
			}
		}
		v, ok := views[key.String()]
		if !ok {
			v = &view{}
			var filtered []model.MomentumExtreme
			for _, me := range sigs {
				if sub.Granularities[me.Gran] {
					filtered = append(filtered, me)
				}
			}
			if len(filtered) > 0 {
				v.text = notification.MomentumDigest(filtered)
			}
			views[key.String()] = v
		}
		v.ids = append(v.ids, sub.ID)
	}
	for _, v := range views {
		if v.text == "" {
			continue
		}
		d.deliver(ctx, v.ids, v.text, d.tr.Send)
	}
}

// SendTo delivers text to a single recipient, chunking at the platform
// limit. Used for command replies and admin notices.
func (d *Dispatcher) SendTo(ctx context.Context, recipientID, text string) error {
	for _, part := range notification.Split(text, notification.MaxMessageLen) {
		sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := d.tr.Send(sctx, recipientID, part)
		cancel()
		if err != nil {
			return err
		}
	}
	return nil
}

// sendOp is one transport delivery primitive (Send or Pin).
type sendOp func(ctx context.Context, recipientID, text string) error

// deliver fans text out to the given recipients over the worker pool using
// the given delivery primitive. Each recipient gets every chunk in order;
// failures on one recipient never affect another.
func (d *Dispatcher) deliver(ctx context.Context, ids []string, text string, op sendOp) {
	if len(ids) == 0 {
		return
	}
	parts := notification.Split(text, notification.MaxMessageLen)

	sem := make(chan struct{}, d.workers)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			d.sendAll(ctx, id, parts, op)
		}(id)
	}
	wg.Wait()
}

func (d *Dispatcher) sendAll(ctx context.Context, id string, parts []string, op sendOp) {
	for _, part := range parts {
		sctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := op(sctx, id, part)
		cancel()
		if err == nil {
			if d.m != nil {
				d.m.DeliveriesTotal.Inc()
			}
			continue
		}
		if notification.IsPermanent(err) {
			if d.m != nil {
				d.m.DeliveryFailures.WithLabelValues("permanent").Inc()
			}
			d.evict(ctx, id, err)
		} else {
			if d.m != nil {
				d.m.DeliveryFailures.WithLabelValues("transient").Inc()
			}
			slog.Warn("delivery failed", "recipient", id, "error", err)
		}
		return
	}
}

// evict removes a permanently unreachable recipient. Remove reports whether
// the recipient was still present, so concurrent sends racing on the same
// recipient produce exactly one eviction notice.
func (d *Dispatcher) evict(ctx context.Context, id string, cause error) {
	removed, err := d.reg.Remove(id)
	if err != nil {
		slog.Error("evicting unreachable subscriber", "recipient", id, "error", err)
		return
	}
	if !removed {
		return
	}
	if d.m != nil {
		d.m.AutoUnsubscribes.Inc()
		d.m.Subscribers.Set(float64(d.reg.Count()))
	}
	slog.Info("subscriber auto-removed", "recipient", id, "cause", cause)
	if d.adminID == "" {
		return
	}
	notice := fmt.Sprintf("Removed unreachable subscriber %s: %v", id, cause)
	if err := d.SendTo(ctx, d.adminID, notice); err != nil {
		slog.Warn("admin eviction notice failed", "error", err)
	}
}
