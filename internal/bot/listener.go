// Package bot runs the inbound message loop: polling the transport, routing
// operator and subscriber commands, and feeding strangers through the
// admission machine.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"signal-screenerv1/internal/dispatch"
	"signal-screenerv1/internal/metrics"
	"signal-screenerv1/internal/model"
	"signal-screenerv1/internal/notification"
	"signal-screenerv1/internal/subscription"
)

const pollInterval = 10 * time.Second

const (
	msgPrompt      = "This bot is invite-only. Reply with the access password to subscribe."
	msgWrongSecret = "Wrong password. Try again."
	msgLocked      = "Too many failed attempts. Try again in an hour."
	msgWelcome     = "You're in. Alerts for all timeframes and signal kinds are enabled; use /settings to review and /settimeframes, /setsignals to adjust."
	msgGoodbye     = "Unsubscribed. Message the bot again any time to re-join."
	msgHelp        = "Commands: /settings, /settimeframes <1h,4h,1d>, /setsignals <kinds>, /unsubscribe"
)

// Listener polls the transport and reacts to inbound messages.
type Listener struct {
	tr      notification.Transport
	reg     *subscription.Registry
	adm     *subscription.Admission
	d       *dispatch.Dispatcher
	m       *metrics.Metrics
	health  *metrics.Health
	adminID string

	offset int64
}

// New creates a Listener. health may be nil.
func New(tr notification.Transport, reg *subscription.Registry, adm *subscription.Admission, d *dispatch.Dispatcher, m *metrics.Metrics, health *metrics.Health, adminID string) *Listener {
	return &Listener{tr: tr, reg: reg, adm: adm, d: d, m: m, health: health, adminID: adminID}
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried on the next tick; the cursor only advances on success.
func (l *Listener) Run(ctx context.Context) {
	if err := l.tr.SetCommands(ctx); err != nil {
		slog.Warn("registering bot commands", "error", err)
	}
	if l.health != nil {
		l.health.SetListenerAlive(true)
		defer l.health.SetListenerAlive(false)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		l.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Listener) poll(ctx context.Context) {
	inbound, next, err := l.tr.Receive(ctx, l.offset)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("polling updates", "error", err)
		}
		return
	}
	l.offset = next
	for _, in := range inbound {
		l.handle(ctx, in)
	}
}

func (l *Listener) handle(ctx context.Context, in notification.Inbound) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return
	}

	if in.SenderID == l.adminID && strings.HasPrefix(text, "/") {
		if l.handleAdminCommand(ctx, in, text) {
			return
		}
	}

	if l.reg.Has(in.SenderID) || in.SenderID == l.adminID {
		l.handleSubscriberCommand(ctx, in, text)
		return
	}

	l.handleStranger(ctx, in, text)
}

// handleAdminCommand returns false when the command is not an operator
// command, so admin IDs fall through to the subscriber commands.
func (l *Listener) handleAdminCommand(ctx context.Context, in notification.Inbound, text string) bool {
	cmd, arg := splitCommand(text)
	switch cmd {
	case "/adduser":
		if arg == "" {
			l.reply(ctx, in, "Usage: /adduser <id>")
			return true
		}
		added, err := l.reg.Add(arg)
		if err != nil {
			l.reply(ctx, in, fmt.Sprintf("Add failed: %v", err))
			return true
		}
		l.adm.Forget(arg)
		l.syncSubscriberGauge()
		if added {
			l.reply(ctx, in, fmt.Sprintf("Added %s (%d subscribers).", arg, l.reg.Count()))
		} else {
			l.reply(ctx, in, fmt.Sprintf("%s is already subscribed.", arg))
		}

	case "/removeuser":
		if arg == "" {
			l.reply(ctx, in, "Usage: /removeuser <id>")
			return true
		}
		removed, err := l.reg.Remove(arg)
		if err != nil {
			l.reply(ctx, in, fmt.Sprintf("Remove failed: %v", err))
			return true
		}
		l.syncSubscriberGauge()
		if removed {
			l.reply(ctx, in, fmt.Sprintf("Removed %s (%d subscribers).", arg, l.reg.Count()))
		} else {
			l.reply(ctx, in, fmt.Sprintf("%s was not subscribed.", arg))
		}

	case "/listusers":
		subs := l.reg.Snapshot()
		ids := make([]string, 0, len(subs))
		for _, s := range subs {
			ids = append(ids, s.ID)
		}
		sort.Strings(ids)
		l.reply(ctx, in, fmt.Sprintf("%d subscribers:\n%s", len(ids), strings.Join(ids, "\n")))

	case "/cleanup":
		removed := l.cleanup(ctx)
		l.reply(ctx, in, fmt.Sprintf("Cleanup done: removed %d unreachable subscribers, %d remain.", removed, l.reg.Count()))

	case "/broadcast":
		if arg == "" {
			l.reply(ctx, in, "Usage: /broadcast <text>")
			return true
		}
		l.d.Broadcast(ctx, arg)
		l.reply(ctx, in, fmt.Sprintf("Broadcast sent to %d subscribers.", l.reg.Count()))

	case "/pin":
		if arg == "" {
			l.reply(ctx, in, "Usage: /pin <text>")
			return true
		}
		l.d.PinBroadcast(ctx, arg)
		l.reply(ctx, in, fmt.Sprintf("Announcement pinned for %d subscribers.", l.reg.Count()))

	default:
		return false
	}
	return true
}

func (l *Listener) handleSubscriberCommand(ctx context.Context, in notification.Inbound, text string) {
	cmd, arg := splitCommand(text)
	switch cmd {
	case "/settings":
		sub, ok := l.reg.Get(in.SenderID)
		if !ok {
			l.reply(ctx, in, msgHelp)
			return
		}
		l.reply(ctx, in, formatSettings(sub))

	case "/settimeframes":
		grans, err := model.ParseGranularities(arg)
		if err != nil {
			l.reply(ctx, in, fmt.Sprintf("Invalid timeframes: %v. Valid: %s", err, joinGranularities()))
			return
		}
		if err := l.reg.SetGranularities(in.SenderID, grans); err != nil {
			l.reply(ctx, in, fmt.Sprintf("Update failed: %v", err))
			return
		}
		sub, _ := l.reg.Get(in.SenderID)
		l.reply(ctx, in, formatSettings(sub))

	case "/setsignals":
		kinds, err := model.ParseKinds(arg)
		if err != nil {
			l.reply(ctx, in, fmt.Sprintf("Invalid signal kinds: %v. Valid: %s", err, joinKinds()))
			return
		}
		if err := l.reg.SetSignalKinds(in.SenderID, kinds); err != nil {
			l.reply(ctx, in, fmt.Sprintf("Update failed: %v", err))
			return
		}
		sub, _ := l.reg.Get(in.SenderID)
		l.reply(ctx, in, formatSettings(sub))

	case "/unsubscribe":
		if removed, _ := l.reg.Remove(in.SenderID); removed {
			l.syncSubscriberGauge()
			l.reply(ctx, in, msgGoodbye)
		}

	default:
		l.reply(ctx, in, msgHelp)
	}
}

func (l *Listener) handleStranger(ctx context.Context, in notification.Inbound, text string) {
	switch l.adm.Submit(in.SenderID, text) {
	case subscription.OutcomePrompt:
		l.reply(ctx, in, msgPrompt)

	case subscription.OutcomeAuthorized:
		if _, err := l.reg.Add(in.SenderID); err != nil {
			slog.Error("enrolling subscriber", "recipient", in.SenderID, "error", err)
			l.reply(ctx, in, "Something went wrong, try again later.")
			return
		}
		l.syncSubscriberGauge()
		l.reply(ctx, in, msgWelcome)
		l.notifyAdmin(ctx, fmt.Sprintf("New subscriber: %s (@%s)", in.SenderID, in.Username))
		slog.Info("subscriber enrolled", "recipient", in.SenderID)

	case subscription.OutcomeWrongSecret:
		l.reply(ctx, in, msgWrongSecret)

	case subscription.OutcomeLocked:
		if l.m != nil {
			l.m.AuthLockouts.Inc()
		}
		l.reply(ctx, in, msgLocked)
		slog.Info("candidate locked out", "recipient", in.SenderID)

	case subscription.OutcomeIgnored:
		// Locked out: stay silent.
	}
}

// cleanup probes every subscriber and removes the permanently unreachable.
func (l *Listener) cleanup(ctx context.Context) int {
	removed := 0
	for _, sub := range l.reg.Snapshot() {
		if err := l.tr.Probe(ctx, sub.ID); err == nil || !notification.IsPermanent(err) {
			continue
		}
		if ok, err := l.reg.Remove(sub.ID); err == nil && ok {
			removed++
			slog.Info("cleanup removed subscriber", "recipient", sub.ID)
		}
	}
	if removed > 0 {
		l.syncSubscriberGauge()
	}
	return removed
}

func (l *Listener) reply(ctx context.Context, in notification.Inbound, text string) {
	if err := l.d.SendTo(ctx, in.SenderID, text); err != nil {
		slog.Warn("command reply failed", "recipient", in.SenderID, "error", err)
	}
}

func (l *Listener) notifyAdmin(ctx context.Context, text string) {
	if l.adminID == "" {
		return
	}
	if err := l.d.SendTo(ctx, l.adminID, text); err != nil {
		slog.Warn("admin notice failed", "error", err)
	}
}

func (l *Listener) syncSubscriberGauge() {
	if l.m != nil {
		l.m.Subscribers.Set(float64(l.reg.Count()))
	}
}

func splitCommand(text string) (cmd, arg string) {
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(strings.TrimSpace(parts[0]))
	// Strip the @botname suffix groups append to commands.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

func formatSettings(sub model.Subscriber) string {
	var grans, kinds []string
	for _, g := range model.AllGranularities() {
		if sub.Granularities[g] {
			grans = append(grans, string(g))
		}
	}
	for _, k := range model.AllKinds() {
		if sub.SignalKinds[k] {
			kinds = append(kinds, string(k))
		}
	}
	return fmt.Sprintf("Timeframes: %s\nSignals: %s", strings.Join(grans, ", "), strings.Join(kinds, ", "))
}

func joinGranularities() string {
	var out []string
	for _, g := range model.AllGranularities() {
		out = append(out, string(g))
	}
	return strings.Join(out, ", ")
}

func joinKinds() string {
	var out []string
	for _, k := range model.AllKinds() {
		out = append(out, string(k))
	}
	return strings.Join(out, ", ")
}
