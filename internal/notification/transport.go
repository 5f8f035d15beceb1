// Package notification provides the messaging transport boundary (send,
// receive, probe) and the human-readable formatting of signals.
//
// The core never retries sends: each attempt is timeout-bounded and its
// failure is classified as either permanent (recipient gone — triggers
// auto-unsubscribe upstream) or transient (logged only).
package notification

import (
	"context"
	"errors"
)

// ErrRecipientGone marks a permanent delivery failure: the platform reports
// the recipient as blocked, deactivated or otherwise unreachable forever.
// Check with errors.Is.
var ErrRecipientGone = errors.New("recipient permanently unreachable")

// IsPermanent reports whether a delivery error is permanent.
func IsPermanent(err error) bool { return errors.Is(err, ErrRecipientGone) }

// Inbound is one message received from the platform.
type Inbound struct {
	UpdateID int64
	SenderID string
	Username string
	Text     string
}

// Transport is the messaging platform boundary consumed by the dispatcher
// and the inbound listener.
type Transport interface {
	// Send delivers text to one recipient. A returned error satisfying
	// errors.Is(err, ErrRecipientGone) is permanent; anything else is
	// transient.
	Send(ctx context.Context, recipientID, text string) error

	// Receive polls for inbound messages after the given cursor and
	// returns them with the next cursor to use.
	Receive(ctx context.Context, offset int64) ([]Inbound, int64, error)

	// Pin delivers text to one recipient and pins it in the chat. Failure
	// classification matches Send.
	Pin(ctx context.Context, recipientID, text string) error

	// Probe checks reachability of a recipient without sending a visible
	// message. Used by the bulk-cleanup operator command.
	Probe(ctx context.Context, recipientID string) error

	// SetCommands registers the bot command menu with the platform.
	SetCommands(ctx context.Context) error
}
