package subscription

import (
	"sync"
	"time"
)

const (
	maxAuthAttempts = 3
	lockoutWindow   = time.Hour
)

// Outcome is the admission machine's verdict for one inbound message from
// an unauthorized candidate.
type Outcome int

const (
	// OutcomePrompt — first contact: ask for the shared secret.
	OutcomePrompt Outcome = iota
	// OutcomeAuthorized — correct secret: caller creates the subscriber.
	OutcomeAuthorized
	// OutcomeWrongSecret — incorrect secret, attempts remain: re-prompt.
	OutcomeWrongSecret
	// OutcomeLocked — this attempt was the last one allowed: tell the
	// user, then ignore them for the lockout window.
	OutcomeLocked
	// OutcomeIgnored — candidate is locked out: produce no response.
	OutcomeIgnored
)

type pendingAuth struct {
	attempts int
	lockedAt time.Time
}

// Admission is the per-candidate authentication state machine. Candidates
// move Unknown → AwaitingSecret → Authorized, with a fixed lockout after
// three failed attempts. Lockout resets lazily: the first contact after the
// window elapses is evaluated as a fresh first attempt.
//
// State is in-memory only — a restart simply re-prompts candidates, which
// is acceptable for unauthenticated strangers.
type Admission struct {
	mu      sync.Mutex
	secret  string
	pending map[string]*pendingAuth
	now     func() time.Time
}

// NewAdmission creates the machine gated by the given shared secret.
func NewAdmission(secret string) *Admission {
	return &Admission{
		secret:  secret,
		pending: make(map[string]*pendingAuth),
		now:     time.Now,
	}
}

// Submit feeds one message from an unauthorized candidate through the
// machine and returns the verdict. On OutcomeAuthorized the candidate's
// pending state is destroyed; the caller is responsible for enrolling them
// in the registry.
func (a *Admission) Submit(id, text string) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, known := a.pending[id]
	if known && p.attempts >= maxAuthAttempts {
		if a.now().Sub(p.lockedAt) < lockoutWindow {
			return OutcomeIgnored
		}
		// Window elapsed: reset and evaluate this message as a fresh
		// first attempt.
		p.attempts = 0
		p.lockedAt = time.Time{}
	}

	if !known {
		a.pending[id] = &pendingAuth{}
		return OutcomePrompt
	}

	if text == a.secret {
		delete(a.pending, id)
		return OutcomeAuthorized
	}

	p.attempts++
	if p.attempts >= maxAuthAttempts {
		p.lockedAt = a.now()
		return OutcomeLocked
	}
	return OutcomeWrongSecret
}

// Forget drops any pending state for the candidate (used when an operator
// manually adds them).
func (a *Admission) Forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, id)
}
