package subscription

import (
	"testing"
	"time"
)

func newTestAdmission(secret string) (*Admission, *time.Time) {
	a := NewAdmission(secret)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	return a, &now
}

func TestAdmission_HappyPath(t *testing.T) {
	a, _ := newTestAdmission("hunter2")

	if got := a.Submit("u1", "hello"); got != OutcomePrompt {
		t.Fatalf("first contact: got %v, want prompt", got)
	}
	if got := a.Submit("u1", "hunter2"); got != OutcomeAuthorized {
		t.Fatalf("correct secret: got %v, want authorized", got)
	}
	// Pending state destroyed: next contact starts over.
	if got := a.Submit("u1", "hunter2"); got != OutcomePrompt {
		t.Fatalf("after authorization: got %v, want prompt", got)
	}
}

func TestAdmission_ThreeWrongSecretsLock(t *testing.T) {
	a, _ := newTestAdmission("hunter2")
	a.Submit("u1", "hi") // prompt

	if got := a.Submit("u1", "wrong1"); got != OutcomeWrongSecret {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := a.Submit("u1", "wrong2"); got != OutcomeWrongSecret {
		t.Fatalf("attempt 2: got %v", got)
	}
	if got := a.Submit("u1", "wrong3"); got != OutcomeLocked {
		t.Fatalf("attempt 3: got %v, want locked", got)
	}
}

func TestAdmission_LockoutIgnoresAllInput(t *testing.T) {
	a, now := newTestAdmission("hunter2")
	a.Submit("u1", "hi")
	a.Submit("u1", "w")
	a.Submit("u1", "w")
	a.Submit("u1", "w") // locked

	// Inside the window nothing changes state — even the right secret.
	*now = now.Add(30 * time.Minute)
	if got := a.Submit("u1", "hunter2"); got != OutcomeIgnored {
		t.Fatalf("locked, correct secret: got %v, want ignored", got)
	}
	*now = now.Add(29 * time.Minute)
	if got := a.Submit("u1", "anything"); got != OutcomeIgnored {
		t.Fatalf("locked at 59m: got %v, want ignored", got)
	}
}

func TestAdmission_LazyResetAfterWindow(t *testing.T) {
	a, now := newTestAdmission("hunter2")
	a.Submit("u1", "hi")
	a.Submit("u1", "w")
	a.Submit("u1", "w")
	a.Submit("u1", "w") // locked at T

	*now = now.Add(lockoutWindow)

	// First contact after the window is evaluated as a fresh first
	// attempt — wrong secret counts as attempt 1, not a prompt.
	if got := a.Submit("u1", "still-wrong"); got != OutcomeWrongSecret {
		t.Fatalf("post-window wrong secret: got %v, want wrong-secret", got)
	}
	if got := a.Submit("u1", "hunter2"); got != OutcomeAuthorized {
		t.Fatalf("post-window correct secret: got %v, want authorized", got)
	}
}

func TestAdmission_CandidatesAreIndependent(t *testing.T) {
	a, _ := newTestAdmission("hunter2")
	a.Submit("u1", "hi")
	a.Submit("u1", "w")
	a.Submit("u1", "w")
	a.Submit("u1", "w") // u1 locked

	if got := a.Submit("u2", "hello"); got != OutcomePrompt {
		t.Fatalf("u2 first contact: got %v, want prompt", got)
	}
	if got := a.Submit("u2", "hunter2"); got != OutcomeAuthorized {
		t.Fatalf("u2 correct secret: got %v, want authorized", got)
	}
}

func TestAdmission_Forget(t *testing.T) {
	a, _ := newTestAdmission("hunter2")
	a.Submit("u1", "hi")
	a.Submit("u1", "w")
	a.Forget("u1")

	if got := a.Submit("u1", "anything"); got != OutcomePrompt {
		t.Fatalf("after forget: got %v, want prompt", got)
	}
}
