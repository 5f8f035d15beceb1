package model

// Subscriber is an authorized recipient with per-recipient filtering
// preferences. The zero value is not useful; use NewSubscriber.
type Subscriber struct {
	ID            string
	Granularities map[Granularity]bool
	SignalKinds   map[Kind]bool
}

// NewSubscriber creates a subscriber with default preferences: every
// granularity and every signal kind enabled.
func NewSubscriber(id string) Subscriber {
	s := Subscriber{
		ID:            id,
		Granularities: make(map[Granularity]bool, 3),
		SignalKinds:   make(map[Kind]bool, 5),
	}
	for _, g := range AllGranularities() {
		s.Granularities[g] = true
	}
	for _, k := range AllKinds() {
		s.SignalKinds[k] = true
	}
	return s
}

// Wants reports whether this subscriber should receive the given signal:
// both its granularity and its kind must be enabled.
func (s Subscriber) Wants(sig Signal) bool {
	return s.Granularities[sig.Granularity()] && s.SignalKinds[sig.Kind()]
}

// Clone returns a deep copy so registry snapshots cannot be mutated by
// callers.
func (s Subscriber) Clone() Subscriber {
	c := Subscriber{
		ID:            s.ID,
		Granularities: make(map[Granularity]bool, len(s.Granularities)),
		SignalKinds:   make(map[Kind]bool, len(s.SignalKinds)),
	}
	for g, v := range s.Granularities {
		c.Granularities[g] = v
	}
	for k, v := range s.SignalKinds {
		c.SignalKinds[k] = v
	}
	return c
}
