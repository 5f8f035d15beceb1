// Package subscription owns the durable subscriber collection and the
// admission-control state machine that gates new enrollments.
//
// The registry is the single writer for two files: a newline-delimited
// recipient ID list (created with 0600 permissions) and a JSON preferences
// record keyed by ID. All read-modify-write sequences go through one mutex;
// the dispatcher only ever sees transient snapshots.
package subscription

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"signal-screenerv1/internal/model"
)

// prefsRecord is the on-disk preference shape, kept compatible with the
// historical user_settings.json format.
type prefsRecord struct {
	EnabledTimeframes []string `json:"enabled_timeframes"`
	EnabledSignals    []string `json:"enabled_signals"`
}

// Registry is the durable set of authorized recipients plus their
// notification preferences.
type Registry struct {
	mu        sync.Mutex
	usersPath string
	prefsPath string
	subs      map[string]model.Subscriber
}

// Open loads the registry from disk, creating empty files on first run.
// An unreadable or corrupted store is a startup-fatal condition; a pref
// record that is merely missing for a known ID degrades to defaults.
func Open(usersPath, prefsPath string) (*Registry, error) {
	r := &Registry{
		usersPath: usersPath,
		prefsPath: prefsPath,
		subs:      make(map[string]model.Subscriber),
	}

	ids, err := loadUserIDs(usersPath)
	if err != nil {
		return nil, fmt.Errorf("subscriber list %s: %w", usersPath, err)
	}
	prefs, err := loadPrefs(prefsPath)
	if err != nil {
		return nil, fmt.Errorf("preferences %s: %w", prefsPath, err)
	}

	for _, id := range ids {
		sub := model.NewSubscriber(id)
		if rec, ok := prefs[id]; ok {
			applyPrefs(&sub, rec)
		}
		r.subs[id] = sub
	}
	return r, nil
}

func loadUserIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, nil, 0o600); werr != nil {
			return nil, werr
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	seen := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		id := strings.TrimSpace(line)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func loadPrefs(path string) (map[string]prefsRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := os.WriteFile(path, []byte("{}"), 0o600); werr != nil {
			return nil, werr
		}
		return map[string]prefsRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := map[string]prefsRecord{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return out, nil
}

// applyPrefs overwrites a subscriber's enabled sets from a disk record.
// Unknown tokens are dropped; an empty or unparseable field keeps defaults.
func applyPrefs(sub *model.Subscriber, rec prefsRecord) {
	if gs, err := model.ParseGranularities(strings.Join(rec.EnabledTimeframes, ",")); err == nil {
		for g := range sub.Granularities {
			sub.Granularities[g] = false
		}
		for _, g := range gs {
			sub.Granularities[g] = true
		}
	}
	if ks, err := model.ParseKinds(strings.Join(rec.EnabledSignals, ",")); err == nil {
		for k := range sub.SignalKinds {
			sub.SignalKinds[k] = false
		}
		for _, k := range ks {
			sub.SignalKinds[k] = true
		}
	}
}

// Add creates a subscriber with default preferences. Reports whether the ID
// was newly added.
func (r *Registry) Add(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; ok {
		return false, nil
	}
	r.subs[id] = model.NewSubscriber(id)
	if err := r.persistLocked(); err != nil {
		delete(r.subs, id)
		return false, err
	}
	return true, nil
}

// Remove deletes a subscriber and its preferences. Reports whether the ID
// was present — callers rely on this to make eviction notices one-time.
func (r *Registry) Remove(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return false, nil
	}
	delete(r.subs, id)
	if err := r.persistLocked(); err != nil {
		r.subs[id] = sub
		return false, err
	}
	return true, nil
}

// Has reports whether the ID is an authorized subscriber.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.subs[id]
	return ok
}

// Get returns a copy of the subscriber.
func (r *Registry) Get(id string) (model.Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return model.Subscriber{}, false
	}
	return sub.Clone(), true
}

// Snapshot returns a transient copy of all subscribers, sorted by ID.
// Mutating the result does not affect the registry.
func (r *Registry) Snapshot() []model.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// SetGranularities replaces the enabled granularity set for a subscriber.
func (r *Registry) SetGranularities(id string, gs []model.Granularity) error {
	return r.update(id, func(sub *model.Subscriber) {
		for g := range sub.Granularities {
			sub.Granularities[g] = false
		}
		for _, g := range gs {
			sub.Granularities[g] = true
		}
	})
}

// SetSignalKinds replaces the enabled signal-kind set for a subscriber.
func (r *Registry) SetSignalKinds(id string, ks []model.Kind) error {
	return r.update(id, func(sub *model.Subscriber) {
		for k := range sub.SignalKinds {
			sub.SignalKinds[k] = false
		}
		for _, k := range ks {
			sub.SignalKinds[k] = true
		}
	})
}

func (r *Registry) update(id string, mutate func(*model.Subscriber)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orig, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("unknown subscriber %s", id)
	}
	// Mutate a detached clone so a persist failure leaves the in-memory
	// state exactly as stored on disk.
	sub := orig.Clone()
	mutate(&sub)
	r.subs[id] = sub
	if err := r.persistLocked(); err != nil {
		r.subs[id] = orig
		return err
	}
	return nil
}

// persistLocked rewrites both files. Caller must hold the mutex.
func (r *Registry) persistLocked() error {
	ids := make([]string, 0, len(r.subs))
	prefs := make(map[string]prefsRecord, len(r.subs))
	for id, sub := range r.subs {
		ids = append(ids, id)
		prefs[id] = toPrefsRecord(sub)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(r.usersPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write subscriber list: %w", err)
	}

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.WriteFile(r.prefsPath, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

func toPrefsRecord(sub model.Subscriber) prefsRecord {
	rec := prefsRecord{}
	for _, g := range model.AllGranularities() {
		if sub.Granularities[g] {
			rec.EnabledTimeframes = append(rec.EnabledTimeframes, string(g))
		}
	}
	for _, k := range model.AllKinds() {
		if sub.SignalKinds[k] {
			rec.EnabledSignals = append(rec.EnabledSignals, string(k))
		}
	}
	return rec
}
