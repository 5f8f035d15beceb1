package dispatch

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"signal-screenerv1/internal/model"
	"signal-screenerv1/internal/notification"
	"signal-screenerv1/internal/subscription"
)

// fakeTransport records sends and pins and can mark recipients as
// permanently gone.
type fakeTransport struct {
	mu     sync.Mutex
	sent   map[string][]string
	pinned map[string][]string
	gone   map[string]bool
	inFly  int
	maxIn  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:   map[string][]string{},
		pinned: map[string][]string{},
		gone:   map[string]bool{},
	}
}

func (f *fakeTransport) Send(_ context.Context, id, text string) error {
	f.mu.Lock()
	f.inFly++
	if f.inFly > f.maxIn {
		f.maxIn = f.inFly
	}
	f.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFly--
	if f.gone[id] {
		return notification.ErrRecipientGone
	}
	f.sent[id] = append(f.sent[id], text)
	return nil
}

func (f *fakeTransport) Pin(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[id] {
		return notification.ErrRecipientGone
	}
	f.pinned[id] = append(f.pinned[id], text)
	return nil
}

func (f *fakeTransport) Receive(context.Context, int64) ([]notification.Inbound, int64, error) {
	return nil, 0, nil
}
func (f *fakeTransport) Probe(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[id] {
		return notification.ErrRecipientGone
	}
	return nil
}
func (f *fakeTransport) SetCommands(context.Context) error { return nil }

func (f *fakeTransport) sends(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[id])
}

func (f *fakeTransport) last(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent[id]) == 0 {
		return ""
	}
	return f.sent[id][len(f.sent[id])-1]
}

func testRegistry(t *testing.T, n int) *subscription.Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := subscription.Open(filepath.Join(dir, "users.txt"), filepath.Join(dir, "prefs.json"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	for i := 0; i < n; i++ {
		r.Add(strconv.Itoa(100 + i))
	}
	return r
}

func testSignal(gran model.Granularity) model.Signal {
	return model.MomentumExtreme{
		Base: model.Base{Symbol: "BTCUSDT", Gran: gran, Time: time.Now().UTC()},
		Osc:  97.5, Close: 100,
	}
}

func TestDispatch_OneMessagePerSubscriber(t *testing.T) {
	reg := testRegistry(t, 9)
	tr := newFakeTransport()
	d := New(reg, tr, nil, "", WithWorkers(3))

	d.Dispatch(context.Background(), testSignal(model.Hourly))

	for i := 0; i < 9; i++ {
		id := strconv.Itoa(100 + i)
		if got := tr.sends(id); got != 1 {
			t.Errorf("subscriber %s: got %d sends, want 1", id, got)
		}
	}
	if tr.maxIn > 3 {
		t.Errorf("pool bound exceeded: %d concurrent sends", tr.maxIn)
	}
}

func TestDispatch_FiltersByPreferences(t *testing.T) {
	reg := testRegistry(t, 2)
	reg.SetGranularities("100", []model.Granularity{model.Daily})
	tr := newFakeTransport()
	d := New(reg, tr, nil, "")

	d.Dispatch(context.Background(), testSignal(model.Hourly))

	if tr.sends("100") != 0 {
		t.Error("daily-only subscriber must not receive hourly signal")
	}
	if tr.sends("101") != 1 {
		t.Error("default subscriber should receive the signal")
	}
}

func TestDispatch_EvictsUnreachableExactlyOnce(t *testing.T) {
	reg := testRegistry(t, 3)
	tr := newFakeTransport()
	tr.gone["101"] = true
	d := New(reg, tr, nil, "999")

	d.Broadcast(context.Background(), "hello")

	if reg.Has("101") {
		t.Fatal("unreachable subscriber should be removed")
	}
	if !reg.Has("100") || !reg.Has("102") {
		t.Fatal("reachable subscribers must be untouched")
	}
	if got := tr.sends("999"); got != 1 {
		t.Fatalf("admin should get exactly one eviction notice, got %d", got)
	}

	// A second broadcast must not touch the evicted recipient or the admin.
	d.Broadcast(context.Background(), "again")
	if got := tr.sends("999"); got != 1 {
		t.Errorf("no second eviction notice expected, got %d", got)
	}
	if tr.sends("100") != 2 || tr.sends("102") != 2 {
		t.Error("remaining subscribers should keep receiving broadcasts")
	}
}

func TestPinBroadcast_PinsForEverySubscriber(t *testing.T) {
	reg := testRegistry(t, 3)
	tr := newFakeTransport()
	d := New(reg, tr, nil, "")

	d.PinBroadcast(context.Background(), "maintenance window tonight")

	for i := 0; i < 3; i++ {
		id := strconv.Itoa(100 + i)
		if got := len(tr.pinned[id]); got != 1 {
			t.Errorf("subscriber %s: got %d pins, want 1", id, got)
		}
		if tr.sends(id) != 0 {
			t.Errorf("subscriber %s: pin must not also arrive as a plain send", id)
		}
	}
}

func TestPinBroadcast_EvictsUnreachable(t *testing.T) {
	reg := testRegistry(t, 2)
	tr := newFakeTransport()
	tr.gone["101"] = true
	d := New(reg, tr, nil, "")

	d.PinBroadcast(context.Background(), "notice")

	if reg.Has("101") {
		t.Error("permanent pin failure should evict like a send failure")
	}
	if !reg.Has("100") {
		t.Error("reachable subscriber must survive")
	}
}

func TestDispatchDigest_FiltersRowsPerSubscriber(t *testing.T) {
	reg := testRegistry(t, 3)
	reg.SetGranularities("101", []model.Granularity{model.Hourly})
	reg.SetSignalKinds("102", []model.Kind{model.KindTurtleBuy})
	tr := newFakeTransport()
	d := New(reg, tr, nil, "")

	now := time.Now().UTC()
	d.DispatchDigest(context.Background(), []model.MomentumExtreme{
		{Base: model.Base{Symbol: "HOURUSDT", Gran: model.Hourly, Time: now}, Osc: 97, Close: 1},
		{Base: model.Base{Symbol: "DAYUSDT", Gran: model.Daily, Time: now}, Osc: 2, Close: 1},
	})

	full := tr.last("100")
	if !strings.Contains(full, "HOURUSDT") || !strings.Contains(full, "DAYUSDT") {
		t.Errorf("default subscriber should see every row, got %q", full)
	}

	hourly := tr.last("101")
	if !strings.Contains(hourly, "HOURUSDT") {
		t.Errorf("hourly subscriber should see the hourly row, got %q", hourly)
	}
	if strings.Contains(hourly, "DAYUSDT") {
		t.Errorf("hourly subscriber must not see daily rows, got %q", hourly)
	}

	if tr.sends("102") != 0 {
		t.Error("subscriber with momentum disabled must get no digest")
	}
}

func TestDispatchDigest_NoMatchingRowsMeansNoMessage(t *testing.T) {
	reg := testRegistry(t, 1)
	reg.SetGranularities("100", []model.Granularity{model.FourHourly})
	tr := newFakeTransport()
	d := New(reg, tr, nil, "")

	d.DispatchDigest(context.Background(), []model.MomentumExtreme{
		{Base: model.Base{Symbol: "DAYUSDT", Gran: model.Daily, Time: time.Now().UTC()}, Osc: 3, Close: 1},
	})

	if tr.sends("100") != 0 {
		t.Error("digest with zero matching rows must not be sent")
	}
}

func TestSendTo_ChunksAtLimit(t *testing.T) {
	reg := testRegistry(t, 0)
	tr := newFakeTransport()
	d := New(reg, tr, nil, "")

	long := strings.Repeat("x", notification.MaxMessageLen+100)
	if err := d.SendTo(context.Background(), "100", long); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := tr.sends("100"); got != 2 {
		t.Fatalf("expected 2 chunks, got %d", got)
	}
}
