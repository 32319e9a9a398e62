package notify

import (
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/monitor"
)

func testStore(t *testing.T) *SubscriptionStore {
	t.Helper()
	return NewSubscriptionStore(filepath.Join(t.TempDir(), "subs.json"))
}

func validSub(endpoint string) Subscription {
	return Subscription{
		Endpoint: endpoint,
		Keys:     SubscriptionKeys{P256DH: "p256", Auth: "auth"},
	}
}

func TestSubscriptionStoreRoundTrip(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Upsert(validSub("https://push.example/a")))
	require.NoError(t, s.Upsert(validSub("https://push.example/b")))

	subs, err := s.List()
	require.NoError(t, err)
	require.Len(t, subs, 2)

	require.NoError(t, s.RemoveByEndpoint("https://push.example/a"))
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubscriptionStoreUpsertReplacesByEndpoint(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Upsert(validSub("https://push.example/a")))
	replacement := validSub("https://push.example/a")
	replacement.Keys.Auth = "rotated"
	require.NoError(t, s.Upsert(replacement))

	subs, err := s.List()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "rotated", subs[0].Keys.Auth)
}

func TestSubscriptionStoreRejectsIncomplete(t *testing.T) {
	s := testStore(t)

	err := s.Upsert(Subscription{Endpoint: "https://push.example/a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p256dh")

	err = s.Upsert(Subscription{Keys: SubscriptionKeys{P256DH: "p", Auth: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestNewPusherKeyValidation(t *testing.T) {
	p, err := NewPusher(PushConfig{}, testStore(t))
	require.NoError(t, err)
	assert.Nil(t, p, "no keys means push disabled")
	assert.False(t, p.Enabled())

	_, err = NewPusher(PushConfig{VAPIDPublicKey: "pub"}, testStore(t))
	assert.Error(t, err, "half-configured keys must be rejected")
}

type fakeSender struct {
	mu       sync.Mutex
	statuses map[string]int
	sent     []string
}

func (f *fakeSender) Send(_ []byte, sub Subscription) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub.Endpoint)
	if code, ok := f.statuses[sub.Endpoint]; ok {
		return code, assert.AnError
	}
	return http.StatusCreated, nil
}

func TestPusherPrunesGoneEndpoints(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Upsert(validSub("https://push.example/live")))
	require.NoError(t, store.Upsert(validSub("https://push.example/gone")))

	p, err := NewPusher(PushConfig{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}, store)
	require.NoError(t, err)
	sender := &fakeSender{statuses: map[string]int{"https://push.example/gone": http.StatusGone}}
	p.sender = sender

	p.Notify(monitor.Event{
		Profile:   "p1",
		Service:   browser.ServiceWhatsApp,
		Status:    "not_logged_in",
		Timestamp: time.Now(),
	})

	assert.Len(t, sender.sent, 2)
	subs, err := store.List()
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "https://push.example/live", subs[0].Endpoint)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []monitor.Event
}

func (r *recordingBroadcaster) Broadcast(ev monitor.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestBridgeSuppressesReplayedTransition(t *testing.T) {
	b := NewBridge(nil)
	rec := &recordingBroadcaster{}
	b.AddBroadcaster(rec)

	ev := monitor.Event{
		Profile:   "p1",
		Service:   browser.ServiceTelegram,
		Status:    "logged_in",
		Timestamp: time.Now(),
	}

	b.StatusChanged(ev)
	b.StatusChanged(ev)
	assert.Equal(t, 1, rec.count(), "identical transition inside the window delivers once")

	// A different status is a new transition.
	ev.Status = "not_logged_in"
	b.StatusChanged(ev)
	assert.Equal(t, 2, rec.count())
}

func TestBridgeWindowExpiry(t *testing.T) {
	b := NewBridge(nil)
	b.window = 10 * time.Millisecond
	rec := &recordingBroadcaster{}
	b.AddBroadcaster(rec)

	ev := monitor.Event{Profile: "p1", Service: browser.ServiceWhatsApp, Status: "logged_in"}
	b.StatusChanged(ev)
	time.Sleep(20 * time.Millisecond)
	b.StatusChanged(ev)

	assert.Equal(t, 2, rec.count())
}
