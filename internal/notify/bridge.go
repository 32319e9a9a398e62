package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chatdeck/chatdeck/internal/monitor"
)

// defaultReplayWindow suppresses a repeat of the identical transition within
// this span. Re-checks can re-derive the same change when a persist raced a
// manual check; users should see it once.
const defaultReplayWindow = 30 * time.Second

// Broadcaster receives raw event payloads for realtime delivery.
type Broadcaster interface {
	Broadcast(ev monitor.Event)
}

// Bridge implements monitor.EventSink and fans status changes out to the
// push subscribers and every registered broadcaster.
type Bridge struct {
	push   *Pusher
	window time.Duration

	mu           sync.Mutex
	broadcasters []Broadcaster
	recent       map[string]time.Time
}

// NewBridge builds a bridge. push may be nil when web push is not configured.
func NewBridge(push *Pusher) *Bridge {
	return &Bridge{
		push:   push,
		window: defaultReplayWindow,
		recent: map[string]time.Time{},
	}
}

// AddBroadcaster registers a realtime consumer.
func (b *Bridge) AddBroadcaster(bc Broadcaster) {
	b.mu.Lock()
	b.broadcasters = append(b.broadcasters, bc)
	b.mu.Unlock()
}

// StatusChanged delivers one event. Push delivery runs off the caller's
// goroutine so a slow gateway cannot stall the scheduler.
func (b *Bridge) StatusChanged(ev monitor.Event) {
	if b.duplicate(ev) {
		notifLog.Debug("status_event_suppressed",
			slog.String("profile", ev.Profile),
			slog.String("service", string(ev.Service)),
			slog.String("status", ev.Status))
		return
	}

	b.mu.Lock()
	bcs := make([]Broadcaster, len(b.broadcasters))
	copy(bcs, b.broadcasters)
	b.mu.Unlock()

	for _, bc := range bcs {
		bc.Broadcast(ev)
	}

	if b.push.Enabled() {
		go b.push.Notify(ev)
	}
}

// duplicate records the transition and reports whether the identical one was
// already delivered inside the replay window.
func (b *Bridge) duplicate(ev monitor.Event) bool {
	key := fmt.Sprintf("%s/%s/%s", ev.Profile, ev.Service, ev.Status)
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.recent[key]; ok && now.Sub(last) < b.window {
		return true
	}
	b.recent[key] = now

	// Drop stale entries so the map tracks only the active window.
	for k, t := range b.recent {
		if now.Sub(t) >= b.window {
			delete(b.recent, k)
		}
	}
	return false
}
