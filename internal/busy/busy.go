// Package busy tracks which profiles are currently owned by an active send.
// The marker registry is the only cross-task shared mutable state in the
// automation core; monitoring consults it before taking a tab to foreground.
package busy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/logging"
)

var busyLog = logging.ForComponent(logging.CompStatus)

// Marker is an exclusive claim on a profile held for the duration of a send.
type Marker struct {
	Profile       string
	Service       browser.Service
	CorrelationID string
	AcquiredAt    time.Time
}

// Coordinator is a process-wide registry of busy profiles.
// At most one marker exists per profile at any time.
type Coordinator struct {
	mu      sync.Mutex
	markers map[string]Marker
}

// NewCoordinator returns an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{markers: map[string]Marker{}}
}

// Acquire claims the profile for a send on the given service. It returns the
// marker and true on success, or the currently held marker and false when the
// profile is already owned.
func (c *Coordinator) Acquire(profile string, service browser.Service) (Marker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if held, ok := c.markers[profile]; ok {
		return held, false
	}

	m := Marker{
		Profile:       profile,
		Service:       service,
		CorrelationID: uuid.NewString(),
		AcquiredAt:    time.Now(),
	}
	c.markers[profile] = m
	busyLog.Debug("profile_marked_busy",
		slog.String("profile", profile),
		slog.String("service", string(service)),
		slog.String("correlation_id", m.CorrelationID))
	return m, true
}

// Release frees the profile. Releasing with a stale correlation id is a no-op
// so a late release cannot drop a marker owned by a newer send.
func (c *Coordinator) Release(m Marker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.markers[m.Profile]
	if !ok || held.CorrelationID != m.CorrelationID {
		return
	}
	delete(c.markers, m.Profile)
	busyLog.Debug("profile_marked_free",
		slog.String("profile", m.Profile),
		slog.String("correlation_id", m.CorrelationID),
		slog.Duration("held_for", time.Since(held.AcquiredAt)))
}

// IsBusy reports whether the profile is currently owned by a send.
func (c *Coordinator) IsBusy(profile string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.markers[profile]
	return ok
}

// Holder returns the marker currently held for the profile, if any.
func (c *Coordinator) Holder(profile string) (Marker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markers[profile]
	return m, ok
}
