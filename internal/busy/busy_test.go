package busy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdeck/chatdeck/internal/browser"
)

func TestAcquireRelease(t *testing.T) {
	c := NewCoordinator()

	m, ok := c.Acquire("p1", browser.ServiceWhatsApp)
	require.True(t, ok)
	assert.Equal(t, "p1", m.Profile)
	assert.NotEmpty(t, m.CorrelationID)
	assert.True(t, c.IsBusy("p1"))
	assert.False(t, c.IsBusy("p2"))

	c.Release(m)
	assert.False(t, c.IsBusy("p1"))
}

func TestAcquireWhileHeldFails(t *testing.T) {
	c := NewCoordinator()

	first, ok := c.Acquire("p1", browser.ServiceWhatsApp)
	require.True(t, ok)

	held, ok := c.Acquire("p1", browser.ServiceTelegram)
	assert.False(t, ok)
	assert.Equal(t, first.CorrelationID, held.CorrelationID)

	// Independent profiles are unaffected.
	_, ok = c.Acquire("p2", browser.ServiceTelegram)
	assert.True(t, ok)
}

func TestStaleReleaseIsNoOp(t *testing.T) {
	c := NewCoordinator()

	stale, ok := c.Acquire("p1", browser.ServiceWhatsApp)
	require.True(t, ok)
	c.Release(stale)

	fresh, ok := c.Acquire("p1", browser.ServiceWhatsApp)
	require.True(t, ok)

	// Releasing the already-released marker must not free the new owner.
	c.Release(stale)
	assert.True(t, c.IsBusy("p1"))

	got, held := c.Holder("p1")
	require.True(t, held)
	assert.Equal(t, fresh.CorrelationID, got.CorrelationID)
}

func TestAtMostOneMarkerPerProfile(t *testing.T) {
	c := NewCoordinator()

	var wg sync.WaitGroup
	wins := make(chan Marker, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m, ok := c.Acquire("p1", browser.ServiceWhatsApp); ok {
				wins <- m
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []Marker
	for m := range wins {
		winners = append(winners, m)
	}
	require.Len(t, winners, 1)
	assert.True(t, c.IsBusy("p1"))
	c.Release(winners[0])
	assert.False(t, c.IsBusy("p1"))
}
