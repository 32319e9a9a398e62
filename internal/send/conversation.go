package send

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// openConversation records which conversation a profile's tab is believed to
// show. Advisory only: the page can drift underneath us, so a cache hit is
// always re-verified before it is trusted.
type openConversation struct {
	service browser.Service
	address string
}

type conversationCache struct {
	mu sync.Mutex
	m  map[string]openConversation
}

func newConversationCache() *conversationCache {
	return &conversationCache{m: map[string]openConversation{}}
}

func (c *conversationCache) get(profile string) (openConversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	oc, ok := c.m[profile]
	return oc, ok
}

func (c *conversationCache) put(profile string, oc openConversation) {
	c.mu.Lock()
	c.m[profile] = oc
	c.mu.Unlock()
}

func (c *conversationCache) invalidate(profile string) {
	c.mu.Lock()
	delete(c.m, profile)
	c.mu.Unlock()
}

// ensureConversation leaves the session showing the conversation for address.
// A cache hit skips the (slow) open only after the message input is still
// present and the tab is still on the channel's domain.
func (p *Pipeline) ensureConversation(ctx context.Context, sess browser.Session, sender Sender, profile, address string) error {
	channel := sender.Service()

	if oc, ok := p.convs.get(profile); ok && oc.service == channel && oc.address == address {
		if p.conversationStillOpen(ctx, sess, sender) {
			sendLog.Debug("conversation_cache_hit",
				slog.String("profile", profile),
				slog.String("service", string(channel)))
			return nil
		}
		p.convs.invalidate(profile)
	}

	if err := sender.OpenConversation(ctx, sess, address); err != nil {
		p.convs.invalidate(profile)
		return err
	}
	p.convs.put(profile, openConversation{service: channel, address: address})
	return nil
}

func (p *Pipeline) conversationStillOpen(ctx context.Context, sess browser.Session, sender Sender) bool {
	ok, err := sender.InputPresent(ctx, sess)
	if err != nil || !ok {
		return false
	}
	loc, err := sess.Location(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(loc, sender.Domain())
}
