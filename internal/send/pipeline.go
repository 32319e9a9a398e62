package send

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/busy"
	"github.com/chatdeck/chatdeck/internal/telemetry"
)

// Config tunes the sending pipeline.
type Config struct {
	// PreSendDelay is the default settle delay before any page interaction
	// (default 2s). Per-request overrides can skip it.
	PreSendDelay time.Duration

	// MinSendGap is the per-profile pacing floor between sends (default 1s).
	MinSendGap time.Duration

	// InterAttachmentDelay separates consecutive uploads (default 1.5s).
	InterAttachmentDelay time.Duration

	ConversationOpenTimeout time.Duration // default 10s
	ConversationOpenPoll    time.Duration // default 250ms

	VerifyTimeout time.Duration // default 5s
	VerifyPoll    time.Duration // default 200ms

	MenuWait           time.Duration // default 5s
	MenuPoll           time.Duration // default 250ms
	MenuGrace          time.Duration // default 500ms
	MenuItemAttempts   int           // default 5
	MenuItemRetryDelay time.Duration // default 300ms

	DialogTimeout time.Duration // default 5s

	PreviewWait time.Duration // default 5s
	PreviewPoll time.Duration // default 500ms

	// UploadsRoot anchors relative attachment paths; ExtraUploadsRoots are
	// probed in order after it.
	UploadsRoot       string
	ExtraUploadsRoots []string
}

func (c Config) withDefaults() Config {
	def := func(d *time.Duration, v time.Duration) {
		if *d <= 0 {
			*d = v
		}
	}
	def(&c.PreSendDelay, 2*time.Second)
	def(&c.MinSendGap, time.Second)
	def(&c.InterAttachmentDelay, 1500*time.Millisecond)
	def(&c.ConversationOpenTimeout, 10*time.Second)
	def(&c.ConversationOpenPoll, 250*time.Millisecond)
	def(&c.VerifyTimeout, 5*time.Second)
	def(&c.VerifyPoll, 200*time.Millisecond)
	def(&c.MenuWait, 5*time.Second)
	def(&c.MenuPoll, 250*time.Millisecond)
	def(&c.MenuGrace, 500*time.Millisecond)
	def(&c.MenuItemRetryDelay, 300*time.Millisecond)
	def(&c.DialogTimeout, 5*time.Second)
	def(&c.PreviewWait, 5*time.Second)
	def(&c.PreviewPoll, 500*time.Millisecond)
	if c.MenuItemAttempts <= 0 {
		c.MenuItemAttempts = 5
	}
	return c
}

// Pipeline executes send requests against the browser provider. Sends for
// different profiles run concurrently; a profile is exclusive for the
// duration of one send via the busy coordinator.
type Pipeline struct {
	cfg      Config
	provider browser.Provider
	busy     *busy.Coordinator
	senders  map[browser.Service]Sender
	convs    *conversationCache

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPipeline builds a pipeline with the default channel senders.
func NewPipeline(cfg Config, provider browser.Provider, coord *busy.Coordinator) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:      cfg,
		provider: provider,
		busy:     coord,
		senders:  map[browser.Service]Sender{},
		convs:    newConversationCache(),
		limiters: map[string]*rate.Limiter{},
	}
	p.RegisterSender(newChannelSender(whatsAppSpec(), cfg))
	p.RegisterSender(newChannelSender(telegramSpec(), cfg))
	return p
}

// RegisterSender installs or replaces the sender for a channel.
func (p *Pipeline) RegisterSender(s Sender) {
	p.senders[s.Service()] = s
}

// limiter returns the profile's pacing limiter, creating it on first use.
func (p *Pipeline) limiter(profile string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[profile]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.cfg.MinSendGap), 1)
		p.limiters[profile] = l
	}
	return l
}

// Send executes one request end to end. Failures never surface as errors;
// they come back as Result{Success: false} with the reason in Error.
func (p *Pipeline) Send(ctx context.Context, req Request) Result {
	reqID := uuid.NewString()
	channel := ResolveChannel(req)

	address, err := NormalizeAddress(req.Address)
	if err != nil {
		return p.fail(reqID, channel, req.Profile, err)
	}

	sender, ok := p.senders[channel]
	if !ok {
		return p.fail(reqID, channel, req.Profile, fmt.Errorf("no sender for channel %q", channel))
	}

	marker, ok := p.busy.Acquire(req.Profile, channel)
	if !ok {
		return p.fail(reqID, channel, req.Profile,
			fmt.Errorf("%w (held by %s since %s)", ErrProfileBusy,
				marker.Service, marker.AcquiredAt.Format(time.RFC3339)))
	}
	defer p.busy.Release(marker)

	sendLog.Info("send_started",
		slog.String("request_id", reqID),
		slog.String("profile", req.Profile),
		slog.String("channel", string(channel)),
		slog.Int("attachments", len(req.Attachments)))

	if err := p.pace(ctx, req); err != nil {
		return p.fail(reqID, channel, req.Profile, err)
	}

	sess, err := p.provider.AcquireSession(ctx, req.Profile, channel, sender.HomeURL())
	if err != nil {
		return p.fail(reqID, channel, req.Profile, fmt.Errorf("acquire session: %w", err))
	}
	if err := sess.BringToFront(ctx); err != nil {
		return p.fail(reqID, channel, req.Profile, fmt.Errorf("focus tab: %w", err))
	}

	if err := p.ensureConversation(ctx, sess, sender, req.Profile, address); err != nil {
		return p.fail(reqID, channel, req.Profile, err)
	}

	res := Result{Channel: channel, RequestID: reqID}
	var firstErr error

	if req.Body != "" {
		verified, err := sender.SendText(ctx, sess, req.Body)
		if err != nil {
			// Keep going: attachments may still deliver, and partial
			// delivery beats none.
			firstErr = fmt.Errorf("text send: %w", err)
			p.convs.invalidate(req.Profile)
		}
		res.TextVerified = err == nil && verified
	}

	for _, att := range req.Attachments {
		// Every attachment is preceded by the fixed delay, the first one
		// included, so uploads never ride directly on the conversation open.
		if err := sleep(ctx, p.cfg.InterAttachmentDelay); err != nil {
			firstErr = coalesce(firstErr, err)
			break
		}

		path, err := ResolveUploadPath(p.cfg.UploadsRoot, p.cfg.ExtraUploadsRoots, att.Path)
		if err != nil {
			firstErr = coalesce(firstErr, err)
			telemetry.AttachmentsTotal.WithLabelValues(string(channel), "failure").Inc()
			break
		}

		if err := sender.SendAttachment(ctx, sess, path, att.kind()); err != nil {
			firstErr = coalesce(firstErr, fmt.Errorf("attachment %q: %w", att.Path, err))
			telemetry.AttachmentsTotal.WithLabelValues(string(channel), "failure").Inc()
			p.convs.invalidate(req.Profile)
			break
		}
		res.AttachmentsSent++
		telemetry.AttachmentsTotal.WithLabelValues(string(channel), "success").Inc()
	}

	if firstErr != nil {
		res.Error = firstErr.Error()
		telemetry.SendsTotal.WithLabelValues(string(channel), "failure").Inc()
		sendLog.Warn("send_failed",
			slog.String("request_id", reqID),
			slog.String("profile", req.Profile),
			slog.String("channel", string(channel)),
			slog.String("error", res.Error))
		return res
	}

	res.Success = true
	telemetry.SendsTotal.WithLabelValues(string(channel), "success").Inc()
	sendLog.Info("send_completed",
		slog.String("request_id", reqID),
		slog.String("profile", req.Profile),
		slog.String("channel", string(channel)),
		slog.Bool("text_verified", res.TextVerified),
		slog.Int("attachments_sent", res.AttachmentsSent))
	return res
}

// pace applies the per-profile rate floor, the pre-send settle delay and the
// optional human-typing simulation.
func (p *Pipeline) pace(ctx context.Context, req Request) error {
	if err := p.limiter(req.Profile).Wait(ctx); err != nil {
		return err
	}

	delay := p.cfg.PreSendDelay
	if req.PreSendDelay != nil {
		delay = *req.PreSendDelay
	}
	if err := sleep(ctx, delay); err != nil {
		return err
	}

	if req.TypingSimMax > req.TypingSimMin && req.TypingSimMax > 0 {
		span := req.TypingSimMax - req.TypingSimMin
		d := req.TypingSimMin + time.Duration(rand.Int63n(int64(span)))
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) fail(reqID string, channel browser.Service, profile string, err error) Result {
	telemetry.SendsTotal.WithLabelValues(string(channel), "failure").Inc()
	sendLog.Warn("send_failed",
		slog.String("request_id", reqID),
		slog.String("profile", profile),
		slog.String("channel", string(channel)),
		slog.String("error", err.Error()))
	return Result{Channel: channel, RequestID: reqID, Error: err.Error()}
}

func coalesce(first, next error) error {
	if first != nil {
		return first
	}
	return next
}
