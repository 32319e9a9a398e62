package send

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/logging"
)

var sendLog = logging.ForComponent(logging.CompSend)

// Sender is one channel's delivery surface.
type Sender interface {
	Service() browser.Service
	Domain() string

	// HomeURL is the URL opened when a fresh tab has to be created.
	HomeURL() string

	// OpenConversation leaves the tab showing the conversation for address,
	// with the message input ready.
	OpenConversation(ctx context.Context, sess browser.Session, address string) error

	// InputPresent reports whether the message input is currently visible.
	// Used to re-verify a cached conversation before trusting it.
	InputPresent(ctx context.Context, sess browser.Session) (bool, error)

	// SendText types and submits the body, then polls for acceptance
	// signals. verified=false with err=nil means the poll ran out.
	SendText(ctx context.Context, sess browser.Session, body string) (verified bool, err error)

	// SendAttachment runs the attachment upload protocol for one file.
	SendAttachment(ctx context.Context, sess browser.Session, absPath string, kind AttachmentKind) error
}

// channelSpec is the per-channel selector and script inventory. One generic
// sender consumes it, the same way the status classifier consumes its specs.
type channelSpec struct {
	service browser.Service
	domain  string
	homeURL string

	// conversationURL builds the deep link that opens a conversation with
	// the normalized address.
	conversationURL func(address string) string

	// inputSelectors locate the message input, in priority order.
	inputSelectors []string

	// outgoingBubbleSelector matches sent-message bubbles, newest last.
	outgoingBubbleSelector string

	// inputEmptyScript returns "true" when the input has been cleared by
	// the page accepting the message.
	inputEmptyScript string

	// deliveredSelectors match a sent/delivered indicator on an outgoing
	// bubble.
	deliveredSelectors []string

	attach attachSpec
}

// channelSender implements Sender over a channelSpec.
type channelSender struct {
	spec channelSpec
	cfg  Config
}

func newChannelSender(spec channelSpec, cfg Config) *channelSender {
	return &channelSender{spec: spec, cfg: cfg}
}

func (s *channelSender) Service() browser.Service { return s.spec.service }
func (s *channelSender) Domain() string           { return s.spec.domain }
func (s *channelSender) HomeURL() string          { return s.spec.homeURL }

func (s *channelSender) OpenConversation(ctx context.Context, sess browser.Session, address string) error {
	url := s.spec.conversationURL(address)
	if err := sess.Navigate(ctx, url); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}

	deadline := time.Now().Add(s.cfg.ConversationOpenTimeout)
	for {
		el, err := firstVisible(ctx, sess, s.spec.inputSelectors)
		if err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
		if el != nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s conversation did not become ready", ErrInputNotFound, s.spec.service)
		}
		if err := sleep(ctx, s.cfg.ConversationOpenPoll); err != nil {
			return err
		}
	}
}

func (s *channelSender) InputPresent(ctx context.Context, sess browser.Session) (bool, error) {
	el, err := firstVisible(ctx, sess, s.spec.inputSelectors)
	if err != nil {
		return false, err
	}
	return el != nil, nil
}

func (s *channelSender) SendText(ctx context.Context, sess browser.Session, body string) (bool, error) {
	input, err := firstVisible(ctx, sess, s.spec.inputSelectors)
	if err != nil {
		return false, err
	}
	if input == nil {
		return false, fmt.Errorf("%w: %s", ErrInputNotFound, s.spec.service)
	}

	if err := sess.Click(ctx, input.Selector); err != nil {
		return false, fmt.Errorf("focus input: %w", err)
	}
	// Clear any stale draft before typing.
	if err := sess.Press(ctx, "Control+A"); err != nil {
		return false, err
	}
	if err := sess.Press(ctx, "Delete"); err != nil {
		return false, err
	}
	if err := sess.Type(ctx, input.Selector, body); err != nil {
		return false, fmt.Errorf("type body: %w", err)
	}
	if err := sess.Press(ctx, "Enter"); err != nil {
		return false, fmt.Errorf("submit body: %w", err)
	}

	return s.verifyTextSent(ctx, sess, body)
}

// verifyTextSent polls three independent acceptance signals until the
// verification window runs out: the input cleared, the body appearing in the
// newest outgoing bubble, and a sent/delivered indicator. Verified means the
// input cleared plus at least one of the other two.
func (s *channelSender) verifyTextSent(ctx context.Context, sess browser.Session, body string) (bool, error) {
	deadline := time.Now().Add(s.cfg.VerifyTimeout)
	for {
		cleared := s.evalTrue(ctx, sess, s.spec.inputEmptyScript)
		inBubble := s.evalTrue(ctx, sess, bubbleContainsScript(s.spec.outgoingBubbleSelector, body))

		delivered := false
		if el, err := firstVisible(ctx, sess, s.spec.deliveredSelectors); err == nil && el != nil {
			delivered = true
		}

		if cleared && (inBubble || delivered) {
			return true, nil
		}
		if time.Now().After(deadline) {
			sendLog.Warn("text_verify_timeout",
				slog.String("service", string(s.spec.service)),
				slog.Bool("input_cleared", cleared),
				slog.Bool("in_bubble", inBubble),
				slog.Bool("delivered", delivered))
			return false, nil
		}
		if err := sleep(ctx, s.cfg.VerifyPoll); err != nil {
			return false, err
		}
	}
}

func (s *channelSender) evalTrue(ctx context.Context, sess browser.Session, script string) bool {
	out, err := sess.Evaluate(ctx, script)
	return err == nil && out == "true"
}

// bubbleContainsScript checks the newest outgoing bubble for the body text.
func bubbleContainsScript(bubbleSelector, body string) string {
	sel, _ := json.Marshal(bubbleSelector)
	needle, _ := json.Marshal(body)
	return fmt.Sprintf(`(() => {
  const out = document.querySelectorAll(%s);
  if (!out.length) return 'false';
  const last = out[out.length - 1];
  return (last.innerText || '').includes(%s) ? 'true' : 'false';
})()`, sel, needle)
}

// firstVisible probes selectors in order and returns the first visible match,
// or nil when none matched. Probe errors abort; a non-match is normal.
func firstVisible(ctx context.Context, sess browser.Session, selectors []string) (*browser.Element, error) {
	for _, sel := range selectors {
		el, err := sess.QueryElement(ctx, sel)
		if err != nil {
			return nil, err
		}
		if el != nil && el.Visible {
			return el, nil
		}
	}
	return nil, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
