// Package classify determines the login state of a chat web client from its
// rendered content. One generic engine consumes a per-service indicator spec;
// the whatsapp and telegram variants differ only in their selector lists,
// readiness heuristic and optional capability extensions.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/logging"
	"github.com/chatdeck/chatdeck/internal/retry"
)

var statusLog = logging.ForComponent(logging.CompStatus)

// Status is the classified login state.
type Status string

const (
	StatusLoggedIn    Status = "logged_in"
	StatusNotLoggedIn Status = "not_logged_in"
	StatusUnknown     Status = "unknown"
	StatusError       Status = "error"
)

// Result is the immutable outcome of one classification.
type Result struct {
	Status Status

	// CredentialRequired is set when the service is waiting for a secondary
	// credential (e.g. the telegram two-step password).
	CredentialRequired bool

	// Artifact holds a PNG of the login code region when one was visible.
	Artifact []byte

	// Error carries the last failure reason when Status is StatusError.
	Error string

	CheckedAt time.Time
}

// Options tunes retry and wait behavior. Zero values take defaults.
type Options struct {
	// Attempts is the full-probe retry budget (default 3).
	Attempts int

	// BackoffBase is the delay after the first failed attempt (default 500ms).
	BackoffBase time.Duration

	// BackoffCeiling caps the exponential backoff (default 5s). Empirically
	// tuned; kept configurable rather than load-bearing.
	BackoffCeiling time.Duration

	// ReadyTimeout bounds the page-readiness wait (default 10s).
	ReadyTimeout time.Duration

	// ReadyPoll is the readiness probe interval (default 250ms).
	ReadyPoll time.Duration

	// ReadyFallback is the fixed delay applied when no readiness marker
	// appeared in time (default 2s).
	ReadyFallback time.Duration

	// ArtifactSettle is the delay before the screenshot fallback so a
	// freshly rendered code can finish painting (default 750ms).
	ArtifactSettle time.Duration
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffCeiling <= 0 {
		o.BackoffCeiling = 5 * time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 10 * time.Second
	}
	if o.ReadyPoll <= 0 {
		o.ReadyPoll = 250 * time.Millisecond
	}
	if o.ReadyFallback <= 0 {
		o.ReadyFallback = 2 * time.Second
	}
	if o.ArtifactSettle <= 0 {
		o.ArtifactSettle = 750 * time.Millisecond
	}
	return o
}

// Classifier probes a session and classifies its login state.
type Classifier struct {
	spec Spec
	opts Options
}

// New builds a classifier for the given spec.
func New(spec Spec, opts Options) *Classifier {
	return &Classifier{spec: spec, opts: opts.withDefaults()}
}

// ForService returns a classifier for a known service.
func ForService(service browser.Service, opts Options) (*Classifier, error) {
	switch service {
	case browser.ServiceWhatsApp:
		return New(WhatsAppSpec(), opts), nil
	case browser.ServiceTelegram:
		return New(TelegramSpec(), opts), nil
	default:
		return nil, fmt.Errorf("classify: unknown service %q", service)
	}
}

// Service returns the service this classifier is bound to.
func (c *Classifier) Service() browser.Service {
	return c.spec.Service
}

// LoginURL returns the URL a fresh session should be opened at.
func (c *Classifier) LoginURL() string {
	return c.spec.URL
}

// Classify probes the session and returns its login state. The full probe
// sequence is retried with exponential backoff on transport-level failures;
// missing elements are normal outcomes and never consume the retry budget.
// Failures never escape as errors: exhausting the budget yields StatusError.
func (c *Classifier) Classify(ctx context.Context, sess browser.Session) Result {
	policy := retry.Policy{
		Attempts:  c.opts.Attempts,
		BaseDelay: c.opts.BackoffBase,
		MaxDelay:  c.opts.BackoffCeiling,
	}

	var res Result
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		r, err := c.attempt(ctx, sess)
		if err != nil {
			statusLog.Debug("classify_attempt_failed",
				slog.String("service", string(c.spec.Service)),
				slog.String("error", err.Error()))
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return Result{Status: StatusError, Error: err.Error(), CheckedAt: time.Now()}
	}
	res.CheckedAt = time.Now()
	return res
}

// attempt runs one full probe sequence. Returned errors are transport-level
// failures that count toward the retry budget.
func (c *Classifier) attempt(ctx context.Context, sess browser.Session) (Result, error) {
	if sess.IsClosed() {
		return Result{}, browser.ErrSessionClosed
	}

	loc, err := sess.Location(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read location: %w", err)
	}
	// Navigate only when the tab is elsewhere. A reload on the login page
	// can interrupt an in-progress code refresh, so repeated classifications
	// of an already-open page stay navigation-free.
	if !strings.Contains(loc, c.spec.Domain) {
		if err := sess.Navigate(ctx, c.spec.URL); err != nil {
			return Result{}, fmt.Errorf("navigate %s: %w", c.spec.URL, err)
		}
	}

	if err := c.waitReady(ctx, sess); err != nil {
		return Result{}, err
	}

	// Indicator groups are mutually exclusive and evaluated in fixed
	// priority order.
	el, err := c.firstVisible(ctx, sess, c.spec.LoggedInMarkers)
	if err != nil {
		return Result{}, err
	}
	if el != nil {
		return Result{Status: StatusLoggedIn}, nil
	}

	active, err := c.credentialPageActive(ctx, sess)
	if err != nil {
		return Result{}, err
	}
	if active {
		return Result{Status: StatusNotLoggedIn, CredentialRequired: true}, nil
	}

	el, err = c.firstVisible(ctx, sess, c.spec.ArtifactMarkers)
	if err != nil {
		return Result{}, err
	}
	if el != nil {
		res := Result{Status: StatusNotLoggedIn}
		art, artErr := c.fetchArtifact(ctx, sess, el)
		if artErr != nil {
			// Artifact capture is best effort; the status stands.
			statusLog.Debug("artifact_capture_failed",
				slog.String("service", string(c.spec.Service)),
				slog.String("error", artErr.Error()))
		} else {
			res.Artifact = art
		}
		return res, nil
	}

	el, err = c.firstVisible(ctx, sess, c.spec.LoginMarkers)
	if err != nil {
		return Result{}, err
	}
	if el != nil {
		return Result{Status: StatusNotLoggedIn}, nil
	}

	return Result{Status: StatusUnknown}, nil
}

// waitReady polls the spec's readiness markers, falling back to a fixed delay
// when none appear in time.
func (c *Classifier) waitReady(ctx context.Context, sess browser.Session) error {
	deadline := time.Now().Add(c.opts.ReadyTimeout)
	for time.Now().Before(deadline) {
		el, err := c.firstVisible(ctx, sess, c.spec.ReadyMarkers)
		if err != nil {
			return err
		}
		if el != nil {
			return nil
		}
		if err := sleep(ctx, c.opts.ReadyPoll); err != nil {
			return err
		}
	}
	return sleep(ctx, c.opts.ReadyFallback)
}

// firstVisible returns the first visible element matching any selector, or
// nil when none match. Only transport failures are returned as errors.
func (c *Classifier) firstVisible(ctx context.Context, sess browser.Session, selectors []string) (*browser.Element, error) {
	for _, sel := range selectors {
		el, err := sess.QueryElement(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("probe %q: %w", sel, err)
		}
		if el != nil && el.Visible {
			return el, nil
		}
	}
	return nil, nil
}

// credentialPageActive reports whether the secondary-credential page is the
// active one. A matching marker alone is not enough: telegram keeps inactive
// copies of the password page in the DOM, so the spec's activity script has
// the final word.
func (c *Classifier) credentialPageActive(ctx context.Context, sess browser.Session) (bool, error) {
	el, err := c.firstVisible(ctx, sess, c.spec.CredentialMarkers)
	if err != nil {
		return false, err
	}
	if el == nil {
		return false, nil
	}
	if c.spec.CredentialActiveScript == "" {
		return true, nil
	}
	out, err := sess.Evaluate(ctx, c.spec.CredentialActiveScript)
	if err != nil {
		return false, fmt.Errorf("credential activity check: %w", err)
	}
	return out == "true", nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
