package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/store"
)

// Checker runs login-status checks against live sessions acquired from the
// browser provider. It is the concrete checker behind both the monitoring
// scheduler and the on-demand check endpoint.
type Checker struct {
	provider    browser.Provider
	classifiers map[browser.Service]*Classifier
	credentials *TelegramCredentials
}

// NewChecker builds a checker with one classifier per known service.
func NewChecker(provider browser.Provider, opts Options) *Checker {
	return &Checker{
		provider: provider,
		classifiers: map[browser.Service]*Classifier{
			browser.ServiceWhatsApp: New(WhatsAppSpec(), opts),
			browser.ServiceTelegram: New(TelegramSpec(), opts),
		},
		credentials: NewTelegramCredentials(opts),
	}
}

// Check classifies the account's login state. Provider-level failures come
// back as StatusError results, never as errors, so one broken profile cannot
// distort a caller's control flow.
func (c *Checker) Check(ctx context.Context, account store.Account) Result {
	cl, ok := c.classifiers[account.Service]
	if !ok {
		return Result{
			Status:    StatusError,
			Error:     fmt.Sprintf("unknown service %q", account.Service),
			CheckedAt: time.Now(),
		}
	}

	sess, err := c.provider.AcquireSession(ctx, account.Profile, account.Service, cl.LoginURL())
	if err != nil {
		return Result{
			Status:    StatusError,
			Error:     fmt.Sprintf("acquire session: %v", err),
			CheckedAt: time.Now(),
		}
	}

	return cl.Classify(ctx, sess)
}

// SubmitSecondaryCredential enters the telegram two-step password for the
// profile. It reports whether the page registered the secret.
func (c *Checker) SubmitSecondaryCredential(ctx context.Context, profile, secret string) (bool, error) {
	cl := c.classifiers[browser.ServiceTelegram]
	sess, err := c.provider.AcquireSession(ctx, profile, browser.ServiceTelegram, cl.LoginURL())
	if err != nil {
		return false, fmt.Errorf("acquire session: %w", err)
	}
	return c.credentials.SubmitSecondaryCredential(ctx, sess, secret)
}
