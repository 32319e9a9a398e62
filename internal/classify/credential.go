package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// ErrCredentialPageNotActive is returned when a secondary credential is
// submitted while the service is not asking for one.
var ErrCredentialPageNotActive = errors.New("classify: credential page not active")

// CredentialSubmitter is the capability extension for services with a
// secondary-credential step. Only telegram implements it.
type CredentialSubmitter interface {
	// SubmitSecondaryCredential types the secret and attempts submission.
	// The returned bool reports whether a value was registered in the input
	// before submission was attempted.
	SubmitSecondaryCredential(ctx context.Context, sess browser.Session, secret string) (bool, error)
}

// fallbackMarkerAttr tags the password input found by the DOM-search fallback
// so it can be addressed through a stable selector afterwards.
const fallbackMarkerAttr = "data-chatdeck-credential"

var telegramPasswordSelectors = []string{
	"input[name=\"notsearch_password\"]",
	".page-password input[type=\"password\"]",
}

// The input's parent structure differs across reloads, so a fixed selector is
// not enough; search the DOM for any visible password input as a fallback.
const telegramPasswordSearchScript = `(() => {
	const inputs = Array.from(document.querySelectorAll('input[type="password"]'));
	const el = inputs.find(i => i.offsetParent !== null);
	if (!el) return '';
	el.setAttribute('` + fallbackMarkerAttr + `', '');
	return 'found';
})()`

var telegramSubmitSelectors = []string{
	".page-password button.btn-primary",
	".page-password button[type=\"submit\"]",
}

// TelegramCredentials implements CredentialSubmitter for Telegram Web's
// two-step password page.
type TelegramCredentials struct {
	classifier *Classifier
}

// NewTelegramCredentials builds the telegram credential capability.
func NewTelegramCredentials(opts Options) *TelegramCredentials {
	return &TelegramCredentials{classifier: New(TelegramSpec(), opts)}
}

// SubmitSecondaryCredential re-verifies the password page is active, locates
// the input, clears it, types the secret and clicks the submit control (or
// falls back to a confirm keypress).
func (t *TelegramCredentials) SubmitSecondaryCredential(ctx context.Context, sess browser.Session, secret string) (bool, error) {
	if strings.TrimSpace(secret) == "" {
		return false, fmt.Errorf("classify: secret is required")
	}

	active, err := t.classifier.credentialPageActive(ctx, sess)
	if err != nil {
		return false, err
	}
	if !active {
		return false, ErrCredentialPageNotActive
	}

	sel, err := t.locatePasswordInput(ctx, sess)
	if err != nil {
		return false, err
	}

	// Clear residual content before typing.
	if err := sess.Click(ctx, sel); err != nil {
		return false, fmt.Errorf("focus password input: %w", err)
	}
	_ = sess.Press(ctx, "Control+A")
	_ = sess.Press(ctx, "Delete")

	if err := sess.Type(ctx, sel, secret); err != nil {
		return false, fmt.Errorf("type secret: %w", err)
	}

	registered, err := t.inputHasValue(ctx, sess, sel)
	if err != nil {
		return false, err
	}

	if clickErr := t.clickSubmit(ctx, sess); clickErr != nil {
		// Generic confirm keypress as last resort.
		if pressErr := sess.Press(ctx, "Enter"); pressErr != nil {
			return registered, fmt.Errorf("submit credential: %w", pressErr)
		}
	}
	return registered, nil
}

func (t *TelegramCredentials) locatePasswordInput(ctx context.Context, sess browser.Session) (string, error) {
	for _, sel := range telegramPasswordSelectors {
		el, err := sess.QueryElement(ctx, sel)
		if err != nil {
			return "", fmt.Errorf("probe %q: %w", sel, err)
		}
		if el != nil && el.Visible {
			return sel, nil
		}
	}

	out, err := sess.Evaluate(ctx, telegramPasswordSearchScript)
	if err != nil {
		return "", fmt.Errorf("password input search: %w", err)
	}
	if out != "found" {
		return "", fmt.Errorf("classify: password input not found")
	}
	return "input[" + fallbackMarkerAttr + "]", nil
}

func (t *TelegramCredentials) inputHasValue(ctx context.Context, sess browser.Session, sel string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el && el.value.length > 0 ? 'true' : 'false';
	})()`, sel)
	out, err := sess.Evaluate(ctx, script)
	if err != nil {
		return false, fmt.Errorf("read back input value: %w", err)
	}
	return out == "true", nil
}

func (t *TelegramCredentials) clickSubmit(ctx context.Context, sess browser.Session) error {
	for _, sel := range telegramSubmitSelectors {
		el, err := sess.QueryElement(ctx, sel)
		if err != nil {
			return err
		}
		if el == nil || !el.Visible {
			continue
		}
		return sess.Click(ctx, sel)
	}
	return fmt.Errorf("classify: submit control not found")
}
