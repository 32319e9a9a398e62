package classify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdeck/chatdeck/internal/browser/browsertest"
)

func passwordPageSession() *browsertest.FakeSession {
	sess := browsertest.NewFakeSession("https://web.telegram.org/k/")
	sess.SetElement(".page-password")
	sess.EvalFunc = func(script string) (string, error) {
		switch {
		case strings.Contains(script, "classList.contains('active')"):
			return "true", nil
		case strings.Contains(script, "value.length"):
			return "true", nil
		case strings.Contains(script, fallbackMarkerAttr):
			return "found", nil
		}
		return "", nil
	}
	return sess
}

func TestSubmitSecondaryCredential(t *testing.T) {
	sess := passwordPageSession()
	sess.SetElement("input[name=\"notsearch_password\"]")
	sess.SetElement(".page-password button.btn-primary")

	sub := NewTelegramCredentials(fastOptions())
	registered, err := sub.SubmitSecondaryCredential(context.Background(), sess, "s3cret")
	require.NoError(t, err)
	assert.True(t, registered)

	typed := sess.Typed()
	require.Len(t, typed, 1)
	assert.Equal(t, "input[name=\"notsearch_password\"]", typed[0].Selector)
	assert.Equal(t, "s3cret", typed[0].Text)

	// Residual content is cleared before typing.
	assert.Contains(t, sess.Pressed(), "Control+A")
	assert.Contains(t, sess.Pressed(), "Delete")
	assert.Contains(t, sess.Clicked(), ".page-password button.btn-primary")
}

func TestSubmitSecondaryCredentialDOMSearchFallback(t *testing.T) {
	// No fixed selector resolves; the DOM search must tag the input and the
	// missing submit button degrades to a confirm keypress.
	sess := passwordPageSession()

	sub := NewTelegramCredentials(fastOptions())
	registered, err := sub.SubmitSecondaryCredential(context.Background(), sess, "s3cret")
	require.NoError(t, err)
	assert.True(t, registered)

	typed := sess.Typed()
	require.Len(t, typed, 1)
	assert.Equal(t, "input["+fallbackMarkerAttr+"]", typed[0].Selector)
	assert.Contains(t, sess.Pressed(), "Enter")
}

func TestSubmitSecondaryCredentialPageNotActive(t *testing.T) {
	sess := passwordPageSession()
	sess.EvalFunc = func(script string) (string, error) {
		if strings.Contains(script, "classList.contains('active')") {
			return "false", nil
		}
		return "", nil
	}

	sub := NewTelegramCredentials(fastOptions())
	_, err := sub.SubmitSecondaryCredential(context.Background(), sess, "s3cret")
	assert.ErrorIs(t, err, ErrCredentialPageNotActive)
	assert.Empty(t, sess.Typed())
}

func TestSubmitSecondaryCredentialEmptySecret(t *testing.T) {
	sess := passwordPageSession()

	sub := NewTelegramCredentials(fastOptions())
	_, err := sub.SubmitSecondaryCredential(context.Background(), sess, "   ")
	assert.Error(t, err)
}

func TestSubmitSecondaryCredentialValueNotRegistered(t *testing.T) {
	sess := passwordPageSession()
	sess.SetElement("input[name=\"notsearch_password\"]")
	sess.SetElement(".page-password button.btn-primary")
	base := sess.EvalFunc
	sess.EvalFunc = func(script string) (string, error) {
		if strings.Contains(script, "value.length") {
			return "false", nil
		}
		return base(script)
	}

	sub := NewTelegramCredentials(fastOptions())
	registered, err := sub.SubmitSecondaryCredential(context.Background(), sess, "s3cret")
	require.NoError(t, err)
	// Submission is still attempted, but the caller learns nothing stuck.
	assert.False(t, registered)
	assert.Contains(t, sess.Clicked(), ".page-password button.btn-primary")
}
