package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/browser/browsertest"
	"github.com/chatdeck/chatdeck/internal/store"
)

func TestCheckerLoggedInAccount(t *testing.T) {
	prov := browsertest.NewFakeProvider()
	prov.SetRunning("p1", true)

	sess := browsertest.NewFakeSession("https://web.whatsapp.com/")
	sess.SetElement("#side")
	sess.SetElement("[data-testid=\"chat-list\"]")
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	c := NewChecker(prov, fastOptions())
	res := c.Check(context.Background(), store.Account{
		Profile: "p1",
		Service: browser.ServiceWhatsApp,
	})

	assert.Equal(t, StatusLoggedIn, res.Status)
	assert.False(t, res.CheckedAt.IsZero())
}

func TestCheckerProfileNotRunning(t *testing.T) {
	prov := browsertest.NewFakeProvider()
	prov.SetRunning("p1", false)

	c := NewChecker(prov, fastOptions())
	res := c.Check(context.Background(), store.Account{
		Profile: "p1",
		Service: browser.ServiceWhatsApp,
	})

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "acquire session")
}

func TestCheckerUnknownService(t *testing.T) {
	c := NewChecker(browsertest.NewFakeProvider(), fastOptions())
	res := c.Check(context.Background(), store.Account{
		Profile: "p1",
		Service: browser.Service("irc"),
	})

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "unknown service")
}

func TestCheckerSubmitCredentialNeedsSession(t *testing.T) {
	prov := browsertest.NewFakeProvider()
	prov.SetRunning("p1", false)

	c := NewChecker(prov, fastOptions())
	ok, err := c.SubmitSecondaryCredential(context.Background(), "p1", "hunter2")
	require.Error(t, err)
	assert.False(t, ok)
}
