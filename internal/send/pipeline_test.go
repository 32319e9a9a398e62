package send

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/browser/browsertest"
	"github.com/chatdeck/chatdeck/internal/busy"
)

const (
	waInput      = `#main footer div[contenteditable="true"]`
	waAttach     = `button[aria-label="Attach"]`
	waDocItem    = `li[data-testid="mi-attach-document"]`
	waSendButton = `span[data-icon="send"]`
)

func fastSendConfig(root string) Config {
	return Config{
		PreSendDelay:            time.Millisecond,
		MinSendGap:              time.Millisecond,
		InterAttachmentDelay:    time.Millisecond,
		ConversationOpenTimeout: 100 * time.Millisecond,
		ConversationOpenPoll:    5 * time.Millisecond,
		VerifyTimeout:           50 * time.Millisecond,
		VerifyPoll:              5 * time.Millisecond,
		MenuWait:                50 * time.Millisecond,
		MenuPoll:                5 * time.Millisecond,
		MenuGrace:               time.Millisecond,
		MenuItemAttempts:        2,
		MenuItemRetryDelay:      time.Millisecond,
		DialogTimeout:           5 * time.Second,
		PreviewWait:             30 * time.Millisecond,
		PreviewPoll:             5 * time.Millisecond,
		UploadsRoot:             root,
	}
}

// readyWhatsAppSession returns a session where the conversation opens
// immediately and every page-side probe answers positively.
func readyWhatsAppSession() *browsertest.FakeSession {
	sess := browsertest.NewFakeSession("https://web.whatsapp.com/")
	sess.SetElement(waInput)
	sess.EvalFunc = func(script string) (string, error) {
		if strings.Contains(script, "JSON.stringify(labels)") {
			return `["Document","Photos & videos"]`, nil
		}
		return "true", nil
	}
	return sess
}

func newTestPipeline(cfg Config) (*Pipeline, *browsertest.FakeProvider, *busy.Coordinator) {
	coord := busy.NewCoordinator()
	prov := browsertest.NewFakeProvider()
	return NewPipeline(cfg, prov, coord), prov, coord
}

func TestSendTextHappyPath(t *testing.T) {
	p, prov, _ := newTestPipeline(fastSendConfig(t.TempDir()))
	sess := readyWhatsAppSession()
	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	res := p.Send(context.Background(), Request{
		Profile: "p1",
		Address: "+1 (555) 123-4567",
		Body:    "hello there",
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, browser.ServiceWhatsApp, res.Channel)
	assert.True(t, res.TextVerified)
	assert.NotEmpty(t, res.RequestID)

	navs := sess.Navigations()
	require.Len(t, navs, 1)
	assert.Equal(t, "https://web.whatsapp.com/send?phone=15551234567", navs[0])

	typed := sess.Typed()
	require.Len(t, typed, 1)
	assert.Equal(t, "hello there", typed[0].Text)
	assert.Contains(t, sess.Pressed(), "Enter")
}

func TestSendTelegramDeepLink(t *testing.T) {
	p, prov, _ := newTestPipeline(fastSendConfig(t.TempDir()))
	sess := browsertest.NewFakeSession("https://web.telegram.org/k/")
	sess.SetElement(`.input-message-input`)
	sess.EvalFunc = func(string) (string, error) { return "true", nil }
	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceTelegram, sess)

	res := p.Send(context.Background(), Request{
		Profile: "p1",
		Address: "15551234567",
		Body:    "hi",
		Channel: browser.ServiceTelegram,
	})

	require.True(t, res.Success, "error: %s", res.Error)
	navs := sess.Navigations()
	require.Len(t, navs, 1)
	assert.Equal(t, "https://web.telegram.org/k/#+15551234567", navs[0])
}

func TestSendInvalidAddressFailsFast(t *testing.T) {
	p, _, _ := newTestPipeline(fastSendConfig(t.TempDir()))

	res := p.Send(context.Background(), Request{Profile: "p1", Address: "bogus", Body: "x"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid address")
}

func TestSendBusyProfileRejected(t *testing.T) {
	p, prov, coord := newTestPipeline(fastSendConfig(t.TempDir()))
	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, readyWhatsAppSession())

	marker, ok := coord.Acquire("p1", browser.ServiceTelegram)
	require.True(t, ok)
	defer coord.Release(marker)

	res := p.Send(context.Background(), Request{Profile: "p1", Address: "15551234567", Body: "x"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "busy")
}

func TestSendReleasesBusyMarker(t *testing.T) {
	p, prov, coord := newTestPipeline(fastSendConfig(t.TempDir()))
	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, readyWhatsAppSession())

	res := p.Send(context.Background(), Request{Profile: "p1", Address: "15551234567", Body: "x"})
	require.True(t, res.Success, "error: %s", res.Error)

	assert.False(t, coord.IsBusy("p1"))
}

func TestSendProfileNotRunning(t *testing.T) {
	p, prov, _ := newTestPipeline(fastSendConfig(t.TempDir()))
	prov.SetRunning("p1", false)

	res := p.Send(context.Background(), Request{Profile: "p1", Address: "15551234567", Body: "x"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "profile not running")
}

func TestSendConversationCacheSkipsReopen(t *testing.T) {
	p, prov, _ := newTestPipeline(fastSendConfig(t.TempDir()))
	sess := readyWhatsAppSession()
	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	req := Request{Profile: "p1", Address: "15551234567", Body: "first"}
	require.True(t, p.Send(context.Background(), req).Success)

	req.Body = "second"
	require.True(t, p.Send(context.Background(), req).Success)

	// The cached conversation re-verified, so the deep link fired once.
	assert.Len(t, sess.Navigations(), 1)
}

func TestSendCachedConversationReverified(t *testing.T) {
	p, prov, _ := newTestPipeline(fastSendConfig(t.TempDir()))
	sess := readyWhatsAppSession()
	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	req := Request{Profile: "p1", Address: "15551234567", Body: "first"}
	require.True(t, p.Send(context.Background(), req).Success)

	// The page drifted: input gone, so the cache must not be trusted.
	sess.RemoveElement(waInput)

	res := p.Send(context.Background(), req)
	assert.False(t, res.Success)
	assert.Len(t, sess.Navigations(), 2, "drifted cache hit must reopen the conversation")
}

func TestSendVerifyTimeoutStillDeliversAttachments(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "report.pdf")

	p, prov, _ := newTestPipeline(fastSendConfig(root))
	sess := readyWhatsAppSession()
	sess.SetElement(waAttach)
	sess.SetElement(waDocItem)
	sess.SetElement(waSendButton)

	// Every acceptance probe answers negatively, so text verification runs
	// out its window.
	sess.EvalFunc = func(script string) (string, error) {
		if strings.Contains(script, "return menu ?") {
			return "true", nil
		}
		return "false", nil
	}

	dialog := &browsertest.FakeDialog{}
	sess.ClickHook = func(selector string) {
		if selector == waDocItem {
			sess.DeliverDialog(dialog)
		}
	}

	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	res := p.Send(context.Background(), Request{
		Profile:     "p1",
		Address:     "15551234567",
		Body:        "see attached",
		Attachments: []Attachment{{Path: "report.pdf"}},
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.False(t, res.TextVerified)
	assert.Equal(t, 1, res.AttachmentsSent)
	assert.Equal(t, []string{path}, dialog.Files())
}

func TestSendAttachmentDocument(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "invoice.pdf")

	p, prov, _ := newTestPipeline(fastSendConfig(root))
	sess := readyWhatsAppSession()
	sess.SetElement(waAttach)
	sess.SetElement(waDocItem)
	sess.SetElement(waSendButton)

	dialog := &browsertest.FakeDialog{}
	sess.ClickHook = func(selector string) {
		if selector == waDocItem {
			sess.DeliverDialog(dialog)
		}
	}

	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	res := p.Send(context.Background(), Request{
		Profile:     "p1",
		Address:     "15551234567",
		Attachments: []Attachment{{Path: "invoice.pdf"}},
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, 1, res.AttachmentsSent)
	assert.Equal(t, 1, sess.ArmedDialogWaiters())

	// The chooser got exactly the resolved absolute path, nothing else.
	assert.Equal(t, []string{path}, dialog.Files())
	assert.Contains(t, sess.Clicked(), waSendButton)
}

func TestSendFirstAttachmentPrecededByDelay(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "invoice.pdf")

	cfg := fastSendConfig(root)
	cfg.InterAttachmentDelay = 80 * time.Millisecond

	p, prov, _ := newTestPipeline(cfg)
	sess := readyWhatsAppSession()
	sess.SetElement(waAttach)
	sess.SetElement(waDocItem)
	sess.SetElement(waSendButton)
	sess.ClickHook = func(selector string) {
		if selector == waDocItem {
			sess.DeliverDialog(&browsertest.FakeDialog{})
		}
	}

	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	// No body: the first attachment still gets the full delay.
	start := time.Now()
	res := p.Send(context.Background(), Request{
		Profile:     "p1",
		Address:     "15551234567",
		Attachments: []Attachment{{Path: "invoice.pdf"}},
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, 1, res.AttachmentsSent)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSendAttachmentMenuClickFailureCancelsWaiter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "invoice.pdf")

	cfg := fastSendConfig(root)
	cfg.DialogTimeout = 10 * time.Second

	p, prov, _ := newTestPipeline(cfg)
	sess := readyWhatsAppSession()
	sess.SetElement(waAttach)
	sess.SetElement(waDocItem)
	sess.ClickErrs = map[string]error{waDocItem: errors.New("node detached")}

	// No labels visible either, so the fuzzy fallback cannot rescue the
	// click.
	sess.EvalFunc = func(script string) (string, error) {
		if strings.Contains(script, "JSON.stringify(labels)") {
			return "[]", nil
		}
		if strings.Contains(script, "it.click()") {
			return "missing", nil
		}
		return "true", nil
	}

	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	start := time.Now()
	res := p.Send(context.Background(), Request{
		Profile:     "p1",
		Address:     "15551234567",
		Attachments: []Attachment{{Path: "invoice.pdf"}},
	})
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "menu interaction failed")

	// The armed waiter was cancelled, not awaited: the 10s chooser timeout
	// never entered the picture.
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, 1, sess.ArmedDialogWaiters())
}

func TestSendAttachmentDialogNeverAppears(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "invoice.pdf")

	cfg := fastSendConfig(root)
	cfg.DialogTimeout = 30 * time.Millisecond

	p, prov, _ := newTestPipeline(cfg)
	sess := readyWhatsAppSession()
	sess.SetElement(waAttach)
	sess.SetElement(waDocItem)
	// Menu item click succeeds but no chooser follows.

	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	res := p.Send(context.Background(), Request{
		Profile:     "p1",
		Address:     "15551234567",
		Attachments: []Attachment{{Path: "invoice.pdf"}},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "file chooser not intercepted")
}

func TestSendAttachmentMenuItemByFuzzyLabel(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "invoice.pdf")

	p, prov, _ := newTestPipeline(fastSendConfig(root))
	sess := readyWhatsAppSession()
	sess.SetElement(waAttach)
	sess.SetElement(waSendButton)
	// The document item selector rots; only labels remain.

	dialog := &browsertest.FakeDialog{}
	sess.EvalFunc = func(script string) (string, error) {
		switch {
		case strings.Contains(script, "JSON.stringify(labels)"):
			return `["Photos & videos","Document","Camera"]`, nil
		case strings.Contains(script, "items[1]"):
			sess.DeliverDialog(dialog)
			return "clicked", nil
		}
		return "true", nil
	}

	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	res := p.Send(context.Background(), Request{
		Profile:     "p1",
		Address:     "15551234567",
		Attachments: []Attachment{{Path: "invoice.pdf"}},
	})

	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, []string{path}, dialog.Files())
}

func TestSendMissingFileEnumeratesProbes(t *testing.T) {
	root := t.TempDir()

	p, prov, _ := newTestPipeline(fastSendConfig(root))
	sess := readyWhatsAppSession()
	prov.SetRunning("p1", true)
	prov.PutSession("p1", browser.ServiceWhatsApp, sess)

	res := p.Send(context.Background(), Request{
		Profile:     "p1",
		Address:     "15551234567",
		Attachments: []Attachment{{Path: "nope.pdf"}},
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "file not found")
	assert.Contains(t, res.Error, root)
}

func TestSendConcurrentProfilesDoNotInterfere(t *testing.T) {
	p, prov, _ := newTestPipeline(fastSendConfig(t.TempDir()))
	for _, profile := range []string{"p1", "p2", "p3"} {
		prov.SetRunning(profile, true)
		prov.PutSession(profile, browser.ServiceWhatsApp, readyWhatsAppSession())
	}

	results := make(chan Result, 3)
	for _, profile := range []string{"p1", "p2", "p3"} {
		go func(profile string) {
			results <- p.Send(context.Background(), Request{
				Profile: profile,
				Address: "15551234567",
				Body:    "hi",
			})
		}(profile)
	}

	for i := 0; i < 3; i++ {
		res := <-results
		assert.True(t, res.Success, "error: %s", res.Error)
	}
}
