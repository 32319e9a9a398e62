// Package browsertest provides in-memory fakes for the browser provider
// contract, used by tests across the automation packages.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// TypeEvent records one Type call.
type TypeEvent struct {
	Selector string
	Text     string
}

// FakeDialog is a scriptable file-chooser dialog.
type FakeDialog struct {
	mu        sync.Mutex
	files     []string
	dismissed bool

	// SetFilesErr, when set, is returned by SetFiles.
	SetFilesErr error
}

func (d *FakeDialog) SetFiles(paths ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SetFilesErr != nil {
		return d.SetFilesErr
	}
	d.files = append(d.files, paths...)
	return nil
}

func (d *FakeDialog) Dismiss() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed = true
	return nil
}

// Files returns every path supplied via SetFiles.
func (d *FakeDialog) Files() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.files))
	copy(out, d.files)
	return out
}

// Dismissed reports whether the dialog was dismissed.
func (d *FakeDialog) Dismissed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dismissed
}

// FakeSession is a scriptable browser.Session.
// Configure it before use; accessors are safe for concurrent calls.
type FakeSession struct {
	mu sync.Mutex

	url         string
	elements    map[string]browser.Element
	navigations []string
	typed       []TypeEvent
	pressed     []string
	clicked     []string
	frontCalls  int
	closed      bool

	dialogCh chan browser.FileDialog
	armed    int

	// NavigateErr, when set, fails every Navigate call.
	NavigateErr error

	// ClickErrs maps selectors to errors returned by Click.
	ClickErrs map[string]error

	// ClickHook runs synchronously inside Click after recording, before
	// returning. Used to model a dialog opening as a click side effect.
	ClickHook func(selector string)

	// EvalFunc handles Evaluate calls. Nil means every script yields "".
	EvalFunc func(script string) (string, error)

	// Screenshot is returned by CaptureScreenshot.
	Screenshot []byte

	// ScreenshotErr, when set, fails CaptureScreenshot.
	ScreenshotErr error
}

// NewFakeSession returns a fake session positioned at url.
func NewFakeSession(url string) *FakeSession {
	return &FakeSession{
		url:      url,
		elements: map[string]browser.Element{},
		dialogCh: make(chan browser.FileDialog, 1),
	}
}

// SetElement makes selector resolvable as a visible element.
func (s *FakeSession) SetElement(selector string) {
	s.SetElementRect(selector, browser.Rect{X: 10, Y: 10, Width: 100, Height: 100})
}

// SetElementRect makes selector resolvable with an explicit bounding box.
func (s *FakeSession) SetElementRect(selector string, rect browser.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[selector] = browser.Element{Selector: selector, Visible: true, Rect: rect}
}

// RemoveElement makes selector resolve to nothing again.
func (s *FakeSession) RemoveElement(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, selector)
}

// SetURL repositions the session without recording a navigation.
func (s *FakeSession) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// DeliverDialog hands a dialog to the armed waiter, if any.
func (s *FakeSession) DeliverDialog(d browser.FileDialog) {
	select {
	case s.dialogCh <- d:
	default:
	}
}

// Close marks the session closed.
func (s *FakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Navigations returns every URL passed to Navigate.
func (s *FakeSession) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.navigations))
	copy(out, s.navigations)
	return out
}

// Typed returns every Type call in order.
func (s *FakeSession) Typed() []TypeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TypeEvent, len(s.typed))
	copy(out, s.typed)
	return out
}

// Pressed returns every key chord passed to Press.
func (s *FakeSession) Pressed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.pressed))
	copy(out, s.pressed)
	return out
}

// Clicked returns every selector passed to Click.
func (s *FakeSession) Clicked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.clicked))
	copy(out, s.clicked)
	return out
}

// FrontCalls returns the number of BringToFront calls.
func (s *FakeSession) FrontCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontCalls
}

// ArmedDialogWaiters returns how many times ExpectFileDialog was called.
func (s *FakeSession) ArmedDialogWaiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *FakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrSessionClosed
	}
	s.navigations = append(s.navigations, url)
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.url = url
	return nil
}

func (s *FakeSession) Location(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", browser.ErrSessionClosed
	}
	return s.url, nil
}

func (s *FakeSession) QueryElement(_ context.Context, selector string) (*browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	el, ok := s.elements[selector]
	if !ok {
		return nil, nil
	}
	out := el
	return &out, nil
}

func (s *FakeSession) Evaluate(_ context.Context, script string) (string, error) {
	s.mu.Lock()
	fn := s.EvalFunc
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", browser.ErrSessionClosed
	}
	if fn == nil {
		return "", nil
	}
	return fn(script)
}

func (s *FakeSession) Type(_ context.Context, selector, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrSessionClosed
	}
	s.typed = append(s.typed, TypeEvent{Selector: selector, Text: text})
	return nil
}

func (s *FakeSession) Press(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrSessionClosed
	}
	s.pressed = append(s.pressed, key)
	return nil
}

func (s *FakeSession) Click(_ context.Context, selector string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	s.clicked = append(s.clicked, selector)
	err := s.ClickErrs[selector]
	hook := s.ClickHook
	s.mu.Unlock()

	if hook != nil {
		hook(selector)
	}
	return err
}

func (s *FakeSession) BringToFront(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrSessionClosed
	}
	s.frontCalls++
	return nil
}

func (s *FakeSession) CaptureScreenshot(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	if s.ScreenshotErr != nil {
		return nil, s.ScreenshotErr
	}
	return s.Screenshot, nil
}

func (s *FakeSession) ExpectFileDialog(timeout time.Duration) (browser.FileDialogWaiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	s.armed++
	return &fakeWaiter{ch: s.dialogCh, timeout: timeout, cancelCh: make(chan struct{})}, nil
}

func (s *FakeSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeWaiter struct {
	ch      chan browser.FileDialog
	timeout time.Duration

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func (w *fakeWaiter) Wait(ctx context.Context) (browser.FileDialog, error) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case d := <-w.ch:
		return d, nil
	case <-timer.C:
		return nil, browser.ErrDialogTimeout
	case <-w.cancelCh:
		return nil, browser.ErrDialogTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *fakeWaiter) Cancel() {
	w.cancelOnce.Do(func() { close(w.cancelCh) })
}

// FakeProvider is an in-memory browser.Provider.
type FakeProvider struct {
	mu       sync.Mutex
	running  map[string]bool
	sessions map[string]*FakeSession

	// AcquireErr, when set, fails every AcquireSession call.
	AcquireErr error
}

// NewFakeProvider returns an empty provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		running:  map[string]bool{},
		sessions: map[string]*FakeSession{},
	}
}

// SetRunning marks a profile's browser as started or stopped.
func (p *FakeProvider) SetRunning(profile string, running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[profile] = running
}

// PutSession installs the session returned for (profile, service).
func (p *FakeProvider) PutSession(profile string, service browser.Service, sess *FakeSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[profile+"/"+string(service)] = sess
}

func (p *FakeProvider) AcquireSession(_ context.Context, profile string, service browser.Service, url string) (browser.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	if !p.running[profile] {
		return nil, browser.ErrProfileNotRunning
	}
	sess, ok := p.sessions[profile+"/"+string(service)]
	if !ok {
		return nil, fmt.Errorf("browsertest: no session for %s/%s", profile, service)
	}
	return sess, nil
}

func (p *FakeProvider) IsProfileRunning(_ context.Context, profile string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[profile], nil
}
