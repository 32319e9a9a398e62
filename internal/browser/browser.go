// Package browser defines the contract consumed from the external browser
// session provider. The provider owns tab lifecycle, process isolation and
// navigation primitives; this package only names the surface the automation
// core relies on.
package browser

import (
	"context"
	"errors"
	"time"
)

// Service identifies one of the supported chat platforms.
type Service string

const (
	ServiceWhatsApp Service = "whatsapp"
	ServiceTelegram Service = "telegram"
)

// Valid reports whether s is a known service.
func (s Service) Valid() bool {
	return s == ServiceWhatsApp || s == ServiceTelegram
}

var (
	// ErrProfileNotRunning is returned when a session is requested for a
	// profile whose browser is not started.
	ErrProfileNotRunning = errors.New("browser: profile not running")

	// ErrSessionClosed is returned by operations on a closed tab.
	ErrSessionClosed = errors.New("browser: session closed")

	// ErrNavigationTimeout is returned when a navigation does not settle
	// within the provider's deadline.
	ErrNavigationTimeout = errors.New("browser: navigation timeout")

	// ErrDialogTimeout is returned by FileDialogWaiter.Wait when no native
	// file-chooser appeared before the deadline.
	ErrDialogTimeout = errors.New("browser: file dialog not intercepted")
)

// Rect is an element bounding box in page coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Element describes a probed DOM element. A nil *Element from QueryElement
// means the selector matched nothing, which is a normal outcome, not an error.
type Element struct {
	Selector string
	Visible  bool
	Rect     Rect
}

// FileDialog is an intercepted native file-chooser dialog. Supplying the
// absolute path directly is the only upload method that preserves file
// metadata end to end.
type FileDialog interface {
	SetFiles(paths ...string) error
	Dismiss() error
}

// FileDialogWaiter is an armed interception of the next file-chooser dialog.
// Arming happens at creation time, so the dialog is caught even when it opens
// synchronously as a side effect of a click issued after arming.
type FileDialogWaiter interface {
	// Wait blocks until the dialog is intercepted, the waiter's timeout
	// elapses (ErrDialogTimeout), or ctx is done.
	Wait(ctx context.Context) (FileDialog, error)

	// Cancel disarms the interception and releases the waiter.
	Cancel()
}

// Session is one automated browser tab bound to a (profile, service) pair.
// All methods are suspension points; none are safe for concurrent use on the
// same session.
type Session interface {
	// Navigate loads url and waits for the provider's load heuristic.
	Navigate(ctx context.Context, url string) error

	// Location returns the tab's current URL.
	Location(ctx context.Context) (string, error)

	// QueryElement probes for the first element matching selector.
	// Returns (nil, nil) when nothing matches.
	QueryElement(ctx context.Context, selector string) (*Element, error)

	// Evaluate runs a script in page context and returns its result
	// serialized as a string ("" for undefined/null).
	Evaluate(ctx context.Context, script string) (string, error)

	// Type sends keystrokes to the element matching selector.
	Type(ctx context.Context, selector, text string) error

	// Press sends a single key chord (e.g. "Enter", "Control+A") to the
	// focused element.
	Press(ctx context.Context, key string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// BringToFront gives the tab foreground focus.
	BringToFront(ctx context.Context) error

	// CaptureScreenshot captures the full page as PNG bytes.
	CaptureScreenshot(ctx context.Context) ([]byte, error)

	// ExpectFileDialog arms interception of the next native file-chooser.
	ExpectFileDialog(timeout time.Duration) (FileDialogWaiter, error)

	// IsClosed reports whether the tab has been closed.
	IsClosed() bool
}

// Provider acquires sessions from the external browser runtime.
type Provider interface {
	// AcquireSession returns the tab for (profile, service), opening url in
	// a new tab if none exists. Returns ErrProfileNotRunning when the
	// profile's browser is not started.
	AcquireSession(ctx context.Context, profile string, service Service, url string) (Session, error)

	// IsProfileRunning reports whether the profile's browser is started.
	IsProfileRunning(ctx context.Context, profile string) (bool, error)
}
