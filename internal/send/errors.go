package send

import "errors"

var (
	// ErrAddressInvalid rejects malformed target addresses. Fails fast, no
	// retry.
	ErrAddressInvalid = errors.New("send: invalid address")

	// ErrProfileBusy means another send currently owns the profile.
	ErrProfileBusy = errors.New("send: profile busy with another send")

	// ErrMenuInteraction means the attachment-menu item could not be
	// clicked; the file chooser cannot appear without it.
	ErrMenuInteraction = errors.New("send: attachment menu interaction failed")

	// ErrDialogNotIntercepted means the menu click succeeded but no file
	// chooser followed.
	ErrDialogNotIntercepted = errors.New("send: file chooser not intercepted after menu click")

	// ErrFileNotFound carries every probed path.
	ErrFileNotFound = errors.New("send: attachment file not found")

	// ErrInputNotFound means the conversation's message input never
	// appeared.
	ErrInputNotFound = errors.New("send: message input not found")
)
