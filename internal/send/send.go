// Package send delivers outbound messages through a profile's chat web
// client: channel resolution, anti-throttle pacing, text send with bounded
// verification, and the race-sensitive attachment upload protocol.
package send

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// AttachmentKind selects the attachment-menu item used for the upload.
type AttachmentKind string

const (
	AttachmentDocument AttachmentKind = "document"
	AttachmentMedia    AttachmentKind = "media"
)

var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".3gp": true,
}

// KindForPath infers the attachment kind from the file extension.
func KindForPath(path string) AttachmentKind {
	if mediaExtensions[strings.ToLower(filepath.Ext(path))] {
		return AttachmentMedia
	}
	return AttachmentDocument
}

// Attachment references one file to upload, in caller-given order.
type Attachment struct {
	// Path is relative to the uploads root, or absolute.
	Path string

	// Kind is inferred from the extension when empty.
	Kind AttachmentKind
}

func (a Attachment) kind() AttachmentKind {
	if a.Kind != "" {
		return a.Kind
	}
	return KindForPath(a.Path)
}

// Preference is the target-channel policy when no explicit channel is given.
type Preference string

const (
	PreferWhatsApp Preference = "prefer_whatsapp"
	PreferTelegram Preference = "prefer_telegram"
	PreferBoth     Preference = "both"
)

// Request is one unit of outbound work.
type Request struct {
	Profile string
	Address string
	Body    string

	Attachments []Attachment

	// Channel, when set, bypasses preference resolution.
	Channel browser.Service

	// Preference plus RecipientChannels derive the channel when Channel is
	// empty; whatsapp is the default when nothing usable is known.
	Preference        Preference
	RecipientChannels []browser.Service

	// PreSendDelay overrides the configured delay. Nil means the default; a
	// pointer to zero skips the delay entirely (used when one logical
	// request is split across both channels).
	PreSendDelay *time.Duration

	// TypingSimMin/Max bound the uniformly-random human-typing delay.
	// Zero max disables the simulation.
	TypingSimMin time.Duration
	TypingSimMax time.Duration
}

// Result reports the outcome of one send. Failures never escape Send as
// errors; they land here as a human-readable reason.
type Result struct {
	Success   bool
	Channel   browser.Service
	RequestID string

	// TextVerified reports whether the body was observed as accepted by the
	// page. A false value with Success true means the verification poll ran
	// out, not that delivery failed.
	TextVerified bool

	AttachmentsSent int

	Error string
}

// ResolveChannel derives the target channel for a request.
func ResolveChannel(req Request) browser.Service {
	if req.Channel.Valid() {
		return req.Channel
	}

	supports := map[browser.Service]bool{}
	for _, s := range req.RecipientChannels {
		supports[s] = true
	}
	known := len(supports) > 0

	switch req.Preference {
	case PreferTelegram:
		if !known || supports[browser.ServiceTelegram] {
			return browser.ServiceTelegram
		}
		return browser.ServiceWhatsApp
	case PreferWhatsApp:
		if !known || supports[browser.ServiceWhatsApp] {
			return browser.ServiceWhatsApp
		}
		return browser.ServiceTelegram
	case PreferBoth:
		// The caller splits "both" into two requests; each leg resolves to
		// the best single channel for what the recipient supports.
		if known && !supports[browser.ServiceWhatsApp] && supports[browser.ServiceTelegram] {
			return browser.ServiceTelegram
		}
		return browser.ServiceWhatsApp
	default:
		if known && !supports[browser.ServiceWhatsApp] && supports[browser.ServiceTelegram] {
			return browser.ServiceTelegram
		}
		return browser.ServiceWhatsApp
	}
}
