package classify

import "github.com/chatdeck/chatdeck/internal/browser"

// WhatsAppSpec returns the indicator spec for WhatsApp Web.
//
// Selector lists carry several generations of the markup; the renderer has
// shuffled test ids and landing classes more than once.
func WhatsAppSpec() Spec {
	return Spec{
		Service: browser.ServiceWhatsApp,
		URL:     "https://web.whatsapp.com/",
		Domain:  "web.whatsapp.com",
		ReadyMarkers: []string{
			"#app .two",
			"#side",
			".landing-wrapper",
			"[data-testid=\"qrcode\"]",
		},
		LoggedInMarkers: []string{
			"[data-testid=\"chat-list\"]",
			"#pane-side",
			"div[aria-label=\"Chat list\"]",
			"#main footer",
		},
		ArtifactMarkers: []string{
			"div[data-ref] canvas",
			"canvas[aria-label*=\"QR\"]",
			"[data-testid=\"qrcode\"] canvas",
		},
		ArtifactScript: `(() => {
			const c = document.querySelector('div[data-ref] canvas')
				|| document.querySelector('canvas[aria-label*="QR"]');
			return c ? c.toDataURL('image/png') : '';
		})()`,
		LoginMarkers: []string{
			".landing-main",
			".landing-window",
			"[data-testid=\"intro-text\"]",
		},
	}
}
