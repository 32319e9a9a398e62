package classify

import "github.com/chatdeck/chatdeck/internal/browser"

// TelegramSpec returns the indicator spec for Telegram Web (the /k client).
func TelegramSpec() Spec {
	return Spec{
		Service: browser.ServiceTelegram,
		URL:     "https://web.telegram.org/k/",
		Domain:  "web.telegram.org",
		ReadyMarkers: []string{
			"#page-chats",
			"#auth-pages",
			".whole",
		},
		LoggedInMarkers: []string{
			"#page-chats.active",
			"#column-center .chats-container",
			".chatlist-container",
		},
		// The password page stays mounted after leaving it; only the active
		// class marks it as the page the user actually sees.
		CredentialMarkers: []string{
			".page-password",
		},
		CredentialActiveScript: `(() => {
			const p = document.querySelector('.page-password');
			return !!(p && p.classList.contains('active') && p.offsetParent !== null) ? 'true' : 'false';
		})()`,
		ArtifactMarkers: []string{
			".auth-image canvas",
			".qr-canvas",
			"#auth-qr canvas",
		},
		ArtifactScript: `(() => {
			const c = document.querySelector('.auth-image canvas')
				|| document.querySelector('.qr-canvas');
			return c ? c.toDataURL('image/png') : '';
		})()`,
		LoginMarkers: []string{
			".page-sign.active",
			".page-signQR.active",
			"input[name=\"phone\"]",
		},
	}
}
