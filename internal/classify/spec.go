package classify

import "github.com/chatdeck/chatdeck/internal/browser"

// Spec is the data-driven indicator set one service variant supplies to the
// generic engine. All selector lists are ordered by probe priority.
type Spec struct {
	Service browser.Service

	// URL is the login page opened when the session is elsewhere.
	URL string

	// Domain identifies "already on the service" locations; matching
	// sessions are classified without a navigation.
	Domain string

	// ReadyMarkers signal that the page finished its initial render.
	ReadyMarkers []string

	// LoggedInMarkers indicate an authenticated session (chat list or
	// message area present). Terminal: StatusLoggedIn.
	LoggedInMarkers []string

	// CredentialMarkers indicate the secondary-credential page. The page
	// may exist in the DOM while inactive, so CredentialActiveScript
	// decides whether it is the one actually shown.
	CredentialMarkers      []string
	CredentialActiveScript string

	// ArtifactMarkers locate the scannable login code.
	ArtifactMarkers []string

	// ArtifactScript extracts the code image in-page (data URL), avoiding a
	// visual capture. Empty means screenshot-only.
	ArtifactScript string

	// LoginMarkers indicate a generic unauthenticated landing page.
	LoginMarkers []string
}
