package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest validates the caller's token. A blank configured token
// disables auth entirely. Clients present the token as a `token` query
// parameter or an Authorization bearer header; comparison is constant-time.
func (s *Server) authorizeRequest(r *http.Request) bool {
	want := s.cfg.Token
	if want == "" {
		return true
	}

	candidates := []string{strings.TrimSpace(r.URL.Query().Get("token"))}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if bearer, ok := strings.CutPrefix(header, "Bearer "); ok {
		candidates = append(candidates, strings.TrimSpace(bearer))
	}

	for _, got := range candidates {
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1 {
			return true
		}
	}
	return false
}
