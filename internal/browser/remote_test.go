package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runtimeStub(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, h := range routes {
		mux.HandleFunc(pattern, h)
	}
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeRuntimeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func TestRemoteProviderAcquireSession(t *testing.T) {
	var acquired struct {
		Profile string `json:"profile"`
		Service string `json:"service"`
		URL     string `json:"url"`
	}
	ts := runtimeStub(t, map[string]http.HandlerFunc{
		"/api/sessions": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&acquired))
			_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "s1"})
		},
		"/api/sessions/s1/location": func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://web.whatsapp.com/"})
		},
	})

	p := NewRemoteProvider(ts.URL)
	sess, err := p.AcquireSession(context.Background(), "p1", ServiceWhatsApp, "https://web.whatsapp.com/")
	require.NoError(t, err)
	assert.Equal(t, "p1", acquired.Profile)
	assert.Equal(t, "whatsapp", acquired.Service)

	loc, err := sess.Location(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://web.whatsapp.com/", loc)
	assert.False(t, sess.IsClosed())
}

func TestRemoteProviderMapsErrorCodes(t *testing.T) {
	ts := runtimeStub(t, map[string]http.HandlerFunc{
		"/api/sessions": func(w http.ResponseWriter, _ *http.Request) {
			writeRuntimeError(w, http.StatusConflict, "profile_not_running", "profile p1 is stopped")
		},
		"/api/profiles/p1/status": func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]bool{"running": false})
		},
	})

	p := NewRemoteProvider(ts.URL)
	_, err := p.AcquireSession(context.Background(), "p1", ServiceWhatsApp, "url")
	assert.ErrorIs(t, err, ErrProfileNotRunning)

	running, err := p.IsProfileRunning(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, running)
}

func TestRemoteSessionLatchesClosed(t *testing.T) {
	ts := runtimeStub(t, map[string]http.HandlerFunc{
		"/api/sessions": func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "s1"})
		},
		"/api/sessions/s1/click": func(w http.ResponseWriter, _ *http.Request) {
			writeRuntimeError(w, http.StatusGone, "session_closed", "tab closed")
		},
	})

	p := NewRemoteProvider(ts.URL)
	sess, err := p.AcquireSession(context.Background(), "p1", ServiceTelegram, "url")
	require.NoError(t, err)

	err = sess.Click(context.Background(), "#main")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.True(t, sess.IsClosed())
}

func TestRemoteFileDialogRoundTrip(t *testing.T) {
	var gotFiles []string
	ts := runtimeStub(t, map[string]http.HandlerFunc{
		"/api/sessions": func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"sessionId": "s1"})
		},
		"/api/sessions/s1/dialog/expect": func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"waiterId": "w1"})
		},
		"/api/sessions/s1/dialog/wait": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "w1", r.URL.Query().Get("waiter"))
			_ = json.NewEncoder(w).Encode(map[string]string{"dialogId": "d1"})
		},
		"/api/sessions/s1/dialog/d1/files": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Paths []string `json:"paths"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotFiles = body.Paths
			w.WriteHeader(http.StatusOK)
		},
	})

	p := NewRemoteProvider(ts.URL)
	sess, err := p.AcquireSession(context.Background(), "p1", ServiceWhatsApp, "url")
	require.NoError(t, err)

	waiter, err := sess.ExpectFileDialog(0)
	require.NoError(t, err)

	dialog, err := waiter.Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, dialog.SetFiles("/tmp/x.pdf"))
	assert.Equal(t, []string{"/tmp/x.pdf"}, gotFiles)
}
