package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RemoteProvider speaks the browser runtime's HTTP control API. The runtime
// owns the actual browser processes; this client only brokers the session
// surface defined in this package.
type RemoteProvider struct {
	baseURL string
	client  *http.Client
}

// NewRemoteProvider builds a provider client against baseURL
// (e.g. http://127.0.0.1:9222).
func NewRemoteProvider(baseURL string) *RemoteProvider {
	return &RemoteProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type remoteError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one JSON request against the runtime and decodes the
// response into out (when non-nil). Runtime error codes are mapped onto the
// package's sentinel errors.
func (p *RemoteProvider) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("browser runtime: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("browser runtime: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var re remoteError
		_ = json.Unmarshal(raw, &re)
		switch re.Error.Code {
		case "profile_not_running":
			return ErrProfileNotRunning
		case "session_closed":
			return ErrSessionClosed
		case "navigation_timeout":
			return ErrNavigationTimeout
		case "dialog_timeout":
			return ErrDialogTimeout
		}
		if re.Error.Message != "" {
			return fmt.Errorf("browser runtime: %s (%s)", re.Error.Message, re.Error.Code)
		}
		return fmt.Errorf("browser runtime: status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("browser runtime: decode response: %w", err)
	}
	return nil
}

// IsProfileRunning reports whether the profile's browser is started.
func (p *RemoteProvider) IsProfileRunning(ctx context.Context, profile string) (bool, error) {
	var resp struct {
		Running bool `json:"running"`
	}
	err := p.call(ctx, http.MethodGet, "/api/profiles/"+profile+"/status", nil, &resp)
	if err != nil {
		return false, err
	}
	return resp.Running, nil
}

// AcquireSession returns the tab for (profile, service), opening url in a
// new tab when none exists.
func (p *RemoteProvider) AcquireSession(ctx context.Context, profile string, service Service, url string) (Session, error) {
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	err := p.call(ctx, http.MethodPost, "/api/sessions", map[string]string{
		"profile": profile,
		"service": string(service),
		"url":     url,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &remoteSession{provider: p, id: resp.SessionID}, nil
}

type remoteSession struct {
	provider *RemoteProvider
	id       string

	mu     sync.Mutex
	closed bool
}

func (s *remoteSession) path(suffix string) string {
	return "/api/sessions/" + s.id + suffix
}

// call wraps the provider call and latches the closed flag when the runtime
// reports the tab gone.
func (s *remoteSession) call(ctx context.Context, method, suffix string, in, out any) error {
	err := s.provider.call(ctx, method, s.path(suffix), in, out)
	if err == ErrSessionClosed {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
	return err
}

func (s *remoteSession) Navigate(ctx context.Context, url string) error {
	return s.call(ctx, http.MethodPost, "/navigate", map[string]string{"url": url}, nil)
}

func (s *remoteSession) Location(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := s.call(ctx, http.MethodGet, "/location", nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (s *remoteSession) QueryElement(ctx context.Context, selector string) (*Element, error) {
	var resp struct {
		Found   bool `json:"found"`
		Visible bool `json:"visible"`
		Rect    Rect `json:"rect"`
	}
	err := s.call(ctx, http.MethodPost, "/query", map[string]string{"selector": selector}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return &Element{Selector: selector, Visible: resp.Visible, Rect: resp.Rect}, nil
}

func (s *remoteSession) Evaluate(ctx context.Context, script string) (string, error) {
	var resp struct {
		Result string `json:"result"`
	}
	if err := s.call(ctx, http.MethodPost, "/evaluate", map[string]string{"script": script}, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

func (s *remoteSession) Type(ctx context.Context, selector, text string) error {
	return s.call(ctx, http.MethodPost, "/type", map[string]string{
		"selector": selector,
		"text":     text,
	}, nil)
}

func (s *remoteSession) Press(ctx context.Context, key string) error {
	return s.call(ctx, http.MethodPost, "/press", map[string]string{"key": key}, nil)
}

func (s *remoteSession) Click(ctx context.Context, selector string) error {
	return s.call(ctx, http.MethodPost, "/click", map[string]string{"selector": selector}, nil)
}

func (s *remoteSession) BringToFront(ctx context.Context) error {
	return s.call(ctx, http.MethodPost, "/focus", nil, nil)
}

func (s *remoteSession) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var resp struct {
		Data string `json:"data"`
	}
	if err := s.call(ctx, http.MethodGet, "/screenshot", nil, &resp); err != nil {
		return nil, err
	}
	png, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return png, nil
}

func (s *remoteSession) ExpectFileDialog(timeout time.Duration) (FileDialogWaiter, error) {
	var resp struct {
		WaiterID string `json:"waiterId"`
	}
	// Arming must not inherit a request deadline shorter than the waiter's
	// own timeout, so a background context is used for the control call.
	err := s.call(context.Background(), http.MethodPost, "/dialog/expect", map[string]any{
		"timeoutMs": timeout.Milliseconds(),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &remoteDialogWaiter{session: s, waiterID: resp.WaiterID}, nil
}

func (s *remoteSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type remoteDialogWaiter struct {
	session  *remoteSession
	waiterID string

	cancelOnce sync.Once
}

// Wait long-polls the runtime until the armed interception fires or times
// out server-side.
func (w *remoteDialogWaiter) Wait(ctx context.Context) (FileDialog, error) {
	var resp struct {
		DialogID string `json:"dialogId"`
	}
	err := w.session.call(ctx, http.MethodGet, "/dialog/wait?waiter="+w.waiterID, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &remoteDialog{session: w.session, id: resp.DialogID}, nil
}

func (w *remoteDialogWaiter) Cancel() {
	w.cancelOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.session.call(ctx, http.MethodPost, "/dialog/cancel", map[string]string{
			"waiter": w.waiterID,
		}, nil)
	})
}

type remoteDialog struct {
	session *remoteSession
	id      string
}

func (d *remoteDialog) SetFiles(paths ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return d.session.call(ctx, http.MethodPost, "/dialog/"+d.id+"/files", map[string]any{
		"paths": paths,
	}, nil)
}

func (d *remoteDialog) Dismiss() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.session.call(ctx, http.MethodPost, "/dialog/"+d.id+"/dismiss", nil, nil)
}
