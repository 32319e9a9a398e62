// Package web exposes the HTTP and WebSocket surface: send and check
// endpoints, account management, push subscription handling, metrics and the
// realtime status event stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chatdeck/chatdeck/internal/classify"
	"github.com/chatdeck/chatdeck/internal/logging"
	"github.com/chatdeck/chatdeck/internal/notify"
	"github.com/chatdeck/chatdeck/internal/send"
	"github.com/chatdeck/chatdeck/internal/store"
	"github.com/chatdeck/chatdeck/internal/telemetry"
)

var webLog = logging.ForComponent(logging.CompWeb)

// SendExecutor runs one send request to completion.
type SendExecutor interface {
	Send(ctx context.Context, req send.Request) send.Result
}

// StatusChecker runs on-demand checks and credential submission.
type StatusChecker interface {
	Check(ctx context.Context, account store.Account) classify.Result
	SubmitSecondaryCredential(ctx context.Context, profile, secret string) (bool, error)
}

// TaskScheduler is the monitoring-task lifecycle consumed by the account
// endpoints.
type TaskScheduler interface {
	AddAccount(a store.Account)
	RemoveAccount(id string)
	UpdateTask(a store.Account)
}

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
	Token      string
}

// Deps are the collaborators the handlers delegate to.
type Deps struct {
	Accounts  store.Accounts
	Sender    SendExecutor
	Checker   StatusChecker
	Scheduler TaskScheduler
	Push      *notify.Pusher
	Subs      *notify.SubscriptionStore
}

// Server wraps the HTTP server for chatdeck's web surface.
type Server struct {
	cfg        Config
	deps       Deps
	hub        *Hub
	httpServer *http.Server
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8460"
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		hub:  NewHub(),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/send", s.handleSend)
	mux.HandleFunc("/api/check", s.handleCheck)
	mux.HandleFunc("/api/credential", s.handleCredential)
	mux.HandleFunc("/api/accounts", s.handleAccounts)
	mux.HandleFunc("/api/push/config", s.handlePushConfig)
	mux.HandleFunc("/api/push/subscribe", s.handlePushSubscribe)
	mux.HandleFunc("/api/push/unsubscribe", s.handlePushUnsubscribe)
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/ws/events", s.handleEventsWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Hub returns the event hub, wired into the notification bridge by the
// daemon.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown or error.
// Returns nil on graceful shutdown.
func (s *Server) Start() error {
	webLog.Info("web_server_started", slog.String("addr", s.cfg.ListenAddr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, force-closing lingering websocket
// connections when the deadline runs out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		s.cancelBase()
	}
	s.hub.CloseAll()

	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				webLog.Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
