package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/notify"
	"github.com/chatdeck/chatdeck/internal/send"
	"github.com/chatdeck/chatdeck/internal/store"
)

func notifySubscription(endpoint, p256dh, auth string) notify.Subscription {
	return notify.Subscription{
		Endpoint: endpoint,
		Keys:     notify.SubscriptionKeys{P256DH: p256dh, Auth: auth},
	}
}

type sendAttachmentRequest struct {
	Path string `json:"path"`
	Kind string `json:"kind,omitempty"`
}

type sendRequest struct {
	Profile           string                  `json:"profile"`
	Address           string                  `json:"address"`
	Body              string                  `json:"body,omitempty"`
	Channel           string                  `json:"channel,omitempty"`
	Preference        string                  `json:"preference,omitempty"`
	RecipientChannels []string                `json:"recipientChannels,omitempty"`
	Attachments       []sendAttachmentRequest `json:"attachments,omitempty"`
	SkipPreSendDelay  bool                    `json:"skipPreSendDelay,omitempty"`
}

type sendResponse struct {
	Success         bool   `json:"success"`
	Channel         string `json:"channel"`
	RequestID       string `json:"requestId"`
	TextVerified    bool   `json:"textVerified"`
	AttachmentsSent int    `json:"attachmentsSent"`
	Error           string `json:"error,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	if strings.TrimSpace(req.Profile) == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "profile is required")
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "address is required")
		return
	}
	if req.Body == "" && len(req.Attachments) == 0 {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "body or attachments required")
		return
	}

	out := send.Request{
		Profile:    req.Profile,
		Address:    req.Address,
		Body:       req.Body,
		Channel:    browser.Service(req.Channel),
		Preference: send.Preference(req.Preference),
	}
	for _, c := range req.RecipientChannels {
		out.RecipientChannels = append(out.RecipientChannels, browser.Service(c))
	}
	for _, a := range req.Attachments {
		out.Attachments = append(out.Attachments, send.Attachment{
			Path: a.Path,
			Kind: send.AttachmentKind(a.Kind),
		})
	}
	if req.SkipPreSendDelay {
		zero := time.Duration(0)
		out.PreSendDelay = &zero
	}

	res := s.deps.Sender.Send(r.Context(), out)
	writeJSON(w, http.StatusOK, sendResponse{
		Success:         res.Success,
		Channel:         string(res.Channel),
		RequestID:       res.RequestID,
		TextVerified:    res.TextVerified,
		AttachmentsSent: res.AttachmentsSent,
		Error:           res.Error,
	})
}

type checkRequest struct {
	Profile string `json:"profile"`
	Service string `json:"service"`
}

type checkResponse struct {
	Status             string    `json:"status"`
	CredentialRequired bool      `json:"credentialRequired,omitempty"`
	Artifact           []byte    `json:"artifact,omitempty"`
	Error              string    `json:"error,omitempty"`
	CheckedAt          time.Time `json:"checkedAt"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	service := browser.Service(req.Service)
	if strings.TrimSpace(req.Profile) == "" || !service.Valid() {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "profile and a known service are required")
		return
	}

	id := store.AccountID(req.Profile, service)
	account, err := s.deps.Accounts.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load account")
			return
		}
		// On-demand checks work for unregistered accounts too.
		account = store.Account{ID: id, Profile: req.Profile, Service: service}
	} else {
		defer func() {
			_ = s.deps.Accounts.UpdateStatus(r.Context(), id, account.Status, account.LastCheckedAt)
		}()
	}

	res := s.deps.Checker.Check(r.Context(), account)
	account.Status = string(res.Status)
	account.LastCheckedAt = res.CheckedAt

	writeJSON(w, http.StatusOK, checkResponse{
		Status:             string(res.Status),
		CredentialRequired: res.CredentialRequired,
		Artifact:           res.Artifact,
		Error:              res.Error,
		CheckedAt:          res.CheckedAt,
	})
}

type credentialRequest struct {
	Profile string `json:"profile"`
	Secret  string `json:"secret"`
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	if strings.TrimSpace(req.Profile) == "" || req.Secret == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "profile and secret are required")
		return
	}

	registered, err := s.deps.Checker.SubmitSecondaryCredential(r.Context(), req.Profile, req.Secret)
	if err != nil {
		writeAPIError(w, http.StatusBadGateway, "CREDENTIAL_SUBMIT_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": registered})
}

type accountPayload struct {
	ID            string    `json:"id"`
	Profile       string    `json:"profile"`
	Service       string    `json:"service"`
	Enabled       bool      `json:"enabled"`
	Status        string    `json:"status,omitempty"`
	LastCheckedAt time.Time `json:"lastCheckedAt,omitempty"`
}

type upsertAccountRequest struct {
	Profile string `json:"profile"`
	Service string `json:"service"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.listAccounts(w, r)
	case http.MethodPost:
		s.upsertAccount(w, r)
	case http.MethodDelete:
		s.deleteAccount(w, r)
	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Accounts.List(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list accounts")
		return
	}

	out := make([]accountPayload, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountPayload{
			ID:            a.ID,
			Profile:       a.Profile,
			Service:       string(a.Service),
			Enabled:       a.Enabled,
			Status:        a.Status,
			LastCheckedAt: a.LastCheckedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) upsertAccount(w http.ResponseWriter, r *http.Request) {
	var req upsertAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	service := browser.Service(req.Service)
	if strings.TrimSpace(req.Profile) == "" || !service.Valid() {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "profile and a known service are required")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	account := store.Account{
		ID:      store.AccountID(req.Profile, service),
		Profile: req.Profile,
		Service: service,
		Enabled: enabled,
	}
	if existing, err := s.deps.Accounts.Get(r.Context(), account.ID); err == nil {
		account.Status = existing.Status
		account.LastCheckedAt = existing.LastCheckedAt
		account.CreatedAt = existing.CreatedAt
	}

	if err := s.deps.Accounts.Upsert(r.Context(), account); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save account")
		return
	}

	if s.deps.Scheduler != nil {
		if enabled {
			s.deps.Scheduler.UpdateTask(account)
		} else {
			s.deps.Scheduler.RemoveAccount(account.ID)
		}
	}

	writeJSON(w, http.StatusOK, accountPayload{
		ID:            account.ID,
		Profile:       account.Profile,
		Service:       string(account.Service),
		Enabled:       account.Enabled,
		Status:        account.Status,
		LastCheckedAt: account.LastCheckedAt,
	})
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	profile := strings.TrimSpace(r.URL.Query().Get("profile"))
	service := browser.Service(r.URL.Query().Get("service"))
	if profile == "" || !service.Valid() {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "profile and a known service are required")
		return
	}

	id := store.AccountID(profile, service)
	if err := s.deps.Accounts.Delete(r.Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to delete account")
		return
	}
	if s.deps.Scheduler != nil {
		s.deps.Scheduler.RemoveAccount(id)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handlePushConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   s.deps.Push.Enabled(),
		"publicKey": s.deps.Push.PublicKey(),
	})
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if !s.deps.Push.Enabled() || s.deps.Subs == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "PUSH_DISABLED", "push is not configured")
		return
	}

	var sub struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256DH string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}

	err := s.deps.Subs.Upsert(notifySubscription(sub.Endpoint, sub.Keys.P256DH, sub.Keys.Auth))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_SUBSCRIPTION", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"subscribed": true})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if !s.authorizeRequest(r) {
		writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	if s.deps.Subs == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "PUSH_DISABLED", "push is not configured")
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	if err := s.deps.Subs.RemoveByEndpoint(req.Endpoint); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to remove subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"unsubscribed": true})
}
