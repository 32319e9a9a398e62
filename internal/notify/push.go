package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatdeck/chatdeck/internal/logging"
	"github.com/chatdeck/chatdeck/internal/monitor"
)

var notifLog = logging.ForComponent(logging.CompNotif)

// PushConfig holds the VAPID material for web push. Empty keys disable push
// entirely; having only one of the two is a configuration error.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
}

// webPushSender is the transport seam, faked in tests.
type webPushSender interface {
	Send(payload []byte, sub Subscription) (int, error)
}

type vapidSender struct {
	subject    string
	publicKey  string
	privateKey string
}

func (s *vapidSender) Send(payload []byte, sub Subscription) (int, error) {
	sub = sub.normalize()
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256DH,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             3600,
	})
	if resp != nil {
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	if err != nil {
		return status, err
	}
	if status >= 400 {
		return status, fmt.Errorf("push gateway status %d", status)
	}
	return status, nil
}

// pushMessage is the payload rendered by the service worker.
type pushMessage struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Tag       string `json:"tag,omitempty"`
	Renotify  bool   `json:"renotify,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Service   string `json:"service,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Pusher delivers status-change events to web-push subscribers.
type Pusher struct {
	enabled   bool
	publicKey string
	subject   string
	store     *SubscriptionStore
	sender    webPushSender
}

// NewPusher builds a pusher. Returns (nil, nil) when push is not configured.
func NewPusher(cfg PushConfig, store *SubscriptionStore) (*Pusher, error) {
	publicKey := strings.TrimSpace(cfg.VAPIDPublicKey)
	privateKey := strings.TrimSpace(cfg.VAPIDPrivateKey)

	if publicKey == "" && privateKey == "" {
		return nil, nil
	}
	if publicKey == "" || privateKey == "" {
		return nil, fmt.Errorf("both push vapid public and private keys are required")
	}

	subject := strings.TrimSpace(cfg.Subject)
	if subject == "" {
		subject = "mailto:chatdeck@localhost"
	}

	return &Pusher{
		enabled:   true,
		publicKey: publicKey,
		subject:   subject,
		store:     store,
		sender:    &vapidSender{subject: subject, publicKey: publicKey, privateKey: privateKey},
	}, nil
}

// Enabled reports whether push delivery is configured.
func (p *Pusher) Enabled() bool {
	return p != nil && p.enabled
}

// PublicKey returns the VAPID public key handed to subscribing clients.
func (p *Pusher) PublicKey() string {
	if p == nil {
		return ""
	}
	return p.publicKey
}

// Notify pushes one status-change event to every subscriber. Endpoints the
// gateway reports gone are pruned from the store.
func (p *Pusher) Notify(ev monitor.Event) {
	if !p.Enabled() || p.store == nil || p.sender == nil {
		return
	}

	subs, err := p.store.List()
	if err != nil {
		notifLog.Error("push_list_subscriptions_failed", slog.String("error", err.Error()))
		return
	}
	if len(subs) == 0 {
		return
	}

	msg := pushMessage{
		Title:     fmt.Sprintf("ChatDeck: %s (%s)", ev.Profile, ev.Service),
		Body:      fmt.Sprintf("%s on %s is now %s.", ev.Profile, ev.Service, ev.Status),
		Tag:       fmt.Sprintf("chatdeck-%s-%s-%s", ev.Profile, ev.Service, ev.Status),
		Renotify:  true,
		Profile:   ev.Profile,
		Service:   string(ev.Service),
		Status:    ev.Status,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		notifLog.Error("push_marshal_failed", slog.String("error", err.Error()))
		return
	}

	notifLog.Debug("push_notifying",
		slog.String("profile", ev.Profile),
		slog.String("status", ev.Status),
		slog.Int("subscribers", len(subs)))

	for _, sub := range subs {
		statusCode, err := p.sender.Send(payload, sub)
		if err == nil {
			notifLog.Debug("push_sent",
				slog.String("endpoint", endpointForLog(sub.Endpoint)),
				slog.Int("http_status", statusCode))
			continue
		}

		notifLog.Error("push_send_failed",
			slog.String("endpoint", endpointForLog(sub.Endpoint)),
			slog.Int("http_status", statusCode),
			slog.String("error", err.Error()))
		if statusCode == http.StatusGone || statusCode == http.StatusNotFound {
			_ = p.store.RemoveByEndpoint(sub.Endpoint)
		}
	}
}

func endpointForLog(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err == nil && u.Host != "" {
		return u.Host
	}
	endpoint = strings.TrimSpace(endpoint)
	if len(endpoint) <= 48 {
		return endpoint
	}
	return endpoint[:48] + "..."
}
