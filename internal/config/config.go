// Package config loads the TOML user configuration and supports hot reload
// of the monitoring intervals.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/classify"
	"github.com/chatdeck/chatdeck/internal/monitor"
	"github.com/chatdeck/chatdeck/internal/notify"
	"github.com/chatdeck/chatdeck/internal/send"
)

// Config is the user-facing configuration in TOML format.
type Config struct {
	Web      WebSettings      `toml:"web"`
	Browser  BrowserSettings  `toml:"browser"`
	Store    StoreSettings    `toml:"store"`
	Monitor  MonitorSettings  `toml:"monitor"`
	Classify ClassifySettings `toml:"classify"`
	Send     SendSettings     `toml:"send"`
	Push     PushSettings     `toml:"push"`
}

// BrowserSettings points at the browser runtime's control API.
type BrowserSettings struct {
	// ProviderURL is the base URL of the runtime that owns the browser
	// profiles (default http://127.0.0.1:8459).
	ProviderURL string `toml:"provider_url"`
}

// WebSettings configures the HTTP surface.
type WebSettings struct {
	// Addr is the listen address (default 127.0.0.1:8460).
	Addr string `toml:"addr"`

	// Token, when set, is required on every API and websocket request.
	Token string `toml:"token"`
}

// StoreSettings configures persistence paths.
type StoreSettings struct {
	// DBPath is the SQLite database location (default chatdeck.db).
	DBPath string `toml:"db_path"`

	// SubscriptionsPath holds the web-push subscription registry
	// (default push_subscriptions.json next to the database).
	SubscriptionsPath string `toml:"subscriptions_path"`
}

// MonitorSettings tunes the monitoring scheduler.
type MonitorSettings struct {
	// TickSecs is the global tick period (default 30).
	TickSecs int `toml:"tick_secs"`

	// BusyRecheckSecs caps the busy-profile deferral (default 30).
	BusyRecheckSecs int `toml:"busy_recheck_secs"`

	// DefaultIntervalSecs is the per-account check interval when no
	// per-service value is set (default 600).
	DefaultIntervalSecs int `toml:"default_interval_secs"`

	// IntervalSecs holds per-service check intervals keyed by service name.
	IntervalSecs map[string]int `toml:"intervals"`
}

// ClassifySettings tunes the status classifier.
type ClassifySettings struct {
	// Attempts is the probe retry budget (default 3).
	Attempts int `toml:"attempts"`

	// BackoffBaseMS is the first retry delay (default 500).
	BackoffBaseMS int `toml:"backoff_base_ms"`

	// BackoffCeilingMS caps the exponential backoff (default 5000).
	BackoffCeilingMS int `toml:"backoff_ceiling_ms"`
}

// SendSettings tunes the sending pipeline.
type SendSettings struct {
	// PreSendDelayMS is the settle delay before page interaction
	// (default 2000).
	PreSendDelayMS int `toml:"pre_send_delay_ms"`

	// MinSendGapMS is the per-profile pacing floor (default 1000).
	MinSendGapMS int `toml:"min_send_gap_ms"`

	// InterAttachmentDelayMS separates consecutive uploads (default 1500).
	InterAttachmentDelayMS int `toml:"inter_attachment_delay_ms"`

	// UploadsRoot anchors relative attachment paths.
	UploadsRoot string `toml:"uploads_root"`

	// ExtraUploadsRoots are probed in order after the primary root.
	ExtraUploadsRoots []string `toml:"extra_uploads_roots"`
}

// PushSettings carries the web-push VAPID material. Empty keys disable push.
type PushSettings struct {
	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`
	Subject         string `toml:"subject"`
}

func defaultConfig() Config {
	return Config{
		Web:     WebSettings{Addr: "127.0.0.1:8460"},
		Browser: BrowserSettings{ProviderURL: "http://127.0.0.1:8459"},
		Store:   StoreSettings{DBPath: "chatdeck.db", SubscriptionsPath: "push_subscriptions.json"},
		Monitor: MonitorSettings{
			TickSecs:            30,
			BusyRecheckSecs:     30,
			DefaultIntervalSecs: 600,
		},
		Classify: ClassifySettings{
			Attempts:         3,
			BackoffBaseMS:    500,
			BackoffCeilingMS: 5000,
		},
		Send: SendSettings{
			PreSendDelayMS:         2000,
			MinSendGapMS:           1000,
			InterAttachmentDelayMS: 1500,
			UploadsRoot:            "uploads",
		},
	}
}

// Load reads the config at path. A missing file yields the defaults; a
// malformed file yields the defaults plus the parse error so the caller can
// surface it without dying.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return defaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.fillZeroes()
	return cfg, nil
}

// fillZeroes restores defaults the file zeroed out or omitted.
func (c *Config) fillZeroes() {
	def := defaultConfig()
	if c.Web.Addr == "" {
		c.Web.Addr = def.Web.Addr
	}
	if c.Browser.ProviderURL == "" {
		c.Browser.ProviderURL = def.Browser.ProviderURL
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = def.Store.DBPath
	}
	if c.Store.SubscriptionsPath == "" {
		c.Store.SubscriptionsPath = def.Store.SubscriptionsPath
	}
	if c.Monitor.TickSecs <= 0 {
		c.Monitor.TickSecs = def.Monitor.TickSecs
	}
	if c.Monitor.BusyRecheckSecs <= 0 {
		c.Monitor.BusyRecheckSecs = def.Monitor.BusyRecheckSecs
	}
	if c.Monitor.DefaultIntervalSecs <= 0 {
		c.Monitor.DefaultIntervalSecs = def.Monitor.DefaultIntervalSecs
	}
	if c.Classify.Attempts <= 0 {
		c.Classify.Attempts = def.Classify.Attempts
	}
	if c.Classify.BackoffBaseMS <= 0 {
		c.Classify.BackoffBaseMS = def.Classify.BackoffBaseMS
	}
	if c.Classify.BackoffCeilingMS <= 0 {
		c.Classify.BackoffCeilingMS = def.Classify.BackoffCeilingMS
	}
	if c.Send.PreSendDelayMS <= 0 {
		c.Send.PreSendDelayMS = def.Send.PreSendDelayMS
	}
	if c.Send.MinSendGapMS <= 0 {
		c.Send.MinSendGapMS = def.Send.MinSendGapMS
	}
	if c.Send.InterAttachmentDelayMS <= 0 {
		c.Send.InterAttachmentDelayMS = def.Send.InterAttachmentDelayMS
	}
	if c.Send.UploadsRoot == "" {
		c.Send.UploadsRoot = def.Send.UploadsRoot
	}
}

// MonitorConfig converts the settings for the scheduler.
func (c Config) MonitorConfig() monitor.Config {
	intervals := map[browser.Service]time.Duration{}
	for name, secs := range c.Monitor.IntervalSecs {
		svc := browser.Service(name)
		if svc.Valid() && secs > 0 {
			intervals[svc] = time.Duration(secs) * time.Second
		}
	}
	return monitor.Config{
		TickInterval:    time.Duration(c.Monitor.TickSecs) * time.Second,
		BusyRecheck:     time.Duration(c.Monitor.BusyRecheckSecs) * time.Second,
		DefaultInterval: time.Duration(c.Monitor.DefaultIntervalSecs) * time.Second,
		Intervals:       intervals,
	}
}

// ClassifyOptions converts the settings for the classifier.
func (c Config) ClassifyOptions() classify.Options {
	return classify.Options{
		Attempts:       c.Classify.Attempts,
		BackoffBase:    time.Duration(c.Classify.BackoffBaseMS) * time.Millisecond,
		BackoffCeiling: time.Duration(c.Classify.BackoffCeilingMS) * time.Millisecond,
	}
}

// SendConfig converts the settings for the sending pipeline.
func (c Config) SendConfig() send.Config {
	return send.Config{
		PreSendDelay:         time.Duration(c.Send.PreSendDelayMS) * time.Millisecond,
		MinSendGap:           time.Duration(c.Send.MinSendGapMS) * time.Millisecond,
		InterAttachmentDelay: time.Duration(c.Send.InterAttachmentDelayMS) * time.Millisecond,
		UploadsRoot:          c.Send.UploadsRoot,
		ExtraUploadsRoots:    c.Send.ExtraUploadsRoots,
	}
}

// PushConfig converts the settings for the web-push sender.
func (c Config) PushConfig() notify.PushConfig {
	return notify.PushConfig{
		VAPIDPublicKey:  c.Push.VAPIDPublicKey,
		VAPIDPrivateKey: c.Push.VAPIDPrivateKey,
		Subject:         c.Push.Subject,
	}
}
