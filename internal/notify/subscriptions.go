// Package notify fans status-change events out to web-push subscribers and
// the realtime event hub.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Subscription is one browser push endpoint.
type Subscription struct {
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	CreatedAt time.Time        `json:"createdAt,omitempty"`
}

// SubscriptionKeys carries the client's encryption material.
type SubscriptionKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}

func (s Subscription) normalize() Subscription {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Keys.P256DH = strings.TrimSpace(s.Keys.P256DH)
	s.Keys.Auth = strings.TrimSpace(s.Keys.Auth)
	return s
}

func (s Subscription) validate() error {
	sub := s.normalize()
	if sub.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if sub.Keys.P256DH == "" {
		return fmt.Errorf("keys.p256dh is required")
	}
	if sub.Keys.Auth == "" {
		return fmt.Errorf("keys.auth is required")
	}
	return nil
}

type subscriptionFile struct {
	UpdatedAt     time.Time      `json:"updatedAt"`
	Subscriptions []Subscription `json:"subscriptions"`
}

// SubscriptionStore persists push subscriptions as a JSON file, written
// atomically via temp-and-rename.
type SubscriptionStore struct {
	path string
	mu   sync.Mutex
}

// NewSubscriptionStore stores subscriptions at path.
func NewSubscriptionStore(path string) *SubscriptionStore {
	return &SubscriptionStore{path: path}
}

// List returns every stored subscription.
func (s *SubscriptionStore) List() ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]Subscription, len(data.Subscriptions))
	copy(out, data.Subscriptions)
	return out, nil
}

// Count returns the number of stored subscriptions.
func (s *SubscriptionStore) Count() (int, error) {
	subs, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// Upsert adds or replaces the subscription keyed by endpoint.
func (s *SubscriptionStore) Upsert(sub Subscription) error {
	sub = sub.normalize()
	if err := sub.validate(); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}

	updated := false
	for i := range data.Subscriptions {
		if data.Subscriptions[i].Endpoint != sub.Endpoint {
			continue
		}
		sub.CreatedAt = data.Subscriptions[i].CreatedAt
		data.Subscriptions[i] = sub
		updated = true
		break
	}
	if !updated {
		data.Subscriptions = append(data.Subscriptions, sub)
	}
	data.UpdatedAt = time.Now().UTC()

	return s.writeLocked(data)
}

// RemoveByEndpoint drops the subscription for endpoint, if present.
func (s *SubscriptionStore) RemoveByEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}

	filtered := make([]Subscription, 0, len(data.Subscriptions))
	for _, sub := range data.Subscriptions {
		if sub.Endpoint == endpoint {
			continue
		}
		filtered = append(filtered, sub)
	}

	data.Subscriptions = filtered
	data.UpdatedAt = time.Now().UTC()
	return s.writeLocked(data)
}

func (s *SubscriptionStore) readLocked() (*subscriptionFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &subscriptionFile{
				UpdatedAt:     time.Now().UTC(),
				Subscriptions: []Subscription{},
			}, nil
		}
		return nil, fmt.Errorf("read push subscriptions: %w", err)
	}

	var data subscriptionFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse push subscriptions: %w", err)
	}
	if data.Subscriptions == nil {
		data.Subscriptions = []Subscription{}
	}
	return &data, nil
}

func (s *SubscriptionStore) writeLocked(data *subscriptionFile) error {
	if data.Subscriptions == nil {
		data.Subscriptions = []Subscription{}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("mkdir push subscription dir: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal push subscriptions: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write temp push subscriptions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename push subscriptions: %w", err)
	}
	return nil
}
