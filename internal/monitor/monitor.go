// Package monitor schedules periodic login-status checks for every enabled
// account. Each account owns one in-memory task with its own next-check time;
// a global tick dispatches due tasks concurrently and isolates their failures.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/classify"
	"github.com/chatdeck/chatdeck/internal/logging"
	"github.com/chatdeck/chatdeck/internal/store"
	"github.com/chatdeck/chatdeck/internal/telemetry"
)

var monLog = logging.ForComponent(logging.CompMonitor)

// Event is a status-change notification for the external bridges.
type Event struct {
	Profile   string          `json:"profile"`
	Service   browser.Service `json:"service"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventSink consumes status-change events.
type EventSink interface {
	StatusChanged(Event)
}

// Checker performs one login-status check for an account.
type Checker interface {
	Check(ctx context.Context, account store.Account) classify.Result
}

// BusyRegistry reports whether a profile is owned by an active send.
type BusyRegistry interface {
	IsBusy(profile string) bool
}

// RunningProber reports whether a profile's browser is started.
type RunningProber interface {
	IsProfileRunning(ctx context.Context, profile string) (bool, error)
}

// Config tunes the scheduler.
type Config struct {
	// TickInterval is the global tick period (default 30s).
	TickInterval time.Duration

	// BusyRecheck caps the deferral applied when a profile is busy, so
	// monitoring resumes promptly after a send completes (default 30s).
	BusyRecheck time.Duration

	// DefaultInterval is the per-account check interval when no per-service
	// interval is configured (default 10m).
	DefaultInterval time.Duration

	// Intervals holds per-service check intervals.
	Intervals map[browser.Service]time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.BusyRecheck <= 0 {
		c.BusyRecheck = 30 * time.Second
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = 10 * time.Minute
	}
	return c
}

// IntervalFor returns the check interval for a service.
func (c Config) IntervalFor(service browser.Service) time.Duration {
	if d, ok := c.Intervals[service]; ok && d > 0 {
		return d
	}
	return c.DefaultInterval
}

// task is the in-memory scheduling record for one account. Owned exclusively
// by the scheduler; never persisted.
type task struct {
	id          string
	profile     string
	service     browser.Service
	interval    time.Duration
	lastCheckAt time.Time
	nextCheckAt time.Time
	checking    bool
}

// Scheduler owns one task per enabled account and drives checks off a global
// tick.
type Scheduler struct {
	cfg      Config
	accounts store.Accounts
	checker  Checker
	busy     BusyRegistry
	prober   RunningProber
	sink     EventSink

	mu    sync.Mutex
	tasks map[string]*task

	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight sync.WaitGroup

	now func() time.Time
}

// NewScheduler builds a scheduler. sink may be nil when no bridge is wired.
func NewScheduler(cfg Config, accounts store.Accounts, checker Checker, busy BusyRegistry, prober RunningProber, sink EventSink) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		accounts: accounts,
		checker:  checker,
		busy:     busy,
		prober:   prober,
		sink:     sink,
		tasks:    map[string]*task{},
		now:      time.Now,
	}
}

// Start launches the global tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.loopDone = make(chan struct{})

	go func() {
		defer close(s.loopDone)
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.TickOnce(ctx)
			}
		}
	}()
	monLog.Info("monitoring_started", slog.Duration("tick", s.cfg.TickInterval))
}

// Stop halts the tick loop and waits for in-flight checks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.loopDone
	s.cancel = nil
	s.loopDone = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.inflight.Wait()
	monLog.Info("monitoring_stopped")
}

// AddAccount registers a monitoring task for the account. An account with no
// recorded check is due immediately; otherwise the next check continues from
// its last-checked time, clamped so a freshly computed time is never in the
// past.
func (s *Scheduler) AddAccount(a store.Account) {
	now := s.now()

	s.mu.Lock()
	// Interval lookup stays inside the lock; SetInterval rewrites the
	// interval map while accounts are being added.
	interval := s.cfg.IntervalFor(a.Service)
	next := now
	if !a.LastCheckedAt.IsZero() {
		next = a.LastCheckedAt.Add(interval)
		if next.Before(now) {
			next = now
		}
	}
	s.tasks[a.ID] = &task{
		id:          a.ID,
		profile:     a.Profile,
		service:     a.Service,
		interval:    interval,
		lastCheckAt: a.LastCheckedAt,
		nextCheckAt: next,
	}
	s.mu.Unlock()

	monLog.Debug("monitor_task_added",
		slog.String("account", a.ID),
		slog.Duration("interval", interval))
}

// RemoveAccount drops the account's task.
func (s *Scheduler) RemoveAccount(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	monLog.Debug("monitor_task_removed", slog.String("account", id))
}

// UpdateTask recomputes the account's task after an interval or config
// change.
func (s *Scheduler) UpdateTask(a store.Account) {
	s.RemoveAccount(a.ID)
	s.AddAccount(a)
}

// SetInterval applies a new per-service interval and recomputes every task of
// that service. Used by config hot reload.
func (s *Scheduler) SetInterval(service browser.Service, interval time.Duration) {
	s.mu.Lock()
	if s.cfg.Intervals == nil {
		s.cfg.Intervals = map[browser.Service]time.Duration{}
	}
	s.cfg.Intervals[service] = interval

	now := s.now()
	for _, t := range s.tasks {
		if t.service != service {
			continue
		}
		t.interval = interval
		if t.checking {
			// finish() will advance from the new interval.
			continue
		}
		next := now
		if !t.lastCheckAt.IsZero() {
			next = t.lastCheckAt.Add(interval)
			if next.Before(now) {
				next = now
			}
		}
		t.nextCheckAt = next
	}
	s.mu.Unlock()

	monLog.Info("monitor_interval_updated",
		slog.String("service", string(service)),
		slog.Duration("interval", interval))
}

// TaskCount returns the number of registered tasks.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// TickOnce dispatches every due task concurrently and returns without
// waiting. Per-task failures stay inside their own goroutine.
func (s *Scheduler) TickOnce(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*task
	for _, t := range s.tasks {
		if t.checking || now.Before(t.nextCheckAt) {
			continue
		}
		t.checking = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.inflight.Add(1)
		go func(t *task) {
			defer s.inflight.Done()
			s.runTask(ctx, t)
		}(t)
	}
}

func (s *Scheduler) runTask(ctx context.Context, t *task) {
	running, err := s.prober.IsProfileRunning(ctx, t.profile)
	if err != nil || !running {
		// Normal idle state for stopped profiles; keep severity low.
		monLog.Debug("monitor_skip_profile_not_running",
			slog.String("account", t.id))
		telemetry.CheckSkips.WithLabelValues("profile_not_running").Inc()
		s.finish(t, 0)
		return
	}

	if s.busy.IsBusy(t.profile) {
		// A send owns the tab; re-poll shortly after it should be done
		// instead of waiting out the whole interval.
		monLog.Debug("monitor_skip_profile_busy",
			slog.String("account", t.id),
			slog.Duration("recheck_cap", s.cfg.BusyRecheck))
		telemetry.CheckSkips.WithLabelValues("profile_busy").Inc()
		s.finish(t, s.cfg.BusyRecheck)
		return
	}

	account, err := s.accounts.Get(ctx, t.id)
	if err != nil {
		monLog.Warn("monitor_account_load_failed",
			slog.String("account", t.id),
			slog.String("error", err.Error()))
		s.finish(t, 0)
		return
	}

	started := s.now()
	res := s.checker.Check(ctx, account)
	telemetry.CheckDuration.Observe(s.now().Sub(started).Seconds())
	telemetry.ChecksTotal.WithLabelValues(string(t.service), string(res.Status)).Inc()

	checkedAt := res.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.now()
	}
	if err := s.accounts.UpdateStatus(ctx, t.id, string(res.Status), checkedAt); err != nil {
		monLog.Warn("monitor_status_persist_failed",
			slog.String("account", t.id),
			slog.String("error", err.Error()))
	}

	// Exact string comparison against the previously recorded status; a
	// re-derived value here could suppress or duplicate user notifications.
	if string(res.Status) != account.Status && s.sink != nil {
		telemetry.StatusEvents.Inc()
		s.sink.StatusChanged(Event{
			Profile:   t.profile,
			Service:   t.service,
			Status:    string(res.Status),
			Timestamp: checkedAt,
		})
		monLog.Info("status_changed",
			slog.String("account", t.id),
			slog.String("from", account.Status),
			slog.String("to", string(res.Status)))
	}

	s.finish(t, 0)
}

// finish advances the task's next-check time by its interval, capped at limit
// when limit is non-zero (busy re-poll). The interval is read inside the
// critical section because SetInterval mutates it while checks are in flight.
// The advance is monotonic so a task can never busy-loop on the tick.
func (s *Scheduler) finish(t *task, limit time.Duration) {
	now := s.now()
	s.mu.Lock()
	deferBy := t.interval
	if limit > 0 && deferBy > limit {
		deferBy = limit
	}
	t.lastCheckAt = now
	next := now.Add(deferBy)
	if next.After(t.nextCheckAt) {
		t.nextCheckAt = next
	}
	t.checking = false
	s.mu.Unlock()
}

// waitInflight blocks until all dispatched checks complete. Test helper.
func (s *Scheduler) waitInflight() {
	s.inflight.Wait()
}
