package auth

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Interaction is a user-interaction signal that counts as activity.
type Interaction string

// Recognised interaction signals.
const (
	InteractionPointerDown Interaction = "pointerdown"
	InteractionKeyDown     Interaction = "keydown"
	InteractionScroll      Interaction = "scroll"
	InteractionTouchStart  Interaction = "touchstart"
)

var interactions = []Interaction{
	InteractionPointerDown,
	InteractionKeyDown,
	InteractionScroll,
	InteractionTouchStart,
}

// IsInteraction reports whether kind names a recognised interaction signal.
func IsInteraction(kind string) bool {
	return slices.Contains(interactions, Interaction(kind))
}

// Scheduler runs fn every interval until the returned stop function is
// called. Stop must not block waiting for an in-flight fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// TickerScheduler is a Scheduler backed by time.Ticker.
type TickerScheduler struct{}

// Every starts a goroutine that calls fn on each tick.
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualScheduler is a Scheduler driven by explicit Tick calls.
type ManualScheduler struct {
	mu    sync.Mutex
	next  int
	tasks map[int]func()
}

// NewManualScheduler returns a scheduler with no tasks.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{tasks: make(map[int]func())}
}

// Every registers fn; the interval is ignored.
func (s *ManualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.tasks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
	}
}

// Tick runs every registered task once.
func (s *ManualScheduler) Tick() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.tasks))
	for _, fn := range s.tasks {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Active returns the number of registered tasks.
func (s *ManualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// ActivityMonitor re-checks the session on a fixed interval so an idle or
// expired session ends without waiting for the next request, and turns
// interaction signals into activity refreshes.
//
// The periodic check runs only while a session exists: it is armed on
// login and disarmed when the session ends.
type ActivityMonitor struct {
	sessions  *SessionManager
	scheduler Scheduler
	interval  time.Duration

	mu       sync.Mutex
	stop     func()
	logger   Logger
	onForced []func(EndReason)
}

// NewActivityMonitor creates a monitor and subscribes it to sessions.
func NewActivityMonitor(sessions *SessionManager, scheduler Scheduler, interval time.Duration) *ActivityMonitor {
	m := &ActivityMonitor{
		sessions:  sessions,
		scheduler: scheduler,
		interval:  interval,
		logger:    noopLogger{},
	}

	sessions.OnSessionStart(func(Session) { m.arm() })
	sessions.OnSessionEnd(m.sessionEnded)

	return m
}

// SetLogger sets the logger for the monitor.
func (m *ActivityMonitor) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// OnForcedLogout registers fn to run when a session ends without an
// explicit logout. The API uses it to send clients back to the PIN screen.
func (m *ActivityMonitor) OnForcedLogout(fn func(EndReason)) {
	m.mu.Lock()
	m.onForced = append(m.onForced, fn)
	m.mu.Unlock()
}

// Start arms the periodic check if a session survived a restart.
func (m *ActivityMonitor) Start(ctx context.Context) {
	if m.sessions.IsAuthenticated(ctx) {
		m.arm()
	}
}

// Stop disarms the periodic check.
func (m *ActivityMonitor) Stop() {
	m.disarm()
}

// Armed reports whether the periodic check is scheduled.
func (m *ActivityMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

// Check evaluates the session deadlines once. Reading the session ends it
// when either deadline has passed, which fires the forced-logout listeners.
func (m *ActivityMonitor) Check(ctx context.Context) {
	if _, err := m.sessions.Session(ctx); err != nil {
		m.mu.Lock()
		logger := m.logger
		m.mu.Unlock()
		logger.Error("activity check failed", "error", err)
	}
}

// Signal records a user-interaction signal. Unknown kinds are ignored and
// reported as false. A signal never authorises anything by itself; it only
// moves the inactivity deadline of an existing session.
func (m *ActivityMonitor) Signal(ctx context.Context, kind string) (bool, error) {
	if !IsInteraction(kind) {
		return false, nil
	}
	if err := m.sessions.RefreshActivity(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (m *ActivityMonitor) arm() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		return
	}
	m.stop = m.scheduler.Every(m.interval, func() {
		m.Check(context.Background())
	})
}

func (m *ActivityMonitor) disarm() {
	m.mu.Lock()
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (m *ActivityMonitor) sessionEnded(reason EndReason) {
	m.disarm()

	if !reason.Forced() {
		return
	}

	m.mu.Lock()
	listeners := slices.Clone(m.onForced)
	logger := m.logger
	m.mu.Unlock()

	logger.Warn("forced logout", "reason", string(reason))
	for _, fn := range listeners {
		fn(reason)
	}
}
