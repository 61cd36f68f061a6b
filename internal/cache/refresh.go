package cache

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"vivaha/internal/observability"
)

// RefreshCallback recomputes one cached view. Errors are logged, not retried.
type RefreshCallback func(ctx context.Context) error

// RefreshScheduler coordinates cached-view refresh callbacks. A single
// moderation action produces several change events (account update, audit
// insert, report update); the scheduler collapses them into one pass via a
// minimum inter-run interval and a single-flight guard.
//
// The scheduler is an explicit instance owned by the server lifecycle. The
// callback registry and throttle timestamp are its private state and must not
// be mutated from outside its API.
type RefreshScheduler struct {
	mu          sync.Mutex
	order       []string
	callbacks   map[string]RefreshCallback
	lastRun     time.Time
	running     bool
	minInterval time.Duration
	logger      *slog.Logger
}

// NewRefreshScheduler creates a scheduler with the given throttle window.
// A non-positive interval falls back to 5 seconds.
func NewRefreshScheduler(minInterval time.Duration, logger *slog.Logger) *RefreshScheduler {
	if minInterval <= 0 {
		minInterval = 5 * time.Second
	}
	return &RefreshScheduler{
		callbacks:   make(map[string]RefreshCallback),
		minInterval: minInterval,
		logger:      logger,
	}
}

// Register adds a refresh callback under a unique key. Registration is
// idempotent: a duplicate key is ignored with a warning so a second caller
// cannot silently replace an existing view's refresher.
func (s *RefreshScheduler) Register(key string, cb RefreshCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.callbacks[key]; exists {
		s.logger.Warn("refresh callback already registered, ignoring duplicate", slog.String("key", key))
		return
	}
	s.callbacks[key] = cb
	s.order = append(s.order, key)
}

// Unregister removes a refresh callback. Unknown keys are a no-op.
func (s *RefreshScheduler) Unregister(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.callbacks[key]; !exists {
		return
	}
	delete(s.callbacks, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Keys returns the registered keys in registration order.
func (s *RefreshScheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// TriggerAll runs every registered callback in registration order. Calls
// inside the throttle window, and calls overlapping a pass already in
// flight, return false without running anything.
func (s *RefreshScheduler) TriggerAll(ctx context.Context, trigger string) bool {
	s.mu.Lock()
	if s.running || time.Since(s.lastRun) < s.minInterval {
		s.mu.Unlock()
		observability.RefreshThrottled.Inc()
		return false
	}
	s.running = true
	s.lastRun = time.Now()
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	cbs := make(map[string]RefreshCallback, len(s.callbacks))
	for k, v := range s.callbacks {
		cbs[k] = v
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	observability.RefreshRuns.WithLabelValues(trigger).Inc()
	for _, key := range keys {
		s.runOne(ctx, key, cbs[key])
	}
	return true
}

// TriggerOne runs a single callback immediately, bypassing the throttle.
// Used for explicit user-initiated "refresh now" requests.
func (s *RefreshScheduler) TriggerOne(ctx context.Context, key string) error {
	s.mu.Lock()
	cb, ok := s.callbacks[key]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("no refresh callback registered for %q", key)
	}
	observability.RefreshRuns.WithLabelValues("manual").Inc()
	s.runOne(ctx, key, cb)
	return nil
}

// runOne isolates a callback: a panic or error is logged and does not stop
// the remaining callbacks of the pass.
func (s *RefreshScheduler) runOne(ctx context.Context, key string, cb RefreshCallback) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("refresh callback panicked",
				slog.String("key", key),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	if err := cb(ctx); err != nil {
		s.logger.Warn("refresh callback failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
