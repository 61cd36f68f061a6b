package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"vivaha/internal/observability"

	"github.com/redis/go-redis/v9"
)

// settleDelay gives the committing transaction time to become visible to
// dependent reads before a handler fires.
const settleDelay = 100 * time.Millisecond

// ChangeHandler receives decoded change-feed events.
type ChangeHandler func(event ChangeEvent)

// ChangeFeedDispatcher subscribes to store change channels and fans events
// out to registered handlers. Each registration owns its own Redis PubSub, so
// two registrations on the same resource have distinct channel identities and
// unsubscribing one never disturbs the other. Subscription errors are logged
// and the dispatcher keeps going; reconnection is a property of the go-redis
// transport, not of this type.
type ChangeFeedDispatcher struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*registration
}

type registration struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// NewChangeFeedDispatcher creates a dispatcher over the given Redis client.
func NewChangeFeedDispatcher(rdb *redis.Client, logger *slog.Logger) *ChangeFeedDispatcher {
	return &ChangeFeedDispatcher{
		rdb:    rdb,
		logger: logger,
		subs:   make(map[string]*registration),
	}
}

// Subscribe opens one push subscription for the resource's change channel and
// delivers each event to handler after a short settle delay. The key names
// the registration and must be unique; Subscribe fails on duplicates so a
// caller cannot accidentally orphan a running subscription.
func (d *ChangeFeedDispatcher) Subscribe(ctx context.Context, key, resource string, handler ChangeHandler) error {
	if d.rdb == nil {
		return fmt.Errorf("change feed unavailable: no redis client")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.subs[key]; exists {
		return fmt.Errorf("change feed registration %q already exists", key)
	}

	subCtx, cancel := context.WithCancel(ctx)
	pubsub := d.rdb.Subscribe(subCtx, ChangeChannel(resource))
	d.subs[key] = &registration{pubsub: pubsub, cancel: cancel}

	ch := pubsub.Channel()
	go func() {
		defer func() { _ = pubsub.Close() }()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				d.deliver(key, resource, msg.Payload, handler)
			}
		}
	}()

	return nil
}

// Unsubscribe releases a single registration. Other registrations on the same
// resource are unaffected. Unknown keys are a no-op.
func (d *ChangeFeedDispatcher) Unsubscribe(key string) {
	d.mu.Lock()
	reg, ok := d.subs[key]
	if ok {
		delete(d.subs, key)
	}
	d.mu.Unlock()

	if ok {
		reg.cancel()
	}
}

// Close releases every registration.
func (d *ChangeFeedDispatcher) Close() {
	d.mu.Lock()
	regs := d.subs
	d.subs = make(map[string]*registration)
	d.mu.Unlock()

	for _, reg := range regs {
		reg.cancel()
	}
}

func (d *ChangeFeedDispatcher) deliver(key, resource, payload string, handler ChangeHandler) {
	var event ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		d.logger.Warn("change feed: dropping undecodable event",
			slog.String("registration", key),
			slog.String("resource", resource),
			slog.String("error", err.Error()),
		)
		return
	}

	// Let the writing transaction settle before dependent reads run.
	time.Sleep(settleDelay)

	observability.ChangeFeedEvents.WithLabelValues(resource).Inc()
	func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("change feed handler panicked",
					slog.String("registration", key),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		handler(event)
	}()
}
