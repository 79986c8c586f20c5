package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/navmap/internal/monitoring"
	"github.com/banshee-data/navmap/internal/timeutil"
)

var logf = monitoring.Component("Telemetry")

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("telemetry hub closed")

// Default delivery settings.
const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultSendTimeout = 2 * time.Second
)

// Kind selects what a subscriber receives on every tick.
type Kind int

const (
	// KindTelemetry subscribers receive the latest snapshot each tick.
	KindTelemetry Kind = iota
	// KindNotify subscribers receive a keep-alive ping each tick and
	// broadcast events in between.
	KindNotify
)

func (k Kind) String() string {
	switch k {
	case KindTelemetry:
		return "telemetry"
	case KindNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Conn is one client connection owned by the hub while subscribed.
type Conn interface {
	// Send writes one message. It must return once ctx is done.
	Send(ctx context.Context, msg []byte) error
	// Ping checks that the peer is still there.
	Ping(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// SnapshotSource provides the state delivered on telemetry ticks.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Handle identifies a subscriber.
type Handle string

// Config holds hub delivery settings. Zero values use the defaults.
type Config struct {
	Interval    time.Duration
	SendTimeout time.Duration
	Clock       timeutil.Clock
}

type subscriber struct {
	id     Handle
	kind   Kind
	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc
	ticker timeutil.Ticker
	done   chan struct{}
	sendMu sync.Mutex
}

// Hub is the registry of live subscribers. Each subscriber gets its own
// delivery goroutine driven by a ticker, so a slow or broken connection only
// delays itself.
type Hub struct {
	cfg    Config
	source SnapshotSource

	mu     sync.RWMutex
	subs   map[Handle]*subscriber
	closed bool
	wg     sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub delivering snapshots from source.
func NewHub(source SnapshotSource, cfg Config) *Hub {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Hub{
		cfg:    cfg,
		source: source,
		subs:   make(map[Handle]*subscriber),
	}
}

// Subscribe registers conn and starts its delivery task. The hub owns conn
// until the subscriber is removed, at which point conn is closed.
func (h *Hub) Subscribe(conn Conn, kind Kind) (Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:     Handle(uuid.NewString()),
		kind:   kind,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return "", ErrHubClosed
	}
	// created before the goroutine starts so ticks are never missed
	sub.ticker = h.cfg.Clock.NewTicker(h.cfg.Interval)
	h.subs[sub.id] = sub
	h.wg.Add(1)
	n := len(h.subs)
	h.mu.Unlock()

	logf("%s subscriber %s connected (total: %d)", kind, sub.id, n)
	go h.run(sub)
	return sub.id, nil
}

// Unsubscribe stops and removes a subscriber. Unknown or already removed
// handles are ignored.
func (h *Hub) Unsubscribe(id Handle) {
	h.remove(id, nil)
}

// Done returns a channel closed once the subscriber has been removed, either
// by Unsubscribe or after a failed delivery.
func (h *Hub) Done(id Handle) <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sub, ok := h.subs[id]; ok {
		return sub.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast sends msg to every current subscriber concurrently and returns
// how many deliveries succeeded. Subscribers that fail are removed; failures
// are never reported to the caller.
func (h *Hub) Broadcast(ctx context.Context, msg []byte) int {
	return h.broadcast(ctx, msg, func(*subscriber) bool { return true })
}

// BroadcastKind is Broadcast restricted to subscribers of one kind.
func (h *Hub) BroadcastKind(ctx context.Context, kind Kind, msg []byte) int {
	return h.broadcast(ctx, msg, func(sub *subscriber) bool { return sub.kind == kind })
}

// Notify sends an event to notify-stream subscribers only. Telemetry
// subscribers only ever receive snapshots.
func (h *Hub) Notify(ctx context.Context, msg []byte) int {
	return h.BroadcastKind(ctx, KindNotify, msg)
}

func (h *Hub) broadcast(ctx context.Context, msg []byte, match func(*subscriber) bool) int {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if match(sub) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	var ok atomic.Int64
	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub *subscriber) {
			defer wg.Done()
			if err := h.send(ctx, sub, msg); err != nil {
				h.remove(sub.id, err)
				return
			}
			ok.Add(1)
		}(sub)
	}
	wg.Wait()
	return int(ok.Load())
}

// Close removes every subscriber and waits for their delivery tasks to exit.
// Subscribe fails afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]Handle, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.remove(id, nil)
	}
	h.wg.Wait()
	logf("hub closed")
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Subscribers map[string]int `json:"subscribers"`
	Delivered   uint64         `json:"delivered"`
	Dropped     uint64         `json:"dropped"`
	Interval    string         `json:"interval"`
}

// Stats reports subscriber counts by kind and delivery totals.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	counts := map[string]int{KindTelemetry.String(): 0, KindNotify.String(): 0}
	for _, sub := range h.subs {
		counts[sub.kind.String()]++
	}
	h.mu.RUnlock()
	return Stats{
		Subscribers: counts,
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
		Interval:    h.cfg.Interval.String(),
	}
}

func (h *Hub) run(sub *subscriber) {
	defer h.wg.Done()
	defer sub.ticker.Stop()

	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.ticker.C():
			if err := h.tick(sub); err != nil {
				h.remove(sub.id, err)
				return
			}
		}
	}
}

func (h *Hub) tick(sub *subscriber) error {
	if sub.kind == KindNotify {
		ctx, cancel := context.WithTimeout(sub.ctx, h.cfg.SendTimeout)
		defer cancel()
		sub.sendMu.Lock()
		defer sub.sendMu.Unlock()
		return sub.conn.Ping(ctx)
	}

	msg, err := EncodeMessage(h.source.Snapshot())
	if err != nil {
		return err
	}
	return h.send(sub.ctx, sub, msg)
}

// send delivers msg to one subscriber, bounded by the send timeout and by
// the subscriber's own lifetime.
func (h *Hub) send(ctx context.Context, sub *subscriber, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()
	stop := context.AfterFunc(sub.ctx, cancel)
	defer stop()

	sub.sendMu.Lock()
	defer sub.sendMu.Unlock()
	if err := sub.conn.Send(ctx, msg); err != nil {
		return err
	}
	h.delivered.Add(1)
	return nil
}

// remove unregisters id, cancels its task and closes its connection. A nil
// cause means the caller asked for the removal.
func (h *Hub) remove(id Handle, cause error) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	n := len(h.subs)
	h.mu.Unlock()
	if !ok {
		return
	}

	sub.cancel()
	close(sub.done)
	if err := sub.conn.Close(); err != nil && cause == nil {
		logf("closing %s subscriber %s: %v", sub.kind, id, err)
	}
	if cause != nil {
		h.dropped.Add(1)
		logf("%s subscriber %s dropped after failed delivery: %v (remaining: %d)", sub.kind, id, cause, n)
		return
	}
	logf("%s subscriber %s disconnected (remaining: %d)", sub.kind, id, n)
}
