// Package relay implements EventRelay (C7): a resilient websocket client
// that connects to a Douyin live room's chat/gift/like event stream,
// decodes protobuf-framed messages, and forwards deduplicated events
// through a bounded, back-pressured queue.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zitemo/livecards/pkg/types"
)

// CredentialProvider negotiates session credentials (ttwid, a_bogus,
// signature) for a live room. The concrete signing scheme is opaque to this
// package.
type CredentialProvider interface {
	Sign(ctx context.Context, roomID string) (Credential, error)
}

// Credential bundles the headers/query values a concrete CredentialProvider
// produces for one connection attempt.
type Credential struct {
	TTWID     string
	ABogus    string
	Signature string
	UserAgent string
}

// Status is the relay's externally observable connection state.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusRunning      Status = "running"
	StatusReconnecting Status = "reconnecting"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// ErrFailed describes an exhausted reconnect budget. Start and run do not
// return it; the relay reports that condition through Status as
// StatusFailed.
var ErrFailed = errors.New("relay: exceeded reconnect budget, requires explicit restart")

// wsConn is the subset of *websocket.Conn used by Relay, extracted for
// testability.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer establishes a websocket connection. The default implementation
// wraps gorilla/websocket; tests inject a fake.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (wsConn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string, header http.Header) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Config tunes the relay client, per spec §4.7.
type Config struct {
	WSURL  string
	RoomID string

	HeartbeatInterval      time.Duration // default 5s
	AckTimeout             time.Duration // default 2s
	QueueCapacity          int           // default 1024
	ChatBlockDuration      time.Duration // default 50ms
	ReconnectInitial       time.Duration // default 1s
	ReconnectMax           time.Duration // default 30s
	MaxReconnectsPerWindow int           // default 10
	ReconnectWindow        time.Duration // default 60s
	DedupWindow            time.Duration // default 5m
}

func (c *Config) applyDefaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 2 * time.Second
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 1024
	}
	if c.ChatBlockDuration == 0 {
		c.ChatBlockDuration = 50 * time.Millisecond
	}
	if c.ReconnectInitial == 0 {
		c.ReconnectInitial = 1 * time.Second
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.MaxReconnectsPerWindow == 0 {
		c.MaxReconnectsPerWindow = 10
	}
	if c.ReconnectWindow == 0 {
		c.ReconnectWindow = 60 * time.Second
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = 5 * time.Minute
	}
}

// Relay implements EventRelay (C7).
type Relay struct {
	cfg     Config
	cred    CredentialProvider
	decoder FrameDecoder
	dialer  Dialer

	queue *eventQueue
	dedup *dedupWindow
	out   chan types.ChatEvent

	mu                  sync.Mutex
	status              Status
	reconnectTimestamps []time.Time
	currentConn         wsConn

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option is a functional option for configuring a Relay.
type Option func(*Relay)

// WithDialer overrides the websocket dialer, for tests.
func WithDialer(d Dialer) Option {
	return func(r *Relay) { r.dialer = d }
}

// New constructs a Relay.
func New(cred CredentialProvider, decoder FrameDecoder, cfg Config, opts ...Option) *Relay {
	cfg.applyDefaults()
	r := &Relay{
		cfg:     cfg,
		cred:    cred,
		decoder: decoder,
		dialer:  gorillaDialer{},
		queue:   newEventQueue(cfg.QueueCapacity),
		dedup:   newDedupWindow(cfg.DedupWindow),
		out:     make(chan types.ChatEvent, 1),
		status:  StatusStopped,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the channel normalized ChatEvents are delivered on.
func (r *Relay) Events() <-chan types.ChatEvent { return r.out }

// Status returns the current connection status.
func (r *Relay) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Dropped returns the number of events dropped by the bounded queue's
// overflow policy.
func (r *Relay) Dropped() int64 { return r.queue.Dropped() }

// Start begins the connect/reconnect loop in a background goroutine and
// starts the queue-draining goroutine. Returns immediately.
func (r *Relay) Start(ctx context.Context) {
	r.setStatus(StatusConnecting)
	go r.drainLoop(ctx)
	go r.run(ctx)
}

// Stop halts the relay and closes its output channel's producer side.
// Safe to call multiple times.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.mu.Lock()
	conn := r.currentConn
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	r.setStatus(StatusStopped)
}

func (r *Relay) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *Relay) isStopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// run drives the connect/reconnect loop.
func (r *Relay) run(ctx context.Context) {
	backoff := r.cfg.ReconnectInitial

	for {
		if r.isStopped() || ctx.Err() != nil {
			return
		}

		conn, err := r.connect(ctx)
		if err != nil {
			slog.Warn("relay: connect failed", "error", err)
			if r.recordReconnectAndCheckBudget() {
				r.setStatus(StatusFailed)
				return
			}
			if !r.sleepBackoff(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, r.cfg.ReconnectMax)
			continue
		}

		backoff = r.cfg.ReconnectInitial
		r.mu.Lock()
		r.currentConn = conn
		r.mu.Unlock()
		r.setStatus(StatusRunning)
		r.serve(ctx, conn)
		r.mu.Lock()
		r.currentConn = nil
		r.mu.Unlock()

		if r.isStopped() || ctx.Err() != nil {
			return
		}

		r.setStatus(StatusReconnecting)
		if r.recordReconnectAndCheckBudget() {
			r.setStatus(StatusFailed)
			return
		}
	}
}

func (r *Relay) connect(ctx context.Context) (wsConn, error) {
	cred, err := r.cred.Sign(ctx, r.cfg.RoomID)
	if err != nil {
		return nil, fmt.Errorf("relay: credential sign: %w", err)
	}

	header := http.Header{}
	header.Set("User-Agent", cred.UserAgent)
	header.Set("Cookie", "ttwid="+cred.TTWID)
	header.Set("X-A-Bogus", cred.ABogus)
	header.Set("X-Signature", cred.Signature)

	return r.dialer.Dial(ctx, r.cfg.WSURL, header)
}

// serve reads frames from conn until error, dispatching decoded events into
// the bounded queue and replying to ack-requesting frames, while a
// heartbeat goroutine pings on its own interval. Blocks until the
// connection fails or the relay is stopped.
func (r *Relay) serve(ctx context.Context, conn wsConn) {
	connDone := make(chan struct{})
	defer close(connDone)
	defer conn.Close()

	go r.heartbeatLoop(conn, connDone)

	for {
		if r.isStopped() || ctx.Err() != nil {
			return
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("relay: read failed", "error", err)
			return
		}

		if r.decoder.NeedsAck(frame) {
			ack := r.decoder.BuildAck(frame)
			_ = conn.SetReadDeadline(time.Now().Add(r.cfg.AckTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, ack); err != nil {
				slog.Warn("relay: ack write failed", "error", err)
				return
			}
		}

		event, ok, err := r.decoder.Decode(frame)
		if err != nil {
			slog.Warn("relay: decode failed", "error", err)
			continue
		}
		if !ok {
			continue
		}

		if r.dedup.SeenRecently(event.EventID, time.Now()) {
			continue
		}

		dropped := r.queue.Push(event, r.cfg.ChatBlockDuration)
		if dropped {
			slog.Warn("relay: event dropped due to queue overflow", "kind", event.Kind, "event_id", event.EventID)
		}
	}
}

func (r *Relay) heartbeatLoop(conn wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainLoop pulls events out of the bounded internal queue and forwards
// them to the external Events() channel, naturally propagating
// back-pressure: a slow consumer stalls this loop, which fills the bounded
// queue, which then engages the overflow drop policy.
func (r *Relay) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		ev, ok := r.queue.Pop()
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		select {
		case r.out <- ev:
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		}
	}
}

// recordReconnectAndCheckBudget records a reconnect attempt timestamp and
// reports whether the relay has exceeded max_reconnects within the
// reconnect window, per spec §4.7.
func (r *Relay) recordReconnectAndCheckBudget() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.cfg.ReconnectWindow)

	kept := r.reconnectTimestamps[:0]
	for _, ts := range r.reconnectTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	r.reconnectTimestamps = kept

	return len(r.reconnectTimestamps) > r.cfg.MaxReconnectsPerWindow
}

func (r *Relay) sleepBackoff(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-r.stopCh:
		return false
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}
