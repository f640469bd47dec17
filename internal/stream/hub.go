// Package stream carries keyframes over websockets.
//
// A Hub publishes keyframes to any number of subscribers. Because every
// keyframe is a delta against the previous ones, a subscriber first receives
// the full history and then every live keyframe, in publish order, with no
// gaps. A subscriber that cannot keep up is disconnected rather than
// skipped.
package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/kfreplay/internal/keyframe"
)

const writeWait = 10 * time.Second

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kfreplay_stream_subscribers",
		Help: "Connected keyframe stream subscribers",
	})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kfreplay_stream_dropped_subscribers_total",
		Help: "Subscribers disconnected for falling behind",
	})

	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kfreplay_stream_published_total",
		Help: "Keyframes published to stream hubs",
	})
)

// HubConfig controls a Hub.
type HubConfig struct {
	// SendBuffer is how many live keyframes may queue for one subscriber
	// before it is disconnected.
	SendBuffer int

	// MaxDecimalPlaces is passed to the keyframe encoder.
	MaxDecimalPlaces int
}

// DefaultHubConfig returns the defaults used by the serve command.
func DefaultHubConfig() HubConfig {
	return HubConfig{SendBuffer: 256}
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans keyframes out to websocket subscribers. It implements
// http.Handler; each request is upgraded to a subscription.
type Hub struct {
	cfg      HubConfig
	encoder  keyframe.Encoder
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.Mutex
	history     [][]byte
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewHub creates a Hub with no history.
func NewHub(cfg HubConfig, opts ...Option) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultHubConfig().SendBuffer
	}
	h := &Hub{
		cfg:         cfg,
		encoder:     keyframe.Encoder{MaxDecimalPlaces: cfg.MaxDecimalPlaces},
		logger:      slog.Default(),
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish appends kf to the history and queues it for every subscriber.
func (h *Hub) Publish(kf keyframe.Keyframe) error {
	data, err := h.encoder.MarshalWrapped(kf)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("publish: hub closed")
	}
	h.history = append(h.history, data)
	publishedTotal.Inc()
	for sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
			h.logger.Warn("subscriber too slow, disconnecting",
				"buffer", h.cfg.SendBuffer,
				"seq", len(h.history))
			droppedTotal.Inc()
			h.removeLocked(sub)
		}
	}
	return nil
}

// Published returns the number of keyframes published so far.
func (h *Hub) Published() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}

// NumSubscribers returns the number of connected subscribers.
func (h *Hub) NumSubscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber with a normal closure and rejects
// further publishes and connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subscribers {
		h.removeLocked(sub)
	}
}

// register adds sub and returns the history it must be sent first. Doing
// both under one lock guarantees no keyframe is missed or sent twice.
func (h *Hub) register(sub *subscriber) ([][]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.subscribers[sub] = struct{}{}
	subscribersGauge.Inc()
	return append([][]byte(nil), h.history...), true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// removeLocked unregisters sub and closes its queue, which tells its
// writer to close the connection. Safe to call more than once.
func (h *Hub) removeLocked(sub *subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	subscribersGauge.Dec()
	close(sub.send)
}

// ServeHTTP upgrades the request and streams keyframes until either side
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, h.cfg.SendBuffer)}
	backlog, ok := h.register(sub)
	if !ok {
		h.closeConn(conn, websocket.CloseGoingAway, "hub closed")
		return
	}
	h.logger.Debug("subscriber connected", "remote", r.RemoteAddr, "backlog", len(backlog))

	go h.writeLoop(sub, backlog)

	// Subscribers never send anything meaningful; reading only detects
	// the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(sub)
	h.logger.Debug("subscriber disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) writeLoop(sub *subscriber, backlog [][]byte) {
	for _, msg := range backlog {
		if err := h.write(sub.conn, msg); err != nil {
			h.remove(sub)
			sub.conn.Close()
			return
		}
	}
	for msg := range sub.send {
		if err := h.write(sub.conn, msg); err != nil {
			h.remove(sub)
			sub.conn.Close()
			return
		}
	}
	h.closeConn(sub.conn, websocket.CloseNormalClosure, "")
}

func (h *Hub) write(conn *websocket.Conn, msg []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}

func (h *Hub) closeConn(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	conn.Close()
}
