// Package ws pushes resolution events from the signal bus to websocket
// clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 1024
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The HTTP layer enforces CORS and the API key.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Config controls what the hub relays.
type Config struct {
	Mode      string
	StartedAt time.Time

	// Channel is the pub/sub channel relayed live.
	Channel string
	// ReplayStream, when set, is read on connect so new clients see events
	// from the last ReplayWindow (at most ReplayCount of them).
	ReplayStream string
	ReplayWindow time.Duration
	ReplayCount  int
}

// envelope is the frame sent to clients.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans bus messages out to every connected client.
type Hub struct {
	bus    domain.SignalBus
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.Channel == "" {
		cfg.Channel = domain.ChannelPredictionResolved
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	if cfg.ReplayCount <= 0 {
		cfg.ReplayCount = 100
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = time.Hour
	}
	return &Hub{
		bus:        bus,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run subscribes to the bus and serves the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", h.cfg.Channel, err)
	}
	h.logger.InfoContext(ctx, "subscribed", slog.String("channel", h.cfg.Channel))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case data, ok := <-msgs:
			if !ok {
				return fmt.Errorf("ws: subscription to %s closed", h.cfg.Channel)
			}
			frame, err := frameFor(domain.EventPredictionResolved, data)
			if err != nil {
				h.logger.WarnContext(ctx, "dropping malformed event", slog.String("error", err.Error()))
				continue
			}
			h.fanOut(frame)

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}
	c.queue(h.statusFrame())
	for _, f := range h.replay(r.Context()) {
		c.queue(f)
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}

func (h *Hub) statusFrame() []byte {
	payload, _ := json.Marshal(map[string]any{
		"mode":           h.cfg.Mode,
		"uptime_seconds": int64(time.Since(h.cfg.StartedAt).Seconds()),
		"clients":        h.ClientCount(),
	})
	frame, _ := frameFor("status", payload)
	return frame
}

// replay returns frames for stream entries newer than the replay window.
// Stream ids start with a millisecond timestamp, so the window maps
// directly onto an XREAD start id.
func (h *Hub) replay(ctx context.Context) [][]byte {
	if h.cfg.ReplayStream == "" {
		return nil
	}
	from := fmt.Sprintf("%d-0", time.Now().Add(-h.cfg.ReplayWindow).UnixMilli())
	msgs, err := h.bus.StreamRead(ctx, h.cfg.ReplayStream, from, h.cfg.ReplayCount)
	if err != nil {
		h.logger.WarnContext(ctx, "replay read failed", slog.String("error", err.Error()))
		return nil
	}
	frames := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		if f, err := frameFor(domain.EventPredictionResolved, m.Payload); err == nil {
			frames = append(frames, f)
		}
	}
	return frames
}

func frameFor(typ string, payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload for %s is not JSON", typ)
	}
	return json.Marshal(envelope{Type: typ, Payload: payload})
}

// queue adds a frame without blocking; frames beyond the buffer are dropped.
func (c *client) queue(frame []byte) {
	if frame == nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// readPump discards client input and keeps the read deadline alive.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump sends queued frames as text messages and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
