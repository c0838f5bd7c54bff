package portfolio

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/atmx/portfolio-engine/internal/metrics"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait / 2
	wsClientBuf  = 16
)

// WSMessage carries recalculated portfolio totals to dashboard clients.
type WSMessage struct {
	Type          string    `json:"type"`
	Reason        string    `json:"reason,omitempty"`
	BaseCurrency  string    `json:"base_currency"`
	TotalValue    string    `json:"total_value"`
	TotalCost     string    `json:"total_cost"`
	TotalGainLoss string    `json:"total_gain_loss"`
	Holdings      int       `json:"holdings"`
	PinnedRates   bool      `json:"pinned_rates"`
	CalculatedAt  time.Time `json:"calculated_at"`
}

// subscriber is one dashboard connection. Only its writer goroutine
// writes to conn.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans stats updates out to subscribers. A newly connected
// subscriber first receives the most recent update. Subscribers whose
// queue is full are disconnected rather than slowing the others.
type WSHub struct {
	subs       map[*subscriber]struct{}
	latest     []byte
	updates    chan []byte
	register   chan *subscriber
	unregister chan *subscriber
	done       chan struct{}
	mu         sync.RWMutex
	log        zerolog.Logger
}

func NewWSHub(log zerolog.Logger) *WSHub {
	return &WSHub{
		subs:       make(map[*subscriber]struct{}),
		updates:    make(chan []byte, 256),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
}

// Run owns the subscriber set until ctx is done.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for sub := range h.subs {
				h.drop(sub)
			}
			h.mu.Unlock()
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subs[sub] = struct{}{}
			if h.latest != nil {
				sub.send <- h.latest
			}
			metrics.WebSocketClients.Set(float64(len(h.subs)))
			h.mu.Unlock()
			h.log.Info().Int("total", h.Clients()).Msg("Dashboard subscribed")

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				h.drop(sub)
			}
			h.mu.Unlock()

		case msg := <-h.updates:
			h.mu.Lock()
			h.latest = msg
			for sub := range h.subs {
				select {
				case sub.send <- msg:
				default:
					h.log.Warn().Str("remote", sub.conn.RemoteAddr().String()).Msg("Slow dashboard dropped")
					h.drop(sub)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes sub; h.mu must be held. Closing send stops the writer,
// which closes the connection.
func (h *WSHub) drop(sub *subscriber) {
	delete(h.subs, sub)
	close(sub.send)
	metrics.WebSocketClients.Set(float64(len(h.subs)))
}

// Clients returns the number of connected subscribers.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast queues msg for every subscriber. It never blocks the caller.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("Encode stats update")
		return
	}
	select {
	case h.updates <- data:
	default:
		h.log.Warn().Str("type", msg.Type).Msg("Stats update queue full, dropping message")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// HandleWS upgrades GET /api/v1/ws and subscribes the connection.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WS upgrade failed")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, wsClientBuf)}
	select {
	case h.register <- sub:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

// readLoop discards client frames and unsubscribes on disconnect.
func (h *WSHub) readLoop(sub *subscriber) {
	defer func() {
		select {
		case h.unregister <- sub:
		case <-h.done:
		}
	}()

	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WSHub) writeLoop(sub *subscriber) {
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
