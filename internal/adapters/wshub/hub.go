// Package wshub fans engine events out to websocket subscribers.
package wshub

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

const (
	writeTimeout      = 10 * time.Second
	pingInterval      = 30 * time.Second
	pongWait          = 2 * pingInterval
	DefaultSendBuffer = 64
)

type client struct {
	id   string
	wc   *websocket.Conn
	send chan []byte
}

// Hub is a ports.Broadcaster over websocket connections. Emit never blocks:
// a subscriber whose send buffer is full misses the event.
type Hub struct {
	obs        ports.Observability
	upgrader   websocket.Upgrader
	sendBuffer int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

func NewHub(obs ports.Observability, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		obs:        obs,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

func (h *Hub) Emit(kind domain.EventKind, payload any) {
	b, err := json.Marshal(domain.Event{Kind: kind, Data: payload})
	if err != nil {
		h.obs.LogError("broadcast_marshal_failed", err, ports.Field{Key: "event", Value: string(kind)})
		return
	}

	var dropped int
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()

	if dropped > 0 {
		h.obs.IncCounter(ports.MetricBroadcastDropped, float64(dropped))
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the subscription open until the
// peer goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wc, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.obs.LogWarn("websocket_upgrade_failed", ports.Field{Key: "error", Value: err.Error()})
		return
	}

	c := &client{id: uuid.NewString(), wc: wc, send: make(chan []byte, h.sendBuffer)}
	if !h.register(c) {
		_ = wc.Close()
		return
	}
	h.obs.LogInfo("subscriber_connected", ports.Field{Key: "id", Value: c.id}, ports.Field{Key: "remote", Value: r.RemoteAddr})

	go h.write(c)
	err = h.read(c)
	h.unregister(c)
	if err != nil {
		h.obs.LogWarn("subscriber_read_failed", ports.Field{Key: "id", Value: c.id}, ports.Field{Key: "error", Value: err.Error()})
	}
	h.obs.LogInfo("subscriber_disconnected", ports.Field{Key: "id", Value: c.id})
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.obs.SetGauge(ports.GaugeSubscribers, 0)
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.obs.SetGauge(ports.GaugeSubscribers, float64(len(h.clients)))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.obs.SetGauge(ports.GaugeSubscribers, float64(len(h.clients)))
}

// read drains inbound frames; subscribers only listen.
func (h *Hub) read(c *client) error {
	_ = c.wc.SetReadDeadline(time.Now().Add(pongWait))
	c.wc.SetPongHandler(func(string) error {
		return c.wc.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.wc.NextReader(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) || errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
	}
}

func (h *Hub) write(c *client) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	defer c.wc.Close()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.wc.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.wc.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-t.C:
			_ = c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ ports.Broadcaster = (*Hub)(nil)
