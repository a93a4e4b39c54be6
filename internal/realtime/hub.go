package realtime

import (
	"context"
	"sync"
	"time"

	"tradehub-admin/internal/metrics"

	"go.uber.org/zap"
)

const (
	EventChange  = "change"
	EventMetrics = "metrics"
)

// Event is the frame pushed to dashboards: {"type": ..., "payload": ...}.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const writeWait = 5 * time.Second

type Hub struct {
	mu      sync.Mutex
	clients map[Conn]bool
	ch      chan Event
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: map[Conn]bool{},
		ch:      make(chan Event, 64),
		log:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case ev := <-h.ch:
			h.send(ev)
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) send(ev Event) {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Debug("dropping websocket client", zap.Error(err))
			h.Remove(conn)
			_ = conn.Close()
		}
	}
}

// Broadcast queues ev for every client. When the queue is full the event is
// dropped; dashboards refetch on the next change anyway.
func (h *Hub) Broadcast(ev Event) bool {
	select {
	case h.ch <- ev:
		return true
	default:
		h.log.Warn("realtime queue full, event dropped", zap.String("type", ev.Type))
		return false
	}
}

func (h *Hub) Add(conn Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) Remove(conn Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
	metrics.WebsocketClients.Set(0)
}
