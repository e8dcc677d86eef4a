package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 8
)

// Hub fans fresh topology results out to websocket subscribers and feeds
// inbound threshold control messages back to the server.
type Hub struct {
	logger       *zap.Logger
	collector    *Collector
	onThresholds func(thresholdsPatch)

	mu   sync.Mutex
	subs map[string]*subscriber
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger *zap.Logger, collector *Collector, onThresholds func(thresholdsPatch)) *Hub {
	return &Hub{
		logger:       logger,
		collector:    collector,
		onThresholds: onThresholds,
		subs:         make(map[string]*subscriber),
	}
}

// Broadcast queues the payload to every subscriber. A subscriber whose send
// buffer is full is dropped instead of holding up the rest.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	for id, sub := range h.subs {
		select {
		case sub.send <- payload:
		default:
			delete(h.subs, id)
			close(sub.send)
			h.logger.Warn("dropping slow subscriber", zap.String("subscriber", id))
		}
	}
	n := len(h.subs)
	h.mu.Unlock()
	h.collector.SetWSClients(n)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// serve registers the connection and pumps it until it drops. The initial
// payload, when non-nil, is queued before anything else so a fresh
// subscriber renders immediately.
func (h *Hub) serve(conn *websocket.Conn, initial []byte) {
	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	// Queued before the subscriber is visible to Broadcast: the fresh
	// buffer cannot be full here and nothing else can close it yet, so
	// the snapshot always precedes any pushed update.
	if initial != nil {
		sub.send <- initial
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	n := len(h.subs)
	h.mu.Unlock()
	h.collector.SetWSClients(n)
	h.logger.Info("subscriber connected", zap.String("subscriber", sub.id))

	go h.writeLoop(sub)
	h.readLoop(sub)

	h.remove(sub.id)
	conn.Close()
	h.logger.Info("subscriber disconnected", zap.String("subscriber", sub.id))
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.send)
	}
	n := len(h.subs)
	h.mu.Unlock()
	h.collector.SetWSClients(n)
}

func (h *Hub) writeLoop(sub *subscriber) {
	// Closing the connection here unblocks the read side once the send
	// channel is closed out from under a dropped subscriber.
	defer sub.conn.Close()
	for payload := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *Hub) readLoop(sub *subscriber) {
	for {
		_, message, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "thresholds" {
			continue
		}
		var patch thresholdsPatch
		if err := json.Unmarshal(msg.Data, &patch); err != nil {
			h.logger.Warn("bad thresholds message", zap.String("subscriber", sub.id), zap.Error(err))
			continue
		}
		if h.onThresholds != nil {
			h.onThresholds(patch)
		}
	}
}
