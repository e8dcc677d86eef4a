package sources

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meshwatch/mesh-topo/pkg/topoengine"
)

type NodeCallback func(topoengine.Node)
type TracerouteCallback func(topoengine.Traceroute)

// ListenerStats is a snapshot of the live stream counters.
type ListenerStats struct {
	Nodes       uint64    `json:"nodes"`
	Traceroutes uint64    `json:"traceroutes"`
	Malformed   uint64    `json:"malformed"`
	Reconnects  uint64    `json:"reconnects"`
	LastEvent   time.Time `json:"last_event"`
}

// Listener consumes the dashboard's live event stream and fans decoded
// records out to the callbacks. It reconnects with capped exponential
// backoff; Listen returns only when the context ends.
type Listener struct {
	url          string
	dialer       *websocket.Dialer
	logger       *zap.Logger
	onNode       NodeCallback
	onTraceroute TracerouteCallback

	mu    sync.Mutex
	stats ListenerStats
}

func NewListener(base string, logger *zap.Logger, onNode NodeCallback, onTraceroute TracerouteCallback) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		url:          EventsURL(base),
		dialer:       websocket.DefaultDialer,
		logger:       logger,
		onNode:       onNode,
		onTraceroute: onTraceroute,
	}
}

// EventsURL converts the dashboard base URL to its websocket event endpoint.
func EventsURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + EventsPath
}

// Stats returns a copy of the event counters.
func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

const maxBackoff = 60 * time.Second

// Listen dials the event stream and keeps it alive until ctx ends.
func (l *Listener) Listen(ctx context.Context) error {
	backoff := 1 * time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.logger.Info("connecting to event stream", zap.String("url", l.url))
		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.logger.Warn("dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 1 * time.Second

		subscribeMsg := `{"type": "subscribe", "data": {"events": ["node", "traceroute"]}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribeMsg)); err != nil {
			l.logger.Warn("subscribe failed", zap.Error(err))
			conn.Close()
			continue
		}

		l.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.mu.Lock()
		l.stats.Reconnects++
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Unblocks the pending ReadMessage.
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("read failed, reconnecting", zap.Error(err))
			}
			return
		}
		l.dispatch(message)
	}
}

func (l *Listener) dispatch(message []byte) {
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		l.countMalformed()
		return
	}

	switch msg.Type {
	case "node":
		var n topoengine.Node
		if err := json.Unmarshal(msg.Data, &n); err != nil || n.Num == 0 {
			l.countMalformed()
			return
		}
		l.mu.Lock()
		l.stats.Nodes++
		l.stats.LastEvent = time.Now()
		l.mu.Unlock()
		if l.onNode != nil {
			l.onNode(n)
		}
	case "traceroute":
		var tr topoengine.Traceroute
		if err := json.Unmarshal(msg.Data, &tr); err != nil || (len(tr.Route) == 0 && len(tr.RouteBack) == 0) {
			l.countMalformed()
			return
		}
		l.mu.Lock()
		l.stats.Traceroutes++
		l.stats.LastEvent = time.Now()
		l.mu.Unlock()
		if l.onTraceroute != nil {
			l.onTraceroute(tr)
		}
	case "error":
		l.logger.Warn("event stream error", zap.ByteString("message", message))
	default:
		// Telemetry and other event types are not ours to handle.
	}
}

func (l *Listener) countMalformed() {
	l.mu.Lock()
	l.stats.Malformed++
	l.mu.Unlock()
}
