package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/martinemde/sitesmith/observability"
)

// ConnectedMessage is the first frame every observer receives.
const ConnectedMessage = "Connected to sitesmith!"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxInboundSize = 4096
	sendBuffer     = 256
)

// Hub delivers narrations to the single connected observer. A new
// connection supersedes the previous one; the older socket stays open but
// receives nothing more. Messages sent while nobody is connected are dropped.
type Hub struct {
	upgrader websocket.Upgrader
	current  atomic.Pointer[subscriber]
	logger   *slog.Logger
	metrics  *observability.Metrics
}

type subscriber struct {
	id        string
	conn      *websocket.Conn
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a hub. Logger and metrics may be nil. Browsers may connect
// from the page's own origin or from one of allowedOrigins; "*" allows any.
func NewHub(logger *slog.Logger, metrics *observability.Metrics, allowedOrigins ...string) *Hub {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8192,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger:  logger,
		metrics: metrics,
	}
}

// originChecker accepts requests without an Origin header, same-host
// origins and the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// Notify queues message for the current observer without blocking.
func (h *Hub) Notify(message string) {
	sub := h.current.Load()
	if sub == nil {
		h.metrics.RecordObserverMessage(false)
		return
	}
	select {
	case sub.send <- message:
		h.metrics.RecordObserverMessage(true)
	default:
		h.metrics.RecordObserverMessage(false)
		h.logger.Warn("observer send buffer full, dropping message", "observer", sub.id)
	}
}

// Connected reports whether an observer is attached.
func (h *Hub) Connected() bool {
	return h.current.Load() != nil
}

// ServeHTTP upgrades the request and makes the connection the current
// observer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan string, sendBuffer),
		done: make(chan struct{}),
	}
	sub.send <- ConnectedMessage
	if prev := h.current.Swap(sub); prev != nil {
		h.logger.Info("observer superseded", "previous", prev.id, "observer", sub.id)
	}
	h.logger.Info("observer connected", "observer", sub.id, "remote", r.RemoteAddr)

	go sub.writePump()
	sub.readPump()

	h.current.CompareAndSwap(sub, nil)
	sub.close()
	h.logger.Info("observer disconnected", "observer", sub.id)
}

// Close disconnects the current observer.
func (h *Hub) Close() {
	if sub := h.current.Swap(nil); sub != nil {
		sub.close()
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// readPump discards inbound frames and returns when the peer goes away.
func (s *subscriber) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxInboundSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump is the only writer on the connection, so frames leave in the
// order they were queued.
func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
