package api

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/terrain-traversal-sim/internal/logging"
	"github.com/signalsfoundry/terrain-traversal-sim/model"
)

const (
	frameTypePositions = "positions"
	frameTypeRun       = "run"
	frameTypeCleared   = "cleared"

	writeTimeout    = 5 * time.Second
	clientQueueSize = 32
)

// positionFrame is one message on the position stream.
type positionFrame struct {
	Type      string                 `json:"type"`
	Seq       uint64                 `json:"seq,omitempty"`
	T         float64                `json:"t"`
	MaxTime   float64                `json:"max_time,omitempty"`
	Positions []model.EntityPosition `json:"positions,omitempty"`
}

// Hub fans frames out to connected websocket clients. Each client owns a
// buffered queue drained by its own writer goroutine, so a slow connection
// never holds up Broadcast; a client whose queue is full is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*streamClient
	log     logging.Logger
}

type streamClient struct {
	conn *websocket.Conn
	send chan positionFrame
}

// NewHub constructs an empty hub.
func NewHub(log logging.Logger) *Hub {
	if log == nil {
		log = logging.Noop()
	}
	return &Hub{clients: make(map[*websocket.Conn]*streamClient), log: log}
}

// Add registers conn, queues the initial frames and starts its writer.
func (h *Hub) Add(conn *websocket.Conn, initial ...positionFrame) {
	c := &streamClient{conn: conn, send: make(chan positionFrame, clientQueueSize)}
	for _, f := range initial {
		c.send <- f
	}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	go h.writeLoop(c)
}

// Remove unregisters conn; its writer closes the connection.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[conn]; ok {
		h.dropLocked(c)
	}
}

// Broadcast queues frame for every client without blocking.
func (h *Hub) Broadcast(frame positionFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Debug(context.Background(), "dropping slow websocket client")
			h.dropLocked(c)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *streamClient) {
	delete(h.clients, c.conn)
	close(c.send)
}

// writeLoop is the only writer of c.conn.
func (h *Hub) writeLoop(c *streamClient) {
	defer c.conn.Close()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(frame); err != nil {
			h.log.Debug(context.Background(), "dropping websocket client", logging.Err(err))
			h.Remove(c.conn)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(time.Second))
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(s.allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// handleStream upgrades to a websocket and streams a positions frame on
// every playback tick. Clients receive the current frame on connect.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		loggerFrom(r.Context(), s.log).Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	var initial []positionFrame
	if f, ok := s.currentFrame(); ok {
		initial = append(initial, f)
	}
	s.hub.Add(conn, initial...)
	loggerFrom(r.Context(), s.log).Debug(r.Context(), "websocket client connected",
		logging.Int("clients", s.hub.Len()),
	)

	// Drain client messages until the connection closes.
	go func() {
		defer s.hub.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
