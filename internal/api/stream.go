package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/otiai10/doggyday/internal/metrics"
	"github.com/otiai10/doggyday/internal/navigation"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

// Stream message types
const (
	StreamTypeState = "state"
	StreamTypeRoute = "route"
)

// StreamMessage is one frame of the session stream
type StreamMessage struct {
	Type  string           `json:"type"`
	State *StateResponse   `json:"state,omitempty"`
	Route navigation.Route `json:"route,omitempty"`
}

// StreamHandler pushes session state and route changes over a WebSocket.
// A new connection first receives the current state and route.
type StreamHandler struct {
	manager  SessionManager
	router   Router
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewStreamHandler creates a StreamHandler accepting connections from
// allowedOrigins. Empty or "*" accepts any origin. m may be nil.
func NewStreamHandler(manager SessionManager, router Router, allowedOrigins []string, m *metrics.Metrics, logger *slog.Logger) *StreamHandler {
	cors := CORSConfig{AllowedOrigins: allowedOrigins}
	return &StreamHandler{
		manager: manager,
		router:  router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cors.allowAny() || slices.Contains(cors.AllowedOrigins, origin)
			},
		},
		metrics: m,
		logger:  logger,
	}
}

// ServeHTTP handles GET /ws
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		h.logger.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
		defer h.metrics.StreamClients.Dec()
	}

	states, unsubscribeStates := h.manager.Subscribe()
	defer unsubscribeStates()
	routes, unsubscribeRoutes := h.router.Subscribe()
	defer unsubscribeRoutes()

	// The read loop only watches for close frames and pongs.
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		var msg StreamMessage
		select {
		case <-closed:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case s, ok := <-states:
			if !ok {
				return
			}
			resp := stateResponse(s, h.manager.IsGoogleAuthReady())
			msg = StreamMessage{Type: StreamTypeState, State: &resp}
		case route, ok := <-routes:
			if !ok {
				return
			}
			msg = StreamMessage{Type: StreamTypeRoute, Route: route}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("stream write failed", "error", err)
			return
		}
	}
}
