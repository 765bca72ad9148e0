package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agri-forecast/crop-price/internal/learning"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// EventsHandler streams training events to WebSocket clients as JSON.
type EventsHandler struct {
	stream   learning.EventStream
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewEventsHandler creates a handler relaying events from stream.
func NewEventsHandler(stream learning.EventStream, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		stream: stream,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and relays events until either side goes away.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := h.stream.Subscribe(ctx)
	if err != nil {
		h.logger.Error("Failed to subscribe to training events", zap.Error(err))
		return
	}
	h.logger.Info("Training event subscriber connected", zap.String("remote", r.RemoteAddr))

	// The read loop only handles control frames and notices the client leaving.
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("Training event subscriber write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// NewOpsMux wires the operational endpoints.
func NewOpsMux(status StatusProvider, events *EventsHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthCheckHandler)
	mux.HandleFunc("GET /ready", ReadinessHandler(status))
	mux.Handle("GET /ws/events", events)
	return mux
}
