package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long one WebSocket write may take.
	writeWait = 10 * time.Second

	// pongWait is how long the connection may stay silent before the read
	// side gives up.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so pings keep the
	// connection alive.
	pingPeriod = 30 * time.Second
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		return true
	},
}

// progressWebSocketHandler streams progress events for one job until the
// job finishes or the client goes away.
func (s *Server) progressWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job")
	job, ok := s.jobs.Get(jobID)
	if !ok {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", slog.Any("error", err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("job_id", job.ID))

	s.streamJobProgress(conn, job)
}

// streamJobProgress is the write side of a progress connection. A
// separate goroutine consumes control frames and flags disconnects.
func (s *Server) streamJobProgress(conn *websocket.Conn, job *Job) {
	clientGone := make(chan struct{})

	go func() {
		defer close(clientGone)

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("WebSocket read ended", slog.Any("error", err))
				}
				return
			}
			websocketMessagesTotal.WithLabelValues("received").Inc()
		}
	}()

	// Send ping messages to keep the connection alive.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-clientGone:
				return
			}
		}
	}()

	// Send the current state first so late subscribers catch up.
	initial := job.Event()
	if !sendProgressEvent(conn, initial) || initial.Done {
		return
	}

	events := job.Subscribe()
	defer job.Unsubscribe(events)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Job finished; deliver the terminal event.
				sendProgressEvent(conn, job.Event())
				return
			}
			if !sendProgressEvent(conn, ev) {
				return
			}
		case <-clientGone:
			return
		}
	}
}

// sendProgressEvent writes one event, reporting whether the connection is
// still usable.
func sendProgressEvent(conn *websocket.Conn, ev ProgressEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal progress event", slog.Any("error", err))
		return false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("Failed to send progress event", slog.Any("error", err))
		return false
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return true
}
