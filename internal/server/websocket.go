package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/looprec/internal/metrics"
	"github.com/audiolibrelab/looprec/internal/session"
	"github.com/audiolibrelab/looprec/internal/ui"
)

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // remote control from any device on the network
	},
}

// StatusMessage is pushed to WebSocket clients on every state change
type StatusMessage struct {
	State    session.UIState `json:"state"`
	Controls ui.Controls     `json:"controls"`
}

func newStatusMessage(s session.UIState) StatusMessage {
	return StatusMessage{State: s, Controls: ui.Project(s)}
}

// clientWriter owns the write side of one connection
type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg := <-cw.sendCh:
			cw.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("WebSocket write failed", "remote_addr", cw.conn.RemoteAddr().String(), "error", err)
				cw.stop()
				return
			}
		case <-cw.done:
			return
		}
	}
}

// send queues msg without blocking. A full buffer means the client cannot
// keep up and it is disconnected.
func (cw *clientWriter) send(msg []byte) {
	select {
	case cw.sendCh <- msg:
	case <-cw.done:
	default:
		slog.Warn("Disconnecting slow client", "remote_addr", cw.conn.RemoteAddr().String())
		cw.stop()
	}
}

func (cw *clientWriter) stop() {
	cw.once.Do(func() {
		close(cw.done)
		cw.conn.Close()
	})
}

func encodeStatus(s session.UIState) []byte {
	data, err := json.Marshal(newStatusMessage(s))
	if err != nil {
		slog.Error("Failed to encode status", "error", err)
		return nil
	}
	return data
}

// handleWebSocket streams the session state until the client disconnects
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	cw := newClientWriter(conn)
	metrics.WebSocketConnectionsCurrent.Inc()
	defer metrics.WebSocketConnectionsCurrent.Dec()

	unsubscribe := s.controller.Subscribe(func(state session.UIState) {
		if msg := encodeStatus(state); msg != nil {
			cw.send(msg)
		}
	})
	defer unsubscribe()
	defer cw.stop()

	if msg := encodeStatus(s.controller.State()); msg != nil {
		cw.send(msg)
	}

	slog.Debug("WebSocket client connected", "remote_addr", r.RemoteAddr)

	// Read pump, blocks until the connection closes
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	slog.Debug("WebSocket client disconnected", "remote_addr", r.RemoteAddr)
}
