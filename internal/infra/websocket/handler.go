// Package websocket streams scan progress snapshots to connected clients.
package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tp12121212/sit-builder/internal/app"
	"github.com/tp12121212/sit-builder/pkg/apierror"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send control
	// frames on this endpoint.
	maxMessageSize = 512

	// How often the registry is polled for a fresh snapshot.
	pollInterval = 500 * time.Millisecond

	// How long to keep streaming after the scan turns terminal, so the
	// final frame reaches slow clients before the close handshake.
	closeGrace = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Progress frames carry no secrets; cross-origin dashboards are
		// expected consumers.
		return true
	},
}

// ProgressSource serves point-in-time progress snapshots.
type ProgressSource interface {
	Progress(ctx context.Context, id shared.ID) (*app.ProgressView, error)
}

// Handler upgrades progress requests and streams snapshots until the scan is
// terminal or the client goes away.
type Handler struct {
	source ProgressSource
	logger *logger.Logger
}

// NewHandler creates a new WebSocket progress handler.
func NewHandler(source ProgressSource, log *logger.Logger) *Handler {
	return &Handler{
		source: source,
		logger: log.With("component", "ws"),
	}
}

// ServeScanProgress handles GET /ws/scans/{id}.
func (h *Handler) ServeScanProgress(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := shared.IDFromString(raw)
	if err != nil {
		apierror.BadRequest("Invalid scan id").WriteJSON(w)
		return
	}

	// Resolve the scan before committing to the upgrade so unknown IDs get
	// a plain HTTP error instead of a dropped socket.
	first, err := h.source.Progress(r.Context(), id)
	if err != nil {
		apierror.FromDomain(err).WriteJSON(w)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "scan_id", id, "error", err)
		return
	}

	h.logger.Info("progress stream opened", "scan_id", id, "remote_addr", r.RemoteAddr)
	h.stream(r.Context(), conn, id, first)
}

// stream runs the write loop. A companion reader goroutine drains control
// frames and reports client disconnects.
func (h *Handler) stream(ctx context.Context, conn *websocket.Conn, id shared.ID, first *app.ProgressView) {
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var lastFrame []byte
	send := func(view *app.ProgressView) bool {
		frame, err := json.Marshal(view)
		if err != nil {
			h.logger.Error("failed to encode progress frame", "scan_id", id, "error", err)
			return false
		}
		if bytes.Equal(frame, lastFrame) {
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return false
		}
		lastFrame = frame
		return true
	}

	if !send(first) {
		return
	}
	terminal := first.Status.IsTerminal()

	for {
		if terminal {
			time.Sleep(closeGrace)
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(lastStatus(lastFrame))))
			h.logger.Info("progress stream closed", "scan_id", id)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-gone:
			h.logger.Debug("progress stream client disconnected", "scan_id", id)
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
			view, err := h.source.Progress(ctx, id)
			if err != nil {
				// Deleted mid-stream; nothing more to report.
				return
			}
			if !send(view) {
				return
			}
			terminal = view.Status.IsTerminal()
		}
	}
}

// lastStatus pulls the status field out of the last sent frame for the close
// reason. Best effort only.
func lastStatus(frame []byte) string {
	var probe struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return ""
	}
	return probe.Status
}
