package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/smsh73/AAA/internal/contracts"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	streamPageSize = 100
)

// StreamMessage is one websocket frame of the log stream
type StreamMessage struct {
	Type string                   `json:"type"` // log | status
	Log  *contracts.UnitResult    `json:"log,omitempty"`
	Job  *contracts.CollectionJob `json:"job,omitempty"`
}

// StreamLogs follows the unit audit log of a job over a websocket
// 작업이 종료 상태가 되고 남은 로그를 모두 보내면 status 프레임 후 종료
// GET /api/collections/{id}/logs/ws?after=0
func (h *CollectionHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	after, err := parseIntParam(r.URL.Query().Get("after"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'after' (expected integer log id)")
		return
	}

	// 존재하지 않는 job은 upgrade 전에 404
	if _, err := h.service.GetJobStatus(r.Context(), jobID); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.readUntilClosed(conn, cancel)

	log := h.logger.WithField("job_id", jobID)
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		// 상태를 먼저 읽어야 종료 직전에 추가된 로그를 놓치지 않음
		job, err := h.service.GetJobStatus(ctx, jobID)
		if err != nil {
			log.WithError(err).Debug("Log stream status read failed")
			return
		}

		sent, err := h.sendLogs(ctx, conn, jobID, &after)
		if err != nil {
			log.WithError(err).Debug("Log stream closed")
			return
		}

		if job.IsTerminal() && sent < streamPageSize {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(StreamMessage{Type: "status", Job: job})
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
			return
		}
		if sent == streamPageSize {
			continue
		}

		select {
		case <-ctx.Done():
			// 서버 종료 시 클라이언트가 재연결할 수 있도록 going away
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin accepts non-browser clients, same-host pages and configured origins
// Origin 헤더가 없으면 브라우저가 아님 (CLI, 서버 간 호출)
func (h *CollectionHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// sendLogs writes one page of logs after the cursor and advances it
func (h *CollectionHandler) sendLogs(ctx context.Context, conn *websocket.Conn, jobID string, after *int64) (int, error) {
	logs, err := h.service.GetJobLogs(ctx, jobID, *after, streamPageSize)
	if err != nil {
		return 0, err
	}
	for _, l := range logs {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(StreamMessage{Type: "log", Log: l}); err != nil {
			return 0, err
		}
		*after = l.ID
	}
	return len(logs), nil
}

// readUntilClosed drains client frames so pongs and close frames are processed
func (h *CollectionHandler) readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
