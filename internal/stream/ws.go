package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/star/impactgo/internal/driver"
	"github.com/star/impactgo/internal/metrics"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	replyBuffer    = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn serializes writes to one WebSocket connection.
type wsConn struct {
	conn         *websocket.Conn
	messagesSent int64
	bytesSent    int64
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.messagesSent++
	c.bytesSent += int64(len(data))
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(len(data)))
	return nil
}

// HandleWebSocket serves the bidirectional channel: snapshots are pushed
// like the SSE stream, and each text frame received is decoded as a
// driver.Intent, applied, and acknowledged with the resulting revision.
// GET /api/v1/ws?interval_ms=100&trail=20
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	params, err := parseStreamParams(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		writeJSONError(w, http.StatusBadRequest, "websocket upgrade required")
		return
	}

	ip, release, ok := h.admit(w, r, "ws")
	if !ok {
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		metrics.IncStreamErrors("upgrade_error")
		h.logger.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	startTime := time.Now()
	c := &wsConn{conn: conn}
	h.logger.Info("stream connected",
		"transport", "ws",
		"conn_id", connID,
		"remote_ip", ip,
		"interval_ms", params.interval.Milliseconds(),
		"trail", params.trail,
	)
	defer func() {
		h.logger.Info("stream disconnected",
			"transport", "ws",
			"conn_id", connID,
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
			"messages_sent", c.messagesSent,
			"bytes_sent", c.bytesSent,
		)
	}()

	replies := make(chan any, replyBuffer)
	readDone := make(chan struct{})
	go h.readIntents(conn, connID, replies, readDone)

	if err := c.writeJSON(h.metadata(connID)); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}

	ticker := time.NewTicker(params.interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	var lastRev uint64
	first := true
	send := func() error {
		msg, changed := h.nextSnapshot(lastRev, first, params.trail)
		if !changed {
			return nil
		}
		if err := c.writeJSON(msg); err != nil {
			return err
		}
		lastRev, first = msg.Snapshot.Revision, false
		return nil
	}

	if err := send(); err != nil {
		metrics.IncStreamErrors("send_error")
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-readDone:
			return
		case reply := <-replies:
			if err := c.writeJSON(reply); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("websocket send error", "conn_id", connID, "error", err)
				return
			}
		case <-ticker.C:
			if err := send(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("websocket send error", "conn_id", connID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				metrics.IncStreamErrors("send_error")
				return
			}
		}
	}
}

// readIntents decodes and applies intents until the connection fails. It
// owns all reads on conn; replies are handed to the writer loop.
func (h *Handler) readIntents(conn *websocket.Conn, connID string, replies chan<- any, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(h.config.IntentRate, h.config.IntentBurst)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "conn_id", connID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var reply any
		if !limiter.Allow() {
			metrics.IncStreamErrors("intent_rate_limit")
			reply = errorMessage{Type: "error", Error: "intent rate limit exceeded"}
		} else {
			reply = h.applyIntent(data)
		}

		select {
		case replies <- reply:
		default:
			metrics.IncStreamErrors("reply_dropped")
		}
	}
}

// applyIntent decodes and applies one intent frame.
func (h *Handler) applyIntent(data []byte) any {
	var in driver.Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return errorMessage{Type: "error", Error: "invalid intent JSON"}
	}
	snap, err := h.driver.Apply(in)
	ack := ackMessage{Type: "ack", Op: in.Op, Revision: snap.Revision}
	if err != nil {
		if !driver.IsClientError(err) {
			h.logger.Error("intent failed", "op", in.Op, "error", err)
			err = errors.New("internal error")
		}
		ack.Error = err.Error()
	}
	return ack
}
