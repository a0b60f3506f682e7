package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/impactgo/internal/metrics"
)

const writeWait = 30 * time.Second

// sseClient manages a single SSE connection's writes.
type sseClient struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	id      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendJSON marshals v and sends it as one SSE "data:" event.
func (c *sseClient) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendRaw(data)
}

// sendRaw frames pre-encoded JSON as "data: {json}\n\n".
func (c *sseClient) sendRaw(data []byte) error {
	c.extendDeadline()

	n, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendKeepalive sends an SSE comment line.
func (c *sseClient) sendKeepalive() error {
	c.extendDeadline()

	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return nil
}

func (c *sseClient) extendDeadline() {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Debug("could not set write deadline", "conn_id", c.id, "error", err)
	}
}
