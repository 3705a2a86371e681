package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/gnssviz/internal/metrics"
)

// perWriteTimeout bounds each individual SSE write. The server-level write
// deadline is cleared for stream connections, so this is what unsticks the
// handler goroutine from a stalled reader.
const perWriteTimeout = 30 * time.Second

// subscriber is the write side of one SSE connection.
type subscriber struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// sendJSON marshals v and emits it as one "data:" frame.
func (sub *subscriber) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	n, err := sub.emit("data: %s\n\n", payload)
	if err != nil {
		return err
	}
	sub.messagesSent++
	sub.bytesSent += int64(n)
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(int64(n))
	return nil
}

// sendKeepalive emits an SSE comment frame (":\n\n"). Comments reset proxy
// idle timers without reaching the client's event handler.
func (sub *subscriber) sendKeepalive() error {
	n, err := sub.emit(":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	sub.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return nil
}

// emit writes one frame under the per-write deadline and flushes it out.
func (sub *subscriber) emit(format string, args ...any) (int, error) {
	if err := sub.rc.SetWriteDeadline(time.Now().Add(perWriteTimeout)); err != nil {
		sub.logger.Debug("set write deadline", "error", err)
	}
	n, err := fmt.Fprintf(sub.w, format, args...)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	sub.flusher.Flush()
	return n, nil
}
