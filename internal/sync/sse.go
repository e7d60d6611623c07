package sync

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// SSEEmitter writes events to a server-sent-events response, flushing after
// every event so the caller sees progress as it happens.
type SSEEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
}

// NewSSEEmitter prepares the response for event streaming and returns the
// emitter. It fails when the response writer does not support flushing.
func NewSSEEmitter(w http.ResponseWriter, logger *zap.Logger) (*SSEEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEEmitter{w: w, flusher: flusher, logger: logger}, nil
}

// Emit serializes one event frame and flushes it. A marshal or write failure
// is logged and dropped; the sync itself never depends on delivery.
func (e *SSEEmitter) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("failed to encode event payload",
			zap.String("event", event), zap.Error(err))
		return
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		e.logger.Warn("failed to write event to stream",
			zap.String("event", event), zap.Error(err))
		return
	}
	e.flusher.Flush()
}
