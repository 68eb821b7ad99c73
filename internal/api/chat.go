package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cicada-project/cleo/internal/orchestrator"
)

// chatHandler serves the SSE chat endpoint.
//
// The handler is the single writer to the client connection: it drains the
// orchestrator's event channel and performs all SSE framing and flushing.
type chatHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// stream handles POST /api/v1/chat/stream.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req orchestrator.Request
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Failure before the stream opens: the status line has not been
		// written yet, so the error frame can still ride a 500.
		w.WriteHeader(http.StatusInternalServerError)
		_ = writeEvent(w, flusher, string(orchestrator.EventError),
			orchestrator.ErrorPayload{Error: "invalid request body"})
		return
	}

	ctx, span := otel.Tracer("cleo/api").Start(r.Context(), "chat.stream")
	span.SetAttributes(
		attribute.Int("chat.query_len", len(req.Query)),
		attribute.Int("chat.history_len", len(req.History)),
	)
	defer span.End()

	requestID, _ := requestIDFromContext(ctx)
	h.logger.Debug("sse stream started", "request_id", requestID)

	events := h.orch.Run(ctx, req)
	for ev := range events {
		if err := writeEvent(w, flusher, string(ev.Kind), ev.Payload()); err != nil {
			// Write failure usually means the client disconnected. Keep
			// draining so the orchestrator goroutine can finish.
			h.logger.Debug("writing sse event", "error", err)
			for range events {
			}
			return
		}
	}

	h.logger.Debug("sse stream completed", "request_id", requestID)
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent(w io.Writer, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
