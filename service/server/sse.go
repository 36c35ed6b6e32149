package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/pumpscan/service/metrics"
	natspkg "github.com/brojonat/pumpscan/service/nats"
)

// sseKeepalive is how often an idle stream gets a comment line.
var sseKeepalive = 10 * time.Second

// handleStreamScan streams a wallet's scan progress as Server-Sent Events.
// The stream ends after a completed event published since the client
// connected. A replayed completion from an earlier scan is forwarded but
// keeps the stream open.
// GET /api/v1/stream/scans/{address}
func handleStreamScan(subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		connectedAt := time.Now()
		msgs, err := subscriber.Subscribe(ctx, address)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to scan events",
				"wallet", address,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flush := func() {
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(ctx, "SSE client connected",
			"wallet", address,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"wallet\":\"%s\"}\n\n", address)
		flush()

		keepalive := time.NewTicker(sseKeepalive)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case msg, ok := <-msgs:
				if !ok {
					return
				}
				// Payloads are already JSON; forward them untouched.
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Kind, msg.Data)
				flush()

				if m != nil {
					m.RecordSSEEventSent(msg.Kind)
				}

				if msg.Kind == natspkg.KindCompleted && !completedBefore(msg.Data, connectedAt) {
					logger.DebugContext(ctx, "scan completed, closing stream", "wallet", address)
					return
				}

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"wallet", address,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

// completedBefore reports whether a completed event was published before t.
// Payloads without a readable published_at count as current.
func completedBefore(data []byte, t time.Time) bool {
	var ev struct {
		PublishedAt time.Time `json:"published_at"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.PublishedAt.IsZero() {
		return false
	}
	return ev.PublishedAt.Before(t)
}
