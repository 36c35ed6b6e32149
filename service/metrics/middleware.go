package metrics

import (
	"net/http"
	"strings"
	"time"
)

// InstrumentRoute records request count and latency for one mux route.
// pattern is the ServeMux pattern the handler is registered under; the
// method prefix is dropped so the handler label is the path template,
// e.g. "GET /api/v1/scans/{address}" is labelled "/api/v1/scans/{address}".
func InstrumentRoute(m *Metrics, pattern string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	label := routeLabel(pattern)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		m.RecordHTTPRequest(label, r.Method, sw.code(), time.Since(start).Seconds())
	})
}

func routeLabel(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return strings.TrimSpace(path)
	}
	return pattern
}

// statusWriter remembers the first status written. Handlers that only call
// Write get 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Flush keeps SSE working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
