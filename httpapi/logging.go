package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// HTTPRecorder observes served requests.
type HTTPRecorder interface {
	ObserveHTTP(method, route string, code int, seconds float64)
}

type responseRecorder struct {
	status int
	bytes  int64
	writer http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header {
	return r.writer.Header()
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.writer.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.writer.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.writer.(http.Flusher); ok {
		f.Flush()
	}
}

type userLookupFunc func(*http.Request) string

// withRequestLogging logs every request and records it under the matched
// mux pattern so path parameters do not explode metric cardinality.
func withRequestLogging(next http.Handler, lookup userLookupFunc, recorder HTTPRecorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{writer: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if recorder != nil {
			recorder.ObserveHTTP(r.Method, route, status, elapsed.Seconds())
		}
		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path = path + "?" + r.URL.RawQuery
		}
		logger := pslog.Ctx(r.Context()).With("remote", clientIP(r))
		if lookup != nil {
			if user := lookup(r); user != "" {
				logger = logger.With("user", user)
			}
		}
		logger.Info("http request", "method", r.Method, "path", path, "status", status, "bytes", rec.bytes, "duration_ms", elapsed.Milliseconds())
		logger.Debug("http request details", "ua", r.UserAgent(), "route", route)
	})
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
