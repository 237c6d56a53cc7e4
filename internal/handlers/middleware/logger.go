package middleware

import (
	"net/http"
	"time"
)

type logger interface {
	Info(msg string, args ...any)
}

type requestObserver interface {
	ObserveHTTPRequest(method string, route string, status int, elapsed time.Duration)
}

type logData struct {
	responseStatus int
	responseSize   int
}

type logWriter struct {
	http.ResponseWriter
	data logData
}

func (w *logWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.responseStatus = statusCode
}

// LoggerMiddleware logs every request and reports its duration per route
// The route is the matched ServeMux pattern, so it has to wrap the mux itself
func LoggerMiddleware(l logger, m requestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK, responseSize: 0},
			}

			next.ServeHTTP(lw, r)

			elapsed := time.Since(start)
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			if m != nil {
				m.ObserveHTTPRequest(r.Method, route, lw.data.responseStatus, elapsed)
			}

			l.Info(
				"got HTTP request",
				"method", r.Method,
				"uri", r.RequestURI,
				"route", route,
				"duration", elapsed,
				"status", lw.data.responseStatus,
				"size", lw.data.responseSize,
			)
		})
	}
}
