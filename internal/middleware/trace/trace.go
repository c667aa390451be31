// Package trace assigns request ids and logs every request with its outcome.
package trace

import (
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	applog "flatmates/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Options tunes the middleware. All fields are optional.
type Options struct {
	ExtractIP func(*http.Request) string
	// Route names the matched route after the handler ran, e.g. the chi
	// pattern. Defaults to the URL path.
	Route func(*http.Request) string
	// Observe receives every completed request.
	Observe func(method, route string, status int, d time.Duration)
}

// Middleware tags the request with an id, reusing a well-formed incoming
// X-Request-ID, and logs completion at a level matching the status.
func Middleware(opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(HeaderRequestID)
			if !validRequestID.MatchString(requestID) {
				requestID = GenerateRequestID()
			}
			w.Header().Set(HeaderRequestID, requestID)
			r = r.WithContext(applog.WithRequestID(r.Context(), requestID))

			clientIP := ""
			if opts.ExtractIP != nil {
				clientIP = opts.ExtractIP(r)
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			route := r.URL.Path
			if opts.Route != nil {
				if rt := opts.Route(r); rt != "" {
					route = rt
				}
			}
			if opts.Observe != nil {
				opts.Observe(r.Method, route, rw.statusCode, duration)
			}

			level := slog.LevelInfo
			if rw.statusCode >= 500 {
				level = slog.LevelError
			} else if rw.statusCode >= 400 {
				level = slog.LevelWarn
			}

			fields := applog.NewFields().
				WithComponent(applog.ComponentHTTP).
				WithRequestID(requestID).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
				WithHTTPResponse(rw.statusCode, duration.Milliseconds()).
				WithClientIP(clientIP)
			fields[applog.FieldRoute] = route

			slog.Log(r.Context(), level, "HTTP request completed", fields.ToSlice()...)
		})
	}
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID returns a fresh random id.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}
