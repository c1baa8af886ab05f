package httpapi

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func routeName(r *http.Request) string {
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// RequestID echoes the caller's X-Request-ID or assigns a fresh UUIDv4.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			if u, err := uuid.NewV4(); err == nil {
				id = u.String()
				r.Header.Set(HeaderRequestID, id)
			}
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// Logging returns a middleware for structured request logging and request metrics.
func Logging(log *zap.Logger, m *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routeName(r)
			dur := time.Since(start)
			if m != nil {
				m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
				m.RequestDuration.WithLabelValues(route).Observe(dur.Seconds())
			}

			// metadata only, never bodies
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("code", rec.code),
				zap.Duration("dur", dur),
				zap.String("peer", r.RemoteAddr),
				zap.String("request_id", r.Header.Get(HeaderRequestID)),
			)
		})
	}
}

// Recover returns a middleware that turns handler panics into 500 responses.
func Recover(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					log.Error("panic",
						zap.Any("reason", v),
						zap.ByteString("stack", debug.Stack()),
						zap.String("route", routeName(r)),
					)
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
