package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/berkguzel/iamrisk/pkg/errs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// unmatchedRoute is the route label of requests no route matched.
const unmatchedRoute = "unmatched"

// RequestID seeds a uuid when the client sent no X-Request-ID, stores the id
// with chi's RequestID middleware and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
	withID := middleware.RequestID(echo)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(RequestIDHeader) == "" {
			r.Header.Set(RequestIDHeader, uuid.New().String())
		}
		withID.ServeHTTP(w, r)
	})
}

func RequestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.maxBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatchedRoute
}

// accessLog logs one line per request and records the route metrics.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		if s.metrics != nil {
			s.metrics.ObserveHTTP(routeLabel(r), status, duration)
		}
		log.Printf("%s %s %d %s request_id=%s", r.Method, r.URL.Path, status, duration, RequestIDFromContext(r.Context()))
	})
}

// recoverer turns a handler panic into a JSON 500 and prints the stack.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Printf("panic serving %s %s request_id=%s: %v", r.Method, r.URL.Path, RequestIDFromContext(r.Context()), v)
				middleware.PrintPrettyStack(v)
				writeError(w, http.StatusInternalServerError, errs.KindUnknown, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
