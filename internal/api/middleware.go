package api

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestBodyLimitMiddleware enforces a max request body size for downstream handlers.
func RequestBodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	if maxBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r != nil && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

const maxInboundRequestIDLen = 128

// RequestIDMiddleware tags every request with an id, reusing a sane inbound
// X-Request-ID. The id is echoed on the response and carried in the context
// so downstream calls forward it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(downstream.RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(downstream.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(downstream.WithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxInboundRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// RecoverMiddleware turns a handler panic into a 500 JSON error.
func RecoverMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			logger.Error("handler panic",
				zap.Any("panic", rvr),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", downstream.RequestIDFromContext(r.Context())),
				zap.ByteString("stack", debug.Stack()),
			)
			writeInternal(w)
		}()
		next.ServeHTTP(w, r)
	})
}

// JSONFallbackMiddleware answers requests the mux has no route for with
// the JSON error body instead of the mux's plain-text 404 and 405.
func JSONFallbackMiddleware(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := mux.Handler(r)
		if pattern != "" {
			mux.ServeHTTP(w, r)
			return
		}
		fw := &fallbackWriter{header: make(http.Header)}
		h.ServeHTTP(fw, r)
		if allow := fw.header.Get("Allow"); allow != "" {
			w.Header().Set("Allow", allow)
		}
		switch fw.status {
		case http.StatusMethodNotAllowed:
			WriteError(w, fw.status, "method "+r.Method+" not allowed")
		case http.StatusNotFound, 0:
			writeNotFound(w, "route not found")
		default:
			WriteError(w, fw.status, strings.ToLower(http.StatusText(fw.status)))
		}
	})
}

// fallbackWriter captures the mux's own reply so it can be rewritten.
type fallbackWriter struct {
	header http.Header
	status int
}

func (f *fallbackWriter) Header() http.Header { return f.header }

func (f *fallbackWriter) WriteHeader(code int) {
	if f.status == 0 {
		f.status = code
	}
}

func (f *fallbackWriter) Write(b []byte) (int, error) {
	if f.status == 0 {
		f.status = http.StatusOK
	}
	return len(b), nil
}

// HTTPObserver receives one sample per served request.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// AccessLogMiddleware logs each request and reports it to obs. It must wrap
// the mux directly so the matched pattern is visible after ServeHTTP.
func AccessLogMiddleware(logger *zap.Logger, obs HTTPObserver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		status := rec.statusCode()
		if obs != nil {
			obs.ObserveHTTP(r.Method, r.Pattern, status, elapsed)
		}
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", r.Pattern),
			zap.Int("status", status),
			zap.Int64("bytes", rec.written),
			zap.Duration("duration", elapsed),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("request_id", downstream.RequestIDFromContext(r.Context())),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) statusCode() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
