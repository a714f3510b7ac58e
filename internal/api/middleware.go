package api

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PentesterFlow/ScrapeIt/internal/cache"
	"github.com/PentesterFlow/ScrapeIt/internal/logger"
)

// APIKeyHeader marks premium clients for rate limiting.
const APIKeyHeader = "X-API-Key"

// statusRecorder captures the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Hijack lets the event stream upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.log.Event(logger.ErrorLevel).
					Str("path", r.URL.Path).
					Interface("panic", v).
					Msg("Handler panicked")
				writeError(w, http.StatusInternalServerError, "Internal error", fmt.Sprint(v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		s.metrics.RecordRequest()

		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		level := logger.DebugLevel
		if rec.status >= http.StatusInternalServerError {
			level = logger.WarnLevel
		}
		s.log.Event(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(began)).
			Str("remote", clientAddr(r)).
			Msg("Request")
	})
}

// rateLimit applies the per-client quota to /api/ routes. Clients sending
// an API key get the premium quota.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(APIKeyHeader)
		premium := key != ""
		client := clientAddr(r)
		if premium {
			client = "key:" + key
		}
		if !s.limiter.Allow(client, premium) {
			s.metrics.RecordRateLimited()
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded",
				fmt.Sprintf("limit is %d requests per minute", s.limiter.Quota(premium)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate rejects requests whose token query parameter does not
// verify. Requests without a token pass.
func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.verifier.Check(r.URL.Query().Get("token")); err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// captureWriter buffers a response so it can be cached.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

// cached serves repeated identical requests from the response cache.
// Only successful JSON responses are stored.
func (s *Server) cached(namespace string, h http.HandlerFunc) http.HandlerFunc {
	if s.cache == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
		key := cache.Key(namespace, r.URL.Path, body)

		if data, ok := s.cache.Get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		cw := &captureWriter{header: w.Header()}
		h(cw, r)
		if cw.status == 0 {
			cw.status = http.StatusOK
		}
		if cw.status == http.StatusOK {
			s.cache.Set(key, cw.body.Bytes())
		}
		w.Header().Set("X-Cache", "MISS")
		w.WriteHeader(cw.status)
		w.Write(cw.body.Bytes())
	}
}

// clientAddr returns the remote host of r without the port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
