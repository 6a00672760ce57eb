package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/events"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// requestIDFrom returns the request ID stored by loggingMiddleware, or
// an empty string when the request bypassed it.
func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// responseWriter wraps http.ResponseWriter to capture status and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

// loggingMiddleware assigns a request ID, logs the request and
// broadcasts a request event once the handler returns.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.logger.WithRequestID(requestID).Info("Request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.String("client_ip", clientIP(r)),
			zap.Duration("duration", duration),
			zap.Int64("response_size", wrapped.size),
		)

		s.hub.BroadcastEvent(events.Event{
			Type:      events.EventTypeRequestLog,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: events.RequestLogEvent{
				RequestID:    requestID,
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   wrapped.statusCode,
				ClientIP:     clientIP(r),
				UserAgent:    r.UserAgent(),
				Duration:     duration,
				RequestSize:  r.ContentLength,
				ResponseSize: wrapped.size,
			},
		})
	})
}

// rateLimitMiddleware rejects clients exceeding the configured rate.
// It is a no-op when rate limiting is disabled.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			s.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maskingMiddleware masks the request body and scrubs sensitive headers
// before the request reaches an upstream target.
func (s *Server) maskingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Masking.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		requestID := requestIDFrom(r.Context())

		if s.config.Masking.HeaderScrub.Enabled {
			s.scrubHeaders(r.Header)
		}

		if r.Body != nil && r.ContentLength != 0 {
			body, err := io.ReadAll(io.LimitReader(r.Body, s.config.Server.MaxBodyBytes+1))
			r.Body.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			if int64(len(body)) > s.config.Server.MaxBodyBytes {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			start := time.Now()
			result, cacheHit := s.maskPayload(r, string(body))
			s.recordMasking(requestID, "proxy", r, result, cacheHit, time.Since(start))

			masked := []byte(result.Masked)
			r.Body = io.NopCloser(bytes.NewReader(masked))
			r.ContentLength = int64(len(masked))
			r.Header.Set("Content-Length", strconv.Itoa(len(masked)))
		}

		next.ServeHTTP(w, r)
	})
}

// scrubHeaders removes or redacts headers configured for scrubbing.
// Authorization survives redacted when preserve_auth is set so upstream
// auth still works via separate credentials injection.
func (s *Server) scrubHeaders(headers http.Header) {
	for _, name := range s.config.Masking.HeaderScrub.Headers {
		canonical := http.CanonicalHeaderKey(name)
		if headers.Get(canonical) == "" {
			continue
		}
		if s.config.Masking.HeaderScrub.PreserveAuth && isAuthHeader(canonical) {
			continue
		}
		headers.Set(canonical, s.maskEngine().Pattern())
	}
}

func isAuthHeader(canonical string) bool {
	switch canonical {
	case "Authorization", "Proxy-Authorization":
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func generateRequestID() string {
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
