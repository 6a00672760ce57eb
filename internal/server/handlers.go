package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/cache"
	"github.com/veilhq/veil/internal/events"
	"github.com/veilhq/veil/internal/mask"
	"github.com/veilhq/veil/internal/pipeline"
)

// handleMask masks a JSON payload posted to /v1/mask and returns the
// masked text verbatim. Content type and body bytes pass through
// unchanged apart from masking.
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	log := s.logger.WithRequestID(requestID)

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.Server.MaxBodyBytes+1))
	if err != nil {
		log.Warn("Failed to read request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.Server.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	payload := string(body)
	if !s.config.Masking.Enabled {
		w.Header().Set("Content-Type", contentTypeOr(r, "application/json"))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	start := time.Now()
	result, cacheHit := s.maskPayload(r, payload)
	elapsed := time.Since(start)

	s.recordMasking(requestID, "api", r, result, cacheHit, elapsed)

	w.Header().Set("Content-Type", contentTypeOr(r, "application/json"))
	w.Header().Set("X-Veil-Hits", strconv.Itoa(totalHits(result.Findings)))
	if result.Fallback {
		w.Header().Set("X-Veil-Fallback", "true")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(result.Masked))
}

// maskPayload runs the payload through the result cache and the engine.
// Cache keys carry the engine fingerprint, so a masking reload makes
// every entry written under the old settings unreachable.
func (s *Server) maskPayload(r *http.Request, payload string) (mask.Result, bool) {
	engine := s.maskEngine()

	if s.cache != nil {
		if entry, ok := s.cache.Lookup(r.Context(), engine.Fingerprint(), payload); ok {
			return mask.Result{
				Masked:   entry.Masked,
				Findings: entry.Findings,
				Fallback: entry.Fallback,
				Original: payload,
			}, true
		}
	}

	result := engine.Process(payload)

	if s.cache != nil {
		// Best effort: a failed cache write never fails the request
		s.cache.Store(r.Context(), engine.Fingerprint(), payload, &cache.Entry{
			Masked:   result.Masked,
			Findings: result.Findings,
			Fallback: result.Fallback,
			CachedAt: time.Now(),
		})
	}

	return result, false
}

// recordMasking broadcasts a masking event and persists findings to the
// audit store when one is configured.
func (s *Server) recordMasking(requestID, source string, r *http.Request, result mask.Result, cacheHit bool, elapsed time.Duration) {
	if len(result.Findings) == 0 && !result.Fallback {
		return
	}

	s.hub.BroadcastEvent(events.Event{
		Type:      events.EventTypeMasking,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: events.MaskingEvent{
			RequestID:    requestID,
			Source:       source,
			Method:       r.Method,
			Path:         r.URL.Path,
			ClientIP:     clientIP(r),
			Findings:     result.Findings,
			TotalHits:    totalHits(result.Findings),
			Fallback:     result.Fallback,
			CacheHit:     cacheHit,
			ProcessingMS: float64(elapsed.Microseconds()) / 1000.0,
		},
	})

	if s.store != nil && len(result.Findings) > 0 {
		findings := result.Findings
		go func() {
			ctx, cancel := contextWithTimeout(5 * time.Second)
			defer cancel()
			if _, err := s.store.RecordFindings(ctx, requestID, source, result.Fallback, findings); err != nil {
				s.logger.Warn("Failed to persist masking findings",
					zap.String("request_id", requestID),
					zap.Error(err))
			}
		}()
	}
}

// findingView is the JSON shape returned by /v1/findings. The summary
// view carries only the rule and hit count.
type findingView struct {
	ID        int64      `json:"id,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Source    string     `json:"source,omitempty"`
	Rule      string     `json:"rule"`
	Hits      int        `json:"hits"`
	Fallback  bool       `json:"fallback,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// handleFindings serves the audit query API. Filtering, ordering and
// paging are applied only when the corresponding query parameter is
// present; otherwise records come back in store order.
func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store disabled")
		return
	}

	q := r.URL.Query()
	rule := q.Get("rule")
	source := q.Get("source")
	sortBy := q.Get("sort") // time, rule or hits
	descending := q.Get("order") == "desc"
	offset := intParam(q.Get("offset"), 0)
	limit := intParam(q.Get("limit"), 0)
	summary := q.Get("summary") == "true" || q.Get("summary") == "1"

	options := &audit.ListOptions{}
	if sinceRaw := q.Get("since"); sinceRaw != "" {
		d, err := time.ParseDuration(sinceRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid since duration: %q", sinceRaw))
			return
		}
		options.Since = time.Now().Add(-d)
	}

	records, err := s.store.List(r.Context(), options)
	if err != nil {
		s.logger.Error("Failed to list findings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list findings")
		return
	}

	shaped := pipeline.From(records).
		WhereIf(rule != "", func(rec audit.Record) bool {
			return strings.EqualFold(rec.Rule, rule)
		}).
		WhereIf(source != "", func(rec audit.Record) bool {
			return strings.EqualFold(rec.Source, source)
		}).
		OrderByIf(sortBy == "time", pipeline.By(func(rec audit.Record) int64 {
			return rec.CreatedAt.UnixNano()
		}), descending).
		OrderByIf(sortBy == "hits", pipeline.By(func(rec audit.Record) int {
			return rec.Hits
		}), descending).
		OrderByIf(sortBy == "rule", pipeline.By(func(rec audit.Record) string {
			return rec.Rule
		}), descending).
		ThenByIf(sortBy == "rule", pipeline.By(func(rec audit.Record) int {
			return rec.Hits
		}), true).
		SkipIf(offset > 0, offset).
		TakeIf(limit > 0, limit)

	views := pipeline.MapIf(shaped, summary,
		func(rec audit.Record) findingView {
			return findingView{Rule: rec.Rule, Hits: rec.Hits}
		},
		func(rec audit.Record) findingView {
			created := rec.CreatedAt
			return findingView{
				ID:        rec.ID,
				RequestID: rec.RequestID,
				Source:    rec.Source,
				Rule:      rec.Rule,
				Hits:      rec.Hits,
				Fallback:  rec.Fallback,
				CreatedAt: &created,
			}
		}).Items()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":    len(views),
		"findings": views,
	})
}

// handleProxy forwards a request to a configured upstream target after
// masking its body and scrubbing configured headers.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["target"]
	upstream, ok := s.config.Upstream.Targets[target]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown upstream target: %q", target))
		return
	}

	upstreamURL, err := url.Parse(upstream)
	if err != nil {
		s.logger.Error("Invalid upstream URL",
			zap.String("target", target),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "invalid upstream configuration")
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(upstreamURL)
	proxy.Transport = &http.Transport{
		ResponseHeaderTimeout: s.config.Upstream.Timeout,
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Error("Upstream request failed",
			zap.String("target", target),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}

	// Strip the /proxy/{target} prefix so upstream sees its own paths
	prefix := "/proxy/" + target
	r.URL.Path = strings.TrimPrefix(r.URL.Path, prefix)
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}
	r.Host = upstreamURL.Host

	proxy.ServeHTTP(w, r)
}

func totalHits(findings []mask.Finding) int {
	total := 0
	for _, f := range findings {
		total += f.Hits
	}
	return total
}

func contentTypeOr(r *http.Request, fallback string) string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return fallback
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
