package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/generation"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/middleware"
)

// SearchExecutor is implemented by *executor.Executor.
type SearchExecutor interface {
	Current() *generation.Generation
	Execute(ctx context.Context, gen *generation.Generation, query string, limit, offset int) (*executor.Result, error)
}

type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	collector    *analytics.Collector
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// New builds the search handler. queryCache and collector may be nil.
func New(exec SearchExecutor, queryCache *cache.QueryCache, collector *analytics.Collector, defaultLimit, maxLimit int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		collector:    collector,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/v1/generation", h.Generation)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, limit, offset, err := h.parseParams(r)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err, "invalid request"))
		return
	}

	gen := h.executor.Current()
	compute := func() (*executor.Result, error) {
		return h.executor.Execute(ctx, gen, query, limit, offset)
	}
	var (
		result   *executor.Result
		cacheHit bool
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, gen.ID, query, limit, offset, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", "query", query, "error", err)
		}
		h.writeError(w, status, apperrors.Message(err, "search failed"))
		return
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("search completed",
		"query", query,
		"generation_id", gen.ID,
		"count", result.Count,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	if h.collector != nil {
		eventType := analytics.EventSearch
		if result.Count == 0 {
			eventType = analytics.EventZeroResult
		}
		h.collector.Track(analytics.SearchEvent{
			Type:         eventType,
			Query:        query,
			Terms:        result.Terms,
			TotalHits:    result.Count,
			Returned:     len(result.Results),
			Limit:        limit,
			Offset:       offset,
			GenerationID: gen.ID,
			LatencyMs:    latencyMs,
			CacheHit:     cacheHit,
			Timestamp:    time.Now().UTC(),
			RequestID:    middleware.GetRequestID(ctx),
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) parseParams(r *http.Request) (query string, limit, offset int, err error) {
	params := r.URL.Query()
	query = params.Get("q")
	if query == "" {
		return "", 0, 0, apperrors.Invalid("query parameter 'q' is required")
	}
	limit = h.defaultLimit
	if raw := params.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > h.maxLimit {
			return "", 0, 0, apperrors.Invalid("limit must be an integer between 1 and %d", h.maxLimit)
		}
	}
	if raw := params.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return "", 0, 0, apperrors.Invalid("offset must be a non-negative integer")
		}
	}
	return query, limit, offset, nil
}

// Health reports the size of the generation currently being served.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"records_indexed": h.executor.Current().Records(),
	})
}

// Generation describes the published generation.
func (h *Handler) Generation(w http.ResponseWriter, r *http.Request) {
	gen := h.executor.Current()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation_id": gen.ID,
		"records":       gen.Records(),
		"tokens":        gen.Index.TokenCount(),
		"built_at":      gen.BuiltAt,
		"ready":         gen.ID > 0,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
