package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"health-rag/internal/models"
	"health-rag/internal/rag"
)

const maxBodyBytes = 1 << 20

// Searcher answers a query with context and sources.
type Searcher interface {
	Query(ctx context.Context, query string) (*models.SearchResponse, error)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// NewHandler wires the routes and the request logging middleware.
func NewHandler(searcher Searcher, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("POST /search", handleSearch(searcher))

	var h http.Handler = mux
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.NewHandler(logger)(h)
	return h
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": models.HealthStatus})
}

func handleSearch(searcher Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SearchRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&req); err != nil || req.Query == nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: "invalid request body: query must be a string"})
			return
		}

		resp, err := searcher.Query(r.Context(), *req.Query)
		if err != nil {
			status := statusFor(err)
			hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("Search failed")
			writeJSON(w, status, errorResponse{Detail: detailFor(status)})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrStoreFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(status int) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return rag.ErrEmptyQuery.Error()
	case http.StatusServiceUnavailable:
		return "Embedding service unavailable"
	case http.StatusBadGateway:
		return "Database search failed"
	default:
		return http.StatusText(status)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Error writing response")
	}
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API is running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
