package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"health-rag/internal/config"
	"health-rag/internal/models"
)

var (
	ErrEmptyQuery           = errors.New("query must not be empty")
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	ErrStoreFailure         = errors.New("vector store request failed")
)

// Matcher runs the similarity search against stored records.
type Matcher interface {
	Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]models.Match, error)
}

type RAG struct {
	store     Matcher
	embedder  embeddings.Embedder
	threshold float64
	count     int
}

func NewRAG(store Matcher, embedder embeddings.Embedder, cfg *config.SearchConfig) *RAG {
	return &RAG{
		store:     store,
		embedder:  embedder,
		threshold: cfg.MatchThreshold,
		count:     cfg.MatchCount,
	}
}

// Query embeds query, fetches the closest chunks and joins them into one
// context string. No match is not an error.
func (r *RAG) Query(ctx context.Context, query string) (*models.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	matches, err := r.store.Match(ctx, queryEmbedding, r.threshold, r.count)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	log.Debug().Int("matches", len(matches)).Float64("threshold", r.threshold).Msg("Similarity search done")

	return BuildResponse(matches), nil
}

// BuildResponse joins match contents with the context separator and lists
// each source once.
func BuildResponse(matches []models.Match) *models.SearchResponse {
	resp := &models.SearchResponse{Sources: []string{}}
	if len(matches) == 0 {
		return resp
	}

	contents := make([]string, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for i, m := range matches {
		contents[i] = m.Content
		if _, ok := seen[m.Metadata.Source]; ok {
			continue
		}
		seen[m.Metadata.Source] = struct{}{}
		resp.Sources = append(resp.Sources, m.Metadata.Source)
	}
	sort.Strings(resp.Sources)
	resp.Context = strings.Join(contents, models.ContextSeparator)
	return resp
}
