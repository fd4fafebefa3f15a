package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"health-rag/internal/config"
	"health-rag/internal/models"
)

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(cfg *config.EmbeddingConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]any{
		"provider":  cfg.Provider,
		"base_url":  cfg.BaseURL,
		"model":     cfg.Model,
		"dimension": cfg.Dimension,
		"pooling":   cfg.Pooling,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch cfg.Provider {
	case config.ProviderHuggingFace:
		client = NewHuggingFaceClient(cfg)
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		client = llm
	case config.ProviderOpenAI:
		if cfg.Token == "" {
			client = missingCredentials{}
			break
		}
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Token, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}

	if cfg.Dimension > 0 {
		client = dimensionCheck{client: client, dim: cfg.Dimension}
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// EmbedChunks embeds all chunk contents in one batched call and pairs them
// back with their chunks.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]models.Record, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrUnexpectedFormat, len(vectors), len(chunks))
	}

	records := make([]models.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = models.Record{
			Content:   chunk.Content,
			Metadata:  chunk.Metadata,
			Embedding: vectors[i],
		}
	}
	return records, nil
}

// dimensionCheck rejects vectors whose length differs from the table's column.
type dimensionCheck struct {
	client embeddings.EmbedderClient
	dim    int
}

func (d dimensionCheck) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := d.client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if len(v) != d.dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrUnexpectedFormat, i, len(v), d.dim)
		}
	}
	return vectors, nil
}

type missingCredentials struct{}

func (missingCredentials) CreateEmbedding(context.Context, []string) ([][]float32, error) {
	return nil, ErrMissingCredentials
}
