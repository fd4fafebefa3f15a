package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"health-rag/internal/config"
	"health-rag/internal/embedding"
	"health-rag/internal/helper"
	"health-rag/internal/models"
	"health-rag/internal/parser"
)

// Inserter writes one batch of records.
type Inserter interface {
	Insert(ctx context.Context, records []models.Record) error
}

type Summary struct {
	Documents     int `json:"documents"`
	Chunks        int `json:"chunks"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
}

type Pipeline struct {
	store      Inserter
	embedder   embeddings.Embedder
	dataDir    string
	extensions []string
	batchSize  int
}

func NewPipeline(store Inserter, embedder embeddings.Embedder, cfg *config.IngestConfig) *Pipeline {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = models.DefaultBatchSize
	}
	return &Pipeline{
		store:      store,
		embedder:   embedder,
		dataDir:    cfg.DataDir,
		extensions: cfg.Extensions,
		batchSize:  batchSize,
	}
}

// Run loads, chunks, embeds and uploads the data folder. Upload is best
// effort: a failed batch is logged and skipped and later batches still run.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	chunks, summary, err := p.load()
	if err != nil {
		return nil, err
	}

	log.Info().Int("chunks", len(chunks)).Msg("Generating embeddings for all chunks")
	records, err := embedding.EmbedChunks(ctx, p.embedder, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	log.Info().Int("records", len(records)).Msg("Embeddings generated, uploading")

	for start := 0; start < len(records); start += p.batchSize {
		end := min(start+p.batchSize, len(records))
		batch := start/p.batchSize + 1
		summary.Batches++

		log.Info().Int("batch", batch).Int("size", end-start).Msg("Uploading batch")
		if err := p.store.Insert(ctx, records[start:end]); err != nil {
			summary.FailedBatches++
			log.Error().Err(err).Int("batch", batch).Msg("Error inserting batch")
		}
	}
	return summary, nil
}

// DryRun loads and chunks the data folder and prints the chunks to w
// without embedding or uploading anything.
func (p *Pipeline) DryRun(w io.Writer) (*Summary, error) {
	chunks, summary, err := p.load()
	if err != nil {
		return nil, err
	}
	helper.PrettyPrint(w, chunks)
	return summary, nil
}

func (p *Pipeline) load() ([]models.Chunk, *Summary, error) {
	docs, err := parser.LoadDocuments(p.dataDir, p.extensions)
	if err != nil {
		return nil, nil, err
	}
	chunks := parser.ChunkDocuments(docs)
	log.Info().Int("chunks", len(chunks)).Msg("Total chunks created")
	return chunks, &Summary{Documents: len(docs), Chunks: len(chunks)}, nil
}
