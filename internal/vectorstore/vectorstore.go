package vectorstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"health-rag/internal/chromemdb"
	"health-rag/internal/config"
	"health-rag/internal/db"
	"health-rag/internal/models"
)

// Store persists embedded records and runs the similarity search.
type Store interface {
	Insert(ctx context.Context, records []models.Record) error
	Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]models.Match, error)
	Close() error
}

// New opens the backend selected by cfg.Database.Backend.
func New(cfg *config.Config) (Store, error) {
	log.Debug().Str("backend", cfg.Database.Backend).Msg("Opening vector store")
	switch cfg.Database.Backend {
	case config.BackendPostgres:
		store, err := db.NewStore(&cfg.Database, cfg.Embedding.Dimension)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendChromem:
		store, err := chromemdb.NewVectorDBManager(cfg.Database.ChromemPath, cfg.Database.Collection, cfg.Database.InMemory)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database backend: %s", cfg.Database.Backend)
	}
}
