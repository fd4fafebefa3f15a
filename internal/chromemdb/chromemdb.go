package chromemdb

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"health-rag/internal/helper"
	"health-rag/internal/models"
)

const (
	compress    = false
	metadataKey = "source"
)

// VectorDBManager is a local stand-in for the hosted table and match
// function, backed by a chromem-go collection.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewVectorDBManager opens (or creates) the collection. With inMemory set
// nothing is written to dbPath.
func NewVectorDBManager(dbPath, collectionName string, inMemory bool) (*VectorDBManager, error) {
	var db *chromem.DB
	if inMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(dbPath); err != nil {
			return nil, err
		}
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	c, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	log.Debug().Str("collection", collectionName).Int("documents", c.Count()).Bool("in_memory", inMemory).Msg("Opened chromem collection")

	return &VectorDBManager{
		db:         db,
		collection: c,
	}, nil
}

// Insert adds records under fresh random IDs.
func (m *VectorDBManager) Insert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		id, err := helper.GenerateUUID()
		if err != nil {
			return err
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   r.Content,
			Metadata:  map[string]string{metadataKey: r.Metadata.Source},
			Embedding: r.Embedding,
		}
	}

	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Match returns up to count documents whose cosine similarity to embedding
// is at least threshold, best first.
func (m *VectorDBManager) Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]models.Match, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	n := min(count, m.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	var matches []models.Match
	for _, r := range results {
		if float64(r.Similarity) < threshold {
			continue
		}
		matches = append(matches, models.Match{
			Content:    r.Content,
			Metadata:   models.Metadata{Source: r.Metadata[metadataKey]},
			Similarity: float64(r.Similarity),
		})
	}
	return matches, nil
}

func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// DeleteCollection drops every stored document and recreates the empty collection.
func (m *VectorDBManager) DeleteCollection() error {
	name := m.collection.Name
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	c, err := m.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	m.collection = c
	return nil
}

func (m *VectorDBManager) Close() error {
	return nil
}
