package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"health-rag/internal/config"
	"health-rag/internal/models"
)

// Document is a row of the knowledge base table.
type Document struct {
	bun.BaseModel `bun:"table:health_knowledge_base,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	Content       string          `bun:"content,notnull"`
	Metadata      models.Metadata `bun:"metadata,type:jsonb"`
	Embedding     pgvector.Vector `bun:"embedding,type:vector"`
}

// matchRow holds the columns every match function returns. Functions
// created by InitSchema also return id and similarity; they are not read.
type matchRow struct {
	Content  string          `bun:"content"`
	Metadata models.Metadata `bun:"metadata,type:jsonb"`
}

// Store keeps records in Postgres and searches them through a stored function.
type Store struct {
	db        *bun.DB
	table     string
	matchFunc string
	dimension int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database. url is a Postgres connection string and key
// the database password.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPq:
		dsn, err := withPassword(cfg.URL, cfg.Key)
		if err != nil {
			return nil, err
		}
		return sql.Open("postgres", dsn)
	case config.DriverPgdriver, "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL), pgdriver.WithPassword(cfg.Key))), nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

func withPassword(dsn, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	if u.User == nil {
		u.User = url.UserPassword("postgres", password)
	} else {
		u.User = url.UserPassword(u.User.Username(), password)
	}
	return u.String(), nil
}

// NewStore connects using cfg. Nothing is sent to the server until first use.
func NewStore(cfg *config.DatabaseConfig, dimension int) (*Store, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:        NewDB(sqldb, cfg.Debug),
		table:     cfg.Table,
		matchFunc: cfg.MatchFunction,
		dimension: dimension,
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes records in a single statement.
func (s *Store) Insert(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := s.insertQuery(records).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert %d records: %w", len(records), err)
	}
	return nil
}

func (s *Store) insertQuery(records []models.Record) *bun.InsertQuery {
	docs := make([]Document, len(records))
	for i, r := range records {
		docs[i] = Document{
			Content:   r.Content,
			Metadata:  r.Metadata,
			Embedding: pgvector.NewVector(r.Embedding),
		}
	}
	return s.db.NewInsert().
		Model(&docs).
		ModelTableExpr("? AS d", bun.Ident(s.table))
}

// Match calls match_function(query_embedding, match_threshold, match_count).
func (s *Store) Match(ctx context.Context, embedding []float32, threshold float64, count int) ([]models.Match, error) {
	var rows []matchRow
	if err := s.matchQuery(embedding, threshold, count).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", s.matchFunc, err)
	}

	matches := make([]models.Match, len(rows))
	for i, r := range rows {
		matches[i] = models.Match{
			Content:  r.Content,
			Metadata: r.Metadata,
		}
	}
	return matches, nil
}

func (s *Store) matchQuery(embedding []float32, threshold float64, count int) *bun.RawQuery {
	return s.db.NewRaw(
		"SELECT content, metadata FROM ? (?, ?, ?)",
		bun.Ident(s.matchFunc), pgvector.NewVector(embedding), threshold, count,
	)
}

// InitSchema creates the pgvector extension, the table and the match function.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range s.schemaStatements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	log.Info().Str("table", s.table).Str("function", s.matchFunc).Msg("Schema initialized")
	return nil
}

// DropSchema removes the table. The match function is kept.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.NewDropTable().Table(s.table).IfExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) schemaStatements() []string {
	table := s.db.Formatter().FormatQuery("?", bun.Ident(s.table))
	fn := s.db.Formatter().FormatQuery("?", bun.Ident(s.matchFunc))
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id bigserial PRIMARY KEY,
	content text NOT NULL,
	metadata jsonb,
	embedding vector(%d)
)`, table, s.dimension),
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s (
	query_embedding vector(%d),
	match_threshold float,
	match_count int
)
RETURNS TABLE (id bigint, content text, metadata jsonb, similarity float)
LANGUAGE sql STABLE
AS $$
	SELECT d.id, d.content, d.metadata, 1 - (d.embedding <=> query_embedding) AS similarity
	FROM %s d
	WHERE 1 - (d.embedding <=> query_embedding) >= match_threshold
	ORDER BY d.embedding <=> query_embedding
	LIMIT match_count
$$`, fn, s.dimension, table),
	}
}
