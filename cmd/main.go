package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"health-rag/internal/chromemdb"
	"health-rag/internal/config"
	"health-rag/internal/db"
	"health-rag/internal/embedding"
	"health-rag/internal/ingest"
	"health-rag/internal/rag"
	"health-rag/internal/server"
	"health-rag/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "health-rag",
		Short:         "Health knowledge base: ingest documents and serve similarity search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", configFilePath, "Path to YAML config file (optional)")

	root.AddCommand(newIngestCmd(&cfgPath), newServeCmd(&cfgPath))
	return root
}

func newIngestCmd(cfgPath *string) *cobra.Command {
	var (
		dataDir    string
		dryRun     bool
		initSchema bool
		reset      bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, chunk, embed and upload the documents of a folder",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(*cfgPath, !dryRun)
			if dataDir != "" {
				cfg.Ingest.DataDir = dataDir
			}
			runIngest(cmd.Context(), cfg, dryRun, initSchema, reset)
		},
	}
	cmd.Flags().StringVar(&dataDir, "dir", "", "Folder with the documents (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print chunks, do not embed or upload")
	cmd.Flags().BoolVar(&initSchema, "init-schema", false, "Create the vector extension, table and match function first")
	cmd.Flags().BoolVar(&reset, "reset", false, "Drop existing records before uploading")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the search API",
		Run: func(cmd *cobra.Command, args []string) {
			runServe(cmd.Context(), loadConfig(*cfgPath, true))
		},
	}
}

// loadConfig exits the process on failure. A dry run reads local files only
// and skips validation.
func loadConfig(path string, validate bool) *config.Config {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		setupLogger(&config.LogConfig{Level: "info", Pretty: true})
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(&cfg.Log)
	if !validate {
		return cfg
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	log.Debug().
		Str("backend", cfg.Database.Backend).
		Str("provider", cfg.Embedding.Provider).
		Str("model", cfg.Embedding.Model).
		Msg("Loaded config")
	return cfg
}

func setupLogger(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runIngest(ctx context.Context, cfg *config.Config, dryRun, initSchema, reset bool) {
	if dryRun {
		summary, err := ingest.NewPipeline(nil, nil, &cfg.Ingest).DryRun(os.Stdout)
		if err != nil {
			log.Fatal().Err(err).Msg("Error loading documents")
		}
		log.Info().Interface("summary", summary).Msg("Dry run complete")
		return
	}

	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}

	store, err := vectorstore.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer store.Close()

	if err := prepareStore(ctx, store, initSchema, reset); err != nil {
		log.Fatal().Err(err).Msg("Error preparing vector store")
	}

	summary, err := ingest.NewPipeline(store, embedder, &cfg.Ingest).Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Ingestion failed")
	}

	log.Info().Interface("summary", summary).Msg("Data population complete")
	if summary.FailedBatches > 0 {
		log.Warn().Int("failed_batches", summary.FailedBatches).Msg("Some batches were not uploaded")
	}
}

func prepareStore(ctx context.Context, store vectorstore.Store, initSchema, reset bool) error {
	switch s := store.(type) {
	case *db.Store:
		if reset {
			if err := s.DropSchema(ctx); err != nil {
				return err
			}
		}
		if initSchema || reset {
			return s.InitSchema(ctx)
		}
	case *chromemdb.VectorDBManager:
		if reset {
			return s.DeleteCollection()
		}
	default:
		return fmt.Errorf("unsupported store %T", store)
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) {
	embedder, err := embedding.NewEmbedder(&cfg.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	if cfg.Embedding.Provider != config.ProviderOllama && cfg.Embedding.Token == "" {
		log.Warn().Str("provider", cfg.Embedding.Provider).Msg("No embedding token configured, searches will fail")
	}

	store, err := vectorstore.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer store.Close()

	if s, ok := store.(*db.Store); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Msg("Database is not reachable yet")
		}
		cancel()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := server.NewHandler(rag.NewRAG(store, embedder, &cfg.Search), log.Logger)
	if err := server.Run(ctx, cfg.Server.Addr, handler); err != nil {
		log.Error().Err(err).Msg("Server error")
	}
}
