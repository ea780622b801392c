package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"

	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/db"
	"github.com/omnidesk/omnidesk/internal/llm"
	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/rag"
)

// knowledgeIndex is a vector backend that can both answer and store.
type knowledgeIndex interface {
	rag.Retriever
	rag.Indexer
}

// knowledgeBackend is the configured index plus its health check. ping is
// nil for embedded backends.
type knowledgeBackend struct {
	index knowledgeIndex
	ping  func(ctx context.Context) error
	close func() error
}

func openKnowledge(cfg config.Config, pool *pgxpool.Pool, emb llm.Embedder) (knowledgeBackend, error) {
	switch cfg.Knowledge.Backend {
	case "qdrant":
		client, err := rag.NewQdrantClient(cfg.Qdrant)
		if err != nil {
			return knowledgeBackend{}, err
		}
		return knowledgeBackend{
			index: rag.NewQdrantRetriever(client, cfg.Qdrant.Collection, cfg.Qdrant.TextField),
			ping:  qdrantPing(client),
			close: client.Close,
		}, nil
	case "chromem":
		idx, err := rag.NewChromemRetriever(cfg.Knowledge.ChromemDir, cfg.Knowledge.ChromemCollection, emb)
		if err != nil {
			return knowledgeBackend{}, err
		}
		return knowledgeBackend{index: idx}, nil
	default:
		idx, err := rag.NewPGVectorRetriever(pool, cfg.Knowledge.Table)
		if err != nil {
			return knowledgeBackend{}, err
		}
		return knowledgeBackend{index: idx}, nil
	}
}

func qdrantPing(client *qdrant.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.HealthCheck(ctx)
		return err
	}
}

func newKnowledgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the knowledge base",
	}
	var chunkSize int
	importCmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Split, embed and index text documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return importKnowledge(cmd.Context(), cfg, chunkSize, args)
		},
	}
	importCmd.Flags().IntVar(&chunkSize, "chunk-size", rag.DefaultChunkSize, "maximum characters per chunk")
	cmd.AddCommand(importCmd)
	return cmd
}

func importKnowledge(ctx context.Context, cfg config.Config, chunkSize int, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.L.With(slog.String("component", "knowledge"))

	emb, err := llm.NewEmbedder(cfg.LLM)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	var pool *pgxpool.Pool
	if cfg.Knowledge.Backend == "pgvector" {
		pool, err = db.Open(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()
	}
	kb, err := openKnowledge(cfg, pool, emb)
	if err != nil {
		return err
	}
	if kb.close != nil {
		defer func() { _ = kb.close() }()
	}

	total := 0
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		chunks := rag.SplitDocument(string(raw), chunkSize)
		n, err := rag.Ingest(ctx, emb, kb.index, chunks)
		total += n
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		log.Info("document indexed", slog.String("file", path), slog.Int("chunks", n))
	}
	log.Info("knowledge import finished", slog.Int("chunks", total), slog.String("backend", cfg.Knowledge.Backend))
	return nil
}
