package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"
	"github.com/twmb/franz-go/pkg/kgo"

	"docflow/internal/analysis"
	"docflow/internal/audit"
	auditstore "docflow/internal/audit/store"
	"docflow/internal/audit/stream"
	"docflow/internal/blob"
	docstore "docflow/internal/document/store"
	"docflow/internal/document/service"
	"docflow/internal/ingestion"
	"docflow/internal/ocr"
	"docflow/internal/ocr/strategies"
	"docflow/internal/ocr/tesseract"
	"docflow/internal/pipeline"
	"docflow/internal/platform/config"
	"docflow/internal/platform/kafka"
	"docflow/internal/platform/postgres"
	"docflow/internal/platform/redis"
	"docflow/internal/workflow"
	"docflow/pkg/platform/tx"
)

// documentStore is the union of what the services need from document storage.
type documentStore interface {
	ingestion.DocumentStore
	workflow.DocumentStore
	pipeline.DocumentStore
	service.Store
}

// infra holds external connections and the stores built on them. Every
// backend is optional; missing ones fall back to in-memory implementations.
type infra struct {
	db     *sql.DB
	redis  *redis.Client
	kafka  *kgo.Client
	gcs    *storage.Client
	vertex *genai.Client

	docs        documentStore
	auditStore  audit.Store
	auditStream audit.Stream
	blobs       blob.Store
	tx          tx.Runner
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if err := in.open(ctx, cfg, log); err != nil {
		in.Close()
		return nil, err
	}
	return in, nil
}

func (in *infra) open(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
		in.db = db
		in.docs = docstore.NewPostgres(db)
		in.auditStore = auditstore.NewPostgres(db)
		in.tx = tx.NewSQLRunner(db)
		log.Info("using postgres stores")
	} else {
		in.docs = docstore.NewInMemory()
		in.auditStore = auditstore.NewInMemory()
		in.tx = tx.NoopRunner{}
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	in.redis, err = redis.New(ctx, cfg.Redis, redis.WithMetrics(redis.NewMetrics()))
	if err != nil {
		return err
	}
	if in.redis == nil {
		log.Info("REDIS_URL not set, OCR cache disabled")
	}

	in.kafka, err = kafka.NewClient(cfg.Kafka)
	if err != nil {
		return err
	}
	if in.kafka != nil {
		if err := kafka.EnsureTopics(ctx, in.kafka, 3, 1, cfg.Kafka.AuditTopic); err != nil {
			return err
		}
		in.auditStream = stream.NewKafka(in.kafka, cfg.Kafka.AuditTopic)
	} else {
		log.Info("KAFKA_BROKERS not set, audit stream disabled")
	}

	if cfg.Storage.GCSBucket != "" {
		in.gcs, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		in.blobs = blob.NewGCS(in.gcs, cfg.Storage.GCSBucket)
	} else {
		in.blobs = blob.NewInMemory()
		log.Warn("GCS_BUCKET not set, using in-memory blob store")
	}

	if cfg.AI.VertexProject != "" {
		in.vertex, err = genai.NewClient(ctx, cfg.AI.VertexProject, cfg.AI.VertexLocation)
		if err != nil {
			return fmt.Errorf("create vertex client: %w", err)
		}
	}
	return nil
}

// Health pings the configured network backends.
func (in *infra) Health(ctx context.Context) error {
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (in *infra) Close() {
	if in.vertex != nil {
		_ = in.vertex.Close()
	}
	if in.gcs != nil {
		_ = in.gcs.Close()
	}
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

// ocrStrategies builds the ordered OCR chain from policy names.
func ocrStrategies(names, languages []string) ([]ocr.Strategy, error) {
	out := make([]ocr.Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case strategies.NameTextLayer:
			out = append(out, strategies.NewTextLayer())
		case tesseract.NameStandard:
			out = append(out, tesseract.New(tesseract.Standard(), languages...))
		case tesseract.NameHandwriting:
			out = append(out, tesseract.New(tesseract.Handwriting(), languages...))
		case strategies.NameFilename:
			out = append(out, strategies.NewFilename())
		default:
			return nil, fmt.Errorf("unknown ocr strategy %q", name)
		}
	}
	return out, nil
}

// analysisProviders builds providers from policy. Providers without
// credentials are skipped.
func analysisProviders(policies []config.ProviderPolicy, keys config.AIConfig, in *infra, log *slog.Logger) ([]analysis.Provider, error) {
	var out []analysis.Provider
	for _, p := range policies {
		switch p.Kind {
		case "openai":
			key := apiKeyFor(p.Name, keys)
			if key == "" {
				log.Warn("analysis provider has no API key, skipping", "provider", p.Name)
				continue
			}
			out = append(out, analysis.NewOpenAICompatible(p.Name, p.BaseURL, key, p.Model))
		case "vertex":
			if in.vertex == nil {
				log.Warn("vertex project not configured, skipping", "provider", p.Name)
				continue
			}
			out = append(out, analysis.NewVertex(p.Name, in.vertex, p.Model))
		default:
			return nil, fmt.Errorf("unknown analysis provider kind %q", p.Kind)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no analysis provider is configured")
	}
	return out, nil
}

func apiKeyFor(name string, keys config.AIConfig) string {
	switch name {
	case "openai":
		return keys.OpenAIAPIKey
	case "glm":
		return keys.GLMAPIKey
	default:
		return ""
	}
}
