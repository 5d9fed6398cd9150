package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docflow/internal/analysis"
	"docflow/internal/audit"
	"docflow/internal/document/handler"
	docmetrics "docflow/internal/document/metrics"
	"docflow/internal/document/service"
	"docflow/internal/ingestion"
	"docflow/internal/jwt_token"
	"docflow/internal/ocr"
	"docflow/internal/pipeline"
	"docflow/internal/platform/config"
	"docflow/internal/platform/httpserver"
	"docflow/internal/platform/logger"
	"docflow/internal/platform/metrics"
	"docflow/internal/ratelimit"
	"docflow/internal/tenant"
	tenantmetrics "docflow/internal/tenant/metrics"
	"docflow/internal/workflow"
	"docflow/pkg/platform/middleware/metadata"
	"docflow/pkg/platform/middleware/requesttime"
)

// main wires the stores, the processing pipeline and the HTTP surface, then
// keeps the server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	deps, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	guard := tenant.NewGuard(log, tenantmetrics.New())

	auditor := audit.New(deps.auditStore,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics()),
		audit.WithStream(deps.auditStream),
	)

	wf := workflow.New(deps.docs, auditor, guard,
		workflow.WithLogger(log),
		workflow.WithMetrics(workflow.NewMetrics()),
		workflow.WithTxRunner(deps.tx),
		workflow.WithAdvanceOnNeedsReview(policy.Workflow.AdvanceOnNeedsReview),
		workflow.WithMaxConflictRetries(policy.Pipeline.MaxConflictRetries),
	)

	engine, err := buildOCREngine(policy.OCR, deps, log)
	if err != nil {
		return err
	}
	orchestrator, err := buildOrchestrator(policy.Analysis, cfg.AI, deps, log)
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(deps.docs, deps.blobs, engine, orchestrator, wf,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(pipeline.NewMetrics()),
		pipeline.WithWorkers(policy.Pipeline.Workers),
		pipeline.WithQueueSize(policy.Pipeline.QueueSize),
		pipeline.WithBlobTimeout(policy.Ingestion.StorageTimeout.Duration),
	)
	if err != nil {
		return err
	}
	pipe.Start(ctx)
	defer pipe.Stop()
	if _, err := pipe.Recover(ctx); err != nil {
		return err
	}

	gateway, err := ingestion.New(deps.docs, deps.blobs, guard, auditor, pipe,
		ingestion.WithLogger(log),
		ingestion.WithMetrics(ingestion.NewMetrics()),
		ingestion.WithPolicy(policy.Ingestion),
		ingestion.WithTxRunner(deps.tx),
	)
	if err != nil {
		return err
	}

	documents, err := service.New(deps.docs, auditor, guard,
		service.WithLogger(log),
		service.WithMetrics(docmetrics.New()),
		service.WithTxRunner(deps.tx),
		service.WithMaxConflictRetries(policy.Pipeline.MaxConflictRetries),
	)
	if err != nil {
		return err
	}

	validator := jwt_token.NewTenantValidator(
		jwt_token.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
	)
	httpMetrics := metrics.New()

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(metadata.RequestMetadata)
	r.Use(requesttime.Middleware)
	r.Use(metrics.Latency(httpMetrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Health(r.Context()); err != nil {
			log.Warn("health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	uploadLimit, err := buildUploadLimiter(policy.RateLimit, deps, log)
	if err != nil {
		return err
	}

	h := handler.New(gateway, documents, wf, validator, log, httpMetrics, policy.Ingestion.MaxFileBytes)
	h.Register(r, uploadLimit.PerTenant("upload"))

	log.Info("starting docflow", "addr", cfg.Addr)
	if err := httpserver.Serve(ctx, httpserver.New(cfg.Addr, r), 10*time.Second); err != nil {
		return err
	}
	log.Info("server drained")
	return nil
}

func buildOCREngine(p config.OCRPolicy, deps *infra, log *slog.Logger) (*ocr.Engine, error) {
	strats, err := ocrStrategies(p.Strategies, p.Languages)
	if err != nil {
		return nil, err
	}
	opts := []ocr.Option{
		ocr.WithLogger(log),
		ocr.WithMetrics(ocr.NewMetrics()),
		ocr.WithThreshold(p.Threshold),
		ocr.WithAttemptTimeout(p.AttemptTimeout.Duration),
	}
	if deps.redis != nil {
		opts = append(opts, ocr.WithCache(ocr.NewRedisCache(deps.redis.Client), p.CacheTTL.Duration))
	}
	return ocr.NewEngine(strats, opts...)
}

func buildUploadLimiter(p config.RateLimitPolicy, deps *infra, log *slog.Logger) (*ratelimit.Middleware, error) {
	var store ratelimit.Store = ratelimit.NewInMemory()
	if deps.redis != nil {
		store = ratelimit.NewRedis(deps.redis.Client)
	}
	limit, window := p.UploadsPerWindow, p.Window.Duration
	if !p.Enabled {
		limit, window = 1, time.Minute
	}
	return ratelimit.New(store, limit, window,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
		ratelimit.WithDisabled(!p.Enabled),
	)
}

func buildOrchestrator(p config.AnalysisPolicy, keys config.AIConfig, deps *infra, log *slog.Logger) (*analysis.Orchestrator, error) {
	providers, err := analysisProviders(p.Providers, keys, deps, log)
	if err != nil {
		return nil, err
	}
	return analysis.New(providers,
		analysis.WithLogger(log),
		analysis.WithMetrics(analysis.NewMetrics()),
		analysis.WithThreshold(p.Threshold),
		analysis.WithQuorum(p.Quorum),
		analysis.WithPrecedence(p.Precedence),
		analysis.WithDeadline(p.Deadline.Duration),
		analysis.WithProviderTimeout(p.ProviderTimeout.Duration),
		analysis.WithMaxRetries(p.MaxRetries),
		analysis.WithBreaker(p.BreakerThreshold, p.BreakerCooldown.Duration),
	)
}
