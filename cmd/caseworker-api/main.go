// cmd/caseworker-api/main.go
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"welfare-caseworker/internal/api"
	"welfare-caseworker/internal/audit"
	"welfare-caseworker/internal/common/aws"
	"welfare-caseworker/internal/common/config"
	"welfare-caseworker/internal/common/database"
	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/common/observability"
	"welfare-caseworker/internal/explain"
	"welfare-caseworker/internal/risk"
	"welfare-caseworker/internal/service"
	"welfare-caseworker/internal/store"
	"welfare-caseworker/internal/workflow"
	"welfare-caseworker/pkg/registry"
)

func main() {
	bootLog, err := logger.New(logger.Options{Level: "info", Format: "console"})
	if err != nil {
		panic(err)
	}
	bootLog.Info("Starting caseworker API...")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog, err := logger.New(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Output:  cfg.Logging.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		bootLog.Fatal("logger init failed", zap.Error(err))
	}
	defer func() { _ = zapLog.Sync() }()
	zap.ReplaceGlobals(zapLog)
	log := logger.NewZapAdapter(zapLog)

	traces, closeTraces, err := traceWriter(cfg.Observability)
	if err != nil {
		zapLog.Fatal("trace output init failed", zap.Error(err))
	}
	defer closeTraces()
	obs := observability.New(cfg.App.Name, nil, traces)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Risk model ---
	scorer := risk.NewScorer(log)
	if err := scorer.Load(cfg.Model.Path); err != nil {
		zapLog.Fatal("risk model load failed", zap.String("path", cfg.Model.Path), zap.Error(err))
	}

	// --- Explanations ---
	generator, err := explain.NewGenerator(ctx, cfg.Explainer, log)
	if err != nil {
		zapLog.Fatal("text generator init failed", zap.Error(err))
	}
	if closer, ok := generator.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}
	renderer := explain.NewRenderer(generator, config.GetDuration(cfg.Explainer.Timeout), log)

	// --- Case store ---
	caseStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		zapLog.Fatal("case store init failed", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer func() { _ = caseStore.Close() }()
	zapLog.Info("case store ready", zap.String("driver", cfg.Storage.Driver))

	// --- Audit sinks ---
	sinks, err := auditSinks(ctx, cfg.Audit, log)
	if err != nil {
		zapLog.Fatal("audit sink init failed", zap.Error(err))
	}
	zapLog.Info("audit sinks ready", zap.Strings("sinks", sinks.Sinks()))

	wf := workflow.New(caseStore, sinks, log)
	analyzer := service.NewAnalyzer(scorer, renderer, wf, obs, log)

	catalog := registry.Default()
	if cfg.Server.RegistryPath != "" {
		loaded, err := registry.LoadRegistry(cfg.Server.RegistryPath)
		if err == nil {
			err = loaded.Validate()
		}
		if err != nil {
			zapLog.Fatal("operation registry invalid", zap.String("path", cfg.Server.RegistryPath), zap.Error(err))
		}
		catalog = loaded
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Analyzer:  analyzer,
		Workflow:  wf,
		Model:     scorer,
		Generator: renderer,
		Registry:  catalog,
		Logger:    log,
	}, api.Options{
		AppName:        cfg.App.Name,
		Version:        cfg.App.Version,
		StorageDriver:  cfg.Storage.Driver,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsEnabled: cfg.Observability.MetricsEnabled,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening",
			zap.String("address", srv.Addr),
			zap.String("textGeneration", renderer.Provider()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	zapLog.Info("Caseworker API stopped gracefully", zap.Duration("uptime", time.Since(startTime)))
}

var startTime = time.Now()

// openStore connects the configured driver once. Connection failures are fatal to startup.
// traceWriter resolves where spans go. A nil writer disables tracing.
func traceWriter(cfg config.ObservabilityConfig) (io.Writer, func(), error) {
	if cfg.TraceExporter != config.TraceExporterStdout {
		return nil, func() {}, nil
	}
	if cfg.TraceOutput == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(cfg.TraceOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StoragePostgres:
		pg, err := database.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s := store.NewPostgresStore(pg.DB)
		if err := s.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return s, nil

	case config.StorageRedis:
		rdb, err := database.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(rdb.Client, cfg.Redis.KeyPrefix), nil

	default:
		return store.NewMemoryStore(), nil
	}
}

func auditSinks(ctx context.Context, cfg config.AuditConfig, log logger.Logger) (*audit.Multi, error) {
	sinks := []audit.Sink{audit.NewLogSink(log)}

	if cfg.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := es.Ping(ctx); err != nil {
			return nil, err
		}
		if err := es.EnsureIndex(ctx, cfg.Elasticsearch.Index); err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewElasticsearchSink(es.Client, cfg.Elasticsearch.Index))
	}

	if cfg.SNS.Enabled {
		client, err := aws.NewSNSClient(ctx, cfg.SNS.Region)
		if err != nil {
			return nil, err
		}
		if err := client.CheckTopic(ctx, cfg.SNS.TopicARN); err != nil {
			return nil, err
		}
		sinks = append(sinks, audit.NewSNSSink(client, cfg.SNS.TopicARN))
	}

	return audit.NewMulti(log, sinks...), nil
}
