package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warechat/warechat/internal/api"
	"github.com/warechat/warechat/internal/audit"
	auditpostgres "github.com/warechat/warechat/internal/audit/postgres"
	"github.com/warechat/warechat/internal/config"
	"github.com/warechat/warechat/internal/export"
	"github.com/warechat/warechat/internal/nl2sql"
	"github.com/warechat/warechat/internal/observability"
	"github.com/warechat/warechat/internal/pipeline"
	"github.com/warechat/warechat/internal/safety"
	"github.com/warechat/warechat/internal/schema"
	"github.com/warechat/warechat/internal/storage"
	s3store "github.com/warechat/warechat/internal/storage/s3"
	"github.com/warechat/warechat/internal/warehouse"
)

func main() {
	cfg, err := config.LoadFromEnv("warechat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	warehouseDB, err := warehouse.Open(context.Background(), warehouse.DBConfig{
		Driver:          cfg.Warehouse.Driver,
		DSN:             cfg.Warehouse.DSN,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open warehouse db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = warehouseDB.Close() }()

	var objectStore storage.ObjectStore
	needsObjectStore := cfg.Schema.Source == config.SchemaSourceObject || cfg.Export.Enabled
	if needsObjectStore {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
	}

	var schemaSource schema.Source
	switch cfg.Schema.Source {
	case config.SchemaSourceObject:
		schemaSource = schema.ObjectSource{Store: objectStore, Key: cfg.Schema.ObjectKey}
	default:
		schemaSource = schema.FileSource{Path: cfg.Schema.Path}
	}
	schemas := schema.NewStore(schemaSource, logger)
	if _, err := schemas.Snapshot(context.Background()); err != nil {
		logger.Error("failed to load schema catalog", slog.Any("error", err))
		os.Exit(1)
	}

	generator, err := nl2sql.NewOpenAIGenerator(nl2sql.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize sql generator", slog.Any("error", err))
		os.Exit(1)
	}

	var sink audit.Sink = audit.NewLogSink(logger)
	if cfg.Audit.DSN != "" {
		auditDB, err := warehouse.Open(context.Background(), warehouse.DBConfig{
			Driver:          "postgres",
			DSN:             cfg.Audit.DSN,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open audit db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = auditDB.Close() }()
		sink = auditpostgres.NewStore(auditDB)
	}

	gate := safety.NewGate()
	runner := pipeline.New(pipeline.Dependencies{
		Schemas:   schemas,
		Generator: generator,
		Gate:      gate,
		Executor:  warehouse.NewExecutor(warehouseDB, gate, cfg.Warehouse.QueryTimeout, logger),
		Sink:      sink,
		Logger:    logger,
		MaxRows:   cfg.Warehouse.MaxDisplayRows,
	})

	deps := api.Dependencies{
		Logger:   logger,
		Pipeline: runner,
		Schemas:  schemas,
		Readiness: api.CombineReadinessChecks(
			api.CheckWarehouseConfig(cfg),
			api.CheckSchemaConfig(cfg),
			func(ctx context.Context) error { return warehouseDB.PingContext(ctx) },
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Export.Enabled && objectStore != nil {
		deps.Exporter = export.NewUploader(objectStore, cfg.Export.Prefix)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
