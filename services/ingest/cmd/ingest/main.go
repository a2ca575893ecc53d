package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"vericase/internal/util"
	"vericase/pkg/queue"
	"vericase/pkg/search"
	"vericase/pkg/storage"
	"vericase/pkg/store"
	"vericase/services/ingest/internal/app"
	"vericase/services/ingest/internal/config"
	"vericase/services/ingest/internal/container"
	"vericase/services/ingest/internal/server"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel, "ingest")

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init postgres store", "err", err)
	}
	defer dataStore.Close()

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		util.Fatal("failed to init object storage", "err", err)
	}

	var indexer search.Indexer
	if cfg.SearchURL != "" {
		client, err := search.NewOpenSearchClient(search.Config{
			BaseURL:  cfg.SearchURL,
			Username: cfg.SearchUsername,
			Password: cfg.SearchPassword,
			Index:    cfg.SearchIndex,
			Timeout:  time.Duration(cfg.SearchTimeoutSeconds) * time.Second,
		})
		if err != nil {
			util.Fatal("failed to init search client", "err", err)
		}
		indexer = client
	} else {
		logger.Info("search publication disabled")
	}

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueName,
		Group:      cfg.QueueGroup,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
		Logger:     logger,
	})
	if err != nil {
		util.Fatal("failed to init queue", "err", err)
	}
	defer jobs.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	appCore, err := app.New(app.Config{
		Store:            dataStore,
		Objects:          objects,
		Opener:           container.NewPSTOpener(),
		Search:           indexer,
		Jobs:             jobs,
		Logger:           logger,
		Metrics:          app.NewMetrics(registry),
		PrecountMessages: cfg.PrecountMessages,
		ProgressEvery:    cfg.ProgressEvery,
		TempDir:          cfg.TempDir,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer, err := server.New(server.Config{
		Jobs:          appCore,
		InternalToken: cfg.InternalToken,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := jobs.Ping(ctx); err != nil {
		util.Fatal("redis unavailable", "addr", cfg.RedisAddr, "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("ingest server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		jobs.Start(gctx, cfg.QueueConcurrency, appCore.HandleJob)
		logger.Info("ingest consumers started", "concurrency", cfg.QueueConcurrency, "stream", cfg.QueueName)
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("ingest stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("ingest stopped")
}
