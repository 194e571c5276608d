package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/snowflowstack/snowflow-ranker/internal/api"
	"github.com/snowflowstack/snowflow-ranker/internal/cache"
	"github.com/snowflowstack/snowflow-ranker/internal/config"
	"github.com/snowflowstack/snowflow-ranker/internal/metrics"
	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/repo"
	"github.com/snowflowstack/snowflow-ranker/internal/services"
)

func (a *app) serve(ctx context.Context, args []string) error {
	fs := a.flags("serve")
	modelPath := fs.String("model", a.cfg.Prediction.ModelPath, "Model document path or URL")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	cfg := a.cfg
	logger := a.logger

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	provider, err := cache.New(cacheConfig(cfg.Cache))
	if err != nil {
		logger.Warn("cache unavailable, serving without it", slog.String("backend", cfg.Cache.Backend), slog.Any("error", err))
		provider = cache.NoopProvider{}
	}
	defer provider.Close()

	loader, err := repo.OpenModel(*modelPath, cfg.Prediction.FetchTimeout, provider, cfg.Prediction.ModelCacheTTL)
	if err != nil {
		return err
	}
	if client, ok := loader.(*repo.ModelClient); ok {
		client.WithLogger(logger)
	}
	model, err := loader.LoadModel(ctx)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	fingerprint, err := repo.Fingerprint(model)
	if err != nil {
		return err
	}

	ranker, err := services.NewRankerService(logger, model, fingerprint, provider, cfg.Cache.PredictionTTL, models.PredictOptions{
		TopN:            cfg.Prediction.TopN,
		Rescale:         cfg.Prediction.Rescale,
		ImportanceScale: cfg.Prediction.ImportanceScale,
	})
	if err != nil {
		return err
	}

	server, err := api.NewServer(cfg.Server, ranker)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}
	var gateway *api.Gateway
	if cfg.Server.HTTPAddress != "" {
		if gateway, err = api.NewGateway(logger, cfg.Server, ranker); err != nil {
			return fmt.Errorf("create HTTP gateway: %w", err)
		}
	}
	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
	}

	logger.Info("starting snowflow-ranker",
		slog.String("address", server.Address()),
		slog.String("model", fingerprint),
		slog.Int("products", len(model.Products)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	if gateway != nil {
		g.Go(func() error {
			logger.Info("HTTP gateway listening", slog.String("address", gateway.Address()))
			return gateway.Start()
		})
	}
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
		if gateway != nil {
			if err := gateway.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP gateway shutdown", slog.Any("error", err))
			}
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("snowflow-ranker stopped", slog.Duration("p95", ranker.LatencyP95()))
	return err
}

func cacheConfig(c config.CacheConfig) cache.Config {
	return cache.Config{
		Backend: c.Backend,
		Redis: cache.RedisConfig{
			Addr:         c.Addr,
			Username:     c.Username,
			Password:     c.Password,
			DB:           c.DB,
			DialTimeout:  c.DialTimeout,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
			MaxRetries:   c.MaxRetries,
			TLS:          c.TLS,
		},
		Breaker: cache.BreakerConfig{
			Name:             "prediction-cache",
			Timeout:          c.BreakerOpenDelay,
			FailureThreshold: c.BreakerFailures,
		},
	}
}
