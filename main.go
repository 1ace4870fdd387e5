package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/cache"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/config"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/database"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/models"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/repository"
	"github.com/davidleathers/behavioral-threat-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/behavioral-threat-engine/internal/metrics"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/anomaly"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/features"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/graph"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/patterns"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/privacy"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/profile"
	"github.com/davidleathers/behavioral-threat-engine/internal/service/risk"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("failed to setup logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(ctx, cfg); err != nil {
		slog.Error("engine failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting behavioral threat engine",
		"version", cfg.Version,
		"environment", cfg.Environment)

	otelCfg := telemetry.DefaultConfig()
	otelCfg.ServiceVersion = cfg.Version
	otelCfg.Environment = cfg.Environment
	provider, err := telemetry.InitializeOpenTelemetry(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("creating infrastructure logger: %w", err)
	}
	defer zapLogger.Sync()

	pool, err := database.NewConnectionPool(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(&cfg.Redis, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisCache.Close()

	registry, err := metrics.NewRegistry("behavioral-threat-engine")
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	mgr := buildManager(cfg, pool, redisCache, registry, zapLogger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.HealthCheck(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/v1/privacy/budget", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mgr.PrivacyBudget(userID))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin listener started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("admin listener failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildManager wires the analysis pipeline from configuration. Missing model
// artifacts degrade detection to statistical coverage instead of failing
// startup.
func buildManager(cfg *config.Config, pool *database.ConnectionPool, redisCache cache.Cache, registry *metrics.Registry, zapLogger *zap.Logger) *profile.Manager {
	var recon anomaly.ReconstructionScorer
	var outlier anomaly.OutlierScorer
	if cfg.Models.Enabled {
		if artifact, err := models.LoadArtifact(cfg.Models.ArtifactDir, "autoencoder.json"); err != nil {
			zapLogger.Warn("autoencoder unavailable, detection degraded", zap.Error(err))
		} else if ae, err := models.NewAutoencoder(artifact); err != nil {
			zapLogger.Warn("autoencoder unavailable, detection degraded", zap.Error(err))
		} else {
			recon = ae
		}
		if artifact, err := models.LoadArtifact(cfg.Models.ArtifactDir, "outlier.json"); err != nil {
			zapLogger.Warn("outlier model unavailable, detection degraded", zap.Error(err))
		} else if om, err := models.NewOutlierModel(artifact); err != nil {
			zapLogger.Warn("outlier model unavailable, detection degraded", zap.Error(err))
		} else {
			outlier = om
		}
	}

	db := pool.DB()
	history := repository.NewHistoryRepository(db)
	extractor := features.NewExtractor(features.NewStaticGeolocator(nil))
	miner := patterns.NewMiner(patterns.Config{
		MinSupport:       cfg.Engine.MinSupport,
		MinPatternLength: cfg.Engine.MinPatternLength,
		MaxPatternLength: cfg.Engine.MaxPatternLength,
		MinConfidence:    cfg.Engine.MinConfidence,
	})
	return profile.NewManager(
		profile.Config{
			MaxAnomalies:      cfg.Engine.MaxAnomalies,
			ReprofileInterval: cfg.Engine.ReprofileInterval,
		},
		profile.Deps{
			Store:       repository.NewProfileRepository(db),
			History:     history,
			Cache:       cache.NewBehaviorCache(redisCache),
			Extractor:   extractor,
			Miner:       miner,
			Statistical: anomaly.NewStatisticalDetector(),
			Model:       anomaly.NewModelDetector(recon, outlier, zapLogger),
			Risk:        risk.NewCalculator(history),
			Graph:       graph.NewAnalyzer(cfg.Engine.ClusterOverlap),
			Privacy: privacy.NewPreserver(privacy.Config{
				Epsilon:     cfg.Privacy.Epsilon,
				Delta:       cfg.Privacy.Delta,
				Sensitivity: cfg.Privacy.Sensitivity,
				TotalBudget: cfg.Privacy.TotalBudget,
				Mechanism:   privacy.Mechanism(cfg.Privacy.Mechanism),
			}, extractor, miner, zapLogger),
			Metrics: registry,
			Logger:  zapLogger,
		},
	)
}
