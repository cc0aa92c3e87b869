package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/config"
	"github.com/snapvalue/snapvalue/internal/domain"
	logpkg "github.com/snapvalue/snapvalue/internal/logger"
	"github.com/snapvalue/snapvalue/internal/metrics"
	"github.com/snapvalue/snapvalue/internal/repository/embcache"
	chiTransport "github.com/snapvalue/snapvalue/internal/transport/chi"
	"github.com/snapvalue/snapvalue/internal/transport/clip"
	"github.com/snapvalue/snapvalue/internal/transport/images"
	openaiGen "github.com/snapvalue/snapvalue/internal/transport/openai"
	"github.com/snapvalue/snapvalue/internal/transport/serp"
	embeduc "github.com/snapvalue/snapvalue/internal/usecase/embed"
	pipelineuc "github.com/snapvalue/snapvalue/internal/usecase/pipeline"
	"github.com/snapvalue/snapvalue/internal/usecase/report"
	"github.com/snapvalue/snapvalue/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting snapvalue API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Embedding cache — composition root picks the driver
	var cache embeduc.Cache
	switch cfg.Cache.Driver {
	case "memory":
		mem, err := embcache.NewMemory(
			cfg.Cache.Capacity, domain.CropSet(cfg.Pipeline.FullCrops), metrics.EmbeddingCacheTotal,
		)
		if err != nil {
			logger.Fatal("Failed to create memory cache", zap.Error(err))
		}
		cache = mem
	case "redis":
		rc, err := embcache.NewRedis(embcache.RedisConfig{
			Addrs:     cfg.Cache.Addrs,
			Password:  cfg.Cache.Password,
			KeyPrefix: cfg.Cache.KeyPrefix,
		}, domain.CropSet(cfg.Pipeline.FullCrops), metrics.EmbeddingCacheTotal, logger)
		if err != nil {
			logger.Fatal("Failed to create redis cache", zap.Error(err))
		}
		defer rc.Close()
		cache = rc
	default:
		logger.Fatal("Unknown cache driver", zap.String("driver", cfg.Cache.Driver))
	}

	// External collaborators
	searchClient := serp.NewClient(&serp.Config{
		Endpoint:       cfg.Marketplace.Endpoint,
		APIKey:         cfg.Marketplace.APIKey,
		PageSize:       cfg.Marketplace.PageSize,
		ConnectTimeout: time.Duration(cfg.Marketplace.ConnectTimeoutSec) * time.Second,
		ReadTimeout:    cfg.Marketplace.MarketplaceReadTimeout(),
		WriteTimeout:   time.Duration(cfg.Marketplace.WriteTimeoutSec) * time.Second,
		Logger:         logger,
	})

	queryGen := openaiGen.NewGenerator(&openaiGen.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxOutputTokens,
		Logger:    logger,
	})

	imageEmbedder, err := clip.NewEmbedder(&clip.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Timeout: time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create embedding client", zap.Error(err))
	}

	downloader := images.NewDownloader(time.Duration(cfg.Embedding.ThumbTimeoutSec) * time.Second)

	// Use case services
	thumbSvc := embeduc.New(
		downloader, imageEmbedder, cache,
		cfg.Pipeline.ThumbConcurrency, cfg.Pipeline.EmbedBatchSize, logger,
	)
	builder := report.NewBuilder(cfg.Pipeline.ExampleListingCap)
	pipelineSvc := pipelineuc.New(
		searchClient, queryGen, imageEmbedder, thumbSvc, builder,
		pipelineuc.Config{
			FastCrops:        domain.CropSet(cfg.Pipeline.FastCrops),
			FullCrops:        domain.CropSet(cfg.Pipeline.FullCrops),
			MaxEmbedItems:    cfg.Pipeline.MaxEmbedItems,
			EnrichTopN:       cfg.Pipeline.EnrichTopN,
			SimilarityMin:    cfg.Pipeline.SimilarityMin,
			FinalSimilarity:  cfg.Pipeline.FinalSimilarity,
			FinalKeepTopK:    cfg.Pipeline.FinalKeepTopK,
			RefineSimilarity: cfg.Pipeline.RefineSimilarity,
		}, logger,
	)

	server := chiTransport.NewServer(pipelineSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Post("/v1/extract", server.Extract)
	r.Get("/healthz", server.Health)
	r.Get("/metrics", server.Metrics)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
