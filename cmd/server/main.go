package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/blight-api/internal/config"
	"github.com/Brownie44l1/blight-api/internal/framelog"
	"github.com/Brownie44l1/blight-api/internal/handlers"
	"github.com/Brownie44l1/blight-api/internal/leaf"
	"github.com/Brownie44l1/blight-api/internal/logging"
	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/Brownie44l1/blight-api/internal/pipeline"
	"github.com/Brownie44l1/blight-api/internal/preprocess"
	"github.com/Brownie44l1/blight-api/internal/retention"
	"github.com/Brownie44l1/blight-api/internal/store"
)

func main() {
	cfg, err := config.Load(config.Server)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("Server failed: %v", err)
		stop()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// run serves until ctx is done. Every resource it opens is released before
// it returns.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	metadata, err := model.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return fmt.Errorf("failed to load model metadata: %w", err)
	}

	logger.Infof("Loading model from: %s", cfg.ModelPath)
	classifier, err := model.NewClassifier(cfg.ModelPath, metadata, cfg.ORTLibraryPath)
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	defer classifier.Close()

	normalizer, err := preprocess.NewNormalizer(metadata.NormalizerOptions())
	if err != nil {
		return fmt.Errorf("invalid preprocessing settings: %w", err)
	}

	p, err := pipeline.New(leaf.NewDetector(leaf.GreenRange), normalizer, classifier, metadata.Classes,
		pipeline.Config{
			Thresholds: pipeline.Thresholds{Leaf: cfg.LeafThreshold, Confidence: cfg.ConfidenceThreshold},
			Timeout:    cfg.ClassifierTimeout,
		}, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open prediction history: %w", err)
	}
	defer history.Close()

	var frames *framelog.Saver
	if cfg.SaveDebugFrames {
		frames, err = framelog.NewSaver(cfg.DebugDir, logger)
		if err != nil {
			return fmt.Errorf("failed to prepare debug frames: %w", err)
		}
		reaper := retention.NewReaper(cfg.DebugDir, cfg.RetentionMaxAge, cfg.RetentionInterval, logger)
		go reaper.Run(ctx)
	}

	handler := handlers.NewHandler(p, history, frames, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logrus.Fields{
		"port":                 cfg.Port,
		"classes":              metadata.Classes,
		"leaf_threshold":       cfg.LeafThreshold,
		"confidence_threshold": cfg.ConfidenceThreshold,
		"debug_frames":         cfg.SaveDebugFrames,
	}).Info("Server starting")
	logger.Info("Endpoints:")
	logger.Info("  GET  /health  - Health check")
	logger.Info("  POST /predict - Classify an uploaded leaf image (form field 'file')")
	logger.Info("  GET  /labels  - Label descriptions and treatments")
	logger.Info("  GET  /history - Recent predictions")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Shutdown failed: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openHistory(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemory(cfg.HistorySize), nil
	}
	return store.NewPostgres(ctx, cfg.DatabaseURL)
}
