package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/blight-api/internal/camera"
	"github.com/Brownie44l1/blight-api/internal/config"
	"github.com/Brownie44l1/blight-api/internal/framelog"
	"github.com/Brownie44l1/blight-api/internal/leaf"
	"github.com/Brownie44l1/blight-api/internal/logging"
	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/Brownie44l1/blight-api/internal/pipeline"
	"github.com/Brownie44l1/blight-api/internal/preprocess"
	"github.com/Brownie44l1/blight-api/internal/retention"
)

func main() {
	cfg, err := config.Load(config.Camera)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("Camera loop failed: %v", err)
		stop()
		os.Exit(1)
	}
}

// run drives the camera until Escape or ctx is done. Every resource it opens
// is released before it returns.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	metadata, err := model.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return fmt.Errorf("failed to load model metadata: %w", err)
	}

	logger.Infof("Loading model: %s", cfg.ModelPath)
	classifier, err := model.NewClassifier(cfg.ModelPath, metadata, cfg.ORTLibraryPath)
	if err != nil {
		return fmt.Errorf("failed to initialize model: %w", err)
	}
	defer classifier.Close()
	logger.Info("Model loaded")

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

	var (
		frames *framelog.Saver
		reaper *retention.Reaper
	)
	if cfg.SaveDebugFrames {
		frames, err = framelog.NewSaver(cfg.DebugDir, logger)
		if err != nil {
			return fmt.Errorf("failed to prepare debug frames: %w", err)
		}
		reaper = retention.NewReaper(cfg.DebugDir, cfg.RetentionMaxAge, cfg.RetentionInterval, logger)
	}

	loop := camera.New(p, frames, reaper, camera.Options{
		Device:            cfg.CameraDevice,
		NoLeafSampleEvery: cfg.NoLeafSampleEvery,
	}, logger)

	logger.WithFields(logrus.Fields{
		"device":               cfg.CameraDevice,
		"leaf_threshold":       cfg.LeafThreshold,
		"confidence_threshold": cfg.ConfidenceThreshold,
	}).Info("Camera loop starting (Esc to quit, 's' to save frame)")

	return loop.Run(ctx)
}
