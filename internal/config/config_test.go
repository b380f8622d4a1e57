package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadSurfaceDefaults(t *testing.T) {
	tests := []struct {
		surface    Surface
		leaf       float64
		confidence float64
		save       bool
	}{
		{Server, 0.05, 0, false},
		{Camera, 0.02, 0.50, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.surface), func(t *testing.T) {
			cfg, err := Load(tt.surface)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.LeafThreshold != tt.leaf {
				t.Errorf("LeafThreshold = %v, want %v", cfg.LeafThreshold, tt.leaf)
			}
			if cfg.ConfidenceThreshold != tt.confidence {
				t.Errorf("ConfidenceThreshold = %v, want %v", cfg.ConfidenceThreshold, tt.confidence)
			}
			if cfg.SaveDebugFrames != tt.save {
				t.Errorf("SaveDebugFrames = %v, want %v", cfg.SaveDebugFrames, tt.save)
			}
			if cfg.RetentionMaxAge != 5*time.Minute || cfg.RetentionInterval != time.Minute {
				t.Errorf("retention = %v/%v, want 5m/1m", cfg.RetentionMaxAge, cfg.RetentionInterval)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEAF_THRESHOLD", "0.1")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("CLASSIFIER_TIMEOUT", "250ms")
	t.Setenv("PORT", "9000")

	cfg, err := Load(Server)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LeafThreshold != 0.1 || cfg.ConfidenceThreshold != 0.75 {
		t.Fatalf("thresholds = %v/%v", cfg.LeafThreshold, cfg.ConfidenceThreshold)
	}
	if cfg.ClassifierTimeout != 250*time.Millisecond {
		t.Fatalf("ClassifierTimeout = %v", cfg.ClassifierTimeout)
	}
	if cfg.Port != "9000" {
		t.Fatalf("Port = %q", cfg.Port)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"LEAF_THRESHOLD":       "1.5",
		"CONFIDENCE_THRESHOLD": "high",
		"RETENTION_MAX_AGE":    "0s",
		"NO_LEAF_SAMPLE_EVERY": "-1",
	}

	for k, v := range tests {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load(Camera)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load with %s=%s: err = %v, want ErrInvalid", k, v, err)
			}
		})
	}
}

func TestLoadUnknownSurface(t *testing.T) {
	if _, err := Load("batch"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}
