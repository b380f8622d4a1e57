package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("invalid configuration")

// Surface selects the defaults for a deployment.
type Surface string

const (
	Server Surface = "server"
	Camera Surface = "camera"
)

type Config struct {
	Port string

	ModelPath      string
	MetadataPath   string
	ORTLibraryPath string

	LeafThreshold       float64
	ConfidenceThreshold float64
	ClassifierTimeout   time.Duration

	DebugDir          string
	SaveDebugFrames   bool
	RetentionMaxAge   time.Duration
	RetentionInterval time.Duration
	NoLeafSampleEvery int

	CameraDevice int

	DatabaseURL string
	HistorySize int

	LogLevel string
	LogFile  string
}

type defaults struct {
	leafThreshold       float64
	confidenceThreshold float64
	classifierTimeout   time.Duration
	saveDebugFrames     bool
}

var surfaceDefaults = map[Surface]defaults{
	Server: {leafThreshold: 0.05, confidenceThreshold: 0, classifierTimeout: 10 * time.Second},
	Camera: {leafThreshold: 0.02, confidenceThreshold: 0.50, classifierTimeout: 5 * time.Second, saveDebugFrames: true},
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// env accumulates parse errors so Load can report all of them at once.
type env struct {
	errs []error
}

func (e *env) float(k string, def float64) float64 {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, k, v))
		return def
	}
	return f
}

func (e *env) int(k string, def int) int {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, k, v))
		return def
	}
	return n
}

func (e *env) bool(k string, def bool) bool {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, k, v))
		return def
	}
	return b
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, k, v))
		return def
	}
	return d
}

// Load reads the configuration for the given surface from the environment.
func Load(surface Surface) (*Config, error) {
	def, ok := surfaceDefaults[surface]
	if !ok {
		return nil, fmt.Errorf("%w: unknown surface %q", ErrInvalid, surface)
	}

	root := projectRoot()
	e := &env{}
	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		ModelPath:      getEnv("MODEL_PATH", filepath.Join(root, "models", "potato_classifier.onnx")),
		MetadataPath:   getEnv("METADATA_PATH", filepath.Join(root, "models", "model_metadata.json")),
		ORTLibraryPath: getEnv("ONNXRUNTIME_LIB", sharedLibPath(root)),

		LeafThreshold:       e.float("LEAF_THRESHOLD", def.leafThreshold),
		ConfidenceThreshold: e.float("CONFIDENCE_THRESHOLD", def.confidenceThreshold),
		ClassifierTimeout:   e.duration("CLASSIFIER_TIMEOUT", def.classifierTimeout),

		DebugDir:          getEnv("DEBUG_DIR", "suspect_frames"),
		SaveDebugFrames:   e.bool("SAVE_DEBUG_FRAMES", def.saveDebugFrames),
		RetentionMaxAge:   e.duration("RETENTION_MAX_AGE", 5*time.Minute),
		RetentionInterval: e.duration("RETENTION_INTERVAL", time.Minute),
		NoLeafSampleEvery: e.int("NO_LEAF_SAMPLE_EVERY", 150),

		CameraDevice: e.int("CAMERA_DEVICE", 0),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		HistorySize: e.int("HISTORY_SIZE", 256),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	if c.LeafThreshold < 0 || c.LeafThreshold > 1 {
		errs = append(errs, fmt.Errorf("%w: LEAF_THRESHOLD must be within [0,1], got %v", ErrInvalid, c.LeafThreshold))
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("%w: CONFIDENCE_THRESHOLD must be within [0,1], got %v", ErrInvalid, c.ConfidenceThreshold))
	}
	if c.ClassifierTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: CLASSIFIER_TIMEOUT must be positive", ErrInvalid))
	}
	if c.RetentionMaxAge <= 0 || c.RetentionInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: retention durations must be positive", ErrInvalid))
	}
	if c.NoLeafSampleEvery <= 0 {
		errs = append(errs, fmt.Errorf("%w: NO_LEAF_SAMPLE_EVERY must be positive", ErrInvalid))
	}
	if c.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("%w: HISTORY_SIZE must be positive", ErrInvalid))
	}
	return errs
}

// projectRoot resolves the repository root when a binary is started from
// inside cmd/<name>.
func projectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if filepath.Base(filepath.Dir(wd)) == "cmd" {
		return filepath.Join(wd, "../..")
	}
	return wd
}

// sharedLibPath returns the bundled onnxruntime library for this platform,
// or "" to let onnxruntime_go use its default lookup.
func sharedLibPath(root string) string {
	var name string
	switch runtime.GOOS {
	case "windows":
		name = "onnxruntime.dll"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.dylib"
		}
	case "linux":
		if runtime.GOARCH == "arm64" {
			name = "onnxruntime_arm64.so"
		} else {
			name = "onnxruntime.so"
		}
	}
	if name == "" {
		return ""
	}
	path := filepath.Join(root, "third_party", name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
