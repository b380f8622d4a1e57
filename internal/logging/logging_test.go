package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevel(t *testing.T) {
	log := New("debug", "")
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", log.GetLevel())
	}

	log = New("loud", "")
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("unknown level should fall back to info, got %v", log.GetLevel())
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log := New("info", path)
	log.Info("model loaded")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "model loaded") {
		t.Fatalf("log file missing entry: %q", data)
	}
}
