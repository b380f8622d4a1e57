// Package framelog persists debug frames for later inspection.
package framelog

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

func NoLeafName(n int) string {
	return fmt.Sprintf("no_leaf_%d.jpg", n)
}

func LowConfidenceName(n int, label string, confidence float64) string {
	return fmt.Sprintf("lowconf_%d_top_%s_%.2f.jpg", n, label, confidence)
}

func ManualName(n int) string {
	return fmt.Sprintf("manual_%d.jpg", n)
}

// Saver writes JPEG frames into a directory. Saving is best effort: errors
// are logged and reported through the empty path, never returned. A nil
// Saver saves nothing.
type Saver struct {
	dir    string
	logger logrus.FieldLogger
	seq    atomic.Int64
}

// NewSaver creates dir if needed.
func NewSaver(dir string, logger logrus.FieldLogger) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create debug frame directory '%s': %w", dir, err)
	}
	return &Saver{dir: dir, logger: logger}, nil
}

func (s *Saver) Dir() string { return s.dir }

// Next returns a process-wide sequence number for callers that have no
// frame index of their own.
func (s *Saver) Next() int {
	return int(s.seq.Add(1) - 1)
}

func (s *Saver) SaveNoLeaf(n int, img image.Image) string {
	return s.save(NoLeafName(n), "no-leaf", img)
}

func (s *Saver) SaveLowConfidence(n int, label string, confidence float64, img image.Image) string {
	return s.save(LowConfidenceName(n, label, confidence), "low-confidence", img)
}

func (s *Saver) SaveManual(n int, img image.Image) string {
	return s.save(ManualName(n), "manual", img)
}

func (s *Saver) save(name, reason string, img image.Image) string {
	if s == nil {
		return ""
	}
	path := filepath.Join(s.dir, name)
	log := s.logger.WithFields(logrus.Fields{"file": path, "reason": reason})
	if img == nil {
		log.Warn("Could not save frame: image is nil")
		return ""
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		log.WithError(err).Warn("Could not save frame")
		return ""
	}
	log.Info("Saved frame")
	return path
}
