// Package retention deletes saved debug frames once they outlive a
// retention window.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Reaper scans a directory and removes regular files older than MaxAge.
// Scans triggered through MaybeScan or Run happen at most once per Interval.
type Reaper struct {
	dir      string
	maxAge   time.Duration
	interval time.Duration
	logger   logrus.FieldLogger
	now      func() time.Time
	remove   func(string) error

	mu       sync.Mutex
	lastScan time.Time
}

func NewReaper(dir string, maxAge, interval time.Duration, logger logrus.FieldLogger) *Reaper {
	return &Reaper{
		dir:      dir,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger.WithField("dir", dir),
		now:      time.Now,
		remove:   os.Remove,
	}
}

// MaybeScan runs Scan unless one already ran within the interval. It reports
// whether a scan happened.
func (r *Reaper) MaybeScan() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !r.lastScan.IsZero() && now.Sub(r.lastScan) <= r.interval {
		return false
	}
	r.lastScan = now
	r.scan(now)
	return true
}

// Scan removes expired files unconditionally and returns how many were
// deleted. Failures are logged; the file stays for the next scan.
func (r *Reaper) Scan() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scan(r.now())
}

func (r *Reaper) scan(now time.Time) int {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.WithError(err).Warn("Could not list debug frames")
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		info, err := e.Info()
		if err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("Error checking file for cleanup")
			continue
		}

		age := now.Sub(info.ModTime())
		if age <= r.maxAge {
			continue
		}
		if err := r.remove(path); err != nil {
			r.logger.WithError(err).WithField("file", path).Warn("Could not delete old frame")
			continue
		}
		removed++
		r.logger.WithFields(logrus.Fields{"file": path, "age": age.Truncate(time.Second)}).Debug("Deleted old frame")
	}
	return removed
}

// Run calls MaybeScan on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	r.MaybeScan()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.MaybeScan()
		}
	}
}
