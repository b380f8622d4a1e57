package retention

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestScanAgeBoundary(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().Truncate(time.Second)

	old := filepath.Join(dir, "no_leaf_0.jpg")
	fresh := filepath.Join(dir, "lowconf_3_top_healthy_0.41.jpg")
	touch(t, old, now.Add(-301*time.Second))
	touch(t, fresh, now.Add(-299*time.Second))

	r := NewReaper(dir, 300*time.Second, time.Minute, quietLogger())
	r.now = func() time.Time { return now }

	if n := r.Scan(); n != 1 {
		t.Fatalf("Scan removed %d files, want 1", n)
	}
	if exists(old) {
		t.Error("file aged 301s was kept")
	}
	if !exists(fresh) {
		t.Error("file aged 299s was deleted")
	}
}

func TestScanRetriesFailedDeletion(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	stale := filepath.Join(dir, "no_leaf_300.jpg")
	touch(t, stale, now.Add(-time.Hour))

	r := NewReaper(dir, time.Minute, time.Minute, quietLogger())
	r.now = func() time.Time { return now }
	var attempts int
	r.remove = func(string) error {
		attempts++
		return errors.New("permission denied")
	}

	if n := r.Scan(); n != 0 {
		t.Fatalf("Scan removed %d files, want 0", n)
	}
	if attempts != 1 {
		t.Fatalf("remove called %d times, want 1", attempts)
	}
	if !exists(stale) {
		t.Fatal("file disappeared although removal failed")
	}

	r.remove = os.Remove
	if n := r.Scan(); n != 1 {
		t.Fatalf("second Scan removed %d files, want 1", n)
	}
	if exists(stale) {
		t.Fatal("file survived the retry")
	}
}

func TestScanIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	sub := filepath.Join(dir, "archive")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(sub, now.Add(-time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	r := NewReaper(dir, time.Minute, time.Minute, quietLogger())
	if n := r.Scan(); n != 0 {
		t.Fatalf("Scan removed %d entries, want 0", n)
	}
	if !exists(sub) {
		t.Fatal("directory was removed")
	}
}

func TestScanMissingDirectory(t *testing.T) {
	r := NewReaper(filepath.Join(t.TempDir(), "nope"), time.Minute, time.Minute, quietLogger())
	if n := r.Scan(); n != 0 {
		t.Fatalf("Scan = %d, want 0", n)
	}
}

func TestMaybeScanInterval(t *testing.T) {
	dir := t.TempDir()
	clock := time.Now()
	r := NewReaper(dir, 300*time.Second, 60*time.Second, quietLogger())
	r.now = func() time.Time { return clock }

	if !r.MaybeScan() {
		t.Fatal("first MaybeScan should scan")
	}

	clock = clock.Add(30 * time.Second)
	if r.MaybeScan() {
		t.Fatal("MaybeScan within interval should not scan")
	}

	// A file that expires between the two calls is only removed once the
	// interval has passed.
	stale := filepath.Join(dir, "manual_7.jpg")
	touch(t, stale, clock.Add(-400*time.Second))
	if r.MaybeScan() || !exists(stale) {
		t.Fatal("scan ran inside the interval")
	}

	clock = clock.Add(31 * time.Second)
	if !r.MaybeScan() {
		t.Fatal("MaybeScan after interval should scan")
	}
	if exists(stale) {
		t.Fatal("stale file survived the scan")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "no_leaf_150.jpg")
	touch(t, stale, time.Now().Add(-time.Hour))

	r := NewReaper(dir, time.Minute, 10*time.Millisecond, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for exists(stale) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if exists(stale) {
		t.Fatal("Run did not remove the stale file")
	}
}
