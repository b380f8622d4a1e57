package dataset

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestClassName(t *testing.T) {
	tests := map[string]string{
		"Potato___Early_blight": "early_blight",
		"Potato___healthy":      "healthy",
		"potato-Late_Blight":    "late_blight",
		"Potato":                "potato_unknown",
		"__potato__":            "potato_unknown",
	}
	for in, want := range tests {
		if got := ClassName(in); got != want {
			t.Errorf("ClassName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitCounts(t *testing.T) {
	files := make([]string, 100)
	for i := range files {
		files[i] = fmt.Sprintf("img_%03d.jpg", i)
	}

	train, val, test := Split(files, rand.New(rand.NewSource(42)), 0.7, 0.15)
	if len(train) != 70 || len(val) != 15 || len(test) != 15 {
		t.Fatalf("split = %d/%d/%d, want 70/15/15", len(train), len(val), len(test))
	}

	all := append(append(append([]string(nil), train...), val...), test...)
	sort.Strings(all)
	if !reflect.DeepEqual(all, files) {
		t.Fatal("split lost or duplicated files")
	}

	again, _, _ := Split(files, rand.New(rand.NewSource(42)), 0.7, 0.15)
	if !reflect.DeepEqual(train, again) {
		t.Fatal("split is not deterministic for a fixed seed")
	}
}

func TestSplitSmall(t *testing.T) {
	train, val, test := Split([]string{"a", "b", "c"}, rand.New(rand.NewSource(1)), 0.7, 0.15)
	if len(train) != 2 || len(val) != 0 || len(test) != 1 {
		t.Fatalf("split = %d/%d/%d, want 2/0/1", len(train), len(val), len(test))
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
}

func TestPrepare(t *testing.T) {
	raw := t.TempDir()
	out := filepath.Join(t.TempDir(), "potato_dataset")

	classes := map[string]int{
		"Potato___Early_blight": 20,
		"Potato___healthy":      10,
	}
	for dir, n := range classes {
		path := filepath.Join(raw, "PlantVillage", dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < n; i++ {
			writePNG(t, filepath.Join(path, fmt.Sprintf("%d.png", i)))
		}
	}
	corrupt := filepath.Join(raw, "PlantVillage", "Potato___healthy", "broken.jpg")
	if err := os.WriteFile(corrupt, []byte("not a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Not a potato folder, must be ignored.
	tomato := filepath.Join(raw, "PlantVillage", "Tomato___healthy")
	os.MkdirAll(tomato, 0o755)
	writePNG(t, filepath.Join(tomato, "0.png"))

	opts := DefaultOptions()
	opts.RawRoot = raw
	opts.OutRoot = out
	opts.Verify = true

	sum, err := Prepare(opts, quietLogger())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if sum.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1", sum.Skipped)
	}

	want := map[string]map[string]int{
		"train": {"early_blight": 14, "healthy": 7},
		"val":   {"early_blight": 3, "healthy": 1},
		"test":  {"early_blight": 3, "healthy": 2},
	}
	if !reflect.DeepEqual(sum.Counts, want) {
		t.Fatalf("Counts = %v, want %v", sum.Counts, want)
	}

	entries, err := os.ReadDir(filepath.Join(out, "train", "early_blight"))
	if err != nil || len(entries) != 14 {
		t.Fatalf("train/early_blight has %d files (err %v)", len(entries), err)
	}
	if _, err := os.Stat(filepath.Join(out, "train", "tomato")); !os.IsNotExist(err) {
		t.Fatal("non-potato class was copied")
	}
}

func TestPrepareNoClasses(t *testing.T) {
	opts := DefaultOptions()
	opts.RawRoot = t.TempDir()
	opts.OutRoot = t.TempDir()
	if _, err := Prepare(opts, quietLogger()); !errors.Is(err, ErrNoClassDirs) {
		t.Fatalf("err = %v, want ErrNoClassDirs", err)
	}
}

func TestFindClassDirsSkipsRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "potato_data")
	if err := os.MkdirAll(filepath.Join(root, "Potato___healthy"), 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(root, "loose.png"))
	writePNG(t, filepath.Join(root, "Potato___healthy", "0.png"))

	dirs, err := FindClassDirs(root)
	if err != nil {
		t.Fatalf("FindClassDirs: %v", err)
	}
	want := []ClassDir{{Path: filepath.Join(root, "Potato___healthy"), Class: "healthy"}}
	if !reflect.DeepEqual(dirs, want) {
		t.Fatalf("dirs = %+v, want %+v", dirs, want)
	}
}
