// Package dataset prepares a train/val/test directory tree from a raw
// PlantVillage-style download.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// ErrNoClassDirs is returned when no potato class folder holds images.
var ErrNoClassDirs = errors.New("no potato class folders found")

// Splits in output order.
var Splits = []string{"train", "val", "test"}

type Options struct {
	RawRoot  string
	OutRoot  string
	Seed     int64
	TrainPct float64
	ValPct   float64
	// Verify decodes each image and skips the ones that fail.
	Verify bool
}

func DefaultOptions() Options {
	return Options{
		RawRoot:  "data",
		OutRoot:  "potato_dataset",
		Seed:     42,
		TrainPct: 0.7,
		ValPct:   0.15,
	}
}

// ClassDir is a source folder and the class name it maps to.
type ClassDir struct {
	Path  string
	Class string
}

// Summary counts copied images per split and class.
type Summary struct {
	Counts  map[string]map[string]int
	Skipped int
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// ClassName maps "Potato___Early_blight" to "early_blight". Folders without
// the triple underscore drop the word potato; an empty remainder becomes
// "potato_unknown".
func ClassName(dir string) string {
	if parts := strings.Split(dir, "___"); len(parts) >= 2 {
		return strings.ToLower(parts[1])
	}
	cls := strings.ReplaceAll(dir, "Potato", "")
	cls = strings.ReplaceAll(cls, "potato", "")
	cls = strings.Trim(cls, "_- ")
	if cls == "" {
		cls = "potato_unknown"
	}
	return strings.ToLower(cls)
}

// FindClassDirs walks root for directories whose name contains "potato" and
// which directly hold at least one .jpg or .png file. root itself is never a
// class.
func FindClassDirs(root string) ([]ClassDir, error) {
	var dirs []ClassDir
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root || !d.IsDir() || !strings.Contains(strings.ToLower(d.Name()), "potato") {
			return nil
		}
		images, err := listImages(path)
		if err != nil {
			return err
		}
		if len(images) > 0 {
			dirs = append(dirs, ClassDir{Path: path, Class: ClassName(d.Name())})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan '%s': %w", root, err)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w under '%s'", ErrNoClassDirs, root)
	}
	return dirs, nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if e.Type().IsRegular() && isImage(e.Name()) {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

// Split partitions files into train, val and test. The input is shuffled
// with rng first; counts are truncated so test takes the remainder.
func Split(files []string, rng *rand.Rand, trainPct, valPct float64) (train, val, test []string) {
	shuffled := append([]string(nil), files...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	nTrain := int(float64(n) * trainPct)
	nVal := int(float64(n) * valPct)
	return shuffled[:nTrain], shuffled[nTrain : nTrain+nVal], shuffled[nTrain+nVal:]
}

// Prepare finds the class folders under opts.RawRoot and copies a
// stratified split into opts.OutRoot/<split>/<class>/.
func Prepare(opts Options, logger logrus.FieldLogger) (Summary, error) {
	dirs, err := FindClassDirs(opts.RawRoot)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Counts: make(map[string]map[string]int)}
	for _, split := range Splits {
		sum.Counts[split] = make(map[string]int)
		for _, d := range dirs {
			if err := os.MkdirAll(filepath.Join(opts.OutRoot, split, d.Class), 0o755); err != nil {
				return Summary{}, fmt.Errorf("failed to create output directory: %w", err)
			}
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	for _, d := range dirs {
		logger.WithFields(logrus.Fields{"dir": d.Path, "class": d.Class}).Info("Found class folder")

		images, err := listImages(d.Path)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to list '%s': %w", d.Path, err)
		}
		if opts.Verify {
			images = verified(images, &sum, logger)
		}

		train, val, test := Split(images, rng, opts.TrainPct, opts.ValPct)
		for i, files := range [][]string{train, val, test} {
			split := Splits[i]
			for _, src := range files {
				dst := filepath.Join(opts.OutRoot, split, d.Class, filepath.Base(src))
				if err := copyFile(src, dst); err != nil {
					return Summary{}, err
				}
			}
			sum.Counts[split][d.Class] += len(files)
		}
	}
	return sum, nil
}

func verified(images []string, sum *Summary, logger logrus.FieldLogger) []string {
	ok := images[:0:0]
	for _, p := range images {
		if _, err := imaging.Open(p); err != nil {
			logger.WithError(err).WithField("file", p).Warn("Skipping undecodable image")
			sum.Skipped++
			continue
		}
		ok = append(ok, p)
	}
	return ok
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open '%s': %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create '%s': %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy '%s': %w", src, err)
	}
	return out.Close()
}
