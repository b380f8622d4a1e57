package main

import (
	"errors"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/blight-api/internal/dataset"
	"github.com/Brownie44l1/blight-api/internal/logging"
)

func main() {
	opts := dataset.DefaultOptions()
	flag.StringVar(&opts.RawRoot, "raw", opts.RawRoot, "root where the Kaggle dataset was unzipped")
	flag.StringVar(&opts.OutRoot, "out", opts.OutRoot, "output folder for train/val/test")
	flag.Int64Var(&opts.Seed, "seed", opts.Seed, "shuffle seed")
	flag.Float64Var(&opts.TrainPct, "train", opts.TrainPct, "fraction of each class used for training")
	flag.Float64Var(&opts.ValPct, "val", opts.ValPct, "fraction of each class used for validation")
	flag.BoolVar(&opts.Verify, "verify", false, "decode every image and skip broken files")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.New(*logLevel, "")

	if opts.TrainPct < 0 || opts.ValPct < 0 || opts.TrainPct+opts.ValPct > 1 {
		logger.Fatalf("Invalid split: train=%v val=%v", opts.TrainPct, opts.ValPct)
	}

	sum, err := dataset.Prepare(opts, logger)
	if errors.Is(err, dataset.ErrNoClassDirs) {
		logger.Errorf("No potato class folders found under %s", opts.RawRoot)
		logger.Error("Please check where you unzipped the Kaggle dataset.")
		os.Exit(1)
	}
	if err != nil {
		logger.Fatalf("Failed to prepare dataset: %v", err)
	}

	for _, split := range dataset.Splits {
		for class, n := range sum.Counts[split] {
			logger.WithFields(logrus.Fields{"split": split, "class": class, "images": n}).Info("Copied")
		}
	}
	if sum.Skipped > 0 {
		logger.Warnf("Skipped %d undecodable images", sum.Skipped)
	}
	logger.Infof("Finished preparing dataset at %s", opts.OutRoot)
}
