// Package pipeline runs the inference decision sequence for a single image:
// leaf presence check, normalization, classification and the decision policy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/blight-api/internal/leaf"
	"github.com/Brownie44l1/blight-api/internal/preprocess"
)

// Classifier maps a normalized tensor to a probability vector aligned with
// the pipeline's labels.
type Classifier interface {
	Classify(ctx context.Context, t preprocess.Tensor) ([]float32, error)
}

type Config struct {
	Thresholds Thresholds
	// Timeout bounds a single Classify call. Zero disables the bound.
	Timeout time.Duration
}

type Pipeline struct {
	detector   *leaf.Detector
	normalizer *preprocess.Normalizer
	classifier Classifier
	labels     []string
	cfg        Config
	logger     logrus.FieldLogger
}

// Result is everything one evaluation produced.
type Result struct {
	Decision  Decision
	LeafRatio float64
	// Mask marks the pixels counted as leaf.
	Mask *image.Gray
	// Probabilities is nil for NoLeaf.
	Probabilities []float32
	// Fallback is set when the classifier output was replaced by a uniform
	// distribution.
	Fallback bool
}

func New(detector *leaf.Detector, normalizer *preprocess.Normalizer, classifier Classifier, labels []string, cfg Config, logger logrus.FieldLogger) (*Pipeline, error) {
	if len(labels) == 0 {
		return nil, errors.New("pipeline needs at least one label")
	}
	if classifier == nil {
		return nil, errors.New("pipeline needs a classifier")
	}
	return &Pipeline{
		detector:   detector,
		normalizer: normalizer,
		classifier: classifier,
		labels:     labels,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

func (p *Pipeline) Labels() []string { return p.labels }

// Evaluate runs the full decision sequence on img. The classifier is not
// called when the leaf ratio is below the leaf threshold. Classifier
// failures never surface as errors; only detection and normalization
// errors do.
func (p *Pipeline) Evaluate(ctx context.Context, img image.Image) (Result, error) {
	det, err := p.detector.Detect(img)
	if err != nil {
		return Result{}, fmt.Errorf("leaf detection: %w", err)
	}

	res := Result{LeafRatio: det.Ratio, Mask: det.Mask}
	if det.Ratio < p.cfg.Thresholds.Leaf {
		res.Decision = Decide(det.Ratio, nil, p.labels, p.cfg.Thresholds)
		return res, nil
	}

	tensor, err := p.normalizer.Normalize(img)
	if err != nil {
		return Result{}, fmt.Errorf("normalize: %w", err)
	}

	raw, err := p.classify(ctx, tensor)
	if err != nil {
		p.logger.WithError(err).Warn("Classifier failed, using uniform distribution")
	}
	probs, fallback := Sanitize(raw, len(p.labels))
	if fallback && err == nil {
		p.logger.WithField("output", raw).Warn("Malformed classifier output, using uniform distribution")
	}

	res.Probabilities = probs
	res.Fallback = fallback
	res.Decision = Decide(det.Ratio, probs, p.labels, p.cfg.Thresholds)
	return res, nil
}

func (p *Pipeline) classify(ctx context.Context, t preprocess.Tensor) (probs []float32, err error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			probs, err = nil, fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return p.classifier.Classify(ctx, t)
}
