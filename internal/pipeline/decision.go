package pipeline

import (
	"fmt"
	"math"
)

// Kind tags the variant of a Decision.
type Kind int

const (
	NoLeaf Kind = iota
	LowConfidence
	Classified
)

func (k Kind) String() string {
	switch k {
	case NoLeaf:
		return "no_leaf"
	case LowConfidence:
		return "low_confidence"
	case Classified:
		return "classified"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Decision is the final outcome for one image. For NoLeaf, Index is -1 and
// Label and Confidence are zero. Otherwise Label is the top class and
// Confidence its probability.
type Decision struct {
	Kind       Kind
	Index      int
	Label      string
	Confidence float64
}

// Thresholds gate a Decision. A Confidence threshold of zero never yields
// LowConfidence.
type Thresholds struct {
	Leaf       float64
	Confidence float64
}

// Decide combines the leaf ratio and class probabilities into a Decision.
// probs is aligned with labels; an unusable vector is replaced by a uniform
// one (see Sanitize). Ties for the top probability resolve to the lowest
// index. With no labels there is nothing to classify and the result is
// NoLeaf.
func Decide(leafRatio float64, probs []float32, labels []string, th Thresholds) Decision {
	if leafRatio < th.Leaf || len(labels) == 0 {
		return Decision{Kind: NoLeaf, Index: -1}
	}

	probs, _ = Sanitize(probs, len(labels))
	top := argmax(probs)
	d := Decision{
		Kind:       Classified,
		Index:      top,
		Label:      labels[top],
		Confidence: float64(probs[top]),
	}
	if d.Confidence < th.Confidence {
		d.Kind = LowConfidence
	}
	return d
}

func argmax(probs []float32) int {
	top := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[top] {
			top = i
		}
	}
	return top
}

// sumTolerance is how far a probability vector may sum away from 1 before it
// is rescaled.
const sumTolerance = 1e-3

// Sanitize returns a probability distribution of length n built from probs.
// A vector that already sums to 1 is returned unchanged; one with a positive
// sum off by more than sumTolerance is rescaled into a new slice. A vector
// is unusable when its length differs from n, or it holds negative or
// non-finite entries, or it sums to zero; a uniform distribution of length n
// replaces it. The bool reports whether the fallback was used.
func Sanitize(probs []float32, n int) ([]float32, bool) {
	if len(probs) != n || n == 0 {
		return Uniform(n), true
	}

	var sum float64
	for _, p := range probs {
		f := float64(p)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return Uniform(n), true
		}
		sum += f
	}
	if sum <= 0 || math.IsInf(sum, 0) {
		return Uniform(n), true
	}
	if math.Abs(sum-1) <= sumTolerance {
		return probs, false
	}

	scaled := make([]float32, n)
	for i, p := range probs {
		scaled[i] = float32(float64(p) / sum)
	}
	return scaled, false
}

// Uniform returns n equal probabilities.
func Uniform(n int) []float32 {
	u := make([]float32, n)
	for i := range u {
		u[i] = 1 / float32(n)
	}
	return u
}
