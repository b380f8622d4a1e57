// Package preprocess turns decoded images into model input tensors.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

var ErrNilImage = errors.New("image is nil")

// Layout is the memory order of the tensor dimensions after the batch axis.
type Layout string

const (
	NHWC Layout = "NHWC"
	NCHW Layout = "NCHW"
)

// ChannelOrder is the color order the classifier was trained on.
type ChannelOrder string

const (
	RGB ChannelOrder = "RGB"
	BGR ChannelOrder = "BGR"
)

// Mode names a backbone-specific value normalization. It must match the one
// used when the classifier was trained.
type Mode string

const (
	// EfficientNet keeps raw 0..255 values; the Keras EfficientNet family
	// rescales inside the graph.
	EfficientNet Mode = "efficientnet"
	// Unit scales to 0..1.
	Unit Mode = "unit"
	// ImageNet scales to 0..1 then applies per-channel mean/std.
	ImageNet Mode = "imagenet"
	// TF scales to -1..1.
	TF Mode = "tf"
)

var (
	imageNetMean = [3]float32{0.485, 0.456, 0.406}
	imageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Tensor is a dense float32 tensor with a leading batch dimension.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Options configures a Normalizer.
type Options struct {
	Size         int
	Layout       Layout
	ChannelOrder ChannelOrder
	Mode         Mode
}

func (o Options) validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("input size must be positive, got %d", o.Size)
	}
	switch o.Layout {
	case NHWC, NCHW:
	default:
		return fmt.Errorf("unknown layout %q", o.Layout)
	}
	switch o.ChannelOrder {
	case RGB, BGR:
	default:
		return fmt.Errorf("unknown channel order %q", o.ChannelOrder)
	}
	switch o.Mode {
	case EfficientNet, Unit, ImageNet, TF:
	default:
		return fmt.Errorf("unknown normalization %q", o.Mode)
	}
	return nil
}

type Normalizer struct {
	opts Options
}

func NewNormalizer(opts Options) (*Normalizer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Normalizer{opts: opts}, nil
}

// Normalize resizes img to the configured square size and converts it to a
// batch-of-one tensor in the configured layout, channel order and scale.
func (n *Normalizer) Normalize(img image.Image) (Tensor, error) {
	if img == nil {
		return Tensor{}, ErrNilImage
	}
	if img.Bounds().Empty() {
		return Tensor{}, fmt.Errorf("cannot normalize empty image %v", img.Bounds())
	}

	size := n.opts.Size
	resized := img
	if b := img.Bounds(); b.Dx() != size || b.Dy() != size {
		resized = resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	}

	plane := size * size
	data := make([]float32, 3*plane)
	b := resized.Bounds()

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := channels(resized.At(b.Min.X+x, b.Min.Y+y), n.opts.ChannelOrder)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := n.scale(px[c], c)
				if n.opts.Layout == NCHW {
					data[c*plane+i] = v
				} else {
					data[i*3+c] = v
				}
			}
		}
	}

	shape := []int64{1, int64(size), int64(size), 3}
	if n.opts.Layout == NCHW {
		shape = []int64{1, 3, int64(size), int64(size)}
	}
	return Tensor{Shape: shape, Data: data}, nil
}

// scale maps an 8-bit sample in output channel c to the model's value range.
// For ImageNet the statistics are indexed in RGB order.
func (n *Normalizer) scale(v float32, c int) float32 {
	switch n.opts.Mode {
	case Unit:
		return v / 255
	case ImageNet:
		if n.opts.ChannelOrder == BGR {
			c = 2 - c
		}
		return (v/255 - imageNetMean[c]) / imageNetStd[c]
	case TF:
		return v/127.5 - 1
	default:
		return v
	}
}

func channels(c color.Color, order ChannelOrder) [3]float32 {
	r, g, b, _ := c.RGBA()
	r8, g8, b8 := float32(r>>8), float32(g>>8), float32(b>>8)
	if order == BGR {
		return [3]float32{b8, g8, r8}
	}
	return [3]float32{r8, g8, b8}
}
