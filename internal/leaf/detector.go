// Package leaf estimates whether an image contains plant matter by counting
// the pixels that fall inside a green HSV range.
package leaf

import (
	"errors"
	"image"
	"image/color"
	"math"
)

var (
	// ErrNilImage is returned when no image is supplied.
	ErrNilImage = errors.New("image is nil")

	// ErrEmptyImage is returned for images with zero width or height.
	ErrEmptyImage = errors.New("image has zero area")
)

// HSV is a color on the 8-bit OpenCV scale: hue 0..180, saturation and
// value 0..255.
type HSV struct {
	H, S, V uint8
}

// Range is an inclusive HSV box.
type Range struct {
	Lower HSV
	Upper HSV
}

// Contains reports whether c lies inside the range on all three channels.
func (r Range) Contains(c HSV) bool {
	return c.H >= r.Lower.H && c.H <= r.Upper.H &&
		c.S >= r.Lower.S && c.S <= r.Upper.S &&
		c.V >= r.Lower.V && c.V <= r.Upper.V
}

// GreenRange is the plant-green heuristic used for leaf presence.
var GreenRange = Range{
	Lower: HSV{H: 25, S: 40, V: 30},
	Upper: HSV{H: 100, S: 255, V: 255},
}

// Detection is the outcome of a leaf presence check.
type Detection struct {
	// Ratio is the fraction of pixels inside the range, in [0,1].
	Ratio float64
	// Mask is 255 where a pixel matched and 0 elsewhere. It has the same
	// bounds as the source image.
	Mask *image.Gray
}

type Detector struct {
	rng Range
}

// NewDetector returns a detector for the given color range.
func NewDetector(rng Range) *Detector {
	return &Detector{rng: rng}
}

// Detect computes the leaf presence ratio and mask for img.
func (d *Detector) Detect(img image.Image) (Detection, error) {
	if img == nil {
		return Detection{}, ErrNilImage
	}
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return Detection{}, ErrEmptyImage
	}

	mask := image.NewGray(b)
	matched := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := rgb8(img.At(x, y))
			if d.rng.Contains(RGBToHSV(r, g, bl)) {
				mask.Pix[mask.PixOffset(x, y)] = 255
				matched++
			}
		}
	}

	return Detection{
		Ratio: float64(matched) / float64(total),
		Mask:  mask,
	}, nil
}

// RGBToHSV converts an 8-bit RGB triple to HSV using OpenCV's 8-bit
// conventions, where hue is halved to fit in a byte.
func RGBToHSV(r, g, b uint8) HSV {
	rf, gf, bf := float64(r), float64(g), float64(b)
	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var s float64
	if maxC > 0 {
		s = 255 * delta / maxC
	}

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == rf:
		h = 60 * (gf - bf) / delta
	case maxC == gf:
		h = 120 + 60*(bf-rf)/delta
	default:
		h = 240 + 60*(rf-gf)/delta
	}
	if h < 0 {
		h += 360
	}

	hue := math.Round(h / 2)
	if hue >= 180 {
		hue -= 180
	}
	return HSV{
		H: uint8(hue),
		S: uint8(math.Round(s)),
		V: uint8(maxC),
	}
}

func rgb8(c color.Color) (uint8, uint8, uint8) {
	switch v := c.(type) {
	case color.RGBA:
		return v.R, v.G, v.B
	case color.NRGBA:
		return v.R, v.G, v.B
	}
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}
