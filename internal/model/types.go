package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Brownie44l1/blight-api/internal/preprocess"
)

// Output describes what the final graph node emits.
type Output string

const (
	Probabilities Output = "probabilities"
	Logits        Output = "logits"
)

// Metadata is written next to the exported ONNX file by the training job and
// pins everything inference must do identically.
type Metadata struct {
	InputShape    []int64                 `json:"input_shape"`
	OutputShape   []int64                 `json:"output_shape"`
	InputName     string                  `json:"input_name"`
	OutputName    string                  `json:"output_name"`
	Classes       []string                `json:"classes"`
	ImageSize     int                     `json:"image_size"`
	Layout        preprocess.Layout       `json:"layout"`
	ChannelOrder  preprocess.ChannelOrder `json:"channel_order"`
	Normalization preprocess.Mode         `json:"normalization"`
	Output        Output                  `json:"output"`
}

// DefaultClasses is the training order of the reference potato model.
var DefaultClasses = []string{"early_blight", "late_blight", "healthy"}

// LoadMetadata reads a metadata file and fills unset fields with the
// reference Keras EfficientNetB0 export settings.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	return ParseMetadata(data)
}

func ParseMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

func (m *Metadata) applyDefaults() {
	if len(m.Classes) == 0 {
		m.Classes = append([]string(nil), DefaultClasses...)
	}
	if m.ImageSize == 0 {
		m.ImageSize = 224
	}
	if m.Layout == "" {
		m.Layout = preprocess.NHWC
	}
	if m.ChannelOrder == "" {
		m.ChannelOrder = preprocess.RGB
	}
	if m.Normalization == "" {
		m.Normalization = preprocess.EfficientNet
	}
	if m.Output == "" {
		m.Output = Probabilities
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	size := int64(m.ImageSize)
	if len(m.InputShape) == 0 {
		if m.Layout == preprocess.NCHW {
			m.InputShape = []int64{1, 3, size, size}
		} else {
			m.InputShape = []int64{1, size, size, 3}
		}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
}

func (m Metadata) validate() error {
	var errs []error
	if m.Output != Probabilities && m.Output != Logits {
		errs = append(errs, fmt.Errorf("unknown output kind %q", m.Output))
	}
	if n := elements(m.InputShape); n != int64(3*m.ImageSize*m.ImageSize) {
		errs = append(errs, fmt.Errorf("input shape %v does not hold a %dx%d RGB image", m.InputShape, m.ImageSize, m.ImageSize))
	}
	if n := elements(m.OutputShape); n != int64(len(m.Classes)) {
		errs = append(errs, fmt.Errorf("output shape %v does not match %d classes", m.OutputShape, len(m.Classes)))
	}
	if _, err := preprocess.NewNormalizer(m.NormalizerOptions()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NormalizerOptions returns the preprocessing settings the model was
// trained with.
func (m Metadata) NormalizerOptions() preprocess.Options {
	return preprocess.Options{
		Size:         m.ImageSize,
		Layout:       m.Layout,
		ChannelOrder: m.ChannelOrder,
		Mode:         m.Normalization,
	}
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
