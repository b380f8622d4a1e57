package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/blight-api/internal/preprocess"
)

// ErrInputSize is returned when a tensor does not fit the model input.
var ErrInputSize = errors.New("tensor size does not match model input")

// Classifier holds one ONNX session with pre-allocated input and output
// tensors. It is loaded once at startup and shared read-only; calls are
// serialized because the tensors are reused.
type Classifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]

	// input and output alias the tensor buffers; run executes the session.
	input  []float32
	output []float32
	run    func() error
}

// NewClassifier initializes the onnxruntime environment and loads the model.
// libPath may be empty to use the library's default lookup.
func NewClassifier(modelPath string, metadata Metadata, libPath string) (*Classifier, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	c := &Classifier{Metadata: metadata}
	if err := c.load(modelPath); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Classifier) load(modelPath string) error {
	var err error
	c.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(c.Metadata.InputShape...))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}

	c.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(c.Metadata.OutputShape...))
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		return fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	c.session, err = ort.NewAdvancedSession(modelPath,
		[]string{c.Metadata.InputName}, []string{c.Metadata.OutputName},
		[]ort.ArbitraryTensor{c.inputTensor}, []ort.ArbitraryTensor{c.outputTensor},
		options)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	c.input = c.inputTensor.GetData()
	c.output = c.outputTensor.GetData()
	c.run = c.session.Run
	return nil
}

type classifyResult struct {
	probs []float32
	err   error
}

// Classify runs the model on t and returns class probabilities in metadata
// class order. Logit outputs are converted with a softmax. If ctx expires
// first, ctx.Err() is returned and the in-flight run finishes in the
// background.
func (c *Classifier) Classify(ctx context.Context, t preprocess.Tensor) ([]float32, error) {
	if want := len(c.input); len(t.Data) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInputSize, want, len(t.Data))
	}

	done := make(chan classifyResult, 1)
	go func() {
		probs, err := c.runLocked(ctx, t.Data)
		done <- classifyResult{probs: probs, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if c.Metadata.Output == Logits {
			return Softmax(r.probs), nil
		}
		return r.probs, nil
	}
}

// runLocked waits for the session and runs it on data. Calls whose context
// ended while queued return without running the model.
func (c *Classifier) runLocked(ctx context.Context, data []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(c.input, data)
	if err := c.run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, len(c.output))
	copy(out, c.output)
	return out, nil
}

func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// Softmax converts logits to probabilities with the max-subtraction trick.
// Non-finite input yields non-finite output, which callers treat as a
// malformed result.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxV := math.Inf(-1)
	for _, v := range logits {
		maxV = math.Max(maxV, float64(v))
	}

	out := make([]float32, len(logits))
	var sum float64
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v) - maxV)
		sum += exps[i]
	}
	for i := range exps {
		out[i] = float32(exps[i] / sum)
	}
	return out
}
