// Package classifier maps raw model scores onto the Fake/Real labels.
package classifier

import (
	"fmt"
	"math"

	"github.com/Brownie44l1/deepcatcher-api/internal/imageproc"
)

var labels = [2]string{LabelFake, LabelReal}

// Labels returns the class names in model output order. Index 0 is "Fake" and
// index 1 is "Real"; swapping them silently inverts every prediction.
func Labels() [2]string { return labels }

const (
	LabelFake = "Fake"
	LabelReal = "Real"
)

// Model is the opaque inference capability behind the adapter.
type Model interface {
	Predict(input []float32) ([]float32, error)
}

// Result is the outcome of classifying one image.
type Result struct {
	Label      string  `json:"class"`
	Confidence float64 `json:"confidence"` // percent, 0..100
}

// InferenceError reports a failed model call or unusable model output.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return "inference: " + e.Err.Error() }
func (e *InferenceError) Unwrap() error { return e.Err }

// Config tunes the adapter.
type Config struct {
	// InputShape is the tensor shape the model expects. Zero skips the check.
	InputShape [4]int64

	// ApplySoftmax converts raw logits into probabilities before scoring.
	ApplySoftmax bool
}

// Classifier wraps a loaded model.
type Classifier struct {
	model Model
	cfg   Config
}

func New(model Model, cfg Config) *Classifier {
	return &Classifier{model: model, cfg: cfg}
}

// Classify runs the model exactly once on t.
func (c *Classifier) Classify(t *imageproc.Tensor) (Result, error) {
	if t == nil {
		return Result{}, &InferenceError{Err: fmt.Errorf("nil tensor")}
	}
	if c.cfg.InputShape != ([4]int64{}) && t.Shape != c.cfg.InputShape {
		return Result{}, &InferenceError{Err: fmt.Errorf("tensor shape %v, model expects %v", t.Shape, c.cfg.InputShape)}
	}

	scores, err := c.model.Predict(t.Data)
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	return c.score(scores)
}

func (c *Classifier) score(raw []float32) (Result, error) {
	if len(raw) != len(labels) {
		return Result{}, &InferenceError{Err: fmt.Errorf("expected %d scores, got %d", len(labels), len(raw))}
	}

	probs := make([]float64, len(raw))
	for i, v := range raw {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Result{}, &InferenceError{Err: fmt.Errorf("score %d is %v", i, v)}
		}
		probs[i] = f
	}

	if c.cfg.ApplySoftmax {
		probs = softmax(probs)
	}

	best := 0
	for i, p := range probs {
		if p < 0 || p > 1 {
			return Result{}, &InferenceError{Err: fmt.Errorf("score %d is not a probability: %v", i, p)}
		}
		if p > probs[best] {
			best = i
		}
	}

	// Scaled in float32, the precision the model reports in.
	return Result{
		Label:      labels[best],
		Confidence: float64(float32(probs[best]) * 100),
	}, nil
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// CheckLabels fails when a model declares classes in a different order
// than Labels.
func CheckLabels(classes []string) error {
	if len(classes) != len(labels) {
		return fmt.Errorf("model declares %d classes %v, expected %v", len(classes), classes, labels)
	}
	for i, name := range classes {
		if name != labels[i] {
			return fmt.Errorf("model class %d is %q, expected %q", i, name, labels[i])
		}
	}
	return nil
}
