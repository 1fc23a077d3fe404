// Package model defines the trainable classifier interface and the models
// selectable through training.model.
package model

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"hcnn/internal/faults"
)

var (
	// ErrUnknownModel reports a training.model value with no registered model.
	ErrUnknownModel = fmt.Errorf("%w: unknown model", faults.ErrConfig)
	// ErrDiverged reports a non-finite training loss.
	ErrDiverged = errors.New("model diverged")
	// ErrShape reports a batch whose dimensions do not match the model.
	ErrShape = errors.New("batch shape mismatch")
	// ErrIncompatibleSnapshot reports a snapshot written for another model or shape.
	ErrIncompatibleSnapshot = fmt.Errorf("%w: incompatible snapshot", faults.ErrSnapshot)
)

// Batch is a set of flattened input windows with their class targets. Y may
// be nil for inference.
type Batch struct {
	X *mat.Dense
	Y []int
}

// Size returns the number of rows in the batch.
func (b Batch) Size() int {
	if b.X == nil {
		return 0
	}
	r, _ := b.X.Dims()
	return r
}

// Model is a trainable classifier over fixed-size input windows.
type Model interface {
	Name() string
	// TrainBatch applies one optimizer step and returns the batch loss
	// measured before the update.
	TrainBatch(b Batch) (float64, error)
	// Predict returns one row of class probabilities per input row.
	Predict(x *mat.Dense) (*mat.Dense, error)
	Save(path string) error
	Load(path string) error
}

// Options describes the model to build.
type Options struct {
	InputDim     int
	Classes      int
	LearningRate float64
	Momentum     float64
}

// Factory builds a model from options.
type Factory func(Options) (Model, error)

var registry = map[string]Factory{
	SoftmaxName: func(s Options) (Model, error) { return NewSoftmax(s) },
}

// New builds the model registered under name.
func New(name string, opts Options) (Model, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownModel, name, Names())
	}
	if opts.InputDim <= 0 || opts.Classes <= 0 {
		return nil, fmt.Errorf("model %s: input dim and classes must be positive", name)
	}
	return factory(opts)
}

// Names lists the registered model names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CrossEntropy returns the mean negative log probability of the targets.
func CrossEntropy(probs *mat.Dense, y []int) float64 {
	const floor = 1e-12
	r, _ := probs.Dims()
	if r == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < r; i++ {
		p := probs.At(i, y[i])
		if p < floor {
			p = floor
		}
		sum -= math.Log(p)
	}
	return sum / float64(r)
}
