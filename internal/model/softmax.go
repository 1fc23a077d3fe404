package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"hcnn/internal/archive"
)

// SoftmaxName is the registry name of the softmax regression model.
const SoftmaxName = "softmax"

// Softmax is multinomial logistic regression trained with SGD and momentum.
type Softmax struct {
	opts Options
	w    *mat.Dense // classes x input
	b    []float64
	vw   *mat.Dense
	vb   []float64
}

// NewSoftmax returns a zero-initialized softmax model.
func NewSoftmax(opts Options) (*Softmax, error) {
	if opts.InputDim <= 0 || opts.Classes <= 0 {
		return nil, fmt.Errorf("softmax: input dim and classes must be positive")
	}
	return &Softmax{
		opts: opts,
		w:    mat.NewDense(opts.Classes, opts.InputDim, nil),
		b:    make([]float64, opts.Classes),
		vw:   mat.NewDense(opts.Classes, opts.InputDim, nil),
		vb:   make([]float64, opts.Classes),
	}, nil
}

func (m *Softmax) Name() string { return SoftmaxName }

func (m *Softmax) checkInput(x *mat.Dense) error {
	if x == nil {
		return fmt.Errorf("%w: nil input", ErrShape)
	}
	if _, c := x.Dims(); c != m.opts.InputDim {
		return fmt.Errorf("%w: got %d columns, model expects %d", ErrShape, c, m.opts.InputDim)
	}
	return nil
}

// Predict returns softmax probabilities, one row per input row.
func (m *Softmax) Predict(x *mat.Dense) (*mat.Dense, error) {
	if err := m.checkInput(x); err != nil {
		return nil, err
	}
	r, _ := x.Dims()
	probs := mat.NewDense(r, m.opts.Classes, nil)
	probs.Mul(x, m.w.T())
	for i := 0; i < r; i++ {
		row := probs.RawRowView(i)
		floats.Add(row, m.b)
		softmaxInPlace(row)
	}
	return probs, nil
}

// TrainBatch takes one momentum SGD step on the mean cross-entropy.
func (m *Softmax) TrainBatch(b Batch) (float64, error) {
	if err := m.checkInput(b.X); err != nil {
		return 0, err
	}
	n := b.Size()
	if n == 0 || len(b.Y) != n {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShape, n, len(b.Y))
	}
	for _, y := range b.Y {
		if y < 0 || y >= m.opts.Classes {
			return 0, fmt.Errorf("%w: target %d outside [0, %d)", ErrShape, y, m.opts.Classes)
		}
	}

	probs, err := m.Predict(b.X)
	if err != nil {
		return 0, err
	}
	loss := CrossEntropy(probs, b.Y)
	if !finite(loss) {
		return loss, ErrDiverged
	}

	// probs becomes dL/dlogits.
	for i, y := range b.Y {
		probs.Set(i, y, probs.At(i, y)-1)
	}
	probs.Scale(1/float64(n), probs)

	var gradW mat.Dense
	gradW.Mul(probs.T(), b.X)
	gradB := make([]float64, m.opts.Classes)
	for i := 0; i < n; i++ {
		floats.Add(gradB, probs.RawRowView(i))
	}

	lr, mu := m.opts.LearningRate, m.opts.Momentum
	m.vw.Scale(mu, m.vw)
	m.vw.Apply(func(i, j int, v float64) float64 { return v - lr*gradW.At(i, j) }, m.vw)
	m.w.Add(m.w, m.vw)
	floats.Scale(mu, m.vb)
	floats.AddScaled(m.vb, -lr, gradB)
	floats.Add(m.b, m.vb)

	if !finite(mat.Sum(m.w)) || !finite(floats.Sum(m.b)) {
		return loss, ErrDiverged
	}
	return loss, nil
}

type softmaxState struct {
	Kind     string
	Classes  int
	InputDim int
	W        []float64
	B        []float64
	VW       []float64
	VB       []float64
}

// Save writes the weights and optimizer velocity.
func (m *Softmax) Save(path string) error {
	return archive.Write(path, softmaxState{
		Kind:     SoftmaxName,
		Classes:  m.opts.Classes,
		InputDim: m.opts.InputDim,
		W:        m.w.RawMatrix().Data,
		B:        m.b,
		VW:       m.vw.RawMatrix().Data,
		VB:       m.vb,
	})
}

// Load replaces the weights and optimizer velocity from a snapshot.
func (m *Softmax) Load(path string) error {
	var st softmaxState
	if err := archive.Read(path, &st); err != nil {
		return err
	}
	if st.Kind != SoftmaxName || st.Classes != m.opts.Classes || st.InputDim != m.opts.InputDim {
		return fmt.Errorf("%w: %s holds %s %dx%d, want %s %dx%d", ErrIncompatibleSnapshot, path,
			st.Kind, st.Classes, st.InputDim, SoftmaxName, m.opts.Classes, m.opts.InputDim)
	}
	size := st.Classes * st.InputDim
	if len(st.W) != size || len(st.B) != st.Classes {
		return fmt.Errorf("%w: %s has truncated weights", ErrIncompatibleSnapshot, path)
	}
	m.w = mat.NewDense(st.Classes, st.InputDim, st.W)
	m.b = st.B
	m.vw = mat.NewDense(st.Classes, st.InputDim, nil)
	m.vb = make([]float64, st.Classes)
	if len(st.VW) == size && len(st.VB) == st.Classes {
		m.vw = mat.NewDense(st.Classes, st.InputDim, st.VW)
		m.vb = st.VB
	}
	return nil
}

func softmaxInPlace(row []float64) {
	max := floats.Max(row)
	var sum float64
	for i, v := range row {
		e := math.Exp(v - max)
		row[i] = e
		sum += e
	}
	floats.Scale(1/sum, row)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
