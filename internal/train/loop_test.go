package train

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"hcnn/internal/model"
)

type fakeModel struct {
	losses []float64
	calls  int
	cancel context.CancelFunc
	failAt int
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) TrainBatch(model.Batch) (float64, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return math.NaN(), model.ErrDiverged
	}
	if f.cancel != nil && f.calls == 3 {
		f.cancel()
	}
	if len(f.losses) == 0 {
		return 1, nil
	}
	i := f.calls - 1
	if i >= len(f.losses) {
		i = len(f.losses) - 1
	}
	return f.losses[i], nil
}

func (f *fakeModel) Predict(x *mat.Dense) (*mat.Dense, error) { return x, nil }
func (f *fakeModel) Save(string) error                        { return nil }
func (f *fakeModel) Load(string) error                        { return nil }

type fakeSource struct{}

func (fakeSource) Next(ctx context.Context) (model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return model.Batch{}, err
	}
	return model.Batch{X: mat.NewDense(1, 1, nil), Y: []int{0}}, nil
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestRunStopsAtIterationLimit(t *testing.T) {
	var iterations []int
	var writes []int
	res, err := Run(context.Background(), &fakeModel{}, fakeSource{}, Options{
		MaxIterations: 10,
		MaxTime:       time.Hour,
		PrintEvery:    3,
		WriteEvery:    4,
	}, Hooks{
		OnIteration: func(it int, _ float64, _ time.Duration) error {
			iterations = append(iterations, it)
			return nil
		},
		OnWrite: func(it int, _ float64) error {
			writes = append(writes, it)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != IterationLimitReached || res.Iteration != 10 || res.Completed != 10 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(iterations) != 10 || iterations[9] != 10 {
		t.Fatalf("iterations = %v", iterations)
	}
	if want := []int{4, 8, 10}; !equalInts(writes, want) {
		t.Fatalf("writes = %v, want %v", writes, want)
	}
}

func TestRunNoExtraWriteWhenFinalAlreadyWritten(t *testing.T) {
	var writes []int
	_, err := Run(context.Background(), &fakeModel{}, fakeSource{}, Options{MaxIterations: 8, WriteEvery: 4}, Hooks{
		OnWrite: func(it int, _ float64) error {
			writes = append(writes, it)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []int{4, 8}; !equalInts(writes, want) {
		t.Fatalf("writes = %v, want %v", writes, want)
	}
}

func TestRunConverges(t *testing.T) {
	m := &fakeModel{losses: []float64{2, 1.5, 0.4, 0.2, 0.1, 0.1}}
	res, err := Run(context.Background(), m, fakeSource{}, Options{
		MaxIterations:   100,
		PrintEvery:      2,
		ConvergenceLoss: 0.35,
	}, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != Converged || res.Iteration != 4 {
		t.Fatalf("expected convergence at iteration 4, got %+v", res)
	}
}

func TestRunZeroConvergenceLossNeverConverges(t *testing.T) {
	m := &fakeModel{losses: []float64{0}}
	res, err := Run(context.Background(), m, fakeSource{}, Options{MaxIterations: 5, ConvergenceLoss: 0}, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != IterationLimitReached {
		t.Fatalf("state = %s, want %s", res.State, IterationLimitReached)
	}
}

func TestRunTimeExceeded(t *testing.T) {
	res, err := Run(context.Background(), &fakeModel{}, fakeSource{}, Options{
		MaxIterations: 1000,
		MaxTime:       5 * time.Second,
		Clock:         steppingClock(time.Second),
	}, Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != TimeExceeded {
		t.Fatalf("state = %s, want %s", res.State, TimeExceeded)
	}
	// started at t=1s; iteration i measures elapsed i seconds.
	if res.Iteration != 5 {
		t.Fatalf("iteration = %d, want 5", res.Iteration)
	}
}

func TestRunResumeContinuesNumbering(t *testing.T) {
	var first int
	res, err := Run(context.Background(), &fakeModel{}, fakeSource{}, Options{MaxIterations: 10, StartIteration: 6}, Hooks{
		OnIteration: func(it int, _ float64, _ time.Duration) error {
			if first == 0 {
				first = it
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first != 7 || res.Iteration != 10 || res.Completed != 4 {
		t.Fatalf("first=%d result=%+v", first, res)
	}

	res, err = Run(context.Background(), &fakeModel{}, fakeSource{}, Options{MaxIterations: 10, StartIteration: 10}, Hooks{})
	if err != nil || res.State != IterationLimitReached || res.Completed != 0 {
		t.Fatalf("resume past the limit: %+v, %v", res, err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var writes []int
	res, err := Run(ctx, &fakeModel{cancel: cancel}, fakeSource{}, Options{MaxIterations: 100}, Hooks{
		OnWrite: func(it int, _ float64) error {
			writes = append(writes, it)
			return nil
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.State != Cancelled || res.Iteration != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !equalInts(writes, []int{3}) {
		t.Fatalf("cancelled run should write its last iteration, writes = %v", writes)
	}
}

func TestRunFailsOnDivergence(t *testing.T) {
	var writes int
	res, err := Run(context.Background(), &fakeModel{failAt: 2}, fakeSource{}, Options{MaxIterations: 10}, Hooks{
		OnWrite: func(int, float64) error {
			writes++
			return nil
		},
	})
	if !errors.Is(err, model.ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
	if res.State != Failed || res.Iteration != 1 || writes != 0 {
		t.Fatalf("unexpected result %+v writes=%d", res, writes)
	}
}

func TestRunFailsOnHookError(t *testing.T) {
	boom := errors.New("disk full")
	res, err := Run(context.Background(), &fakeModel{}, fakeSource{}, Options{MaxIterations: 10, WriteEvery: 2}, Hooks{
		OnWrite: func(int, float64) error { return boom },
	})
	if !errors.Is(err, boom) || res.State != Failed || res.Iteration != 2 {
		t.Fatalf("result %+v err %v", res, err)
	}
}

func TestLossLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_loss.csv")
	log, err := OpenLossLog(path, 0)
	if err != nil {
		t.Fatalf("OpenLossLog: %v", err)
	}
	if err := log.Append(LossRow{Iteration: 1, Loss: 2.5, Elapsed: 0.1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	log, err = OpenLossLog(path, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := log.Append(LossRow{Iteration: 2, Loss: 1.25, Elapsed: 0.2}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	log.Close()

	rows, err := ReadLossLog(path)
	if err != nil {
		t.Fatalf("ReadLossLog: %v", err)
	}
	if len(rows) != 2 || rows[0].Iteration != 1 || rows[1].Loss != 1.25 {
		t.Fatalf("rows = %+v", rows)
	}

	missing, err := ReadLossLog(filepath.Join(t.TempDir(), "none.csv"))
	if err != nil || missing != nil {
		t.Fatalf("missing log: %v, %v", missing, err)
	}
}

func TestLossLogDropsRowsPastResumePoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "training_loss.csv")
	log, err := OpenLossLog(path, 0)
	if err != nil {
		t.Fatalf("OpenLossLog: %v", err)
	}
	for it := 1; it <= 7; it++ {
		if err := log.Append(LossRow{Iteration: it, Loss: float64(it)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	log.Close()

	// The last snapshot was at 5; iterations 6 and 7 are replayed.
	log, err = OpenLossLog(path, 5)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	for it := 6; it <= 8; it++ {
		if err := log.Append(LossRow{Iteration: it, Loss: 0.5}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	log.Close()

	rows, err := ReadLossLog(path)
	if err != nil {
		t.Fatalf("ReadLossLog: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("got %d rows, want 8: %+v", len(rows), rows)
	}
	for i, row := range rows {
		if row.Iteration != i+1 {
			t.Fatalf("row %d has iteration %d", i, row.Iteration)
		}
	}
	if rows[5].Loss != 0.5 {
		t.Fatalf("iteration 6 kept the stale loss %v", rows[5].Loss)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
