package train

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hcnn/internal/model"
)

// State is the loop state.
type State string

const (
	Running               State = "running"
	Converged             State = "converged"
	TimeExceeded          State = "time_exceeded"
	IterationLimitReached State = "iteration_limit_reached"
	Cancelled             State = "cancelled"
	Failed                State = "failed"
)

// defaultWindow is the convergence window when PrintEvery is unset.
const defaultWindow = 10

// BatchSource yields training batches.
type BatchSource interface {
	Next(ctx context.Context) (model.Batch, error)
}

// Options bounds a loop. MaxIterations counts from iteration zero of the
// experiment, so a resumed loop stops at the same iteration a fresh one
// would. MaxTime bounds this invocation only. A zero bound is not enforced.
type Options struct {
	MaxIterations   int
	MaxTime         time.Duration
	PrintEvery      int
	WriteEvery      int
	ConvergenceLoss float64
	// StartIteration is the number of iterations already completed.
	StartIteration int
	Clock          func() time.Time
}

// Progress is passed to the print hook.
type Progress struct {
	Iteration int
	Loss      float64
	MeanLoss  float64
	Elapsed   time.Duration
}

// Hooks observe the loop. A hook error fails the loop.
type Hooks struct {
	// OnIteration runs after every iteration.
	OnIteration func(iteration int, loss float64, elapsed time.Duration) error
	// OnPrint runs every PrintEvery iterations.
	OnPrint func(Progress)
	// OnWrite runs every WriteEvery iterations and once after the final
	// iteration if that iteration was not already written.
	OnWrite func(iteration int, loss float64) error
}

// Result describes how a loop ended.
type Result struct {
	State State
	// Iteration is the last completed iteration number.
	Iteration int
	// Completed is the number of iterations run by this invocation.
	Completed int
	FinalLoss float64
	HasLoss   bool
	Elapsed   time.Duration
}

// Run trains m on batches from src until a bound is reached. The returned
// error is non-nil exactly when the state is Failed or Cancelled.
func Run(ctx context.Context, m model.Model, src BatchSource, opts Options, hooks Hooks) (Result, error) {
	if m == nil || src == nil {
		return Result{State: Failed}, errors.New("train: model and batch source are required")
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	windowSize := opts.PrintEvery
	if windowSize <= 0 {
		windowSize = defaultWindow
	}

	started := now()
	res := Result{State: Running, Iteration: opts.StartIteration}
	window := newLossWindow(windowSize)
	lastWritten := -1

	finish := func(state State, err error) (Result, error) {
		res.State = state
		res.Elapsed = now().Sub(started)
		if state != Failed && res.Completed > 0 && lastWritten != res.Iteration && hooks.OnWrite != nil {
			if werr := hooks.OnWrite(res.Iteration, res.FinalLoss); werr != nil {
				res.State = Failed
				return res, errors.Join(err, fmt.Errorf("write iteration %d: %w", res.Iteration, werr))
			}
		}
		return res, err
	}

	if opts.MaxIterations > 0 && res.Iteration >= opts.MaxIterations {
		return finish(IterationLimitReached, nil)
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(Cancelled, err)
		}
		batch, err := src.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(Cancelled, ctxErr)
			}
			return finish(Failed, fmt.Errorf("draw batch: %w", err))
		}
		loss, err := m.TrainBatch(batch)
		if err != nil {
			return finish(Failed, fmt.Errorf("iteration %d: %w", res.Iteration+1, err))
		}

		res.Iteration++
		res.Completed++
		res.FinalLoss, res.HasLoss = loss, true
		window.add(loss)
		elapsed := now().Sub(started)

		if hooks.OnIteration != nil {
			if err := hooks.OnIteration(res.Iteration, loss, elapsed); err != nil {
				return finish(Failed, fmt.Errorf("record iteration %d: %w", res.Iteration, err))
			}
		}
		if opts.PrintEvery > 0 && res.Iteration%opts.PrintEvery == 0 && hooks.OnPrint != nil {
			hooks.OnPrint(Progress{Iteration: res.Iteration, Loss: loss, MeanLoss: window.mean(), Elapsed: elapsed})
		}
		if opts.WriteEvery > 0 && res.Iteration%opts.WriteEvery == 0 && hooks.OnWrite != nil {
			if err := hooks.OnWrite(res.Iteration, loss); err != nil {
				return finish(Failed, fmt.Errorf("write iteration %d: %w", res.Iteration, err))
			}
			lastWritten = res.Iteration
		}

		switch {
		case opts.ConvergenceLoss > 0 && window.full() && window.mean() <= opts.ConvergenceLoss:
			return finish(Converged, nil)
		case opts.MaxTime > 0 && elapsed >= opts.MaxTime:
			return finish(TimeExceeded, nil)
		case opts.MaxIterations > 0 && res.Iteration >= opts.MaxIterations:
			return finish(IterationLimitReached, nil)
		}
	}
}

type lossWindow struct {
	values []float64
	next   int
	count  int
}

func newLossWindow(size int) *lossWindow {
	return &lossWindow{values: make([]float64, size)}
}

func (w *lossWindow) add(v float64) {
	if w.count < len(w.values) {
		w.count++
	}
	w.values[w.next] = v
	w.next = (w.next + 1) % len(w.values)
}

func (w *lossWindow) full() bool { return w.count == len(w.values) }

func (w *lossWindow) mean() float64 {
	if w.count == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.values[:w.count] {
		sum += v
	}
	return sum / float64(w.count)
}
