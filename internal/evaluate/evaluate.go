package evaluate

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"hcnn/internal/model"
	"hcnn/internal/parallel"
	"hcnn/internal/stream"
)

// NoteResult is the averaged prediction for one note.
type NoteResult struct {
	Index  string
	Target int
	Probs  []float64
}

// Predicted returns the most likely class.
func (r NoteResult) Predicted() int {
	return floats.MaxIdx(r.Probs)
}

// Loss is the negative log probability of the target class.
func (r NoteResult) Loss() float64 {
	return -math.Log(math.Max(r.Probs[r.Target], 1e-12))
}

// Options configures an evaluation pass.
type Options struct {
	TLen    int
	Workers int
	Cache   *stream.Cache
}

// Evaluate predicts every item with m. Results keep the order of items.
func Evaluate(ctx context.Context, m model.Model, items []stream.Item, opts Options) ([]NoteResult, error) {
	results := make([]NoteResult, len(items))
	var (
		mu       sync.Mutex
		firstErr error
	)
	err := parallel.ForEach(ctx, len(items), opts.Workers, func(ctx context.Context, i int) {
		item := items[i]
		probs, err := predictNote(m, item, opts)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("evaluate %s: %w", item.Index, err)
			}
			mu.Unlock()
			return
		}
		results[i] = NoteResult{Index: item.Index, Target: item.Class, Probs: probs}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func predictNote(m model.Model, item stream.Item, opts Options) ([]float64, error) {
	rec, err := opts.Cache.Load(item.Path)
	if err != nil {
		return nil, err
	}
	probs, err := m.Predict(stream.Windows(rec, opts.TLen))
	if err != nil {
		return nil, err
	}
	rows, cols := probs.Dims()
	mean := make([]float64, cols)
	for i := 0; i < rows; i++ {
		floats.Add(mean, probs.RawRowView(i))
	}
	floats.Scale(1/float64(rows), mean)
	return mean, nil
}

// Score returns the mean per-note loss and the accuracy of results.
func Score(results []NoteResult) (meanLoss, accuracy float64) {
	if len(results) == 0 {
		return 0, 0
	}
	var correct int
	for _, r := range results {
		meanLoss += r.Loss()
		if r.Predicted() == r.Target {
			correct++
		}
	}
	n := float64(len(results))
	return meanLoss / n, float64(correct) / n
}
