package evaluate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gocarina/gocsv"

	"hcnn/internal/dataset"
)

// Prediction is one row of a predictions artifact.
type Prediction struct {
	Index          string  `csv:"index"`
	Dataset        string  `csv:"dataset"`
	Instrument     string  `csv:"instrument"`
	Target         string  `csv:"target"`
	TargetIndex    int     `csv:"target_index"`
	Predicted      string  `csv:"max_likelihood"`
	PredictedIndex int     `csv:"max_likelihood_index"`
	Confidence     float64 `csv:"confidence"`
	MeanLoss       float64 `csv:"mean_loss"`
}

// Correct reports whether the prediction matches the target.
func (p Prediction) Correct() bool { return p.TargetIndex == p.PredictedIndex }

// Predictions joins results with their observations. Every result must name
// an observation in index.
func Predictions(results []NoteResult, index dataset.Index, classes *dataset.ClassMap) ([]Prediction, error) {
	byIndex := index.ByIndex()
	out := make([]Prediction, 0, len(results))
	for _, r := range results {
		obs, ok := byIndex[r.Index]
		if !ok {
			return nil, fmt.Errorf("prediction for unknown note %q", r.Index)
		}
		predicted := r.Predicted()
		out = append(out, Prediction{
			Index:          r.Index,
			Dataset:        obs.Dataset,
			Instrument:     obs.Instrument,
			Target:         classes.Name(r.Target),
			TargetIndex:    r.Target,
			Predicted:      classes.Name(predicted),
			PredictedIndex: predicted,
			Confidence:     r.Probs[predicted],
			MeanLoss:       r.Loss(),
		})
	}
	return out, nil
}

// WritePredictions writes a predictions artifact, replacing path atomically.
func WritePredictions(path string, predictions []Prediction) error {
	rows := make([]*Prediction, len(predictions))
	for i := range predictions {
		rows[i] = &predictions[i]
	}
	return writeCSV(path, &rows)
}

// ErrNoPredictions reports a missing predictions artifact.
var ErrNoPredictions = errors.New("predictions not found")

// ReadPredictions reads a predictions artifact.
func ReadPredictions(path string) ([]Prediction, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoPredictions, path)
		}
		return nil, fmt.Errorf("open predictions: %w", err)
	}
	defer f.Close()
	var rows []*Prediction
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse predictions %s: %w", path, err)
	}
	out := make([]Prediction, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out, nil
}
