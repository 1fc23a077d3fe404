package evaluate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"
)

// Criterion names the selection rule recorded with every selection.
const Criterion = "min_mean_validation_loss"

// Candidate is the validation score of one snapshot.
type Candidate struct {
	Epoch    int     `csv:"epoch"`
	MeanLoss float64 `csv:"mean_loss"`
	Accuracy float64 `csv:"accuracy"`
}

// ErrNoCandidates reports a selection over an empty candidate list.
var ErrNoCandidates = errors.New("no candidates to select from")

// Select returns the candidate with the lowest mean validation loss. Ties go
// to the earlier epoch.
func Select(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.MeanLoss < best.MeanLoss || (c.MeanLoss == best.MeanLoss && c.Epoch < best.Epoch) {
			best = c
		}
	}
	return best, nil
}

// WriteCandidates writes the validation loss log sorted by epoch, replacing
// path atomically.
func WriteCandidates(path string, candidates []Candidate) error {
	rows := make([]*Candidate, len(candidates))
	for i := range candidates {
		c := candidates[i]
		rows[i] = &c
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Epoch < rows[j].Epoch })
	return writeCSV(path, &rows)
}

// ReadCandidates reads a validation loss log. ok is false when the file does
// not exist.
func ReadCandidates(path string) (candidates []Candidate, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open validation log: %w", err)
	}
	defer f.Close()
	var rows []*Candidate
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, false, fmt.Errorf("parse validation log %s: %w", path, err)
	}
	out := make([]Candidate, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out, true, nil
}

func writeCSV(path string, rows any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := gocsv.Marshal(rows, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
