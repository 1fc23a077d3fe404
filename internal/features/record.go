package features

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"hcnn/internal/archive"
	"hcnn/internal/cqt"
	"hcnn/internal/dataset"
)

// Extension is the file suffix of feature archives.
const Extension = ".cqt"

// Record is a stored CQT magnitude spectrogram for one note.
type Record struct {
	Index  string
	Params cqt.Params
	Frames int
	Bins   int
	// Data is frame-major: Data[frame*Bins+bin].
	Data []float64
}

// Frame returns the magnitudes of one frame.
func (r Record) Frame(i int) []float64 {
	return r.Data[i*r.Bins : (i+1)*r.Bins]
}

// Path returns the archive path for a note index inside dir.
func Path(dir, index string) (string, error) {
	if index == "" || index == "." || index == ".." || strings.ContainsAny(index, `/\`) {
		return "", fmt.Errorf("note index %q cannot name a feature file", index)
	}
	return filepath.Join(dir, index+Extension), nil
}

// Load reads a feature archive.
func Load(path string) (Record, error) {
	var rec Record
	if err := archive.Read(path, &rec); err != nil {
		return Record{}, err
	}
	if rec.Bins <= 0 || len(rec.Data) != rec.Frames*rec.Bins {
		return Record{}, fmt.Errorf("%w: %s: %d values for %dx%d", archive.ErrCorrupt, path, len(rec.Data), rec.Frames, rec.Bins)
	}
	return rec, nil
}

// Save writes a feature archive atomically.
func Save(path string, rec Record) error {
	return archive.Write(path, rec)
}

func fromSpectrogram(index string, params cqt.Params, s *cqt.Spectrogram) Record {
	return Record{Index: index, Params: params, Frames: s.Frames, Bins: s.Bins, Data: s.Data}
}

// IndexPath returns where extraction writes the features index for a notes
// index.
func IndexPath(featureDir, notesIndex string) string {
	return filepath.Join(featureDir, filepath.Base(notesIndex))
}

// LoadIndex reads the features index written by extraction and drops entries
// without a feature archive.
func LoadIndex(featureDir, notesIndex string) (dataset.Index, error) {
	path := IndexPath(featureDir, notesIndex)
	index, err := dataset.LoadIndex(path, "")
	if err != nil {
		if errors.Is(err, dataset.ErrMissingFile) {
			return nil, fmt.Errorf("%w: features index %s not found (run extract_features)", dataset.ErrNoFeatures, path)
		}
		return nil, err
	}
	return index.Filter(func(o dataset.Observation) bool {
		_, ok := o.FeatureFile()
		return ok
	}), nil
}
