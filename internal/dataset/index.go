package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"hcnn/internal/faults"
)

// FeatureCQT is the features key under which extracted CQT files are recorded.
const FeatureCQT = "cqt"

// Observation is one note recording in the notes index.
type Observation struct {
	Index      string            `json:"index"`
	Dataset    string            `json:"dataset"`
	AudioFile  string            `json:"audio_file"`
	Instrument string            `json:"instrument"`
	SourceKey  string            `json:"source_key,omitempty"`
	StartTime  float64           `json:"start_time,omitempty"`
	Duration   float64           `json:"duration,omitempty"`
	NoteNumber int               `json:"note_number"`
	Dynamic    string            `json:"dynamic,omitempty"`
	Partition  string            `json:"partition,omitempty"`
	Features   map[string]string `json:"features,omitempty"`
}

// FeatureFile returns the CQT feature path recorded for the observation.
func (o Observation) FeatureFile() (string, bool) {
	path, ok := o.Features[FeatureCQT]
	return path, ok && path != ""
}

// Index is an ordered list of observations.
type Index []Observation

// LoadIndex reads a JSON notes index. Relative audio paths are resolved
// against root.
func LoadIndex(path, root string) (Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: notes index %s", ErrMissingFile, path)
		}
		return nil, faults.Wrap(faults.ErrIO, "dataset", "read index", path, err)
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: parse notes index %s: %w", faults.ErrDataset, path, err)
	}
	seen := make(map[string]struct{}, len(index))
	for i := range index {
		obs := &index[i]
		if obs.Index == "" {
			return nil, fmt.Errorf("%w: notes index %s: entry %d has no index", faults.ErrDataset, path, i)
		}
		if _, dup := seen[obs.Index]; dup {
			return nil, fmt.Errorf("%w: notes index %s: duplicate index %q", faults.ErrDataset, path, obs.Index)
		}
		seen[obs.Index] = struct{}{}
		if obs.AudioFile != "" && !filepath.IsAbs(obs.AudioFile) && root != "" {
			obs.AudioFile = filepath.Join(root, obs.AudioFile)
		}
	}
	return index, nil
}

// Save writes the index as JSON, replacing path atomically.
func (x Index) Save(path string) error {
	data, err := json.MarshalIndent(x, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notes index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return faults.Wrap(faults.ErrIO, "dataset", "save index", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return faults.Wrap(faults.ErrIO, "dataset", "save index", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return faults.Wrap(faults.ErrIO, "dataset", "save index", path, err)
	}
	return nil
}

// ByIndex maps index keys to observations.
func (x Index) ByIndex() map[string]Observation {
	out := make(map[string]Observation, len(x))
	for _, obs := range x {
		out[obs.Index] = obs
	}
	return out
}

// Filter returns the observations for which keep returns true.
func (x Index) Filter(keep func(Observation) bool) Index {
	out := make(Index, 0, len(x))
	for _, obs := range x {
		if keep(obs) {
			out = append(out, obs)
		}
	}
	return out
}
