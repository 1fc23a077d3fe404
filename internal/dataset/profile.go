package dataset

import (
	"fmt"
	"sort"

	"hcnn/internal/config"
	"hcnn/internal/faults"
)

var (
	// ErrUnknownProfile reports a data.selected value with no matching profile.
	ErrUnknownProfile = fmt.Errorf("%w: unknown dataset profile", faults.ErrDataset)
	// ErrMissingFile reports an index or partition file that is not available.
	ErrMissingFile = fmt.Errorf("%w: dataset file missing", faults.ErrDataset)
	// ErrInconsistent reports a partition file that does not match the index.
	ErrInconsistent = fmt.Errorf("%w: partition does not match notes index", faults.ErrDataset)
	// ErrNoFeatures reports a training or evaluation set with no usable notes.
	ErrNoFeatures = fmt.Errorf("%w: no usable notes", faults.ErrDataset)
)

// Profile is the resolved selected dataset. Every path is absolute.
type Profile struct {
	Name       string
	Root       string
	NotesIndex string
	Partitions map[string]string
}

// Resolve returns the profile named by data.selected.
func Resolve(cfg *config.Config) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("%w: no configuration", ErrUnknownProfile)
	}
	name := cfg.Data.Selected
	entry, ok := cfg.Data.Profiles[name]
	if !ok {
		available := make([]string, 0, len(cfg.Data.Profiles))
		for key := range cfg.Data.Profiles {
			available = append(available, key)
		}
		sort.Strings(available)
		return Profile{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownProfile, name, available)
	}

	if entry.Root == "" {
		return Profile{}, fmt.Errorf("%w: data.%s.root must be set", config.ErrSchema, name)
	}

	partitions := make(map[string]string, len(entry.Partitions))
	for corpus, path := range entry.Partitions {
		partitions[corpus] = path
	}
	return Profile{
		Name:       name,
		Root:       entry.Root,
		NotesIndex: entry.NotesIndex,
		Partitions: partitions,
	}, nil
}

// PartitionFile returns the partition file declared for corpus.
func (p Profile) PartitionFile(corpus string) (string, error) {
	path, ok := p.Partitions[corpus]
	if !ok || path == "" {
		return "", fmt.Errorf("%w: profile %q has no partition for corpus %q", ErrMissingFile, p.Name, corpus)
	}
	return path, nil
}

// Corpora lists the corpora with a partition file, sorted.
func (p Profile) Corpora() []string {
	out := make([]string, 0, len(p.Partitions))
	for corpus := range p.Partitions {
		out = append(out, corpus)
	}
	sort.Strings(out)
	return out
}
