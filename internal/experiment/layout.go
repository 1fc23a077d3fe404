package experiment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hcnn/internal/config"
	"hcnn/internal/faults"
)

const lockFileName = ".lock"

// Layout resolves the paths of one experiment.
type Layout struct {
	Name string
	Dir  string
	cfg  *config.Config
}

// NewLayout returns the layout for name without touching the filesystem.
func NewLayout(cfg *config.Config, name string) (Layout, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return Layout{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return Layout{Name: name, Dir: filepath.Join(cfg.Paths.ModelDir, name), cfg: cfg}, nil
}

func (l Layout) join(name string) string { return filepath.Join(l.Dir, name) }

// ConfigPath is the provenance copy of the resolved configuration.
func (l Layout) ConfigPath() string { return l.join(l.cfg.Experiment.ConfigPath) }

// ParamsDir holds the per-epoch snapshots.
func (l Layout) ParamsDir() string { return l.join(l.cfg.Experiment.ParamsDir) }

// ParamsPath is the snapshot file for epoch.
func (l Layout) ParamsPath(epoch int) string {
	return filepath.Join(l.ParamsDir(), l.cfg.ParamsFilename(epoch))
}

// BestPath is the copy of the selected snapshot.
func (l Layout) BestPath() string { return l.join(l.cfg.Experiment.BestParams) }

func (l Layout) TrainingLossPath() string { return l.join(l.cfg.Experiment.TrainingLoss) }

func (l Layout) ValidationLossPath() string { return l.join(l.cfg.Experiment.ValidationLoss) }

// PredictionsPath is the predictions artifact for a snapshot id.
func (l Layout) PredictionsPath(id string) string {
	return l.join(l.cfg.PredictionsFilename(id))
}

// AnalysisPath is the analysis artifact for a snapshot id.
func (l Layout) AnalysisPath(id string) string {
	return l.join(l.cfg.AnalysisFilename(id))
}

func (l Layout) LedgerPath() string { return l.join(l.cfg.Experiment.Ledger) }

func (l Layout) LockPath() string { return l.join(lockFileName) }

// SnapshotID formats epoch the way artifact names use it.
func (l Layout) SnapshotID(epoch int) string { return l.cfg.SnapshotID(epoch) }

// Exists reports whether the experiment directory exists.
func (l Layout) Exists() (bool, error) {
	info, err := os.Stat(l.Dir)
	switch {
	case err == nil && info.IsDir():
		return true, nil
	case err == nil:
		return false, fmt.Errorf("%w: %s is not a directory", ErrExists, l.Dir)
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, faults.Wrap(faults.ErrIO, "experiment", "stat", l.Dir, err)
	}
}

// Create makes the experiment and params directories. It fails with ErrExists
// when the experiment directory is already present.
func Create(cfg *config.Config, name string) (Layout, error) {
	l, err := NewLayout(cfg, name)
	if err != nil {
		return Layout{}, err
	}
	if err := os.MkdirAll(cfg.Paths.ModelDir, 0o755); err != nil {
		return Layout{}, faults.Wrap(faults.ErrIO, "experiment", "create", cfg.Paths.ModelDir, err)
	}
	if err := os.Mkdir(l.Dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Layout{}, fmt.Errorf("%w: %s", ErrExists, l.Dir)
		}
		return Layout{}, faults.Wrap(faults.ErrIO, "experiment", "create", l.Dir, err)
	}
	if err := os.MkdirAll(l.ParamsDir(), 0o755); err != nil {
		return Layout{}, faults.Wrap(faults.ErrIO, "experiment", "create", l.ParamsDir(), err)
	}
	return l, nil
}

// Open returns the layout of an existing experiment.
func Open(cfg *config.Config, name string) (Layout, error) {
	l, err := NewLayout(cfg, name)
	if err != nil {
		return Layout{}, err
	}
	ok, err := l.Exists()
	if err != nil {
		return Layout{}, err
	}
	if !ok {
		return Layout{}, fmt.Errorf("%w: %s", ErrNotExist, l.Dir)
	}
	return l, nil
}

// Snapshots returns the epochs present in the params directory, ascending.
func (l Layout) Snapshots() ([]int, error) {
	entries, err := os.ReadDir(l.ParamsDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, faults.Wrap(faults.ErrIO, "experiment", "list snapshots", l.ParamsDir(), err)
	}
	var epochs []int
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if epoch, ok := l.cfg.ParseParamsFilename(entry.Name()); ok {
			epochs = append(epochs, epoch)
		}
	}
	sort.Ints(epochs)
	return epochs, nil
}

// LatestSnapshot returns the highest snapshot epoch.
func (l Layout) LatestSnapshot() (int, error) {
	epochs, err := l.Snapshots()
	if err != nil {
		return 0, err
	}
	if len(epochs) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoSnapshots, l.ParamsDir())
	}
	return epochs[len(epochs)-1], nil
}

// SnapshotPath returns the snapshot file for epoch, or ErrSnapshotMissing.
func (l Layout) SnapshotPath(epoch int) (string, error) {
	path := l.ParamsPath(epoch)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path, nil
	}
	// Snapshots written under a different padding width still resolve.
	entries, err := os.ReadDir(l.ParamsDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", faults.Wrap(faults.ErrIO, "experiment", "list snapshots", l.ParamsDir(), err)
	}
	for _, entry := range entries {
		if e, ok := l.cfg.ParseParamsFilename(entry.Name()); ok && e == epoch && entry.Type().IsRegular() {
			return filepath.Join(l.ParamsDir(), entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: epoch %d in %s", ErrSnapshotMissing, epoch, l.Name)
}
