package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"hcnn/internal/dataset"
	"hcnn/internal/ledger"
)

// Status describes an experiment for the status command.
type Status struct {
	Experiment string
	Dir        string
	Locked     bool
	Runs       []ledger.Run
	Epochs     []int
	Snapshots  []ledger.Snapshot
	Best       *ledger.Selection
	Artifacts  []ledger.Artifact
	DiskUsage  int64
}

// Status reads the directory and ledger of an experiment. The ledger is
// opened read-only and never created; an experiment without one reports no
// runs. Probing the experiment lock takes a shared lock for an instant.
func (d *Driver) Status(ctx context.Context, name string) (Status, error) {
	d, layout, err := d.experimentDriver(d.logger, name)
	if err != nil {
		return Status{}, err
	}
	out := Status{Experiment: name, Dir: layout.Dir}
	if out.Locked, err = layout.Held(); err != nil {
		return Status{}, err
	}
	if out.Epochs, err = layout.Snapshots(); err != nil {
		return Status{}, err
	}

	store, err := ledger.OpenReadOnly(layout.LedgerPath())
	switch {
	case errors.Is(err, ledger.ErrNotFound):
	case err != nil:
		return Status{}, err
	default:
		defer store.Close()
		if err := readLedger(ctx, store, &out); err != nil {
			return Status{}, err
		}
	}

	err = filepath.WalkDir(layout.Dir, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		if info, err := entry.Info(); err == nil {
			out.DiskUsage += info.Size()
		}
		return nil
	})
	if err != nil {
		return Status{}, err
	}
	return out, nil
}

func readLedger(ctx context.Context, store *ledger.Store, out *Status) error {
	var err error
	if out.Runs, err = store.Runs(ctx); err != nil {
		return err
	}
	if out.Snapshots, err = store.Snapshots(ctx); err != nil {
		return err
	}
	best, ok, err := store.BestEpoch(ctx)
	if err != nil {
		return err
	}
	if ok {
		out.Best = &best
	}
	out.Artifacts, err = store.Artifacts(ctx)
	return err
}

// Stats summarizes the notes index of the selected profile.
func (d *Driver) Stats() (dataset.Summary, error) {
	notes, err := dataset.LoadIndex(d.profile.NotesIndex, d.profile.Root)
	if err != nil {
		return dataset.Summary{}, err
	}
	return dataset.Stats(notes, d.classes), nil
}
