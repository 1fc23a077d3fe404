package train

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// LossRow is one line of the training loss log.
type LossRow struct {
	Iteration int     `csv:"iteration"`
	Loss      float64 `csv:"loss"`
	Elapsed   float64 `csv:"elapsed_seconds"`
}

// LossLog appends rows to a CSV training loss log.
type LossLog struct {
	f *os.File
}

// OpenLossLog opens path for appending, writing the header when the file is
// new or empty. Rows logged after iteration after are dropped first, so a run
// resumed from an earlier snapshot does not repeat iterations.
func OpenLossLog(path string, after int) (*LossLog, error) {
	if err := truncateLossLog(path, after); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open loss log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat loss log: %w", err)
	}
	if info.Size() == 0 {
		if err := gocsv.Marshal([]*LossRow{}, f); err != nil {
			f.Close()
			return nil, fmt.Errorf("write loss log header: %w", err)
		}
	}
	return &LossLog{f: f}, nil
}

func truncateLossLog(path string, after int) error {
	rows, err := ReadLossLog(path)
	if err != nil || len(rows) == 0 {
		return err
	}
	kept := make([]*LossRow, 0, len(rows))
	for i := range rows {
		if rows[i].Iteration <= after {
			kept = append(kept, &rows[i])
		}
	}
	if len(kept) == len(rows) {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".loss-*.csv")
	if err != nil {
		return fmt.Errorf("truncate loss log: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := gocsv.Marshal(kept, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("truncate loss log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("truncate loss log: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("truncate loss log: %w", err)
	}
	return nil
}

// Append writes one row.
func (l *LossLog) Append(row LossRow) error {
	if err := gocsv.MarshalWithoutHeaders([]*LossRow{&row}, l.f); err != nil {
		return fmt.Errorf("append loss log: %w", err)
	}
	return nil
}

// Close flushes and closes the log.
func (l *LossLog) Close() error {
	if err := l.f.Sync(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// ReadLossLog returns every row of a loss log. A missing file yields no rows.
func ReadLossLog(path string) ([]LossRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open loss log: %w", err)
	}
	defer f.Close()
	var rows []*LossRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse loss log %s: %w", path, err)
	}
	out := make([]LossRow, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out, nil
}
