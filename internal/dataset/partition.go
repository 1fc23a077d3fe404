package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"hcnn/internal/faults"
)

// Partition names used in partition files.
const (
	PartitionTrain = "train"
	PartitionValid = "valid"
	PartitionTest  = "test"
)

// PartitionRow is one line of a partition CSV.
type PartitionRow struct {
	Index     string `csv:"index"`
	Partition string `csv:"partition"`
}

// Assignment maps index keys to a partition name.
type Assignment map[string]string

// LoadPartition reads an index,partition CSV file.
func LoadPartition(path string) (Assignment, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: partition file %s", ErrMissingFile, path)
		}
		return nil, fmt.Errorf("open partition %s: %w", path, err)
	}
	defer f.Close()

	var rows []*PartitionRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: parse partition %s: %w", faults.ErrDataset, path, err)
	}
	out := make(Assignment, len(rows))
	for i, row := range rows {
		key := strings.TrimSpace(row.Index)
		name := strings.ToLower(strings.TrimSpace(row.Partition))
		switch name {
		case PartitionTrain, PartitionValid, PartitionTest:
		default:
			return nil, fmt.Errorf("%w: partition %s row %d: unknown partition %q", faults.ErrDataset, path, i+2, row.Partition)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("%w: partition %s: index %q assigned twice", ErrInconsistent, path, key)
		}
		out[key] = name
	}
	return out, nil
}

// Save writes the assignment as a CSV file.
func (a Assignment) Save(path string) error {
	rows := make([]*PartitionRow, 0, len(a))
	for _, key := range sortedKeys(a) {
		rows = append(rows, &PartitionRow{Index: key, Partition: a[key]})
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create partition %s: %w", path, err)
	}
	if err := gocsv.MarshalFile(&rows, f); err != nil {
		f.Close()
		return fmt.Errorf("write partition %s: %w", path, err)
	}
	return f.Close()
}

// Splits holds the train, validation, and test views of an index.
type Splits struct {
	Train Index
	Valid Index
	Test  Index
}

// Get returns the split named by partition.
func (s Splits) Get(partition string) Index {
	switch partition {
	case PartitionTrain:
		return s.Train
	case PartitionValid:
		return s.Valid
	case PartitionTest:
		return s.Test
	default:
		return nil
	}
}

// Split divides index by assignment. Every assignment key must name an index
// entry and every index entry must be assigned.
func Split(index Index, assignment Assignment) (Splits, error) {
	known := index.ByIndex()
	for key := range assignment {
		if _, ok := known[key]; !ok {
			return Splits{}, fmt.Errorf("%w: partition names unknown index %q", ErrInconsistent, key)
		}
	}
	var out Splits
	for _, obs := range index {
		name, ok := assignment[obs.Index]
		if !ok {
			return Splits{}, fmt.Errorf("%w: index %q has no partition", ErrInconsistent, obs.Index)
		}
		obs.Partition = name
		switch name {
		case PartitionTrain:
			out.Train = append(out.Train, obs)
		case PartitionValid:
			out.Valid = append(out.Valid, obs)
		case PartitionTest:
			out.Test = append(out.Test, obs)
		}
	}
	return out, nil
}
