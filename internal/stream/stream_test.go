package stream

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"hcnn/internal/dataset"
	"hcnn/internal/features"
)

func writeRecord(t *testing.T, dir, index string, frames, bins int) string {
	t.Helper()
	rec := features.Record{Index: index, Frames: frames, Bins: bins, Data: make([]float64, frames*bins)}
	for i := range rec.Data {
		rec.Data[i] = float64(i%bins) / float64(bins)
	}
	path := filepath.Join(dir, index+features.Extension)
	if err := features.Save(path, rec); err != nil {
		t.Fatalf("save record: %v", err)
	}
	return path
}

func TestWindowIsStandardized(t *testing.T) {
	rec := features.Record{Frames: 3, Bins: 4, Data: []float64{
		0.1, 0.2, 0.3, 0.4,
		0.5, 0.6, 0.7, 0.8,
		0.9, 1.0, 1.1, 1.2,
	}}
	w := Window(rec, 0, 3)
	if len(w) != 12 {
		t.Fatalf("window length = %d, want 12", len(w))
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	if math.Abs(sum) > 1e-9 {
		t.Fatalf("window mean not zero: sum = %g", sum)
	}
}

func TestWindowOfSilenceIsZero(t *testing.T) {
	rec := features.Record{Frames: 2, Bins: 3, Data: make([]float64, 6)}
	for _, v := range Window(rec, 0, 4) {
		if v != 0 {
			t.Fatalf("expected zeros for silence, got %v", v)
		}
	}
}

func TestWindowsCoverRecord(t *testing.T) {
	rec := features.Record{Frames: 9, Bins: 2, Data: make([]float64, 18)}
	m := Windows(rec, 4)
	if r, c := m.Dims(); r != 2 || c != 8 {
		t.Fatalf("Windows dims = %dx%d, want 2x8", r, c)
	}
	short := features.Record{Frames: 2, Bins: 2, Data: make([]float64, 4)}
	if r, _ := Windows(short, 4).Dims(); r != 1 {
		t.Fatalf("short record windows = %d, want 1", r)
	}
}

func TestItemsDropsUnmappedAndMissingFeatures(t *testing.T) {
	classes := dataset.DefaultClassMap()
	index := dataset.Index{
		{Index: "a", Instrument: "violin", Features: map[string]string{dataset.FeatureCQT: "/f/a.cqt"}},
		{Index: "b", Instrument: "kazoo", Features: map[string]string{dataset.FeatureCQT: "/f/b.cqt"}},
		{Index: "c", Instrument: "flute"},
	}
	items, dropped := Items(index, classes)
	if len(items) != 1 || items[0].Index != "a" {
		t.Fatalf("items = %+v", items)
	}
	want, _ := classes.Index("violin")
	if items[0].Class != want {
		t.Fatalf("class = %d, want %d", items[0].Class, want)
	}
	if len(dropped) != 2 {
		t.Fatalf("dropped = %d, want 2", len(dropped))
	}
}

func TestSamplerIsSeeded(t *testing.T) {
	dir := t.TempDir()
	items := []Item{
		{Index: "a", Class: 0, Path: writeRecord(t, dir, "a", 10, 3)},
		{Index: "b", Class: 1, Path: writeRecord(t, dir, "b", 6, 3)},
	}
	cache, err := NewCache(4)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	opts := Options{TLen: 4, Bins: 3, BatchSize: 5, Seed: 11, Cache: cache}
	first, err := NewSampler(items, opts)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	second, _ := NewSampler(items, opts)

	for i := 0; i < 3; i++ {
		a, err := first.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		b, _ := second.Next(context.Background())
		if r, c := a.X.Dims(); r != 5 || c != 12 {
			t.Fatalf("batch dims = %dx%d", r, c)
		}
		for j := range a.Y {
			if a.Y[j] != b.Y[j] {
				t.Fatalf("same seed produced different targets at batch %d", i)
			}
		}
	}
}

func TestSamplerRejectsBinMismatch(t *testing.T) {
	dir := t.TempDir()
	items := []Item{{Index: "a", Path: writeRecord(t, dir, "a", 10, 3)}}
	s, err := NewSampler(items, Options{TLen: 2, Bins: 5, BatchSize: 1})
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	if _, err := s.Next(context.Background()); err == nil {
		t.Fatal("expected bin mismatch error")
	}
}

func TestNewSamplerEmpty(t *testing.T) {
	if _, err := NewSampler(nil, Options{TLen: 1, Bins: 1, BatchSize: 1}); err == nil {
		t.Fatal("expected error for empty training set")
	}
}
