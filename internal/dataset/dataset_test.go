package dataset_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"hcnn/internal/config"
	"hcnn/internal/dataset"
	"hcnn/internal/faults"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Data = config.Data{
		Selected: "tiny",
		Profiles: map[string]config.DatasetProfile{
			"tiny": {
				Root:       "/data/tiny",
				NotesIndex: "/data/tiny/notes_index.json",
				Partitions: map[string]string{"rwc": "/data/tiny/rwc.csv", "uiowa": "/data/tiny/uiowa.csv"},
			},
			"canonical": {Root: "/data/full", NotesIndex: "/data/full/notes_index.json"},
		},
	}
	return &cfg
}

func TestResolveSelectedProfile(t *testing.T) {
	cfg := testConfig()
	profile, err := dataset.Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if profile.Name != "tiny" || profile.Root != "/data/tiny" || profile.NotesIndex != "/data/tiny/notes_index.json" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	for _, p := range append([]string{profile.Root, profile.NotesIndex}, profile.Partitions["rwc"]) {
		if !filepath.IsAbs(p) {
			t.Fatalf("expected absolute path, got %q", p)
		}
	}
	if got := profile.Corpora(); !reflect.DeepEqual(got, []string{"rwc", "uiowa"}) {
		t.Fatalf("unexpected corpora: %v", got)
	}

	profile.Partitions["rwc"] = "/elsewhere"
	if cfg.Data.Profiles["tiny"].Partitions["rwc"] != "/data/tiny/rwc.csv" {
		t.Fatal("Resolve must not alias the config's partition map")
	}
}

func TestResolveUnknownProfile(t *testing.T) {
	cfg := testConfig()
	cfg.Data.Selected = "huge"
	_, err := dataset.Resolve(cfg)
	if !errors.Is(err, dataset.ErrUnknownProfile) || !errors.Is(err, faults.ErrDataset) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
}

func TestResolveRequiresRoot(t *testing.T) {
	cfg := testConfig()
	cfg.Data.Profiles["tiny"] = config.DatasetProfile{NotesIndex: "/data/tiny/notes_index.json"}
	_, err := dataset.Resolve(cfg)
	if !errors.Is(err, config.ErrSchema) || !errors.Is(err, faults.ErrConfig) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if !strings.Contains(err.Error(), "data.tiny.root") {
		t.Fatalf("error should name the missing key: %v", err)
	}
}

func TestPartitionFileMissingCorpus(t *testing.T) {
	profile, err := dataset.Resolve(testConfig())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := profile.PartitionFile("philharmonia"); !errors.Is(err, dataset.ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
	if path, err := profile.PartitionFile("rwc"); err != nil || path != "/data/tiny/rwc.csv" {
		t.Fatalf("PartitionFile(rwc) = %q, %v", path, err)
	}
}

func TestLoadIndexResolvesAudioAgainstRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes_index.json")
	content := `[
  {"index": "a", "dataset": "rwc", "audio_file": "rwc/a.wav", "instrument": "Violin", "note_number": 60},
  {"index": "b", "dataset": "uiowa", "audio_file": "/abs/b.wav", "instrument": "Horn", "note_number": 48}
]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	index, err := dataset.LoadIndex(path, "/root/data")
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if index[0].AudioFile != "/root/data/rwc/a.wav" {
		t.Fatalf("unexpected audio path: %q", index[0].AudioFile)
	}
	if index[1].AudioFile != "/abs/b.wav" {
		t.Fatalf("absolute path should be kept: %q", index[1].AudioFile)
	}

	if _, err := dataset.LoadIndex(filepath.Join(dir, "missing.json"), ""); !errors.Is(err, dataset.ErrMissingFile) {
		t.Fatalf("expected ErrMissingFile, got %v", err)
	}
}

func TestLoadIndexRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.json")
	if err := os.WriteFile(path, []byte(`[{"index":"a"},{"index":"a"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := dataset.LoadIndex(path, ""); !errors.Is(err, faults.ErrDataset) {
		t.Fatalf("expected dataset error, got %v", err)
	}
}

func TestIndexSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features", "notes_index.json")
	index := dataset.Index{
		{Index: "a", Dataset: "rwc", AudioFile: "/x/a.wav", Instrument: "violin", NoteNumber: 60,
			Features: map[string]string{dataset.FeatureCQT: "/f/a.cqt"}},
	}
	if err := index.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := dataset.LoadIndex(path, "")
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if !reflect.DeepEqual(loaded, index) {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if file, ok := loaded[0].FeatureFile(); !ok || file != "/f/a.cqt" {
		t.Fatalf("unexpected feature file: %q %v", file, ok)
	}
}

func TestPartitionSplit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rwc.csv")
	content := "index,partition\na,train\nb,valid\nc,test\nd,train\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	assignment, err := dataset.LoadPartition(path)
	if err != nil {
		t.Fatalf("LoadPartition: %v", err)
	}
	index := dataset.Index{{Index: "a"}, {Index: "b"}, {Index: "c"}, {Index: "d"}}
	splits, err := dataset.Split(index, assignment)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(splits.Train) != 2 || len(splits.Valid) != 1 || len(splits.Test) != 1 {
		t.Fatalf("unexpected split sizes: %d/%d/%d", len(splits.Train), len(splits.Valid), len(splits.Test))
	}
	if splits.Get(dataset.PartitionTest)[0].Index != "c" || splits.Test[0].Partition != dataset.PartitionTest {
		t.Fatalf("unexpected test split: %+v", splits.Test)
	}

	if _, err := dataset.Split(index[:3], assignment); !errors.Is(err, dataset.ErrInconsistent) {
		t.Fatalf("expected error for unknown partition index, got %v", err)
	}
	delete(assignment, "d")
	if _, err := dataset.Split(index, assignment); !errors.Is(err, dataset.ErrInconsistent) {
		t.Fatalf("expected error for unassigned index, got %v", err)
	}

	out := filepath.Join(dir, "copy.csv")
	if err := assignment.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := dataset.LoadPartition(out)
	if err != nil || !reflect.DeepEqual(reloaded, assignment) {
		t.Fatalf("partition round trip: %v %v", reloaded, err)
	}
}

func TestLoadPartitionRejectsUnknownName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("index,partition\na,holdout\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := dataset.LoadPartition(path); !errors.Is(err, faults.ErrDataset) {
		t.Fatalf("expected dataset error, got %v", err)
	}
}

func TestClassMap(t *testing.T) {
	cm := dataset.DefaultClassMap()
	if cm.Size() != 12 {
		t.Fatalf("expected 12 classes, got %d", cm.Size())
	}
	class, ok := cm.Lookup("Horn")
	if !ok || class != "french-horn" {
		t.Fatalf("Lookup(Horn) = %q, %v", class, ok)
	}
	idx, ok := cm.Index("BbClarinet")
	if !ok || cm.Name(idx) != "clarinet" {
		t.Fatalf("Index(BbClarinet) = %d, %v", idx, ok)
	}
	if cm.Name(0) != "bassoon" {
		t.Fatalf("classes should be sorted, got %q first", cm.Name(0))
	}
	if _, ok := cm.Lookup("theremin"); ok {
		t.Fatal("unknown instrument should not map")
	}
	if got := dataset.DisplayName("french-horn"); got != "French Horn" {
		t.Fatalf("DisplayName = %q", got)
	}
}

func TestParseClassMapRejectsSharedAlias(t *testing.T) {
	if _, err := dataset.ParseClassMap([]byte(`{"a": ["x"], "b": ["x"]}`)); err == nil {
		t.Fatal("expected error for alias claimed twice")
	}
}

func TestStatsAndLimit(t *testing.T) {
	cm := dataset.DefaultClassMap()
	index := dataset.Index{
		{Index: "1", Dataset: "rwc", Instrument: "violin"},
		{Index: "2", Dataset: "rwc", Instrument: "Violin"},
		{Index: "3", Dataset: "uiowa", Instrument: "violin"},
		{Index: "4", Dataset: "uiowa", Instrument: "flute"},
		{Index: "5", Dataset: "uiowa", Instrument: "kazoo"},
	}
	summary := dataset.Stats(index, cm)
	if summary.Total != 5 || summary.Unmapped != 1 || summary.PerCorpus["uiowa"] != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	want := []dataset.CorpusCount{
		{Class: "flute", Corpus: "uiowa", Count: 1},
		{Class: "violin", Corpus: "rwc", Count: 2},
		{Class: "violin", Corpus: "uiowa", Count: 1},
	}
	if !reflect.DeepEqual(summary.PerClass, want) {
		t.Fatalf("PerClass = %+v", summary.PerClass)
	}

	kept, dropped := dataset.Mapped(index, cm)
	if len(kept) != 4 || len(dropped) != 1 || dropped[0].Index != "5" {
		t.Fatalf("Mapped = %d kept, %v dropped", len(kept), dropped)
	}

	limited := dataset.LimitPerClass(kept, cm, 1, 7)
	if len(limited) != 2 {
		t.Fatalf("expected one violin and one flute, got %+v", limited)
	}
	again := dataset.LimitPerClass(kept, cm, 1, 7)
	if !reflect.DeepEqual(limited, again) {
		t.Fatal("LimitPerClass should be deterministic for a seed")
	}
	if got := dataset.LimitPerClass(kept, cm, 0, 7); len(got) != len(kept) {
		t.Fatal("non-positive limit keeps everything")
	}
}
