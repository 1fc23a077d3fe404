package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"hcnn/internal/audio"
	"hcnn/internal/config"
	"hcnn/internal/dataset"
)

// TestSampleRate is the features.cqt.samplerate of configs built by NewConfig.
const TestSampleRate = 4000

// toneRate is the rate synthetic notes are written at, so extraction always
// exercises resampling.
const toneRate = 8000

// TinyClass is one instrument in the synthetic dataset and the pitch its
// notes are centred on.
type TinyClass struct {
	Instrument string
	Frequency  float64
}

// TinyClasses are the instruments written by WriteTinyDataset.
var TinyClasses = []TinyClass{
	{Instrument: "cello", Frequency: 146.83},
	{Instrument: "violin", Frequency: 220.0},
	{Instrument: "flute", Frequency: 329.63},
}

// TinyCorpora are the corpora written by WriteTinyDataset.
var TinyCorpora = []string{"rwc", "uiowa"}

// NotesPerClass is the number of notes per class and corpus.
const NotesPerClass = 4

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteTone writes a mono WAV containing a sine at freq Hz.
func WriteTone(t testing.TB, path string, freq, seconds float64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := audio.WriteWAV(path, audio.Tone(freq, 0.6, seconds, toneRate)); err != nil {
		t.Fatalf("write tone %s: %v", path, err)
	}
}

// WriteTinyDataset writes the selected profile of cfg: one tone per note, the
// notes index, and one partition file per corpus. In the partition for corpus
// c, notes recorded in c are split three to one between train and valid and
// every other note is test. The notes index is returned.
func WriteTinyDataset(t testing.TB, cfg *config.Config) dataset.Index {
	t.Helper()

	profile, err := dataset.Resolve(cfg)
	if err != nil {
		t.Fatalf("resolve profile: %v", err)
	}

	var index dataset.Index
	for _, corpus := range TinyCorpora {
		for _, class := range TinyClasses {
			for n := 0; n < NotesPerClass; n++ {
				key := fmt.Sprintf("%s_%s_%02d", corpus, class.Instrument, n)
				rel := filepath.Join("audio", corpus, key+".wav")
				// Small detune keeps each note distinct without leaving its bin.
				freq := class.Frequency * (1 + 0.005*float64(n))
				WriteTone(t, filepath.Join(profile.Root, rel), freq, 0.5)
				index = append(index, dataset.Observation{
					Index:      key,
					Dataset:    corpus,
					AudioFile:  rel,
					Instrument: class.Instrument,
					NoteNumber: 57 + n,
					Dynamic:    "mf",
				})
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(profile.NotesIndex), 0o755); err != nil {
		t.Fatalf("mkdir for notes index: %v", err)
	}
	if err := index.Save(profile.NotesIndex); err != nil {
		t.Fatalf("write notes index: %v", err)
	}

	for corpus, path := range profile.Partitions {
		assignment := dataset.Assignment{}
		seen := map[string]int{}
		for _, obs := range index {
			if obs.Dataset != corpus {
				assignment[obs.Index] = dataset.PartitionTest
				continue
			}
			seen[obs.Instrument]++
			if seen[obs.Instrument]%NotesPerClass == 0 {
				assignment[obs.Index] = dataset.PartitionValid
			} else {
				assignment[obs.Index] = dataset.PartitionTrain
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for partition: %v", err)
		}
		if err := assignment.Save(path); err != nil {
			t.Fatalf("write partition %s: %v", corpus, err)
		}
	}

	loaded, err := dataset.LoadIndex(profile.NotesIndex, profile.Root)
	if err != nil {
		t.Fatalf("reload notes index: %v", err)
	}
	return loaded
}
