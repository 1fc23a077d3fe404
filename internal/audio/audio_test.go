package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"hcnn/internal/faults"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a4.wav")
	tone := Tone(440, 0.5, 0.25, 8000)
	if err := WriteWAV(path, tone); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	got, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if got.SampleRate != 8000 || len(got.Samples) != len(tone.Samples) {
		t.Fatalf("unexpected signal: rate=%v n=%d", got.SampleRate, len(got.Samples))
	}
	for i := range tone.Samples {
		if math.Abs(got.Samples[i]-tone.Samples[i]) > 1e-3 {
			t.Fatalf("sample %d: got %v want %v", i, got.Samples[i], tone.Samples[i])
		}
	}
	if d := got.Duration(); math.Abs(d-0.25) > 1e-9 {
		t.Fatalf("Duration = %v", d)
	}
}

func TestReadWAVRejectsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.wav")
	if err := os.WriteFile(corrupt, []byte("this is not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	cases := []string{corrupt, filepath.Join(dir, "missing.wav"), filepath.Join(dir, "note.mp3")}
	for _, path := range cases {
		_, err := ReadWAV(path)
		if !errors.Is(err, ErrUnreadable) || !errors.Is(err, faults.ErrDataset) {
			t.Fatalf("%s: expected ErrUnreadable, got %v", filepath.Base(path), err)
		}
	}
}

func TestDownmixAveragesChannels(t *testing.T) {
	got := downmix([]int{16384, -16384, 32767, 32767}, 2, 16)
	if len(got) != 2 || got[0] != 0 || math.Abs(got[1]-32767.0/32768) > 1e-12 {
		t.Fatalf("downmix = %v", got)
	}
	unsigned := downmix([]int{128, 255}, 1, 8)
	if unsigned[0] != 0 || unsigned[1] <= 0.99 {
		t.Fatalf("8-bit downmix = %v", unsigned)
	}
}

func TestResample(t *testing.T) {
	s := Signal{Samples: []float64{0, 1, 2, 3, 4, 5, 6, 7}, SampleRate: 8}
	down := Resample(s, 4)
	if down.SampleRate != 4 || len(down.Samples) != 4 {
		t.Fatalf("unexpected resample: %+v", down)
	}
	for i, v := range down.Samples {
		if v != float64(2*i) {
			t.Fatalf("down[%d] = %v", i, v)
		}
	}
	up := Resample(s, 16)
	if len(up.Samples) != 16 || up.Samples[1] != 0.5 || up.Samples[15] != 7 {
		t.Fatalf("unexpected upsample: %v", up.Samples)
	}
	if same := Resample(s, 8); &same.Samples[0] != &s.Samples[0] {
		t.Fatal("same rate should not copy")
	}
}
