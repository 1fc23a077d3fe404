package cqt

import (
	"math"
	"testing"

	"hcnn/internal/audio"
)

func testParams() Params {
	return Params{SampleRate: 8000, HopLength: 256, FMin: 110, NBins: 24, BinsPerOctave: 6, FilterScale: 1}
}

func TestNewRejectsBinsAboveNyquist(t *testing.T) {
	p := testParams()
	p.NBins = 60
	if _, err := New(p); err == nil {
		t.Fatal("expected Nyquist error")
	}
	p = testParams()
	p.HopLength = 0
	if _, err := New(p); err == nil {
		t.Fatal("expected error for zero hop")
	}
}

func TestKernelLengthsFollowQ(t *testing.T) {
	p := testParams()
	tr, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for k, kern := range tr.kernels {
		want := int(math.Ceil(p.Q() * p.SampleRate / p.Frequency(k)))
		if len(kern.re) != want || len(kern.im) != want {
			t.Fatalf("bin %d: kernel length %d, want %d", k, len(kern.re), want)
		}
	}
	if len(tr.kernels[0].re) <= len(tr.kernels[len(tr.kernels)-1].re) {
		t.Fatal("low bins should have longer kernels")
	}
}

func TestComputePeaksAtToneBin(t *testing.T) {
	p := testParams()
	tr, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Bin 12 is two octaves above fmin.
	tone := audio.Tone(p.Frequency(12), 0.8, 1.0, p.SampleRate)
	spec := tr.Compute(tone.Samples)
	if spec.Frames != 1+len(tone.Samples)/p.HopLength || spec.Bins != p.NBins {
		t.Fatalf("unexpected shape %dx%d", spec.Frames, spec.Bins)
	}
	mid := spec.Frames / 2
	best := 0
	for k := 1; k < spec.Bins; k++ {
		if spec.At(mid, k) > spec.At(mid, best) {
			best = k
		}
	}
	if best != 12 {
		t.Fatalf("peak at bin %d, want 12 (frame %v)", best, spec.Frame(mid))
	}
	// A unit sine through a normalized Hann kernel peaks near amplitude/4.
	if got := spec.At(mid, 12); math.Abs(got-0.2) > 0.02 {
		t.Fatalf("peak magnitude %v, want about 0.2", got)
	}
}

func TestComputeSilenceAndShortInput(t *testing.T) {
	tr, err := New(testParams())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	spec := tr.Compute(make([]float64, 100))
	if spec.Frames != 1 {
		t.Fatalf("expected one frame, got %d", spec.Frames)
	}
	for _, v := range spec.Data {
		if v != 0 {
			t.Fatalf("silence should be zero, got %v", v)
		}
	}
}

func TestSegmentAtPadsEdges(t *testing.T) {
	var scratch []float64
	got := segmentAt([]float64{1, 2, 3}, -1, 5, &scratch)
	want := []float64{0, 1, 2, 3, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segmentAt = %v, want %v", got, want)
		}
	}
}
