package cqt

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"

	"hcnn/internal/config"
)

// Params describes a transform.
type Params struct {
	SampleRate    float64
	HopLength     int
	FMin          float64
	NBins         int
	BinsPerOctave int
	FilterScale   float64
}

// ParamsFromConfig copies the features.cqt section.
func ParamsFromConfig(c config.CQT) Params {
	return Params{
		SampleRate:    c.SampleRate,
		HopLength:     c.HopLength,
		FMin:          c.FMin,
		NBins:         c.NBins,
		BinsPerOctave: c.BinsPerOctave,
		FilterScale:   c.FilterScale,
	}
}

// Q returns the constant quality factor.
func (p Params) Q() float64 {
	return p.FilterScale / (math.Pow(2, 1/float64(p.BinsPerOctave)) - 1)
}

// Frequency returns the centre frequency of bin k.
func (p Params) Frequency(k int) float64 {
	return p.FMin * math.Pow(2, float64(k)/float64(p.BinsPerOctave))
}

func (p Params) validate() error {
	switch {
	case p.SampleRate <= 0, p.HopLength <= 0, p.FMin <= 0, p.NBins <= 0, p.BinsPerOctave <= 0, p.FilterScale <= 0:
		return errors.New("cqt: parameters must be positive")
	case p.Frequency(p.NBins-1) >= p.SampleRate/2:
		return fmt.Errorf("cqt: top bin %.1f Hz is above Nyquist", p.Frequency(p.NBins-1))
	}
	return nil
}

type kernel struct {
	re, im []float64
}

// Transform holds precomputed kernels. It is safe for concurrent use.
type Transform struct {
	params  Params
	kernels []kernel
}

// New precomputes the kernels for p.
func New(p Params) (*Transform, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	q := p.Q()
	kernels := make([]kernel, p.NBins)
	for k := range kernels {
		f := p.Frequency(k)
		n := int(math.Ceil(q * p.SampleRate / f))
		if n < 1 {
			n = 1
		}
		re := make([]float64, n)
		im := make([]float64, n)
		for i := range re {
			re[i] = 1
			im[i] = 1
		}
		window.Hann(re)
		window.Hann(im)
		for i := range re {
			phase := 2 * math.Pi * f * float64(i-n/2) / p.SampleRate
			re[i] *= math.Cos(phase) / float64(n)
			im[i] *= -math.Sin(phase) / float64(n)
		}
		kernels[k] = kernel{re: re, im: im}
	}
	return &Transform{params: p, kernels: kernels}, nil
}

// Params returns the transform parameters.
func (t *Transform) Params() Params { return t.params }

// Spectrogram is a frames x bins magnitude matrix stored frame-major.
type Spectrogram struct {
	Frames int
	Bins   int
	Data   []float64
}

// At returns the magnitude of bin at frame.
func (s *Spectrogram) At(frame, bin int) float64 {
	return s.Data[frame*s.Bins+bin]
}

// Frame returns the bins of one frame. The slice aliases Data.
func (s *Spectrogram) Frame(i int) []float64 {
	return s.Data[i*s.Bins : (i+1)*s.Bins]
}

// NumFrames returns the frame count for a signal of n samples.
func (t *Transform) NumFrames(n int) int {
	return 1 + n/t.params.HopLength
}

// Compute returns the magnitude CQT of samples, which must already be at the
// transform's sample rate.
func (t *Transform) Compute(samples []float64) *Spectrogram {
	frames := t.NumFrames(len(samples))
	bins := len(t.kernels)
	out := &Spectrogram{Frames: frames, Bins: bins, Data: make([]float64, frames*bins)}
	var scratch []float64
	for f := 0; f < frames; f++ {
		centre := f * t.params.HopLength
		row := out.Frame(f)
		for k, kern := range t.kernels {
			n := len(kern.re)
			start := centre - n/2
			segment := segmentAt(samples, start, n, &scratch)
			row[k] = math.Hypot(floats.Dot(kern.re, segment), floats.Dot(kern.im, segment))
		}
	}
	return out
}

// segmentAt returns samples[start:start+n], zero padded where the range runs
// off either end. The returned slice may alias samples or scratch.
func segmentAt(samples []float64, start, n int, scratch *[]float64) []float64 {
	if start >= 0 && start+n <= len(samples) {
		return samples[start : start+n]
	}
	if cap(*scratch) < n {
		*scratch = make([]float64, n)
	}
	buf := (*scratch)[:n]
	for i := range buf {
		j := start + i
		if j >= 0 && j < len(samples) {
			buf[i] = samples[j]
		} else {
			buf[i] = 0
		}
	}
	return buf
}
