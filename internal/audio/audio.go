// Package audio reads note recordings into mono float signals.
package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"hcnn/internal/faults"
)

// ErrUnreadable reports a note file that is missing, not a WAV file, or corrupt.
var ErrUnreadable = fmt.Errorf("%w: unreadable audio", faults.ErrDataset)

// Signal is a mono signal with samples in [-1, 1].
type Signal struct {
	Samples    []float64
	SampleRate float64
}

// Duration returns the signal length in seconds.
func (s Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / s.SampleRate
}

// ReadWAV decodes a PCM WAV file and mixes every channel down to mono.
func ReadWAV(path string) (Signal, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" && ext != ".wave" {
		return Signal{}, fmt.Errorf("%w: %s: unsupported extension %q", ErrUnreadable, path, ext)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Signal{}, fmt.Errorf("%w: %s: not found", ErrUnreadable, path)
		}
		return Signal{}, faults.Wrap(faults.ErrIO, "audio", "open", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Signal{}, fmt.Errorf("%w: %s: invalid wav header", ErrUnreadable, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Signal{}, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return Signal{}, fmt.Errorf("%w: %s: missing format", ErrUnreadable, path)
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return Signal{}, fmt.Errorf("%w: %s: unsupported bit depth %d", ErrUnreadable, path, bitDepth)
	}
	samples := downmix(buf.Data, buf.Format.NumChannels, bitDepth)
	if len(samples) == 0 {
		return Signal{}, fmt.Errorf("%w: %s: no samples", ErrUnreadable, path)
	}
	return Signal{Samples: samples, SampleRate: float64(buf.Format.SampleRate)}, nil
}

func downmix(data []int, channels, bitDepth int) []float64 {
	scale := math.Ldexp(1, bitDepth-1)
	if bitDepth == 8 {
		// 8-bit PCM is unsigned.
		scale = 128
	}
	frames := len(data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := float64(data[i*channels+c])
			if bitDepth == 8 {
				v -= 128
			}
			sum += v
		}
		out[i] = sum / float64(channels) / scale
	}
	return out
}

// WriteWAV encodes s as 16-bit mono PCM.
func WriteWAV(path string, s Signal) error {
	f, err := os.Create(path)
	if err != nil {
		return faults.Wrap(faults.ErrIO, "audio", "create", path, err)
	}
	enc := wav.NewEncoder(f, int(s.SampleRate), 16, 1, 1)
	data := make([]int, len(s.Samples))
	for i, v := range s.Samples {
		v = math.Max(-1, math.Min(1, v))
		data[i] = int(math.Round(v * 32767))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: int(s.SampleRate)},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return faults.Wrap(faults.ErrIO, "audio", "encode", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return faults.Wrap(faults.ErrIO, "audio", "finalize", path, err)
	}
	return f.Close()
}

// Resample converts s to rate with linear interpolation. Signals already at
// rate are returned unchanged.
func Resample(s Signal, rate float64) Signal {
	if rate <= 0 || s.SampleRate == rate || len(s.Samples) == 0 {
		return s
	}
	ratio := s.SampleRate / rate
	n := int(math.Floor(float64(len(s.Samples)) / ratio))
	if n < 1 {
		n = 1
	}
	out := make([]float64, n)
	last := len(s.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = s.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = s.Samples[j]*(1-frac) + s.Samples[j+1]*frac
	}
	return Signal{Samples: out, SampleRate: rate}
}

// Tone synthesizes a sine at freq Hz with the given amplitude.
func Tone(freq, amplitude, seconds, rate float64) Signal {
	n := int(seconds * rate)
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return Signal{Samples: out, SampleRate: rate}
}
