// Package cqt computes constant-Q magnitude spectrograms.
//
// Each bin k has centre frequency fmin * 2^(k/bins_per_octave) and a
// Hann-windowed complex kernel whose length keeps the quality factor
// Q = filter_scale / (2^(1/bins_per_octave) - 1) constant across bins. Frames
// are centred every hop_length samples; samples outside the signal count as
// zero.
package cqt
