// Package features computes constant-Q spectrogram archives for every note in
// a notes index and reads them back for training and inference.
//
// Each note maps to exactly one archive named <index>.cqt under the feature
// directory. Extraction fans out across workers and skips notes whose audio
// cannot be decoded; the features index written next to the archives lists
// only the notes that have one.
package features
