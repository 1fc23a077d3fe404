// Package faults defines the error families shared by every pipeline stage.
//
// Each family is a sentinel marker. Subsystems derive their specific errors
// from a marker (for example config.ErrNotFound wraps ErrConfig), and Wrap
// attaches stage and operation context while keeping both the marker and the
// underlying cause reachable through errors.Is.
package faults
