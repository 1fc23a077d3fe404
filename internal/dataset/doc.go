// Package dataset selects the configured dataset profile and reads the notes
// index and partition files it points to.
//
// Resolve is a pure lookup over an already loaded config and never touches
// the filesystem; stages that read the index or partition files report
// missing files themselves.
package dataset
