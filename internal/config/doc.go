// Package config loads, merges, normalizes, and validates hcnn experiment
// configuration.
//
// A configuration is built from one or more documents. The first is the
// master; each later document is merged over it leaf by leaf with Merge, so a
// small integration config can swap paths or data.selected while sharing the
// rest of the structure. Documents are YAML unless the file ends in .toml.
//
// Decode expands every path (paths.*, and each dataset profile's root, notes
// index, and partition files) to an absolute path before returning, so stages
// never see a tilde or a relative path. The returned Config is passed
// explicitly to every stage and is never mutated afterwards.
//
// The experiment.* templates drive every file name inside an experiment
// directory; ParamsFilename, PredictionsFilename, and AnalysisFilename apply
// them.
package config
