// Package experiment derives the on-disk layout of an experiment directory
// and guards it with a single-writer lock.
//
// Every path comes from paths.model_dir, the experiment name, and the
// experiment.* templates; nothing in the layout is hard-coded.
package experiment
