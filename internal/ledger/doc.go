// Package ledger persists the history of one experiment in SQLite.
//
// Each experiment directory carries its own ledger database recording
// training runs and their terminal state, the parameter snapshots written by
// each run, model selection results, and the prediction and analysis
// artifacts produced later. The ledger lets model_selection tell a finished
// run from one still in progress, and lets status report an experiment
// without scanning its files.
//
// The store follows the usual SQLite setup: WAL journaling, foreign keys,
// a busy timeout, and short retries when another process holds the write
// lock.
package ledger
