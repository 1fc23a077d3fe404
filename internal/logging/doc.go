// Package logging assembles the structured slog loggers used by every hcnn
// stage.
//
// It owns the console and JSON handlers and the level and output plumbing. It
// also exposes context helpers so stage code can tag log lines with the
// experiment name, stage, and run id without threading them through every
// call. NewNop provides a silent logger for tests.
package logging
