// Package main hosts the hcnn CLI entrypoint and command graph.
//
// Each pipeline stage is a subcommand that loads the merged configuration,
// builds a pipeline.Driver, and prints a short summary of the stage result.
// Structured logs go to stderr and the optional log file; stdout carries only
// command output. Keep the heavy lifting in internal packages and surface it
// here through flags.
package main
