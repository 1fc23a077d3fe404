// Package preflight provides readiness checks for the directories and dataset
// files an hcnn run depends on.
//
// The CLI "hcnn check" command runs RunAll and prints one line per result.
// Stages do not call it; they fail with their own typed errors instead.
package preflight
