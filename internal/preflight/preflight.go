package preflight

import (
	"context"
	"fmt"

	"hcnn/internal/config"
	"hcnn/internal/dataset"
)

// Result reports the outcome of a single preflight check. Optional results
// describe state that a later stage creates, so a failure there is advisory.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every check for the selected dataset profile.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Model directory", cfg.Paths.ModelDir),
		CheckDirectoryAccess("Feature directory", cfg.Paths.FeatureDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	profile, err := dataset.Resolve(cfg)
	if err != nil {
		return append(results, Result{Name: "Dataset profile", Detail: err.Error()})
	}
	results = append(results, Result{Name: "Dataset profile", Passed: true, Detail: profile.Name})
	results = append(results, CheckReadableDir("Dataset root", profile.Root))
	results = append(results, CheckNotesIndex(profile))
	for _, corpus := range profile.Corpora() {
		if ctx.Err() != nil {
			break
		}
		path, _ := profile.PartitionFile(corpus)
		results = append(results, CheckFile(fmt.Sprintf("Partition %s", corpus), path))
	}
	results = append(results, CheckFeaturesIndex(cfg.Paths.FeatureDir, profile))
	return results
}

// Failed reports whether any required result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
