package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	epochPlaceholder = "{epoch}"
	idPlaceholder    = "{id}"
)

// BestID identifies artifacts produced from the best snapshot.
const BestID = "best"

// EpochDigits is the zero padding width for snapshot identifiers:
// ceil(log10(max_iterations)), at least one digit.
func (c *Config) EpochDigits() int {
	digits := int(math.Ceil(math.Log10(float64(c.Training.MaxIterations))))
	if digits < 1 {
		return 1
	}
	return digits
}

// SnapshotID formats an epoch with the configured zero padding.
func (c *Config) SnapshotID(epoch int) string {
	return fmt.Sprintf("%0*d", c.EpochDigits(), epoch)
}

// ParamsFilename returns the snapshot file name for epoch.
func (c *Config) ParamsFilename(epoch int) string {
	return strings.ReplaceAll(c.Experiment.ParamsFormat, epochPlaceholder, c.SnapshotID(epoch))
}

// ParseParamsFilename recovers the epoch from a snapshot file name produced by
// ParamsFilename. Padding width is not enforced so snapshots survive changes
// to max_iterations.
func (c *Config) ParseParamsFilename(name string) (int, bool) {
	pattern := c.paramsPattern()
	match := pattern.FindStringSubmatch(name)
	if match == nil {
		return 0, false
	}
	epoch, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return epoch, true
}

// PredictionsFilename returns the predictions artifact name for id.
func (c *Config) PredictionsFilename(id string) string {
	return strings.ReplaceAll(c.Experiment.PredictionsFormat, idPlaceholder, id)
}

// AnalysisFilename returns the analysis artifact name for id.
func (c *Config) AnalysisFilename(id string) string {
	return strings.ReplaceAll(c.Experiment.AnalysisFormat, idPlaceholder, id)
}

func (c *Config) paramsPattern() *regexp.Regexp {
	format := c.Experiment.ParamsFormat
	idx := strings.Index(format, epochPlaceholder)
	prefix := format[:idx]
	suffix := strings.ReplaceAll(format[idx+len(epochPlaceholder):], epochPlaceholder, "")
	return regexp.MustCompile("^" + regexp.QuoteMeta(prefix) + `(\d+)` + regexp.QuoteMeta(suffix) + "$")
}
