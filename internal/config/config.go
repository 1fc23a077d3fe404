package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"hcnn/internal/faults"
)

//go:embed sample_config.yaml
var sampleConfig string

var (
	// ErrNotFound reports a configuration path that does not exist.
	ErrNotFound = fmt.Errorf("%w: config not found", faults.ErrConfig)
	// ErrParse reports malformed YAML or TOML syntax.
	ErrParse = fmt.Errorf("%w: config parse failed", faults.ErrConfig)
	// ErrSchema reports a missing or invalid section or key.
	ErrSchema = fmt.Errorf("%w: config schema invalid", faults.ErrConfig)
)

// Paths contains the output directories shared by every experiment.
type Paths struct {
	ModelDir   string `yaml:"model_dir"`
	FeatureDir string `yaml:"feature_dir"`
	LogDir     string `yaml:"log_dir,omitempty"`
}

// DatasetProfile is one named dataset variant under the data section.
type DatasetProfile struct {
	Root       string            `yaml:"root"`
	NotesIndex string            `yaml:"notes_index"`
	Partitions map[string]string `yaml:"partitions,omitempty"`
}

// Data holds the selected profile name and every profile declared next to it.
// In the document the profiles are siblings of the selected key:
//
//	data:
//	  selected: tiny
//	  tiny: {root: ..., notes_index: ..., partitions: {...}}
type Data struct {
	Selected string
	Profiles map[string]DatasetProfile
}

// CQT contains constant-Q feature extraction settings.
type CQT struct {
	SkipExisting  bool    `yaml:"skip_existing"`
	NumCPUs       int     `yaml:"num_cpus"`
	SampleRate    float64 `yaml:"samplerate"`
	HopLength     int     `yaml:"hop_length"`
	FMin          float64 `yaml:"fmin"`
	NBins         int     `yaml:"n_bins"`
	BinsPerOctave int     `yaml:"bins_per_octave"`
	FilterScale   float64 `yaml:"filter_scale"`
}

// Features groups feature extraction settings.
type Features struct {
	CQT CQT `yaml:"cqt"`
}

// Experiment contains the file naming templates used inside an experiment
// directory. ParamsFormat must contain {epoch}; PredictionsFormat and
// AnalysisFormat must contain {id}.
type Experiment struct {
	ConfigPath        string `yaml:"config_path"`
	ParamsDir         string `yaml:"params_dir"`
	ParamsFormat      string `yaml:"params_format"`
	BestParams        string `yaml:"best_params"`
	TrainingLoss      string `yaml:"training_loss"`
	ValidationLoss    string `yaml:"validation_loss"`
	PredictionsFormat string `yaml:"predictions_format"`
	AnalysisFormat    string `yaml:"analysis_format"`
	Ledger            string `yaml:"ledger"`
}

// Hyperparams contains optimizer settings.
type Hyperparams struct {
	LearningRate float64 `yaml:"learning_rate"`
	Momentum     float64 `yaml:"momentum"`
}

// Training contains the bounded training loop parameters.
type Training struct {
	Model                   string      `yaml:"model"`
	Partition               string      `yaml:"partition"`
	TLen                    int         `yaml:"t_len"`
	MaxIterations           int         `yaml:"max_iterations"`
	MaxTime                 float64     `yaml:"max_time"`
	BatchSize               int         `yaml:"batch_size"`
	NTargets                int         `yaml:"n_targets"`
	IterationPrintFrequency int         `yaml:"iteration_print_frequency"`
	IterationWriteFrequency int         `yaml:"iteration_write_frequency"`
	MaxFilesPerClass        *int        `yaml:"max_files_per_class,omitempty"`
	ConvergenceLoss         float64     `yaml:"convergence_loss"`
	Seed                    int64       `yaml:"seed"`
	FeatureCacheSize        int         `yaml:"feature_cache_size"`
	Hyperparams             Hyperparams `yaml:"hyperparams"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Config encapsulates a fully resolved experiment configuration.
//
// Configuration sections:
//   - Paths: model and feature output directories
//   - Data: dataset profiles and the selected profile
//   - Features: constant-Q transform settings
//   - Experiment: file naming templates inside an experiment directory
//   - Training: loop bounds and hyperparameters
//   - Logging: log format and level (optional)
//
// A Config returned by Load has every path expanded to an absolute path and is
// treated as immutable by all stages.
type Config struct {
	Paths      Paths      `yaml:"paths"`
	Data       Data       `yaml:"data"`
	Features   Features   `yaml:"features"`
	Experiment Experiment `yaml:"experiment"`
	Training   Training   `yaml:"training"`
	Logging    Logging    `yaml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads every document in order, merges later documents over earlier
// ones, and decodes the result. With no paths the default locations are
// searched.
func Load(paths ...string) (*Config, error) {
	resolved, err := resolveConfigPaths(paths)
	if err != nil {
		return nil, err
	}

	var merged Document
	for _, path := range resolved {
		doc, err := LoadDocument(path)
		if err != nil {
			return nil, err
		}
		merged = Merge(merged, doc)
	}
	return Decode(merged)
}

// Decode checks the document schema, decodes it over repository defaults,
// expands paths, and validates the result.
func Decode(doc Document) (*Config, error) {
	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	raw, err := yaml.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %w", ErrSchema, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration as YAML. Loading the written file yields a
// value equal to c.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the model, feature, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ModelDir, c.Paths.FeatureDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// UnmarshalYAML decodes the selected key and treats every other key as a profile.
func (d *Data) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("data: expected mapping, got %s", node.Tag)
	}
	out := Data{Profiles: make(map[string]DatasetProfile)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		if key == "selected" {
			if err := value.Decode(&out.Selected); err != nil {
				return fmt.Errorf("data.selected: %w", err)
			}
			continue
		}
		if value.Kind != yaml.MappingNode {
			return fmt.Errorf("data.%s: expected dataset profile mapping", key)
		}
		var profile DatasetProfile
		if err := value.Decode(&profile); err != nil {
			return fmt.Errorf("data.%s: %w", key, err)
		}
		out.Profiles[key] = profile
	}
	*d = out
	return nil
}

// MarshalYAML writes profiles back as siblings of the selected key.
func (d Data) MarshalYAML() (any, error) {
	out := make(map[string]any, len(d.Profiles)+1)
	out["selected"] = d.Selected
	for name, profile := range d.Profiles {
		if name == "selected" {
			return nil, fmt.Errorf("data: profile name %q is reserved", name)
		}
		out[name] = profile
	}
	return out, nil
}

func resolveConfigPaths(paths []string) ([]string, error) {
	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		expanded, err := expandPath(path)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, expanded)
	}
	if len(resolved) > 0 {
		return resolved, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return nil, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return []string{defaultPath}, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return []string{projectPath}, nil
	}
	return nil, fmt.Errorf("%w: %s (create one with 'hcnn config init')", ErrNotFound, defaultPath)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
