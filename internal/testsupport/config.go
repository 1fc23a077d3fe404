package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"hcnn/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration
// document before it is loaded.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	doc     config.Document
}

// NewConfig writes a small configuration rooted in a per-test temp directory
// and loads it through config.Load, so the result is fully resolved. The
// selected profile is "tiny" with rwc and uiowa partitions; use
// WriteTinyDataset to populate it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	data := filepath.Join(base, "data")
	builder := &configBuilder{
		t:       t,
		baseDir: base,
		doc: config.Document{
			"paths": map[string]any{
				"model_dir":   filepath.Join(base, "models"),
				"feature_dir": filepath.Join(base, "features"),
			},
			"data": map[string]any{
				"selected": "tiny",
				"tiny": map[string]any{
					"root":        data,
					"notes_index": filepath.Join(data, "notes_index.json"),
					"partitions": map[string]any{
						"rwc":   filepath.Join(data, "partitions", "rwc_partition.csv"),
						"uiowa": filepath.Join(data, "partitions", "uiowa_partition.csv"),
					},
				},
			},
			"features": map[string]any{
				"cqt": map[string]any{
					"skip_existing":   true,
					"num_cpus":        2,
					"samplerate":      float64(TestSampleRate),
					"hop_length":      256,
					"fmin":            110.0,
					"n_bins":          24,
					"bins_per_octave": 12,
					"filter_scale":    1.0,
				},
			},
			"experiment": map[string]any{},
			"training": map[string]any{
				"partition":                 "rwc",
				"t_len":                     4,
				"max_iterations":            20,
				"max_time":                  60.0,
				"batch_size":                8,
				"n_targets":                 12,
				"iteration_print_frequency": 5,
				"iteration_write_frequency": 5,
				"seed":                      7,
				"feature_cache_size":        16,
				"hyperparams": map[string]any{
					"learning_rate": 0.1,
					"momentum":      0.5,
				},
			},
		},
	}

	for _, opt := range opts {
		opt(builder)
	}

	raw, err := yaml.Marshal(map[string]any(builder.doc))
	if err != nil {
		t.Fatalf("encode test config: %v", err)
	}
	path := filepath.Join(base, "hcnn.yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load test config: %v", err)
	}
	return cfg
}

// WithValue sets a dotted key such as "training.max_iterations" in the
// generated document, creating intermediate mappings as needed.
func WithValue(key string, value any) ConfigOption {
	return func(b *configBuilder) {
		parts := strings.Split(key, ".")
		current := map[string]any(b.doc)
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}
}

// WithLogDir enables file logging under the test directory.
func WithLogDir() ConfigOption {
	return func(b *configBuilder) {
		WithValue("paths.log_dir", filepath.Join(b.baseDir, "logs"))(b)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ModelDir)
}

// ConfigPath returns the document NewConfig wrote for cfg, for tests that
// drive the CLI with --config.
func ConfigPath(cfg *config.Config) string {
	return filepath.Join(BaseDir(cfg), "hcnn.yaml")
}
