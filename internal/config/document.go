package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Document is a parsed but not yet decoded configuration tree.
type Document map[string]any

var requiredSections = []string{"paths", "data", "features", "experiment", "training"}

var requiredKeys = []string{
	"paths.model_dir",
	"paths.feature_dir",
	"data.selected",
	"training.t_len",
	"training.max_iterations",
	"training.max_time",
	"training.batch_size",
	"training.n_targets",
}

// LoadDocument reads one configuration file. Files ending in .toml are parsed
// as TOML; everything else is parsed as YAML.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	tree := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
		}
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return Document(tree), nil
}

// Merge returns a new document in which every leaf of override replaces the
// matching leaf of base. Nested mappings merge key by key; lists and scalars
// are leaves. Neither argument is modified.
func Merge(base, override Document) Document {
	out := copyMap(base)
	for key, value := range override {
		existing, ok := out[key]
		baseMap, baseIsMap := asMap(existing)
		overMap, overIsMap := asMap(value)
		if ok && baseIsMap && overIsMap {
			out[key] = map[string]any(Merge(Document(baseMap), Document(overMap)))
			continue
		}
		out[key] = copyValue(value)
	}
	return Document(out)
}

// Lookup returns the value at a dotted key path such as "training.t_len".
func (d Document) Lookup(path string) (any, bool) {
	var current any = map[string]any(d)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func checkSchema(doc Document) error {
	var missing []string
	for _, section := range requiredSections {
		value, ok := doc[section]
		if !ok {
			missing = append(missing, section)
			continue
		}
		if _, isMap := asMap(value); !isMap {
			return fmt.Errorf("%w: section %q must be a mapping", ErrSchema, section)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing section(s) %s", ErrSchema, strings.Join(missing, ", "))
	}

	for _, key := range requiredKeys {
		value, ok := doc.Lookup(key)
		if !ok || value == nil {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing key(s) %s", ErrSchema, strings.Join(missing, ", "))
	}
	return nil
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Document:
		return map[string]any(v), true
	default:
		return nil, false
	}
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return copyMap(v)
	case Document:
		return copyMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
