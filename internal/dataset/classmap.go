package dataset

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed class_map.json
var classMapJSON []byte

// ClassMap maps the instrument names used by each corpus onto a fixed set of
// classes. Class indices follow the sorted class names.
type ClassMap struct {
	classes []string
	index   map[string]int
	reverse map[string]string
}

// DefaultClassMap returns the embedded instrument class map.
func DefaultClassMap() *ClassMap {
	cm, err := ParseClassMap(classMapJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded class map: %v", err))
	}
	return cm
}

// ParseClassMap decodes a JSON object of class name to aliases.
func ParseClassMap(data []byte) (*ClassMap, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse class map: %w", err)
	}
	cm := &ClassMap{
		index:   make(map[string]int, len(raw)),
		reverse: make(map[string]string),
	}
	for name := range raw {
		cm.classes = append(cm.classes, name)
	}
	sort.Strings(cm.classes)
	for i, name := range cm.classes {
		cm.index[name] = i
		cm.reverse[name] = name
		for _, alias := range raw[name] {
			if owner, ok := cm.reverse[alias]; ok && owner != name {
				return nil, fmt.Errorf("parse class map: alias %q claimed by %s and %s", alias, owner, name)
			}
			cm.reverse[alias] = name
		}
	}
	return cm, nil
}

// Lookup returns the class for an instrument name or alias.
func (c *ClassMap) Lookup(name string) (string, bool) {
	class, ok := c.reverse[strings.TrimSpace(name)]
	return class, ok
}

// Index returns the class index for an instrument name or alias.
func (c *ClassMap) Index(name string) (int, bool) {
	class, ok := c.Lookup(name)
	if !ok {
		return 0, false
	}
	return c.index[class], true
}

// Name returns the class at index i.
func (c *ClassMap) Name(i int) string {
	if i < 0 || i >= len(c.classes) {
		return ""
	}
	return c.classes[i]
}

// Classes returns the sorted class names.
func (c *ClassMap) Classes() []string {
	return append([]string(nil), c.classes...)
}

// Size is the number of classes.
func (c *ClassMap) Size() int { return len(c.classes) }

// DisplayName renders a class for reports, e.g. "french-horn" as "French Horn".
func DisplayName(class string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(class, "-", " "))
}
