package models

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OrderedMap is a YAML mapping decoded with its key order preserved.
// Sequences are accepted too and keyed by their index.
type OrderedMap[T any] struct {
	keys   []string
	values map[string]T
}

// Set stores value under key, keeping the first position of an existing key
func (m *OrderedMap[T]) Set(key string, value T) {
	if m.values == nil {
		m.values = make(map[string]T)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key
func (m OrderedMap[T]) Get(key string) (T, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in document order
func (m OrderedMap[T]) Keys() []string {
	return m.keys
}

// Values returns the values in document order
func (m OrderedMap[T]) Values() []T {
	out := make([]T, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.values[k])
	}
	return out
}

// Len returns the number of entries
func (m OrderedMap[T]) Len() int {
	return len(m.keys)
}

// UnmarshalYAML implements yaml.Unmarshaler
func (m *OrderedMap[T]) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			var key string
			if err := value.Content[i].Decode(&key); err != nil {
				return fmt.Errorf("line %d: invalid key: %w", value.Content[i].Line, err)
			}
			var v T
			if err := value.Content[i+1].Decode(&v); err != nil {
				return fmt.Errorf("line %d: invalid value for %q: %w", value.Content[i+1].Line, key, err)
			}
			m.Set(key, v)
		}
		return nil
	case yaml.SequenceNode:
		for i, node := range value.Content {
			var v T
			if err := node.Decode(&v); err != nil {
				return fmt.Errorf("line %d: invalid item %d: %w", node.Line, i, err)
			}
			m.Set(strconv.Itoa(i), v)
		}
		return nil
	default:
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
}

// RawTag is a tag entry as written in course.yaml or a V1 task.yaml
type RawTag struct {
	ID   string      `yaml:"id"`
	Name string      `yaml:"name"`
	Type TagCategory `yaml:"type"`
}

// UnmarshalYAML implements yaml.Unmarshaler. Quoted numbers are accepted;
// values that are not a number decode to CategoryOther.
func (c *TagCategory) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		*c = CategoryOther
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value.Value))
	if err != nil {
		*c = CategoryOther
		return nil
	}
	*c = TagCategory(n)
	return nil
}

// CourseDocument is a decoded course.yaml
type CourseDocument struct {
	Name string             `yaml:"name"`
	Tags OrderedMap[RawTag] `yaml:"tags"`
	Path string             `yaml:"-"`
}

// CategoryRefs holds the V2 "categories" list and whether the key was present
type CategoryRefs struct {
	IDs      []string
	Declared bool
}

// UnmarshalYAML implements yaml.Unmarshaler
func (c *CategoryRefs) UnmarshalYAML(value *yaml.Node) error {
	c.Declared = true
	if value.Kind == yaml.ScalarNode {
		c.IDs = []string{value.Value}
		return nil
	}
	return value.Decode(&c.IDs)
}

// Box is a sub-block of a problem
type Box struct {
	Type     string `yaml:"type"`
	Language string `yaml:"language"`
}

// Problem is one entry of a task's "problems" mapping
type Problem struct {
	Type     string          `yaml:"type"`
	Language string          `yaml:"language"`
	Header   string          `yaml:"header"`
	Boxes    OrderedMap[Box] `yaml:"boxes"`
}

// TaskDocument is a decoded task.yaml in either schema version
type TaskDocument struct {
	Name       string              `yaml:"name"`
	Context    string              `yaml:"context"`
	Author     string              `yaml:"author"`
	Tags       OrderedMap[RawTag]  `yaml:"tags"`
	Categories CategoryRefs        `yaml:"categories"`
	Problems   OrderedMap[Problem] `yaml:"problems"`
	Path       string              `yaml:"-"`
}
