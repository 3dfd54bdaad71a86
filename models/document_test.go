package models

import (
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestOrderedMapKeepsDocumentOrder(t *testing.T) {
	input := `
tags:
  zeta: {id: z, name: Zeta, type: 0}
  alpha: {id: a, name: Alpha, type: 2}
  mid: {id: m, name: Mid, type: 1}
`
	var course CourseDocument
	if err := yaml.Unmarshal([]byte(input), &course); err != nil {
		t.Fatalf("Failed to decode course: %v", err)
	}

	if got, want := course.Tags.Keys(), []string{"zeta", "alpha", "mid"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	alpha, ok := course.Tags.Get("alpha")
	if !ok || alpha.Name != "Alpha" || alpha.Type != CategoryOther {
		t.Errorf("Get(alpha) = %+v, %v", alpha, ok)
	}
}

func TestOrderedMapFromSequence(t *testing.T) {
	var m OrderedMap[RawTag]
	if err := yaml.Unmarshal([]byte("[{name: One}, {name: Two}]"), &m); err != nil {
		t.Fatalf("Failed to decode sequence: %v", err)
	}

	if got, want := m.Keys(), []string{"0", "1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if m.Values()[1].Name != "Two" {
		t.Errorf("Unexpected values %+v", m.Values())
	}
}

func TestOrderedMapRejectsScalar(t *testing.T) {
	var m OrderedMap[RawTag]
	if err := yaml.Unmarshal([]byte("just text"), &m); err == nil {
		t.Error("Expected error decoding a scalar")
	}
}

func TestCategoryRefs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		declared bool
		ids      []string
	}{
		{"absent", "name: Task", false, nil},
		{"list", "categories: [a, b]", true, []string{"a", "b"}},
		{"empty list", "categories: []", true, []string{}},
		{"single scalar", "categories: a", true, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var task TaskDocument
			if err := yaml.Unmarshal([]byte(tt.input), &task); err != nil {
				t.Fatalf("Failed to decode task: %v", err)
			}
			if task.Categories.Declared != tt.declared {
				t.Errorf("Declared = %v, want %v", task.Categories.Declared, tt.declared)
			}
			if len(task.Categories.IDs) != len(tt.ids) {
				t.Fatalf("IDs = %v, want %v", task.Categories.IDs, tt.ids)
			}
			for i := range tt.ids {
				if task.Categories.IDs[i] != tt.ids[i] {
					t.Errorf("IDs[%d] = %q, want %q", i, task.Categories.IDs[i], tt.ids[i])
				}
			}
		})
	}
}

func TestTagCategoryFromYAML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  TagCategory
	}{
		{"number", "type: 1", CategoryMisconception},
		{"quoted number", `type: "1"`, CategoryMisconception},
		{"quoted with spaces", `type: " 0 "`, CategorySkill},
		{"missing", "name: Tag", CategorySkill},
		{"not a number", "type: skill", CategoryOther},
		{"mapping", "type: {a: 1}", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tag RawTag
			if err := yaml.Unmarshal([]byte(tt.input), &tag); err != nil {
				t.Fatalf("Failed to decode tag: %v", err)
			}
			if tag.Type != tt.want {
				t.Errorf("Type = %v, want %v", tag.Type, tt.want)
			}
		})
	}
}
