package crawler

import (
	"reflect"
	"testing"

	"github.com/docutag/crawler/models"
)

func TestSplitAuthors(t *testing.T) {
	tests := []struct {
		field string
		want  []string
	}{
		{"A. One (TA), B. Two & C. Three", []string{"A. One", "B. Two", "C. Three"}},
		{"Alice && Bob", []string{"Alice", "Bob"}},
		{"Solo", []string{"Solo"}},
		{"", nil},
		{" , & ", nil},
		{"(anonymous)", nil},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := SplitAuthors(tt.field); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitAuthors(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestAutoTags(t *testing.T) {
	src := Source{
		Platform: PlatformINGInious,
		URL:      "https://github.com/UCL-INGI/LEPL1402.git",
		License:  "CC BY-SA 4.0",
	}
	course := models.CourseRecord{Name: "LEPL1402"}

	doc := decodeTask(t, "repo/ex/task.yaml", `
author: A. One (TA), B. Two & C. Three
problems:
  q1: {type: code, language: Java}
  q2: {type: code, language: java}
  q3: {type: code, header: ".. code-block:: python"}
  q4: {type: match}
  q5: {type: multiple_choice}
`)

	want := []models.Tag{
		models.AutoTag(models.AutoPlatform, "INGINIOUS"),
		models.AutoTag(models.AutoSource, "https://github.com/UCL-INGI/LEPL1402.git"),
		models.AutoTag(models.AutoLicense, "CC BY-SA 4.0"),
		models.AutoTag(models.AutoCourse, "LEPL1402"),
		models.AutoTag(models.AutoAuthor, "A. One"),
		models.AutoTag(models.AutoAuthor, "B. Two"),
		models.AutoTag(models.AutoAuthor, "C. Three"),
		models.AutoTag(models.AutoExerciseType, "code"),
		models.AutoTag(models.AutoProgrammingLanguage, "java"),
		models.AutoTag(models.AutoProgrammingLanguage, "python"),
		models.AutoTag(models.AutoExerciseType, "multiple_choice"),
	}

	if got := AutoTags(src, course, doc); !reflect.DeepEqual(got, want) {
		t.Errorf("AutoTags() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestAutoTagsOptionalParts(t *testing.T) {
	src := Source{Platform: PlatformINGInious, URL: "https://example.com/repo.git"}

	tests := []struct {
		name  string
		input string
		want  []models.Tag
	}{
		{
			name:  "no license course or problems",
			input: "name: Bare",
			want: []models.Tag{
				models.AutoTag(models.AutoPlatform, "INGINIOUS"),
				models.AutoTag(models.AutoSource, "https://example.com/repo.git"),
			},
		},
		{
			name:  "code without language",
			input: "problems:\n  q1: {type: code_single_line}",
			want: []models.Tag{
				models.AutoTag(models.AutoPlatform, "INGINIOUS"),
				models.AutoTag(models.AutoSource, "https://example.com/repo.git"),
				models.AutoTag(models.AutoExerciseType, "code"),
				models.AutoTag(models.AutoProgrammingLanguage, UnknownLanguage),
			},
		},
		{
			name:  "match only",
			input: "problems:\n  q1: {type: match}",
			want: []models.Tag{
				models.AutoTag(models.AutoPlatform, "INGINIOUS"),
				models.AutoTag(models.AutoSource, "https://example.com/repo.git"),
				models.AutoTag(models.AutoExerciseType, "match"),
			},
		},
		{
			name:  "unclassified problem types",
			input: "problems:\n  q1: {type: file}",
			want: []models.Tag{
				models.AutoTag(models.AutoPlatform, "INGINIOUS"),
				models.AutoTag(models.AutoSource, "https://example.com/repo.git"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := decodeTask(t, "task.yaml", tt.input)
			if got := AutoTags(src, models.CourseRecord{}, doc); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AutoTags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
