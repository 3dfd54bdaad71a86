package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TagCategory is the behaviour class of a declared tag
type TagCategory int

const (
	// CategorySkill tags are searchable and can be toggled by users
	CategorySkill TagCategory = 0
	// CategoryMisconception tags are UI-only and never searchable
	CategoryMisconception TagCategory = 1
	// CategoryOther tags are only used for grouping and search
	CategoryOther TagCategory = 2
)

// Internal category labels carried by auto-generated tags
const (
	AutoPlatform            = "_PLATFORM_"
	AutoSource              = "_SOURCE_"
	AutoLicense             = "_LICENSE_"
	AutoCourse              = "_COURSE_"
	AutoAuthor              = "_AUTHOR_"
	AutoExerciseType        = "_EXERCISE-TYPE_"
	AutoProgrammingLanguage = "_PROGRAMMING-LANGUAGE_"
)

// OwnCategories is the label table published with every catalog
var OwnCategories = map[TagCategory]string{
	CategorySkill:         "thématique",
	CategoryMisconception: "Misconception",
	CategoryOther:         "autres",
}

// Catalog is the output of one crawl run
type Catalog struct {
	Exercises      []Exercise             `json:"exercises"`
	OwnCategories  map[TagCategory]string `json:"own_categories"`
	ExtractionDate time.Time              `json:"extraction_date"`
	URL            string                 `json:"url"`
}

// Exercise is the normalized catalog entry built from one task document
type Exercise struct {
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Tags              []Tag              `json:"tags"`
	URL               string             `json:"url,omitempty"`
	ArchiveProperties *ArchiveProperties `json:"archive_properties,omitempty"`
}

// ArchiveProperties lists the repository paths needed to rebuild an exercise archive
type ArchiveProperties struct {
	Folders []string `json:"folders"`
	Files   []string `json:"files"`
}

// Tag is either a declared tag (catalog or inline data) or an auto-generated one.
// Declared tags use Category, auto-generated tags use CategoryID.
type Tag struct {
	Text          string
	Category      TagCategory
	AutoGenerated bool
	CategoryID    string
}

// DeclaredTag builds a tag sourced from course or task data
func DeclaredTag(category TagCategory, text string) Tag {
	return Tag{Text: text, Category: category}
}

// AutoTag builds a tag synthesized by the crawler
func AutoTag(categoryID, text string) Tag {
	return Tag{Text: text, AutoGenerated: true, CategoryID: categoryID}
}

// Key identifies a tag for deduplication: kind, category and lower-cased text
func (t Tag) Key() string {
	if t.AutoGenerated {
		return "auto|" + t.CategoryID + "|" + strings.ToLower(t.Text)
	}
	return fmt.Sprintf("declared|%d|%s", t.Category, strings.ToLower(t.Text))
}

type declaredTagJSON struct {
	Category TagCategory `json:"category"`
	Text     string      `json:"text"`
}

type autoTagJSON struct {
	AutoGenerated bool   `json:"autoGenerated"`
	CategoryID    string `json:"category_id"`
	Text          string `json:"text"`
}

// MarshalJSON writes the shape matching the tag kind
func (t Tag) MarshalJSON() ([]byte, error) {
	if t.AutoGenerated {
		return json.Marshal(autoTagJSON{AutoGenerated: true, CategoryID: t.CategoryID, Text: t.Text})
	}
	return json.Marshal(declaredTagJSON{Category: t.Category, Text: t.Text})
}

// UnmarshalJSON reads either tag shape
func (t *Tag) UnmarshalJSON(data []byte) error {
	var raw struct {
		AutoGenerated bool        `json:"autoGenerated"`
		CategoryID    string      `json:"category_id"`
		Category      TagCategory `json:"category"`
		Text          string      `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.AutoGenerated {
		*t = AutoTag(raw.CategoryID, raw.Text)
		return nil
	}
	*t = DeclaredTag(raw.Category, raw.Text)
	return nil
}

// TagDefinition is one entry of a course tag catalog
type TagDefinition struct {
	ID       string
	Text     string
	Category TagCategory
}

// Tag strips the routing id and returns the public tag shape
func (d TagDefinition) Tag() Tag {
	return DeclaredTag(d.Category, d.Text)
}

// CourseRecord is a parsed course document with its tag catalog
type CourseRecord struct {
	Path       string
	Name       string
	TagCatalog map[string]TagDefinition
	// Order keeps the declaration order of TagCatalog ids
	Order []string
}

// Definitions returns the catalog entries in declaration order
func (c CourseRecord) Definitions() []TagDefinition {
	defs := make([]TagDefinition, 0, len(c.Order))
	for _, id := range c.Order {
		defs = append(defs, c.TagCatalog[id])
	}
	return defs
}

// CrawlRun is a stored catalog together with its bookkeeping
type CrawlRun struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Slug          string    `json:"slug"`
	StoragePath   string    `json:"storage_path,omitempty"`
	ExerciseCount int       `json:"exercise_count"`
	CreatedAt     time.Time `json:"created_at"`
	Cached        bool      `json:"cached"`
	Catalog       *Catalog  `json:"catalog,omitempty"`
}

// ExerciseHit is a search result over stored exercises
type ExerciseHit struct {
	ID      string   `json:"id"`
	RunID   string   `json:"run_id"`
	Title   string   `json:"title"`
	URL     string   `json:"url,omitempty"`
	Tags    []string `json:"tags"`
	Snippet string   `json:"snippet,omitempty"`
}

// CrawlRequest represents a request to crawl one repository
type CrawlRequest struct {
	URL          string `json:"url"`
	License      string `json:"license,omitempty"`
	InginiousURL string `json:"inginious_url,omitempty"`
	Force        bool   `json:"force"`
}
