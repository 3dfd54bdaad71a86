package crawler

import (
	"regexp"
	"slices"
	"strings"

	"github.com/docutag/crawler/models"
)

// Problem types grouped by the kind of exercise they indicate
var (
	textProblemTypes = []string{"multiple_choice", "match"}
	codeProblemTypes = []string{"code", "code_single_line"}
)

var (
	authorSeparator = regexp.MustCompile(`,|&{1,2}`)
	authorCredit    = regexp.MustCompile(`\s*\(.*?\)\s*`)
)

// Source describes where a crawled repository comes from
type Source struct {
	Platform string // platform name, e.g. INGINIOUS
	URL      string // origin of the repository
	License  string // optional SPDX identifier
}

// AutoTags synthesizes the tags the crawler can infer for one task: platform,
// source, license, course, authors, exercise kind and programming languages.
func AutoTags(src Source, course models.CourseRecord, doc models.TaskDocument) []models.Tag {
	tags := []models.Tag{
		models.AutoTag(models.AutoPlatform, src.Platform),
		models.AutoTag(models.AutoSource, src.URL),
	}

	if src.License != "" {
		tags = append(tags, models.AutoTag(models.AutoLicense, src.License))
	}

	if course.Name != "" {
		tags = append(tags, models.AutoTag(models.AutoCourse, course.Name))
	}

	for _, author := range SplitAuthors(doc.Author) {
		tags = append(tags, models.AutoTag(models.AutoAuthor, author))
	}

	return append(tags, problemTags(doc.Problems)...)
}

// SplitAuthors splits an author field on commas, "&" and "&&", dropping empty names
// and parenthesized credits such as "(TA)".
func SplitAuthors(field string) []string {
	var authors []string
	for _, part := range authorSeparator.Split(field, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := authorCredit.ReplaceAllString(part, "")
		if name == "" {
			continue
		}
		authors = append(authors, name)
	}
	return authors
}

type problemKind struct {
	problemType string
	language    string
}

// problemTags classifies problems into text and code ones. Both rules may fire
// for the same task.
func problemTags(problems models.OrderedMap[models.Problem]) []models.Tag {
	var code, text []problemKind
	for _, p := range problems.Values() {
		switch {
		case slices.Contains(textProblemTypes, p.Type):
			text = append(text, problemKind{problemType: p.Type})
		case slices.Contains(codeProblemTypes, p.Type):
			code = append(code, problemKind{problemType: p.Type, language: InferLanguage(p)})
		}
	}

	var tags []models.Tag
	if len(code) > 0 {
		tags = append(tags, codeProblemTags(code)...)
	}
	if len(text) > 0 {
		tags = append(tags, textProblemTags(text)...)
	}
	return tags
}

func codeProblemTags(problems []problemKind) []models.Tag {
	tags := []models.Tag{models.AutoTag(models.AutoExerciseType, "code")}

	var languages []string
	for _, p := range problems {
		if p.language == UnknownLanguage {
			continue
		}
		lang := strings.ToLower(p.language)
		if !slices.Contains(languages, lang) {
			languages = append(languages, lang)
		}
	}

	for _, lang := range languages {
		tags = append(tags, models.AutoTag(models.AutoProgrammingLanguage, lang))
	}
	if len(languages) == 0 {
		tags = append(tags, models.AutoTag(models.AutoProgrammingLanguage, UnknownLanguage))
	}
	return tags
}

func textProblemTags(problems []problemKind) []models.Tag {
	exerciseType := "match"
	for _, p := range problems {
		if p.problemType == "multiple_choice" {
			exerciseType = "multiple_choice"
			break
		}
	}
	return []models.Tag{models.AutoTag(models.AutoExerciseType, exerciseType)}
}
