package crawler

import (
	"regexp"
	"slices"
	"strings"

	"github.com/docutag/crawler/models"
)

// titleRule rewrites a title matching pattern and proposes tags for it
type titleRule struct {
	name    string
	pattern *regexp.Regexp
	apply   func(m []string) (title string, proposals []models.Tag)
}

// titleRules are evaluated top-down; the first match wins
var titleRules = []titleRule{
	{
		name:    "exam-session",
		pattern: regexp.MustCompile(`(?im)\[((?:Septembre|Juin)\s[0-9]{4,}).*\]\s*-?\s*([^\s-].*)$`),
		apply: func(m []string) (string, []models.Tag) {
			return m[2], []models.Tag{
				examTag("exam"),
				models.DeclaredTag(models.CategoryOther, strings.TrimSpace(m[1])),
			}
		},
	},
	{
		name:    "exam",
		pattern: regexp.MustCompile(`(?im)EXAM.+\s-(.+)$`),
		apply: func(m []string) (string, []models.Tag) {
			return m[1], []models.Tag{examTag("exam")}
		},
	},
	{
		name:    "midterm",
		pattern: regexp.MustCompile(`(?im)mid-?term(.+)$`),
		apply: func(m []string) (string, []models.Tag) {
			return m[1], []models.Tag{examTag("midterm")}
		},
	},
	{
		name:    "mission",
		pattern: regexp.MustCompile(`(?im)(?:Bilan\sM|Mission)\s?([0-9]+)[\s\-:]+(.+)$`),
		apply: func(m []string) (string, []models.Tag) {
			return m[2], []models.Tag{
				models.DeclaredTag(models.CategoryOther, "Mission "+strings.TrimSpace(m[1])),
			}
		},
	},
	{
		name:    "categorized",
		pattern: regexp.MustCompile(`(?im)\[(.+)\]\s(.+)$`),
		apply: func(m []string) (string, []models.Tag) {
			return m[2], []models.Tag{
				models.DeclaredTag(models.CategoryOther, strings.TrimSpace(m[1])),
			}
		},
	},
	{
		name:    "garbage",
		pattern: regexp.MustCompile(`(?im)PART\s[0-9]+\s-(.+)$`),
		apply: func(m []string) (string, []models.Tag) {
			return m[1], nil
		},
	},
}

func examTag(kind string) models.Tag {
	return models.AutoTag(models.AutoExerciseType, kind)
}

// NormalizeTitle strips structural labels (exam sessions, midterms, missions, week
// labels, boilerplate) from the exercise title and turns them into tags. The input is
// left untouched; titles matching no rule pass through unchanged.
func NormalizeTitle(ex models.Exercise) models.Exercise {
	out := ex
	out.Tags = slices.Clone(ex.Tags)

	for _, rule := range titleRules {
		m := rule.pattern.FindStringSubmatch(ex.Title)
		if m == nil {
			continue
		}
		title, proposals := rule.apply(m)
		// a rule must leave a real title behind
		if strings.Trim(title, " \t-") == "" {
			continue
		}
		out.Title = strings.TrimSpace(title)
		out.Tags = AppendMissingTags(out.Tags, proposals...)
		break
	}

	return out
}

// AppendMissingTags appends the proposals that tags does not already carry.
// Tags only match tags of the same kind, on category and case-insensitive text.
func AppendMissingTags(tags []models.Tag, proposals ...models.Tag) []models.Tag {
	existing := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		existing[t.Key()] = struct{}{}
	}
	for _, p := range proposals {
		if _, ok := existing[p.Key()]; ok {
			continue
		}
		existing[p.Key()] = struct{}{}
		tags = append(tags, p)
	}
	return tags
}
