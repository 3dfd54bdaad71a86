package crawler

import (
	"regexp"

	"github.com/docutag/crawler/models"
)

// UnknownLanguage is reported when no language can be inferred for a code problem
const UnknownLanguage = "UNKNOWN"

var codeBlockHeader = regexp.MustCompile(`\.\. code-block:: (\w+)`)

// InferLanguage determines the programming language of a single code problem.
// Priority: the problem's own language field, then a code-block directive in its
// header, then the first box declaring a language.
func InferLanguage(problem models.Problem) string {
	if problem.Language != "" {
		return problem.Language
	}

	if m := codeBlockHeader.FindStringSubmatch(problem.Header); m != nil {
		return m[1]
	}

	for _, box := range problem.Boxes.Values() {
		if box.Language != "" {
			return box.Language
		}
	}

	return UnknownLanguage
}
