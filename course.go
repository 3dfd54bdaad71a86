package crawler

import (
	"path/filepath"
	"strings"

	"github.com/docutag/crawler/models"
)

// ResolveCourse finds the course owning the exercise at exercisePath.
// Every course whose directory contains the exercise qualifies; the longest course
// path wins so nested courses take precedence over their ancestors.
// It returns false with an empty record when no course matches.
func ResolveCourse(exercisePath string, courses map[string]models.CourseRecord) (models.CourseRecord, bool) {
	exercisePath = filepath.ToSlash(filepath.Clean(exercisePath))

	var match string
	for coursePath := range courses {
		dir := filepath.ToSlash(filepath.Dir(filepath.Clean(coursePath)))
		if !isUnder(exercisePath, dir) {
			continue
		}
		// equal lengths are broken lexically so the result never depends on map order
		if len(coursePath) > len(match) || (len(coursePath) == len(match) && coursePath < match) {
			match = coursePath
		}
	}

	if match == "" {
		return models.CourseRecord{}, false
	}
	return courses[match], true
}

// isUnder reports whether path lies inside dir, on a path segment boundary
func isUnder(path, dir string) bool {
	if dir == "." || dir == "" {
		return !filepath.IsAbs(path)
	}
	if dir == "/" {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, dir+"/")
}
