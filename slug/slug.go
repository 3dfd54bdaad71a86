package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLength = 100

var (
	invalidChars = regexp.MustCompile("[^a-z0-9-]+")
	hyphenRuns   = regexp.MustCompile("-+")
)

// Generate creates a URL-friendly slug from a string
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	// Transliterate unicode to ASCII
	s = transliterate(s)

	// Spaces, underscores and dots separate words
	s = strings.NewReplacer(" ", "-", "_", "-", ".", "-").Replace(s)

	s = invalidChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxLength {
		s = strings.TrimRight(s[:maxLength], "-")
	}

	return s
}

// GenerateWithFallback generates a slug, falling back to a default if the input produces an empty slug
func GenerateWithFallback(s, fallback string) string {
	slug := Generate(s)
	if slug == "" {
		return Generate(fallback)
	}
	return slug
}

// transliterate converts unicode characters to ASCII equivalents
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// isMn checks if a rune is a nonspacing mark (accents, diacritics)
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// MakeUnique appends a number to a slug to make it unique
func MakeUnique(slug string, counter int) string {
	if counter == 0 {
		return slug
	}
	return slug + "-" + strconv.Itoa(counter)
}

// FromRepositoryURL generates a slug from a git repository URL.
// The last path segment names the repository; "repository" is used when it is empty.
func FromRepositoryURL(gitURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(gitURL), "/")
	name := trimmed[strings.LastIndexAny(trimmed, "/:")+1:]
	name = strings.TrimSuffix(name, ".git")
	return GenerateWithFallback(name, "repository")
}
