package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// pandoc writes href and src as double-quoted attributes
var (
	anchorHref = regexp.MustCompile(`<a href="([^">]+)"`)
	imageSrc   = regexp.MustCompile(`<img[^>]+src="([^">]+)"`)
)

var (
	absoluteURL   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z\d+\-.]*?:`)
	windowsPath   = regexp.MustCompile(`^[a-zA-Z]:\\`)
	encodedPrefix = regexp.MustCompile(`^%.*?(https?://)`)
)

// RewriteLinks resolves the relative links of converted HTML against the course
// base URL. Only href values of anchors and src values of images change.
func RewriteLinks(description, baseURL string) string {
	description = replaceGroup(anchorHref, description, func(v string) string {
		return ResolveLink(v, baseURL)
	})
	return replaceGroup(imageSrc, description, func(v string) string {
		return ResolveLink(v, baseURL)
	})
}

// ResolveLink turns one link value into an absolute URL when a base URL is known.
//
//	"%60printf%20%3Chttps://host/x" -> "https://host/x"
//	"/course/X/img.png"            -> scheme://host of base + "/course/X/img.png"
//	"img.png"                      -> base + "/img.png"
func ResolveLink(value, baseURL string) string {
	if strings.HasPrefix(value, "%") {
		value = encodedPrefix.ReplaceAllString(value, "$1")
	}

	if IsAbsoluteURL(value) || baseURL == "" {
		return value
	}

	if strings.HasPrefix(value, "/") {
		return rootURL(baseURL) + value
	}
	return strings.TrimRight(baseURL, "/") + "/" + value
}

// IsAbsoluteURL reports whether value starts with a URL scheme
func IsAbsoluteURL(value string) bool {
	if windowsPath.MatchString(value) {
		return false
	}
	return absoluteURL.MatchString(value)
}

// rootURL keeps the scheme and host of base
func rootURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return strings.TrimRight(base, "/")
	}
	if u.Scheme == "" {
		return "//" + u.Host
	}
	return u.Scheme + "://" + u.Host
}

// replaceGroup rewrites the first capture group of every match of re in s
func replaceGroup(re *regexp.Regexp, s string, fn func(string) string) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		b.WriteString(s[last:start])
		b.WriteString(fn(s[start:end]))
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}
