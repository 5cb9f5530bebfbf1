// internal/navigator/text.go
package navigator

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// svgFallbackCaption is the fallback text some icon sets render inside
// labels; it carries no meaning and pollutes extracted questions.
const svgFallbackCaption = "SVGs not supported by this browser."

// CleanText strips the SVG fallback caption and collapses runs of
// whitespace to single spaces. The caption goes first so the gap it leaves
// is collapsed too.
func CleanText(text string) string {
	cleaned := strings.ReplaceAll(text, svgFallbackCaption, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

// NormalizeLabel strips the SVG fallback caption and surrounding space.
// Interior whitespace is kept because label sources are already cleaned.
func NormalizeLabel(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, svgFallbackCaption, ""))
}

// asciiFolder decomposes accented characters and drops the combining
// marks, so slugs stay portable across filesystems.
var asciiFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldASCII(s string) string {
	out, _, err := transform.String(asciiFolder, s)
	if err != nil {
		return s
	}
	return out
}

// JobNameFromURL derives a filesystem-friendly job name from the posting
// URL: the last path segment minus query and markup suffixes, fragment
// separators turned into dashes, accents folded, lowercased. An empty
// result falls back to a generic name.
func JobNameFromURL(jobURL string) string {
	slug := strings.TrimRight(jobURL, "/")
	if idx := strings.LastIndex(slug, "/"); idx >= 0 {
		slug = slug[idx+1:]
	}
	slug, _, _ = strings.Cut(slug, "?")
	slug = strings.ReplaceAll(slug, ".html", "")
	slug = strings.ReplaceAll(slug, ".htm", "")
	slug = strings.ReplaceAll(slug, "#", "-")
	slug = foldASCII(slug)
	if slug == "" {
		return "job-application"
	}
	return strings.ToLower(slug)
}
