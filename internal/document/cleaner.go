package document

import (
	"regexp"
	"strings"
)

// Cleaner normalizes raw extracted text before chunking.
type Cleaner struct {
	blankLinesRegex *regexp.Regexp
	horizontalRegex *regexp.Regexp
}

// NewCleaner creates a text cleaner.
func NewCleaner() *Cleaner {
	return &Cleaner{
		blankLinesRegex: regexp.MustCompile(`\n\s*\n+`),
		horizontalRegex: regexp.MustCompile(`[ \t]+`),
	}
}

// Clean normalizes text: carriage returns become newlines, runs of blank
// lines collapse to a single blank line, runs of horizontal whitespace
// collapse to one space, and the ends are trimmed.
func (c *Cleaner) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = c.blankLinesRegex.ReplaceAllString(text, "\n\n")
	text = c.horizontalRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
