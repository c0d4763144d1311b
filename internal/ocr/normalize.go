package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reRuleNoise  = regexp.MustCompile(`(?m)^\s*[_\-=*]{3,}\s*$`)
	reO0Artifact = regexp.MustCompile(`\b0([A-Za-z]{2,})\b`) // "0rder" style O/0 swaps
)

// Normalize collapses noisy whitespace and fixes common OCR artifacts.
// Conservative: line breaks survive, blank-line runs shrink to one, and
// separator-rule lines (----- / =====) are dropped.
func Normalize(s string) string {
	if s == "" {
		return s
	}

	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reRuleNoise.ReplaceAllString(s, "")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")

	s = reO0Artifact.ReplaceAllString(s, "O$1")

	return strings.TrimSpace(s)
}
