package ocr

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTrailingWS = regexp.MustCompile(`(?m)[ \t]+$`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText tidies service output before it is written: line endings
// become \n, trailing blanks are dropped and runs of blank lines collapse to one.
// Line structure and inner spacing are kept.
func NormalizeText(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	s = reTrailingWS.ReplaceAllString(s, "")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
