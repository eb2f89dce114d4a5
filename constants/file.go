package constants

import "strings"

// AllowedExtensions holds the document extensions picked up by directory scans.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// OutputSuffix is appended to a document's stem to name its text artifact.
const OutputSuffix = "_ocr.txt"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without the dot) is a supported document type.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// OutputName returns the artifact file name for a document file name: "report.pdf" -> "report_ocr.txt".
func OutputName(docName string) string {
	base := docName
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base + OutputSuffix
}
