package constants

import (
	"path/filepath"
	"strings"
)

// Classification is the single category assigned to every archive member.
type Classification string

// Stable values (these exact strings appear in job output and DB rows).
const (
	TEXT        Classification = "TEXT"
	IMAGE       Classification = "IMAGE"
	DOCUMENT    Classification = "DOCUMENT"
	UNSUPPORTED Classification = "UNSUPPORTED"
)

// extClassifications maps normalized file extensions to their classification.
var extClassifications = map[string]Classification{
	"txt":  TEXT,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"png":  IMAGE,
	"pdf":  DOCUMENT,
}

// expectedMediaTypes lists the media types we accept for each classification.
// A mismatch does not change the classification; callers may log it.
var expectedMediaTypes = map[Classification][]string{
	TEXT:     {"text/plain"},
	IMAGE:    {"image/jpeg", "image/png"},
	DOCUMENT: {"application/pdf"},
}

// IrrelevantPatterns are substrings of filenames that identify WhatsApp noise
// (stickers, thumbnails, audio notes) we never extract from.
var IrrelevantPatterns = []string{
	"sticker", "thumbnail", ".gif", ".webp",
	".mp3", ".opus", ".m4a", ".aac",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ClassifyName maps a filename to its classification by extension alone.
func ClassifyName(name string) Classification {
	if c, ok := extClassifications[NormalizeExt(filepath.Ext(name))]; ok {
		return c
	}
	return UNSUPPORTED
}

// MediaTypeMatches reports whether a detected media type is one we expect for
// the classification. Media types may carry parameters ("text/plain; charset=utf-8").
func MediaTypeMatches(c Classification, mediaType string) bool {
	expected, ok := expectedMediaTypes[c]
	if !ok {
		return false
	}
	base := mediaType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	for _, e := range expected {
		if base == e {
			return true
		}
	}
	return false
}

// IsIrrelevantName reports whether a filename matches a known noise pattern.
func IsIrrelevantName(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range IrrelevantPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
