// Package classify assigns each sequenced file exactly one category.
package classify

import (
	"strings"

	"github.com/facturio/invoice-pipeline/constants"
)

// Classify is a pure, total function over filename and detected media type.
// Extension wins; when the extension is unknown, the media type decides.
// Anything unrecognized is UNSUPPORTED — there is no failure mode.
func Classify(name, mediaType string) constants.Classification {
	if c := constants.ClassifyName(name); c != constants.UNSUPPORTED {
		return c
	}
	return classifyMediaType(mediaType)
}

func classifyMediaType(mediaType string) constants.Classification {
	base := mediaType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch {
	case base == "application/pdf":
		return constants.DOCUMENT
	case base == "image/jpeg" || base == "image/png":
		return constants.IMAGE
	case strings.HasPrefix(base, "text/"):
		return constants.TEXT
	default:
		return constants.UNSUPPORTED
	}
}

// Extractable reports whether files of this classification are submitted to
// the model. TEXT and UNSUPPORTED files are informational only.
func Extractable(c constants.Classification) bool {
	return c == constants.IMAGE || c == constants.DOCUMENT
}
