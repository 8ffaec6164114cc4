package extract

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Tokens dropped when deriving a name from a CV filename. Anything left after
// filtering is treated as name parts.
var filenameNoise = map[string]struct{}{
	"cv":          {},
	"resume":      {},
	"curriculum":  {},
	"vitae":       {},
	"final":       {},
	"draft":       {},
	"new":         {},
	"updated":     {},
	"latest":      {},
	"copy":        {},
	"version":     {},
	"application": {},
}

// NameFromFilename derives a best-effort first/last name from a CV filename,
// for example "john_smith_cv_v2.pdf" becomes ("John", "Smith"). It is the
// fallback when extraction fails and must never error: an unusable filename
// yields empty strings.
func NameFromFilename(fileName string) (string, string) {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))

	rawTokens := strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	parts := make([]string, 0, 3)
	for _, token := range rawTokens {
		lower := strings.ToLower(token)
		if _, noise := filenameNoise[lower]; noise {
			continue
		}
		if len([]rune(lower)) < 2 {
			continue
		}
		parts = append(parts, titleCase(lower))
		if len(parts) == 3 {
			break
		}
	}

	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	case 2:
		return parts[0], parts[1]
	default:
		// Three usable tokens: treat the first as a given name and the rest
		// as a compound surname.
		return parts[0], parts[1] + " " + parts[2]
	}
}

func titleCase(lower string) string {
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
