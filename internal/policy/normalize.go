package policy

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeToolName NFC-normalizes and lower-cases a tool name so matching
// is both Unicode- and case-insensitive (§4.2).
func NormalizeToolName(name string) string {
	return strings.ToLower(norm.NFC.String(name))
}

// looksPathLike reports whether s should go through path normalization
// before matching, per §4.2: "if it looks path-like (contains / or \,
// starts with . or ~)".
func looksPathLike(s string) bool {
	return strings.ContainsAny(s, `/\`) || strings.HasPrefix(s, ".") || strings.HasPrefix(s, "~")
}

// normalizePathValue replaces backslashes with forward slashes and resolves
// "." and ".." segments, without touching the filesystem.
func normalizePathValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `/`)
	trailingSlash := len(s) > 1 && strings.HasSuffix(s, "/")
	cleaned := path.Clean(s)
	if trailingSlash && !strings.HasSuffix(cleaned, "/") {
		cleaned += "/"
	}
	return cleaned
}

// NormalizeArgumentValue stringifies an arbitrary argument value, applies
// NFC normalization, then path-normalizes it if it looks path-like. This is
// the function the §8.5 commutativity property is checked against:
// evaluate({path: p}) == evaluate({path: normalize(p)}).
func NormalizeArgumentValue(v any) string {
	s := stringify(v)
	s = norm.NFC.String(s)
	if looksPathLike(s) {
		s = normalizePathValue(s)
	}
	return s
}

// stringify converts an argument leaf to its string form for matching.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
