package convert

import (
	"regexp"
	"strings"
)

// Condition values that are nothing but literal text (with optional anchors)
// can match with :is or :contains instead of dragging in the regex extension.
var (
	literalValue   = regexp.MustCompile(`^(\^)?((?:[ A-Za-z0-9@_-]|\\.)*)(\$)?$`)
	escapedByte    = regexp.MustCompile(`\\(.)`)
	irregularBytes = "*.^$+?{}()[]|"
)

// AnalyzeValue classifies a condition's value expression and returns the
// cheapest match type that preserves it: a plain string with :is or
// :contains, a wildcard pattern with :matches, or the original expression
// with :regex as the last resort. anchorStart says whether the match would
// be anchored at the start of the tested value, which decides whether a ^$
// pair means exact equality and whether an unanchored pattern needs a
// leading wildcard.
func AnalyzeValue(value string, anchorStart bool) (matchType, key string) {
	if m := literalValue.FindStringSubmatch(value); m != nil {
		text := escapedByte.ReplaceAllString(m[2], "$1")
		if anchorStart && m[1] != "" && m[3] != "" {
			return ":is", text
		}
		return ":contains", text
	}
	if wildcard, ok := EregAsWildcard(value, anchorStart, false); ok {
		return ":matches", wildcard
	}
	return ":regex", value
}

// EregAsWildcard rewrites a POSIX extended regexp into a Sieve :matches
// wildcard when the pattern only uses constructs a wildcard can express:
// literal text, ".", ".*", and escapes. Anything else reports false. The
// anchor arguments say which ends of the pattern were anchored; an
// unanchored end gains a "*".
func EregAsWildcard(pattern string, anchorStart, anchorEnd bool) (string, bool) {
	var b strings.Builder
	if !anchorStart {
		b.WriteByte('*')
	}
	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], `\*`), strings.HasPrefix(pattern[i:], `\?`):
			// Wildcard metacharacters have no escape in Sieve patterns.
			b.WriteString(pattern[i : i+2])
			i += 2
		case pattern[i] == '\\' && i+1 < len(pattern) && strings.IndexByte(irregularBytes, pattern[i+1]) >= 0:
			b.WriteByte(pattern[i+1])
			i += 2
		case strings.HasPrefix(pattern[i:], ".*"):
			if !anchorStart && i == 0 {
				// The leading * already covers it.
			} else {
				b.WriteByte('*')
			}
			i += 2
		case pattern[i] == '.':
			b.WriteByte('?')
			i++
		case strings.IndexByte(irregularBytes, pattern[i]) < 0:
			b.WriteByte(pattern[i])
			i++
		default:
			return "", false
		}
	}
	out := b.String()
	if !anchorEnd && !strings.HasSuffix(out, "*") {
		out += "*"
	}
	return out, true
}
