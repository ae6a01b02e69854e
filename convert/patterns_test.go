package convert

import "testing"

func TestEregAsWildcard(t *testing.T) {
	tests := []struct {
		name        string
		pattern     string
		anchorStart bool
		anchorEnd   bool
		want        string
		ok          bool
	}{
		{
			name:        "Empty anchored",
			pattern:     "",
			anchorStart: true,
			anchorEnd:   true,
			want:        "",
			ok:          true,
		},
		{
			name:      "Empty without start anchor",
			pattern:   "",
			anchorEnd: true,
			want:      "*",
			ok:        true,
		},
		{
			name:        "Literal fully anchored",
			pattern:     "abc123",
			anchorStart: true,
			anchorEnd:   true,
			want:        "abc123",
			ok:          true,
		},
		{
			name:      "Loose start gains a leading star",
			pattern:   "abc123",
			anchorEnd: true,
			want:      "*abc123",
			ok:        true,
		},
		{
			name:    "Loose ends gain stars on both sides",
			pattern: "abc123",
			want:    "*abc123*",
			ok:      true,
		},
		{
			name:      "Leading dotstar folds into the implicit star",
			pattern:   ".*abc123",
			anchorEnd: true,
			want:      "*abc123",
			ok:        true,
		},
		{
			name:        "Interior dotstar",
			pattern:     "order.*status",
			anchorStart: true,
			anchorEnd:   true,
			want:        "order*status",
			ok:          true,
		},
		{
			name:        "Dot becomes a single wildcard",
			pattern:     "abc.",
			anchorStart: true,
			anchorEnd:   true,
			want:        "abc?",
			ok:          true,
		},
		{
			name:        "Escaped dot unescapes",
			pattern:     `a@b\.c`,
			anchorStart: true,
			anchorEnd:   true,
			want:        "a@b.c",
			ok:          true,
		},
		{
			name:        "Escaped wildcard bytes keep their escapes",
			pattern:     `abc\*\?`,
			anchorStart: true,
			anchorEnd:   true,
			want:        `abc\*\?`,
			ok:          true,
		},
		{
			name:      "Bare star is not even a regexp",
			pattern:   "*abc123",
			anchorEnd: true,
			ok:        false,
		},
		{
			name:        "Trailing repetition star",
			pattern:     "abc*",
			anchorStart: true,
			anchorEnd:   true,
			ok:          false,
		},
		{
			name:        "Counted repetition",
			pattern:     "abc{3}",
			anchorStart: true,
			anchorEnd:   true,
			ok:          false,
		},
		{
			name:        "Character class",
			pattern:     "ab[cd]",
			anchorStart: true,
			anchorEnd:   true,
			ok:          false,
		},
		{
			name:        "Alternation",
			pattern:     "a|b",
			anchorStart: true,
			anchorEnd:   true,
			ok:          false,
		},
		{
			name:        "Plus repetition",
			pattern:     "ab+c",
			anchorStart: true,
			anchorEnd:   true,
			ok:          false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EregAsWildcard(tt.pattern, tt.anchorStart, tt.anchorEnd)
			if got != tt.want || ok != tt.ok {
				t.Errorf("EregAsWildcard(%q, %v, %v) = %q, %v, want %q, %v",
					tt.pattern, tt.anchorStart, tt.anchorEnd, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAnalyzeValue(t *testing.T) {
	tests := []struct {
		name        string
		value       string
		anchorStart bool
		matchType   string
		key         string
	}{
		{
			name:        "Bare literal is a substring match",
			value:       "urgent",
			anchorStart: true,
			matchType:   ":contains",
			key:         "urgent",
		},
		{
			name:        "Fully anchored literal is an exact match",
			value:       "^urgent$",
			anchorStart: true,
			matchType:   ":is",
			key:         "urgent",
		},
		{
			name:      "Anchors mean nothing without start anchoring",
			value:     "^urgent$",
			matchType: ":contains",
			key:       "urgent",
		},
		{
			name:        "Escapes unescape inside literals",
			value:       `weekly\.report`,
			anchorStart: true,
			matchType:   ":contains",
			key:         "weekly.report",
		},
		{
			name:        "Spaces are literal",
			value:       "money fast",
			anchorStart: true,
			matchType:   ":contains",
			key:         "money fast",
		},
		{
			name:      "Dotstar pattern becomes a wildcard",
			value:     `.*@example\.org`,
			matchType: ":matches",
			key:       "*@example.org*",
		},
		{
			name:        "Anchored wildcard keeps its open end",
			value:       "order.*status",
			anchorStart: true,
			matchType:   ":matches",
			key:         "order*status*",
		},
		{
			name:        "Alternation falls back to a regex match",
			value:       "(urgent|important)",
			anchorStart: true,
			matchType:   ":regex",
			key:         "(urgent|important)",
		},
		{
			name:        "Character class falls back to a regex match",
			value:       "[Uu]rgent",
			anchorStart: true,
			matchType:   ":regex",
			key:         "[Uu]rgent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matchType, key := AnalyzeValue(tt.value, tt.anchorStart)
			if matchType != tt.matchType || key != tt.key {
				t.Errorf("AnalyzeValue(%q, %v) = %q, %q, want %q, %q",
					tt.value, tt.anchorStart, matchType, key, tt.matchType, tt.key)
			}
		})
	}
}
