package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		expName string
		expAddr string
	}{
		{"bare address", "alice@example.org", "", "alice@example.org"},
		{"named address", "Alice Example <alice@example.org>", "Alice Example", "alice@example.org"},
		{"quoted name", `"Example, Alice" <alice@example.org>`, "Example, Alice", "alice@example.org"},
		{"local part only", "alice", "", "alice"},
		{"not an address", "the whole office", "", "the whole office"},
		{"surrounding space", "  bob  ", "", "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, addr := ParseAddress(tt.input)
			require.Equal(t, tt.expName, name)
			require.Equal(t, tt.expAddr, addr)
		})
	}
}

func TestFormatAddress(t *testing.T) {
	require.Equal(t, "alice@example.org", FormatAddress("", "alice@example.org"))
	require.Equal(t, `"Alice" <alice@example.org>`, FormatAddress("Alice", "alice@example.org"))
	require.Equal(t, `"Example, Alice" <alice@example.org>`, FormatAddress("Example, Alice", "alice@example.org"))
}

func TestParseFormatRoundTrip(t *testing.T) {
	name, addr := ParseAddress(`"Postmaster" <postmaster@example.org>`)
	require.Equal(t, `"Postmaster" <postmaster@example.org>`, FormatAddress(name, addr))
}
