package helpers

import (
	"net/mail"
	"strings"
)

// ParseAddress splits a header-style address into display name and address.
// Legacy rule files carry all sorts of near-addresses, so a value the strict
// parser rejects comes back whole in the address slot with an empty name.
func ParseAddress(s string) (name, address string) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", strings.TrimSpace(s)
	}
	return addr.Name, addr.Address
}

// FormatAddress renders a display name and address as a header value,
// quoting and encoding the name as needed. An empty name yields the bare
// address.
func FormatAddress(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}
