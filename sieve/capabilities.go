package sieve

import (
	"fmt"
	"strings"

	"github.com/migadu/procsieve/consts"
)

// GoSieveSupportedExtensions lists all SIEVE extensions that the go-sieve
// library (github.com/migadu/go-sieve) can validate and execute.
//
// This is the authoritative list of what can be configured in
// enabled_extensions. Scripts requiring extensions outside this list cannot
// be checked by the validator, only emitted.
//
// NOTE: Core RFC 5228 commands (require, if/elsif/else, stop, redirect, keep,
// discard) are always available and don't need to be in this list.
//
// Based on: github.com/migadu/go-sieve@v0.0.0-20250924160026-17d8f94a0a43/interp/load.go
var GoSieveSupportedExtensions = []string{
	// Core extensions from RFC 5228
	"fileinto",          // RFC 5228 - Store messages in specified mailbox
	"envelope",          // RFC 5228 - Test envelope addresses
	"encoded-character", // RFC 5228 - Encoded character support

	// Comparators
	"comparator-i;octet",           // RFC 4790 - Octet comparator
	"comparator-i;ascii-casemap",   // RFC 4790 - ASCII case-insensitive
	"comparator-i;ascii-numeric",   // RFC 4790 - ASCII numeric
	"comparator-i;unicode-casemap", // RFC 4790 - Unicode case-insensitive

	// Common extensions
	"imap4flags", // RFC 5232 - IMAP flag manipulation
	"variables",  // RFC 5229 - Variable support
	"relational", // RFC 5231 - Relational tests (gt, lt, etc.)
	"vacation",   // RFC 5230 - Vacation auto-responder
	"copy",       // RFC 3894 - Copy extension for redirect and fileinto
	"regex",      // draft-murchison-sieve-regex - Regular expression match type

	// Extensions the translator leans on
	"date",       // RFC 5260 - Date/time tests
	"index",      // RFC 5260 - Indexed header tests
	"editheader", // RFC 5293 - Header add/delete
	"mailbox",    // RFC 5490 - mailboxexists and fileinto :create
	"subaddress", // RFC 5233 - :user/:detail address parts
}

// ValidateExtensions checks if the provided extensions are supported by
// go-sieve. Returns an error listing any invalid extensions.
func ValidateExtensions(extensions []string) error {
	if len(extensions) == 0 {
		return nil
	}

	supportedMap := make(map[string]bool)
	for _, ext := range GoSieveSupportedExtensions {
		supportedMap[ext] = true
	}

	var invalid []string
	for _, ext := range extensions {
		if !supportedMap[ext] {
			invalid = append(invalid, ext)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: %s (go-sieve supports: %s)",
			consts.ErrUnsupportedExtension,
			strings.Join(invalid, ", "),
			strings.Join(GoSieveSupportedExtensions, ", "))
	}

	return nil
}

// UnvalidatableExtensions returns the subset of required that go-sieve
// cannot load. The translator can emit a few capabilities beyond what the
// validator understands (body, enotify, include, vacation-seconds); a script
// requiring one of those is emitted unchecked.
func UnvalidatableExtensions(required []string) []string {
	supportedMap := make(map[string]bool)
	for _, ext := range GoSieveSupportedExtensions {
		supportedMap[ext] = true
	}

	var missing []string
	for _, ext := range required {
		if !supportedMap[ext] {
			missing = append(missing, ext)
		}
	}
	return missing
}
