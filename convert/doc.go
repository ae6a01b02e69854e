// Package convert lowers parsed procmail rules and .forward alias files
// into Sieve commands.
//
// The translation walks each rule file once, in document order. A tree of
// contexts (an arena indexed by parent links) tracks the variable bindings
// procmail would have at that point and the control-flow position of the
// output: procmail's "first delivering recipe wins" fallthrough becomes an
// explicit if/elsif chain with a trailing else for the unconditional tail.
// Conditions pass through a pattern analyzer that proves a regular
// expression exact as a Sieve :is, :contains, or :matches argument and
// falls back to the regex extension otherwise. Recipes that pipe into one
// of the few well-known programs (vacation, spamc, procmail itself, the
// local away-window script) are emulated from a fixed registry; every
// other external command, and every construct without a Sieve equivalent,
// is reported on the run's Diagnostics and lowered to an inert,
// clearly-marked placeholder instead of a guess.
//
// Run ties it together for one user: subaddress .forward files, the plain
// .forward, then .procmailrc, assembled into a single script whose require
// line is computed from what the translation actually used.
package convert
