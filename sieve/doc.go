// Package sieve models SIEVE (RFC 5228) scripts as an immutable command tree
// and renders them with deterministic CRLF formatting. This package provides:
//   - RFC 5228 base controls, actions, and tests
//   - RFC 5229 variables, RFC 5230/6131 vacation, RFC 5231 relational
//   - RFC 5233 subaddress, RFC 5260 date, RFC 5293 editheader
//   - RFC 5490 mailbox metadata, RFC 6609 include, RFC 5173 body
//   - Script assembly with automatic require computation
//   - Script validation through the go-sieve interpreter
//
// # Building a Script
//
// Commands are plain structs appended to a Script; every node knows the
// capabilities it depends on, so the require statement is derived rather
// than maintained by hand:
//
//	script := sieve.NewScript()
//	script.Add(sieve.If{
//	    Test: sieve.HeaderTest{
//	        Headers:   []string{"List-Id"},
//	        Keys:      []string{"golang-nuts"},
//	        MatchType: ":contains",
//	    },
//	    Commands: []sieve.Command{
//	        sieve.Fileinto{Mailbox: "INBOX.lists.go", Create: true},
//	        sieve.Stop{},
//	    },
//	})
//	text := script.String()
//
// renders as:
//
//	require ["fileinto", "mailbox"];
//	# rule:[lists.go]
//	if header :contains "List-Id" "golang-nuts"
//	{
//	    fileinto :create "INBOX.lists.go";
//	    stop;
//	}
//
// # Rendering Rules
//
// Statements carry their trailing semicolon; tests render bare. Optional
// tagged arguments are omitted when they hold their RFC defaults. Strings
// containing newlines become dot-stuffed multiline literals. A trailing
// stop or keep is dropped at rendering time because the implicit behavior
// is identical.
//
// # Untranslatable Constructs
//
// The Fixme node keeps a construct that could not be carried over visible
// without changing delivery: it renders an always-false placeholder test or
// a bare comment, tagged FIXME, so the script loads while a human can still
// find every spot that needs attention.
package sieve
