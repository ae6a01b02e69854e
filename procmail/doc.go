// Package procmail parses procmail rule files into a small syntax tree.
//
// A rule file is a sequence of variable assignments and recipes. A recipe
// starts with a :0 flag line, carries zero or more * condition lines, and
// ends in exactly one action: a ! forward, a | pipe, a { } nesting block,
// or a mailbox path. Blank lines and # comments are skipped, and lines
// ending in a backslash fold into the following line.
//
//	VERBOSE=off
//
//	:0:
//	* ^Subject:.*lists
//	lists/
//
//	:0 c
//	! archive@example.org
//
// The parser preserves the file as written: flags keep their letters and
// lock marker, conditions keep their raw regular expressions and modifiers,
// and unresolved $VARIABLES stay in the text. Interpreting any of that is
// the caller's business.
//
// Parsing stops at the first syntax error. Errors wrap the sentinel values
// in the consts package and carry the file name and line number.
package procmail
