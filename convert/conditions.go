package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/procmail"
	"github.com/migadu/procsieve/sieve"
)

// The stock procmailrc macros for mail from daemons and mailer daemons,
// spelled out as the regexps procmail substitutes for them.
const (
	fromDaemonPattern = `(Post(ma?(st(e?r)?|n)|office)|(send)?Mail(er)?|daemon|m(mdf|ajordomo)|n?uucp|LIST(SERV|proc)|NETSERV|o(wner|ps)|r(e(quest|sponse)|oot)|b(bounce|bs\.smtp)|echo|mirror|s(erv(ices?|er)|mtp(error)?|ystem)|A(dmin(istrator)?|MMGR|utoanswer)).*`
	fromMailerPattern = `(Post(ma?(st(e?r)?|n)|office)|(send)?Mail(er)?|daemon|mmdf|n?uucp|ops|r(esponse|oot)|(bbs\.)?smtp(error)?|s(erv(ices?|er)|ystem)|A(dmin(istrator)?|MMGR)).*`
)

var daemonAddressHeaders = []string{"From", "Sender", "Resent-From", "Resent-Sender"}

// Header sets a ^TO_ or ^TO macro expands to. The address form covers fields
// that carry parseable addresses; the raw form adds the odd ones that may
// not.
var (
	toAddressHeaders = []string{
		"Apparently-To", "Bcc", "Cc", "Resent-Bcc", "Resent-Cc", "Resent-To", "To",
	}
	toRawHeaders = []string{
		"Apparently-Resent-To", "Apparently-To", "Bcc", "Cc", "Original-Bcc",
		"Original-Cc", "Original-To", "Resent-Bcc", "Resent-Cc", "Resent-To",
		"To", "X-Envelope-To",
	}
)

// Test translates a recipe's condition list into one Sieve test. Multiple
// conditions are implicitly conjoined in procmail, so they become an allof.
func (t *Translator) Test(flags procmail.Flags, conds []procmail.Condition, ctx Context) (sieve.Command, error) {
	if len(conds) > 1 {
		tests := make([]sieve.Command, 0, len(conds))
		for _, cond := range conds {
			sub, err := t.Test(flags, []procmail.Condition{cond}, ctx)
			if err != nil {
				return nil, err
			}
			tests = append(tests, sub)
		}
		return sieve.AllofTest{Tests: tests}, nil
	}

	cond := conds[0]
	var test sieve.Command
	switch {
	case cond.ExitProgram != "":
		cmds, err := t.CommandLine(ctx, cond.ExitProgram)
		switch {
		case errors.Is(err, consts.ErrShellCommand):
			test = t.diags.Fixme(fmt.Sprintf("%s: (%s)", err, cond.ExitProgram), sieve.FalseTest{})
		case err != nil:
			return nil, err
		case len(cmds) != 1 || !isSieveTest(cmds[0]):
			test = t.diags.Fixme(fmt.Sprintf("command is not a test: (%s)", cond.ExitProgram), sieve.FalseTest{})
		default:
			test = cmds[0]
		}
	case cond.ShorterThan != "":
		test = sieve.SizeTest{Limit: cond.ShorterThan}
	case cond.LongerThan != "":
		test = sieve.SizeTest{Over: true, Limit: cond.LongerThan}
	case cond.Regexp != "" && isStringTestTarget(cond.VariableName):
		matchType, key := AnalyzeValue(cond.Regexp, false)
		test = sieve.StringTest{
			Sources:   []string{"${" + cond.VariableName + "}"},
			Keys:      []string{key},
			MatchType: matchType,
		}
	case cond.Regexp != "":
		header, body := searchTargets(flags, cond.VariableName)
		switch {
		case header && body:
			test = sieve.AnyofTest{Tests: []sieve.Command{
				t.headerTest(headerHeuristicFixup(cond.Regexp)),
				bodyTest(cond.Regexp),
			}}
		case body:
			test = bodyTest(cond.Regexp)
		default:
			test = t.headerTest(headerHeuristicFixup(cond.Regexp))
		}
	}
	if test == nil {
		test = t.diags.Fixme(describeRule(flags, conds), sieve.FalseTest{})
	}
	if cond.Weight != "" {
		test = t.diags.Fixme(describeRule(flags, conds), sieve.FalseTest{})
	}
	if cond.Invert {
		test = sieve.NotTest{Test: test}
	}
	return test, nil
}

// isStringTestTarget reports whether a VAR ?? condition matches against a
// script variable. The pseudo-variables H and B (in any combination) retarget
// the match at the header or body instead.
func isStringTestTarget(name string) bool {
	switch name {
	case "", "H", "B", "HB", "BH":
		return false
	}
	return true
}

// searchTargets decides whether a regexp condition searches the header, the
// body, or both, from the H/B pseudo-variable when present, otherwise from
// the recipe flags.
func searchTargets(flags procmail.Flags, variableName string) (header, body bool) {
	if variableName != "" {
		return strings.Contains(variableName, "H"), strings.Contains(variableName, "B")
	}
	return flags.Has('H'), flags.Has('B')
}

func bodyTest(r string) sieve.Command {
	matchType, key := AnalyzeValue(r, false)
	return sieve.BodyTest{Keys: []string{key}, MatchType: matchType}
}

// headerTest translates a header-side regexp, recognizing the handful of
// idioms nearly every procmailrc is built from before falling back to a
// placeholder.
func (t *Translator) headerTest(r string) sieve.Command {
	if rest, ok := strings.CutPrefix(r, "^From "); ok {
		matchType, key := AnalyzeValue(rest, true)
		return sieve.EnvelopeTest{Parts: []string{"from"}, Keys: []string{key}, MatchType: matchType}
	}
	if r == "^FROM_DAEMON" {
		return sieve.AnyofTest{Tests: []sieve.Command{
			sieve.ExistsTest{Headers: []string{"Mailing-List"}},
			sieve.HeaderTest{Headers: []string{"Precedence"}, Keys: []string{".*(junk|bulk|list)"}, MatchType: ":regex"},
			sieve.HeaderTest{Headers: []string{"To"}, Keys: []string{"Multiple recipients of *"}, MatchType: ":matches"},
			sieve.AddressTest{Headers: daemonAddressHeaders, Keys: []string{fromDaemonPattern}, MatchType: ":regex", AddressPart: ":localpart"},
			sieve.EnvelopeTest{Parts: []string{"From"}, Keys: []string{fromDaemonPattern}, MatchType: ":regex", AddressPart: ":localpart"},
		}}
	}
	if r == "^FROM_MAILER" {
		return sieve.AnyofTest{Tests: []sieve.Command{
			sieve.AddressTest{Headers: daemonAddressHeaders, Keys: []string{fromMailerPattern}, MatchType: ":regex", AddressPart: ":localpart"},
			sieve.EnvelopeTest{Parts: []string{"From"}, Keys: []string{fromMailerPattern}, MatchType: ":regex", AddressPart: ":localpart"},
		}}
	}
	if strings.HasPrefix(r, "^TO") {
		anchored := strings.HasPrefix(r, "^TO_")
		matchType, key := AnalyzeValue(stripToMarkers(r), anchored)
		if anchored {
			return sieve.AddressTest{Headers: toAddressHeaders, Keys: []string{key}, MatchType: matchType}
		}
		return sieve.HeaderTest{Headers: toRawHeaders, Keys: []string{key}, MatchType: matchType}
	}
	if test, ok := literalHeaderTest(r); ok {
		return test
	}
	return t.diags.Fixme(r, sieve.FalseTest{})
}

// stripToMarkers removes ^TO and ^TO_ macro markers along with the single
// separator character the macro swallows: one space, or one dot that does
// not start a ".*".
func stripToMarkers(r string) string {
	var b strings.Builder
	for i := 0; i < len(r); {
		if strings.HasPrefix(r[i:], "^TO") {
			i += 3
			if i < len(r) && r[i] == '_' {
				i++
			}
			if i < len(r) {
				if r[i] == ' ' {
					i++
				} else if r[i] == '.' && !strings.HasPrefix(r[i:], ".*") {
					i++
				}
			}
			continue
		}
		b.WriteByte(r[i])
		i++
	}
	return b.String()
}

// literalHeaderTest recognizes ^Header: value and ^(A|B): value forms. The
// separator may be a colon or a dot with an optional trailing space, or a
// ".*" left in place for the value analyzer.
func literalHeaderTest(r string) (sieve.Command, bool) {
	rest, ok := strings.CutPrefix(r, "^")
	if !ok {
		return nil, false
	}
	parens := strings.HasPrefix(rest, "(")
	if parens {
		rest = rest[1:]
	}
	end := scanHeaderNames(rest)
	names, rest := rest[:end], rest[end:]
	if parens {
		if !strings.HasPrefix(rest, ")") {
			return nil, false
		}
		rest = rest[1:]
	}
	var value string
	switch {
	case strings.HasPrefix(rest, ".*"):
		value = rest
	case strings.HasPrefix(rest, ": "), strings.HasPrefix(rest, ". "):
		value = rest[2:]
	case strings.HasPrefix(rest, ":"), strings.HasPrefix(rest, "."):
		value = rest[1:]
	default:
		return nil, false
	}
	matchType, key := AnalyzeValue(value, true)
	return sieve.HeaderTest{Headers: strings.Split(names, "|"), Keys: []string{key}, MatchType: matchType}, true
}

// scanHeaderNames consumes pipe-separated header names, stopping before a
// pipe that is not followed by another name.
func scanHeaderNames(s string) int {
	i := 0
	for {
		j := i
		if j < len(s) && s[j] == '|' {
			j++
		}
		k := j
		for k < len(s) && isHeaderNameByte(s[k]) {
			k++
		}
		if k == j {
			return i
		}
		i = k
	}
}

func isHeaderNameByte(b byte) bool {
	return b == '-' || b == '_' ||
		b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// Header names a hurried rule author tends to write without the leading ^
// or the trailing colon. A pattern like "Subject.*order" means the header,
// not six literal bytes anywhere in the block.
var fixupNames = []string{"To", "Reply-To", "Cc", "From", "Sender", "Subject"}

// headerHeuristicFixup normalizes well-known header matches missing their
// anchor or colon into proper ^Header: form, so that "^Subject.*" and
// "(From|Sender):.*" land in the literal header branch instead of the
// regex fallback. Anything not followed by ".*" is left alone.
func headerHeuristicFixup(r string) string {
	rest := strings.TrimPrefix(r, "^")
	i := 0
	parens := strings.HasPrefix(rest, "(")
	if parens {
		i = 1
	}
	count := 0
	for {
		j := i
		if count > 0 && j < len(rest) && rest[j] == '|' {
			j++
		}
		n := matchFixupName(rest[j:])
		if n == 0 {
			break
		}
		i = j + n
		count++
	}
	if count == 0 {
		return r
	}
	if parens {
		if i >= len(rest) || rest[i] != ')' {
			return r
		}
		i++
	}
	headers := rest[:i]
	tail := rest[i:]
	tail = strings.TrimPrefix(tail, ":")
	if !strings.HasPrefix(tail, ".*") {
		return r
	}
	return "^" + headers + ":" + tail
}

func matchFixupName(s string) int {
	for _, name := range fixupNames {
		if len(s) >= len(name) && strings.EqualFold(s[:len(name)], name) {
			return len(name)
		}
	}
	return 0
}

// isSieveTest reports whether a command can stand in test position.
func isSieveTest(cmd sieve.Command) bool {
	switch cmd.(type) {
	case sieve.AddressTest, sieve.AllofTest, sieve.AnyofTest, sieve.BodyTest,
		sieve.CurrentDateTest, sieve.EnvelopeTest, sieve.ExistsTest,
		sieve.FalseTest, sieve.HeaderTest, sieve.MailboxExistsTest,
		sieve.NotTest, sieve.SizeTest, sieve.StringTest, sieve.TrueTest:
		return true
	}
	return false
}

// describeRule reconstructs the flag line and conditions for problem reports.
func describeRule(flags procmail.Flags, conds []procmail.Condition) string {
	parts := []string{flags.String()}
	for _, cond := range conds {
		parts = append(parts, cond.String())
	}
	return strings.Join(parts, " ")
}
