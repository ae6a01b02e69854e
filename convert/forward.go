package convert

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/helpers"
	"github.com/migadu/procsieve/sieve"
)

// ForwardFile translates one .forward alias file. extension is the
// subaddress the file is keyed on ("" for the plain .forward); a non-empty
// extension guards the output with an envelope detail test. The returned
// bool reports whether the file keeps a local copy of the mail, which it
// does when it lists no destinations at all or when one of them is the
// owner.
func (t *Translator) ForwardFile(path, extension string, ctx Context) (bool, []sieve.Command, error) {
	lines, modTime, err := readForwardFile(path)
	if err != nil {
		problem := fmt.Sprintf("Error reading %s (%v)", path, err)
		t.diags.Report(problem)
		return true, []sieve.Command{sieve.Comment{Text: problem}}, nil
	}

	var commands []sieve.Command
	if ctx.Provenance() {
		commands = append(commands, sieve.Comment{Text: fmt.Sprintf("Converted from %s (%s)",
			path, modTime.Format("2006-01-02 15:04:05 -0700"))})
	}

	destinations := parseForwardDestinations(lines)
	keepCopy := len(destinations) == 0
	for _, dest := range destinations {
		self, err := t.isToMyself(ctx, dest)
		if err != nil {
			return false, nil, err
		}
		if self {
			keepCopy = true
			break
		}
	}

	for _, dest := range destinations {
		self, err := t.isToMyself(ctx, dest)
		if err != nil {
			return false, nil, err
		}
		switch {
		case self:
			// Delivery to the owner is the implicit keep.
		case dest == os.DevNull:
		case strings.HasPrefix(dest, "|"):
			cmds, err := t.CommandLine(ctx, strings.TrimPrefix(dest, "|"))
			if err != nil {
				if !errors.Is(err, consts.ErrShellCommand) {
					return false, nil, err
				}
				commands = append(commands, t.diags.Fixme(fmt.Sprintf("%s: (%s)", err, dest), nil))
				continue
			}
			commands = append(commands, cmds...)
		case strings.HasPrefix(dest, ":include:"):
			commands = append(commands, t.diags.Fixme(dest, nil))
		case strings.Contains(dest, "/"):
			name := ctx.MailboxName(ctx.ResolvePath(dest, ""))
			commands = append(commands, sieve.Fileinto{Mailbox: name, Copy: keepCopy})
		default:
			address, err := ctx.ResolveEmailAddress(dest)
			if err != nil {
				return false, nil, err
			}
			commands = append(commands, sieve.Redirect{Address: address, Copy: keepCopy})
		}
	}
	if !keepCopy {
		commands = append(commands, sieve.Stop{})
	}

	var test sieve.Command = sieve.TrueTest{}
	if extension != "" {
		test = sieve.EnvelopeTest{Parts: []string{"to"}, Keys: []string{extension}, AddressPart: ":detail"}
	}
	return keepCopy, ctx.ContextChain(test, commands), nil
}

// isToMyself reports whether a destination is the owner: the bare login,
// the delivery-loop-breaking backslash form, or the fully qualified
// address. Qualifying needs the mail domain, so any destination list at
// all requires one.
func (t *Translator) isToMyself(ctx Context, dest string) (bool, error) {
	me := ctx.User()
	domain, err := ctx.EmailDomain()
	if err != nil {
		return false, err
	}
	return dest == me || dest == `\`+me || dest == me+"@"+domain, nil
}

func readForwardFile(path string) ([]string, time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, time.Time{}, err
	}

	var lines []string
	for _, line := range strings.Split(helpers.SanitizeUTF8(string(raw)), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t\r\n\v\f"))
	}
	return lines, info.ModTime(), nil
}

// local(8) accepts a space between the pipe and a quoted command; pull the
// pipe inside the quotes so the line tokenizes as one destination.
var pipeQuote = regexp.MustCompile(`\|\s*"([^"]*)"`)

// parseForwardDestinations extracts destinations from the filtered lines of
// a .forward file. RFC 5322 address lists parse as such; everything else
// falls back to the alias grammar, one destination per comma or space, with
// double quotes protecting embedded separators.
func parseForwardDestinations(lines []string) []string {
	var dests []string
	for _, line := range lines {
		line = pipeQuote.ReplaceAllString(line, `"|$1"`)
		if addrs, err := mail.ParseAddressList(line); err == nil {
			for _, a := range addrs {
				if a.Address != "" {
					dests = append(dests, a.Address)
				}
			}
			continue
		}
		for _, tok := range splitForwardLine(line) {
			if a, err := mail.ParseAddress(tok); err == nil && a.Address != "" {
				dests = append(dests, a.Address)
			} else if tok != "" {
				dests = append(dests, tok)
			}
		}
	}
	return dests
}

func splitForwardLine(line string) []string {
	var (
		tokens []string
		cur    strings.Builder
		quoted bool
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quoted && c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == '"':
			quoted = !quoted
		case !quoted && (c == ',' || c == ' ' || c == '\t'):
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}
