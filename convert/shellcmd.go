package convert

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/helpers"
	"github.com/migadu/procsieve/sieve"
)

// commandHandler emulates one external program a rule file may invoke. It
// receives the interpolated arguments after the program name.
type commandHandler func(t *Translator, ctx Context, args []string) ([]sieve.Command, error)

// shellCommands maps resolved program paths to their emulations. Everything
// else a rule pipes into is untranslatable.
var shellCommands map[string]commandHandler

func init() {
	shellCommands = map[string]commandHandler{
		"bin/is_away":       isAwayCommand,
		"/usr/bin/procmail": procmailCommand,
		"/usr/bin/spamc":    spamAssassinCommand,
		"/usr/bin/vacation": vacationCommand,
	}
}

func shellErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", consts.ErrShellCommand, fmt.Sprintf(format, args...))
}

// CommandLine translates one shell command line by dispatching to the
// emulation registry. Unknown programs, and command lines the shell itself
// would reject, fail with consts.ErrShellCommand so callers can downgrade
// them to placeholders.
func (t *Translator) CommandLine(ctx Context, cmdline string) ([]sieve.Command, error) {
	words, err := shlex.Split(cmdline)
	if err != nil || len(words) == 0 {
		return nil, shellErrorf("unsupported external command: %s", cmdline)
	}
	args := make([]string, len(words))
	for i, word := range words {
		args[i] = ctx.Interpolate(word)
	}
	handler := resolveCommand(ctx, args[0])
	if handler == nil {
		return nil, shellErrorf("unsupported external command: %s", cmdline)
	}
	return handler(t, ctx, args[1:])
}

// resolveCommand finds the emulation for a program name the way a shell
// would find the binary: a name containing a slash is taken as is, anything
// else is searched along the context's PATH.
func resolveCommand(ctx Context, name string) commandHandler {
	if strings.Contains(name, "/") {
		return shellCommands[name]
	}
	for _, dir := range strings.Split(ctx.Getenv("PATH"), ":") {
		if handler, ok := shellCommands[filepath.Join(dir, name)]; ok {
			return handler
		}
	}
	return nil
}

var awayAssignment = regexp.MustCompile(`^\s*([a-z][a-z0-9_]*)=([^#\s]*)`)

// isAwayCommand reads the away window out of the user's bin/is_away script
// and turns it into a pair of currentdate bounds.
func isAwayCommand(t *Translator, ctx Context, args []string) ([]sieve.Command, error) {
	f, err := os.Open(ctx.ResolvePath("bin/is_away", ""))
	if err != nil {
		return nil, isAwayError()
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := awayAssignment.FindStringSubmatch(scanner.Text()); m != nil {
			values[m[1]] = m[2]
		}
	}
	start, startErr := strconv.ParseInt(values["start_away_msg"], 10, 64)
	end, endErr := strconv.ParseInt(values["end_away_msg"], 10, 64)
	if scanner.Err() != nil || startErr != nil || endErr != nil {
		return nil, isAwayError()
	}

	const iso8601 = "2006-01-02T15:04:05"
	return []sieve.Command{sieve.AllofTest{Tests: []sieve.Command{
		sieve.CurrentDateTest{DatePart: "iso8601", Keys: []string{time.Unix(start, 0).Format(iso8601)}, MatchType: `:value "ge"`},
		sieve.CurrentDateTest{DatePart: "iso8601", Keys: []string{time.Unix(end, 0).Format(iso8601)}, MatchType: `:value "lt"`},
	}}}, nil
}

func isAwayError() error {
	return shellErrorf("bin/is_away: Could not detect start and end times")
}

// procmailCommand handles procmail invoking itself on another rc file by
// translating that file in place. Explicit delivery modes have no Sieve
// equivalent.
func procmailCommand(t *Translator, ctx Context, args []string) ([]sieve.Command, error) {
	var version, recipient, mailFilter bool
	rcfile := ".procmailrc"
	haveRcfile := false
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "-v":
			version = true
		case arg == "-d":
			recipient = true
			i++
		case arg == "-m":
			mailFilter = true
		case !strings.HasPrefix(arg, "-") && !haveRcfile:
			rcfile, haveRcfile = arg, true
		}
	}
	switch {
	case version:
		return nil, nil
	case recipient:
		return nil, shellErrorf("procmail -d: Unsupported mode")
	case mailFilter:
		return nil, shellErrorf("procmail -m: Unsupported mode")
	}

	cmds, err := t.RuleFile(ctx.ResolvePath(rcfile, ""), ctx.ChainChild(ChainNone))
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return nil, fmt.Errorf("%w: %s", consts.ErrShellCommand, err)
		}
		return nil, err
	}
	return cmds, nil
}

// The headers SpamAssassin's whitelist and blacklist directives test. Only
// headers that reliably carry parseable addresses are usable in an address
// test.
var (
	spamHeaderTests = map[string][]string{
		"from": {"Resent-Sender", "From"},
		"to":   {"To", "Cc", "Apparently-To", "Delivered-To", "X-Original-To"},
	}
	spamActions = map[string][]sieve.Command{
		"blacklist": {
			sieve.DeleteHeader{Field: "X-Spam-Flag"},
			sieve.AddHeader{Field: "X-Spam-Flag", Value: "YES"},
			sieve.DeleteHeader{Field: "X-Spam-Level"},
			sieve.AddHeader{Field: "X-Spam-Level", Value: strings.Repeat("*", 99)},
			sieve.DeleteHeader{Field: "X-Spam-Status"},
			sieve.AddHeader{Field: "X-Spam-Status", Value: "Yes, score=100.0 required=5.0"},
		},
		"whitelist": {
			sieve.DeleteHeader{Field: "X-Spam-Flag"},
			sieve.DeleteHeader{Field: "X-Spam-Level"},
			sieve.DeleteHeader{Field: "X-Spam-Status"},
		},
	}
	wbListKeywords = []string{"blacklist_from", "blacklist_to", "whitelist_from", "whitelist_to"}
)

var (
	userPrefLine      = regexp.MustCompile(`^\s*([^#\s]+)\s+([^#]*)`)
	userPrefSeparator = regexp.MustCompile(`[,\s]+`)
)

// spamAssassinCommand converts the user's SpamAssassin white and black lists
// into header overrides. The message is assumed to have already passed
// through a site-wide SpamAssassin that never saw the personal preferences,
// so the script makes listed senders look like ham or spam after the fact.
func spamAssassinCommand(t *Translator, ctx Context, args []string) ([]sieve.Command, error) {
	prefs := collateUserPrefs(ctx.ResolvePath(".spamassassin/user_prefs", ""))
	var out []sieve.Command
	for _, keyword := range wbListKeywords {
		if len(prefs[keyword]) == 0 {
			continue
		}
		action, headerSet, _ := strings.Cut(keyword, "_")
		out = append(out, sieve.If{
			Test: sieve.AddressTest{
				Headers:   spamHeaderTests[headerSet],
				Keys:      prefs[keyword],
				MatchType: ":matches",
			},
			Commands: spamActions[action],
			Label:    "SpamAssassin override " + keyword,
		})
	}
	return out, nil
}

func collateUserPrefs(path string) map[string][]string {
	prefs := make(map[string][]string)
	f, err := os.Open(path)
	if err != nil {
		return prefs
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r\n\v\f")
		m := userPrefLine.FindStringSubmatch(line)
		if m == nil || !isWBListKeyword(m[1]) {
			continue
		}
		prefs[m[1]] = append(prefs[m[1]], userPrefSeparator.Split(m[2], -1)...)
	}
	return prefs
}

func isWBListKeyword(keyword string) bool {
	for _, k := range wbListKeywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// The reason used when the vacation message file cannot be read, modeled on
// the old vacation(1) default.
var missingVacationMessage = helpers.VacationMessage{
	Reason: "Content-Type: text/plain; format=flowed\r\n\r\n" +
		"I will not be reading my mail for a while. " +
		"Your mail concerning \r\n\"$SUBJECT\" \r\n" +
		"will be read when I return.",
	Subject: "Re: $SUBJECT",
	MIME:    true,
}

// vacationCommand turns a vacation(1) invocation into a Sieve vacation
// action, reading the response from the user's message file.
func vacationCommand(t *Translator, ctx Context, args []string) ([]sieve.Command, error) {
	var (
		login      string
		aliases    []string
		msgPath    = ".vacation.msg"
		nullSender bool
	)
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "-a", arg == "-m", arg == "-c", arg == "-f":
			i++
			if i >= len(args) {
				return nil, shellErrorf("vacation: %s: expected one argument", arg)
			}
			switch arg {
			case "-a":
				aliases = append(aliases, args[i])
			case "-m":
				msgPath = args[i]
			}
		case arg == "-z":
			nullSender = true
		case arg == "-d", arg == "-j":
			// Logging and reply-anyway switches, meaningless in Sieve.
		case strings.HasPrefix(arg, "-"):
			return nil, shellErrorf("vacation: unrecognized argument: %s", arg)
		case login != "":
			return nil, shellErrorf("vacation: unrecognized argument: %s", arg)
		default:
			login = arg
		}
	}
	if login == "" {
		return nil, shellErrorf("vacation: the following arguments are required: login")
	}

	msg, missing := t.vacationMessage(ctx, msgPath)
	reason := strings.ReplaceAll(msg.Reason, "$SUBJECT", "${1}")
	subject := strings.ReplaceAll(msg.Subject, "$SUBJECT", "${1}")
	var test sieve.Command
	if reason != msg.Reason || subject != msg.Subject {
		test = sieve.HeaderTest{Headers: []string{"subject"}, Keys: []string{"*"}, MatchType: ":matches"}
	}
	if missing {
		test = sieve.FalseTest{Placeholder: test}
	}

	var from string
	if !nullSender {
		name, address := helpers.ParseAddress(msg.From)
		if strings.Contains(address, " ") && name == "" {
			// A From line that is just prose is a display name, not an
			// address.
			name, address = msg.From, ""
		}
		if address == "" {
			if len(aliases) > 0 {
				address = aliases[0]
			} else {
				address = login
			}
		}
		if name != "" || address != ctx.User() {
			resolved, err := ctx.ResolveEmailAddress(address)
			if err != nil {
				return nil, err
			}
			from = helpers.FormatAddress(name, resolved)
		}
	}

	addresses := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		resolved, err := ctx.ResolveEmailAddress(alias)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, resolved)
	}

	vacation := sieve.Vacation{
		Reason:    reason,
		Subject:   subject,
		From:      from,
		Addresses: addresses,
		MIME:      msg.MIME,
	}
	return ctx.ContextChain(test, []sieve.Command{vacation}), nil
}

// vacationMessage reads the vacation message file, falling back to the
// stock text when it is unreadable. The fallback is reported: the emitted
// rule is guarded by an always-false test and needs hand finishing.
func (t *Translator) vacationMessage(ctx Context, msgPath string) (helpers.VacationMessage, bool) {
	msg, err := helpers.ReadVacationMessage(ctx.ResolvePath(msgPath, ""))
	if err != nil {
		t.diags.Report(fmt.Sprintf("vacation: cannot read message file %s: %v", msgPath, err))
		return missingVacationMessage, true
	}
	return msg, false
}
