package convert

import (
	"fmt"
	"os"
	osuser "os/user"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/sieve"
)

// Options configure the conversion of one user's rule files.
type Options struct {
	// User is the account whose files to convert; defaults to $LOGNAME,
	// then the current process user.
	User string
	// Home overrides the account's home directory.
	Home string
	// Inbox is the path to the default inbox, relative to the home
	// directory unless absolute; defaults to /var/mail/USER.
	Inbox string
	// EmailDomain qualifies bare local addresses. Translations that never
	// touch an address work without one.
	EmailDomain string
	// SearchPath overrides the PATH rule files resolve commands against.
	SearchPath string
	// Provenance emits comments naming each source file and its
	// modification time.
	Provenance bool
}

// Result is the outcome of a conversion run.
type Result struct {
	// Script is the rendered Sieve script, with a trailing CRLF, or empty
	// when the user's files produce no commands.
	Script string
	// Requires lists the capabilities the script declares, sorted.
	Requires []string
	// Problems lists every construct that could not be translated. The
	// script is complete but inert where these occurred.
	Problems []string
}

var forwardExtension = regexp.MustCompile(`^\.forward\+[A-Za-z0-9_]+$`)

// Run discovers and translates one user's rule files: subaddress .forward
// files first, then the plain .forward, then .procmailrc. When the plain
// .forward forwards everything away, the .procmailrc would never see the
// mail and is skipped.
func Run(opts Options) (*Result, error) {
	username := opts.User
	if username == "" {
		username = os.Getenv("LOGNAME")
	}
	if username == "" {
		if u, err := osuser.Current(); err == nil {
			username = u.Username
		}
	}

	home := opts.Home
	if home == "" {
		if u, err := osuser.Lookup(username); err == nil {
			home = u.HomeDir
		}
	}
	if info, err := os.Stat(home); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w for user %s", consts.ErrNoHomeDirectory, username)
	}

	inbox := opts.Inbox
	if inbox == "" {
		inbox = filepath.Join("/var/mail", username)
	}
	inbox = expandUser(inbox, home)
	if !filepath.IsAbs(inbox) {
		inbox = filepath.Join(home, inbox)
	}
	inbox = filepath.Clean(inbox)

	arena := NewArena(ArenaConfig{
		User:        username,
		Home:        home,
		Inbox:       inbox,
		EmailDomain: opts.EmailDomain,
		SearchPath:  opts.SearchPath,
		Provenance:  opts.Provenance,
	})

	diags := &Diagnostics{}
	t := NewTranslator(diags)
	ctx := arena.Root()

	var commands []sieve.Command
	matches, err := filepath.Glob(filepath.Join(home, ".forward+*"))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		base := filepath.Base(path)
		if !forwardExtension.MatchString(base) {
			continue
		}
		_, cmds, err := t.ForwardFile(path, strings.TrimPrefix(base, ".forward+"), ctx)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmds...)
		ctx = ctx.ChainChild(ChainNone)
	}

	translateRules := true
	if plain := filepath.Join(home, ".forward"); fileExists(plain) {
		keepCopy, cmds, err := t.ForwardFile(plain, "", ctx)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmds...)
		translateRules = keepCopy
	}

	if rc := filepath.Join(home, ".procmailrc"); translateRules && fileExists(rc) {
		cmds, err := t.RuleFile(rc, arena.Root())
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmds...)
	}

	script := sieve.NewScript()
	for _, cmd := range commands {
		script.Add(cmd)
	}
	text := script.String()
	if text != "" {
		text += "\r\n"
	}
	return &Result{Script: text, Requires: script.Requires(), Problems: diags.Messages()}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
