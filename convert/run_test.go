package convert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/migadu/procsieve/consts"
)

func TestRun(t *testing.T) {
	home := t.TempDir()
	writeHomeFile(t, home, ".forward+spam", "walter@example.net\n")
	writeHomeFile(t, home, ".forward", "hbaker, walter@example.net\n")
	writeHomeFile(t, home, ".procmailrc", ""+
		":0\n"+
		"* ^Subject: urgent\n"+
		"urgent/\n")

	res, err := Run(Options{User: "hbaker", Home: home, EmailDomain: "example.org"})
	require.NoError(t, err)
	require.Empty(t, res.Problems)
	require.Equal(t, []string{"copy", "envelope", "fileinto", "mailbox", "subaddress"}, res.Requires)
	require.Equal(t, strings.Join([]string{
		`require ["copy", "envelope", "fileinto", "mailbox", "subaddress"];`,
		"# rule:[walter@example.net]",
		`if envelope :detail "to" "spam"`,
		"{",
		`    redirect "walter@example.net";`,
		"    stop;",
		"}",
		"# rule:[walter@example.net]",
		"if true",
		"{",
		`    redirect :copy "walter@example.net";`,
		"}",
		"# rule:[urgent/]",
		`if header :contains "Subject" "urgent"`,
		"{",
		`    fileinto :create "urgent/";`,
		"    stop;",
		"}",
		"",
	}, "\r\n"), res.Script)
}

func TestRunSkipsRulesWhenForwardingAway(t *testing.T) {
	home := t.TempDir()
	writeHomeFile(t, home, ".forward", "walter@example.net\n")
	writeHomeFile(t, home, ".procmailrc", ""+
		":0\n"+
		"* ^Subject: urgent\n"+
		"urgent/\n")

	res, err := Run(Options{User: "hbaker", Home: home, EmailDomain: "example.org"})
	require.NoError(t, err)
	require.Contains(t, res.Script, `redirect "walter@example.net";`)
	require.NotContains(t, res.Script, "urgent")
}

func TestRunRuleFileOnly(t *testing.T) {
	home := t.TempDir()
	writeHomeFile(t, home, ".procmailrc", ""+
		":0\n"+
		"* ^List-Id: golang\n"+
		"$DEFAULT/.lists/\n")

	res, err := Run(Options{User: "hbaker", Home: home})
	require.NoError(t, err)
	require.Equal(t, strings.Join([]string{
		`require ["fileinto", "mailbox"];`,
		"# rule:[lists]",
		`if header :contains "List-Id" "golang"`,
		"{",
		`    fileinto :create "INBOX.lists";`,
		"    stop;",
		"}",
		"",
	}, "\r\n"), res.Script)
}

func TestRunRelativeInboxOption(t *testing.T) {
	home := t.TempDir()
	writeHomeFile(t, home, ".procmailrc", ""+
		":0\n"+
		"* ^List-Id: golang\n"+
		"$DEFAULT/.lists/\n")

	res, err := Run(Options{User: "hbaker", Home: home, Inbox: "Maildir"})
	require.NoError(t, err)
	require.Contains(t, res.Script, `fileinto :create "INBOX.lists";`)
}

func TestRunWithoutRuleFiles(t *testing.T) {
	res, err := Run(Options{User: "hbaker", Home: t.TempDir()})
	require.NoError(t, err)
	require.Empty(t, res.Script)
	require.Empty(t, res.Problems)
}

func TestRunIgnoresMalformedForwardExtensions(t *testing.T) {
	home := t.TempDir()
	writeHomeFile(t, home, ".forward+bad-name", "walter@example.net\n")

	res, err := Run(Options{User: "hbaker", Home: home, EmailDomain: "example.org"})
	require.NoError(t, err)
	require.Empty(t, res.Script)
}

func TestRunMissingHomeDirectory(t *testing.T) {
	_, err := Run(Options{User: "hbaker", Home: "/no/such/home"})
	require.ErrorIs(t, err, consts.ErrNoHomeDirectory)
}

func TestRunReportsProblems(t *testing.T) {
	home := t.TempDir()
	writeHomeFile(t, home, ".procmailrc", ""+
		":0\n"+
		"| formail -rk\n")

	res, err := Run(Options{User: "hbaker", Home: home})
	require.NoError(t, err)
	require.Len(t, res.Problems, 1)
	require.Contains(t, res.Problems[0], "formail -rk")
	require.Contains(t, res.Script, "# FIXME:")
}

func TestRunIsDeterministic(t *testing.T) {
	home := t.TempDir()
	writeHomeFile(t, home, ".forward+lists", "/var/mail/hbaker/.lists/\n")
	writeHomeFile(t, home, ".forward+spam", "walter@example.net\n")
	writeHomeFile(t, home, ".procmailrc", ""+
		":0\n"+
		"* ^Subject: urgent\n"+
		"urgent/\n")

	opts := Options{User: "hbaker", Home: home, EmailDomain: "example.org"}
	first, err := Run(opts)
	require.NoError(t, err)
	second, err := Run(opts)
	require.NoError(t, err)
	require.Equal(t, first.Script, second.Script)
	require.True(t, strings.Index(first.Script, "INBOX.lists") < strings.Index(first.Script, `"to" "spam"`),
		"extension sections must keep glob order")
}