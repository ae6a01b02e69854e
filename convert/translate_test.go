package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/procmail"
	"github.com/migadu/procsieve/sieve"
)

func parseRules(t *testing.T, text string) []procmail.Node {
	t.Helper()
	nodes, err := procmail.Parse(strings.NewReader(text), "test.procmailrc")
	require.NoError(t, err)
	return nodes
}

// translateRules runs a rule sequence through a fresh translator at the
// entry context of a rule file.
func translateRules(t *testing.T, text string) ([]sieve.Command, *Diagnostics) {
	t.Helper()
	tr, diags := newTestTranslator()
	entry := testArena(ArenaConfig{}).Root().ChainChild(ChainNone)
	cmds, err := tr.Rules(parseRules(t, text), entry)
	require.NoError(t, err)
	return cmds, diags
}

func TestTranslateConditionedRule(t *testing.T) {
	cmds, diags := translateRules(t, ""+
		":0\n"+
		"* ^Subject: urgent\n"+
		"urgent/\n")

	require.Len(t, cmds, 1)
	require.Equal(t,
		"if header :contains \"Subject\" \"urgent\"\r\n{\r\n    fileinto :create \"urgent/\";\r\n    stop;\r\n}",
		cmds[0].String())
	require.Zero(t, diags.Count())
}

func TestTranslateUnconditionalRule(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "Discard wraps in an always-true conditional",
			text: ":0\n/dev/null\n",
			want: "if true\r\n{\r\n    discard;\r\n    stop;\r\n}",
		},
		{
			name: "Forward",
			text: ":0\n! walter@example.net\n",
			want: "if true\r\n{\r\n    redirect \"walter@example.net\";\r\n    stop;\r\n}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds, diags := translateRules(t, tt.text)
			require.Len(t, cmds, 1)
			require.Equal(t, tt.want, cmds[0].String())
			require.Zero(t, diags.Count())
		})
	}
}

func TestTranslateDeliveryOpensElsifChain(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		":0\n"+
		"* ^From: alice@example\\.org\n"+
		"friends/\n"+
		"\n"+
		":0\n"+
		"* ^Subject: spam\n"+
		"junk/\n")

	require.Len(t, cmds, 2)
	require.IsType(t, sieve.If{}, cmds[0])
	require.IsType(t, sieve.Elsif{}, cmds[1])
	require.Equal(t,
		"elsif header :contains \"Subject\" \"spam\"\r\n{\r\n    fileinto :create \"junk/\";\r\n    stop;\r\n}",
		cmds[1].String())
}

func TestTranslateCarbonCopyReleasesChain(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		":0\n"+
		"* ^Subject: a\n"+
		"a/\n"+
		"\n"+
		":0 c\n"+
		"* ^Subject: b\n"+
		"backup/\n"+
		"\n"+
		":0\n"+
		"* ^Subject: c\n"+
		"c/\n")

	// The carbon copy continues the chain of the delivery before it, but
	// does not itself deliver, so the rule after it starts a fresh chain.
	require.Len(t, cmds, 3)
	require.IsType(t, sieve.If{}, cmds[0])
	require.IsType(t, sieve.Elsif{}, cmds[1])
	require.IsType(t, sieve.If{}, cmds[2])
	require.Contains(t, cmds[1].String(), `fileinto :copy :create "backup/";`)
}

func TestTranslateUnconditionalElseTail(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		":0\n"+
		"* ^List-Id: golang\n"+
		"lists/go/\n"+
		"\n"+
		":0\n"+
		"fallback/\n")

	require.Len(t, cmds, 2)
	require.IsType(t, sieve.If{}, cmds[0])
	require.Equal(t,
		"else\r\n{\r\n    fileinto :create \"fallback/\";\r\n    stop;\r\n}",
		cmds[1].String())
}

func TestTranslateElseTailTakesRemainingRules(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		":0\n"+
		"* ^Subject: a\n"+
		"a/\n"+
		"\n"+
		":0 c\n"+
		"! archive@example.org\n"+
		"\n"+
		":0\n"+
		"* ^Subject: b\n"+
		"b/\n")

	require.Len(t, cmds, 2)
	tail, ok := cmds[1].(sieve.Else)
	require.True(t, ok, "expected an else tail, got %T", cmds[1])
	require.Len(t, tail.Commands, 2)
	require.Equal(t,
		"else\r\n{\r\n    redirect :copy \"archive@example.org\";\r\n"+
			"    if header :contains \"Subject\" \"b\"\r\n{\r\n    fileinto :create \"b/\";\r\n    stop;\r\n}\r\n}",
		cmds[1].String())
}

func TestTranslateAssignmentInElsePosition(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		":0\n"+
		"* ^Subject: a\n"+
		"a/\n"+
		"\n"+
		"FOLDER=lists\n"+
		"\n"+
		":0\n"+
		"* ^Subject: b\n"+
		"$FOLDER/\n")

	require.Len(t, cmds, 2)
	require.Equal(t,
		"else\r\n{\r\n    set \"FOLDER\" \"lists\";\r\n"+
			"    if header :contains \"Subject\" \"b\"\r\n{\r\n    fileinto :create \"lists/\";\r\n    stop;\r\n}\r\n}",
		cmds[1].String())
}

func TestTranslateEmptyElseTailEmitsNothing(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		":0\n"+
		"* ^Subject: a\n"+
		"a/\n"+
		"\n"+
		"MAILDIR=/var/mail/hbaker\n")

	// The trailing assignment only configures the filter itself, so the
	// else branch it would have opened stays out of the script.
	require.Len(t, cmds, 1)
	require.IsType(t, sieve.If{}, cmds[0])
}

func TestTranslatePreambleAssignment(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		"GREETING=bonjour\n"+
		"\n"+
		":0\n"+
		"* GREETING ?? on\n"+
		"greeted/\n")

	require.Len(t, cmds, 2)
	require.Equal(t, `set "GREETING" "bonjour";`, cmds[0].String())
	require.Equal(t,
		"if string :contains \"${GREETING}\" \"on\"\r\n{\r\n    fileinto :create \"greeted/\";\r\n    stop;\r\n}",
		cmds[1].String())
}

func TestTranslateBindingPersistsAcrossRules(t *testing.T) {
	cmds, _ := translateRules(t, ""+
		"LISTDIR=lists\n"+
		"\n"+
		":0\n"+
		"* ^List-Id: golang\n"+
		"$LISTDIR/go/\n"+
		"\n"+
		":0\n"+
		"* ^List-Id: rust-lang\n"+
		"$LISTDIR/rust/\n")

	require.Len(t, cmds, 3)
	require.Contains(t, cmds[1].String(), `fileinto :create "lists/go/";`)
	require.Contains(t, cmds[2].String(), `fileinto :create "lists/rust/";`)
}

func TestTranslateHostAssignment(t *testing.T) {
	cmds, diags := translateRules(t, "HOST=mail2.example.com\n")

	require.Len(t, cmds, 1)
	require.Equal(t, "stop; # FIXME: HOST=mail2.example.com", cmds[0].String())
	require.Equal(t, 1, diags.Count())
}

func TestTranslateUnsupportedFlag(t *testing.T) {
	cmds, diags := translateRules(t, ""+
		":0 D\n"+
		"* ^Subject: CASE\n"+
		"exact/\n")

	require.Len(t, cmds, 1)
	rule, ok := cmds[0].(sieve.If)
	require.True(t, ok, "expected a conditional, got %T", cmds[0])
	require.Equal(t, "false # FIXME: Unsupported recipe flag D", rule.Test.String())
	require.Equal(t, 1, diags.Count())
}

func TestTranslateMailExtensionIdiom(t *testing.T) {
	cmds, diags := translateRules(t, ""+
		":0\n"+
		"* ? test -n \"${EXTENSION}\"\n"+
		"* ? test -d \"${MAILDIR}/.${EXTENSION}\"\n"+
		"$DEFAULT/.$EXTENSION/\n")

	require.Len(t, cmds, 1)
	require.Equal(t,
		"if allof(envelope :detail :matches \"to\" \"*\", mailboxexists \"INBOX.${1}\")"+
			"\r\n{\r\n    set \"subaddress\" \"${1}\";\r\n    fileinto :create \"INBOX.${subaddress}\";\r\n    stop;\r\n}",
		cmds[0].String())
	require.Zero(t, diags.Count())
}

func TestTranslateDelayedPlaceholderKeepsChainPosition(t *testing.T) {
	cmds, diags := translateRules(t, ""+
		":0\n"+
		"| /usr/local/bin/quarantine\n"+
		"\n"+
		":0\n"+
		"* ^Subject: ham\n"+
		"keepers/\n")

	// The untranslatable pipe still counts as a delivery, so the rule
	// after it lands in the elsif position it would occupy in procmail.
	require.Len(t, cmds, 2)
	require.Equal(t,
		"if true\r\n{\r\n    # FIXME: command not translatable: "+
			"unsupported external command: /usr/local/bin/quarantine: (| /usr/local/bin/quarantine)\r\n}",
		cmds[0].String())
	require.IsType(t, sieve.Elsif{}, cmds[1])
	require.Equal(t, 1, diags.Count())
}

func writeRuleFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func TestRuleFileInclude(t *testing.T) {
	home := t.TempDir()
	writeRuleFile(t, home, "extra.rc", ""+
		":0\n"+
		"* ^Subject: a\n"+
		"alpha/\n")
	rc := writeRuleFile(t, home, ".procmailrc", ""+
		"INCLUDERC=$HOME/extra.rc\n"+
		"\n"+
		":0\n"+
		"* ^Subject: b\n"+
		"beta/\n")

	tr, diags := newTestTranslator()
	cmds, err := tr.RuleFile(rc, testArena(ArenaConfig{Home: home}).Root())
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	require.Contains(t, cmds[0].String(), `fileinto :create "alpha/";`)
	require.Contains(t, cmds[1].String(), `fileinto :create "beta/";`)
	require.Zero(t, diags.Count())
}

func TestRuleFileIncludeMissing(t *testing.T) {
	home := t.TempDir()
	rc := writeRuleFile(t, home, ".procmailrc", "INCLUDERC=$HOME/missing.rc\n")

	tr, diags := newTestTranslator()
	cmds, err := tr.RuleFile(rc, testArena(ArenaConfig{Home: home}).Root())
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	require.Equal(t, fmt.Sprintf("# FIXME: include %q;", home+"/missing.rc"), cmds[0].String())
	require.Equal(t, 1, diags.Count())
}

func TestRuleFileDropsExitCodeBookkeeping(t *testing.T) {
	home := t.TempDir()
	rc := writeRuleFile(t, home, ".procmailrc", ""+
		":0c\n"+
		"backup/\n"+
		"\n"+
		":0 e\n"+
		"{\n"+
		"EXITCODE=$?\n"+
		"}\n")

	tr, diags := newTestTranslator()
	cmds, err := tr.RuleFile(rc, testArena(ArenaConfig{Home: home}).Root())
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	require.Equal(t,
		"if true\r\n{\r\n    fileinto :copy :create \"backup/\";\r\n}",
		cmds[0].String())
	require.Zero(t, diags.Count())
}

func TestRuleFileProvenanceComment(t *testing.T) {
	home := t.TempDir()
	rc := writeRuleFile(t, home, ".procmailrc", ":0\n/dev/null\n")
	info, err := os.Stat(rc)
	require.NoError(t, err)

	tr, _ := newTestTranslator()
	cmds, err := tr.RuleFile(rc, testArena(ArenaConfig{Home: home, Provenance: true}).Root())
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	require.Equal(t,
		fmt.Sprintf("# Converted from %s (%s)", rc, info.ModTime().Format("2006-01-02 15:04:05 -0700")),
		cmds[0].String())
}

func TestRuleFileParseError(t *testing.T) {
	home := t.TempDir()
	rc := writeRuleFile(t, home, ".procmailrc", ":0\n")

	tr, _ := newTestTranslator()
	_, err := tr.RuleFile(rc, testArena(ArenaConfig{Home: home}).Root())
	require.ErrorIs(t, err, consts.ErrInvalidRecipe)
}
