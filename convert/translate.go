package convert

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/helpers"
	"github.com/migadu/procsieve/procmail"
	"github.com/migadu/procsieve/sieve"
)

// Translator lowers parsed rule files into Sieve commands. Untranslatable
// constructs are recorded on the shared Diagnostics and surface as inert
// placeholder commands instead of aborting the run.
type Translator struct {
	diags *Diagnostics
}

func NewTranslator(diags *Diagnostics) *Translator {
	return &Translator{diags: diags}
}

// RuleFile translates one rule file. The file is parsed whole before any
// translation so that grammar errors never produce partial output.
func (t *Translator) RuleFile(path string, ctx Context) ([]sieve.Command, error) {
	entry := ctx.ChainChild(ChainNone)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	nodes, err := procmail.Parse(strings.NewReader(helpers.SanitizeUTF8(string(raw))), path)
	if err != nil {
		return nil, err
	}

	rules := make([]procmail.Node, 0, len(nodes))
	for _, node := range nodes {
		if !isErrcheck(node) {
			rules = append(rules, node)
		}
	}

	var out []sieve.Command
	if entry.Provenance() {
		out = append(out, sieve.Comment{Text: fmt.Sprintf("Converted from %s (%s)",
			path, info.ModTime().Format("2006-01-02 15:04:05 -0700"))})
	}
	cmds, err := t.Rules(rules, entry)
	if err != nil {
		return nil, err
	}
	return append(out, cmds...), nil
}

// Rules lowers a rule sequence, reconstructing the implicit fallthrough of
// delivering rules as an explicit if/elsif/else chain. A delivering rule
// closes the current chain: the next rule translates in a fresh
// else-continuation sibling. Once an unconditional rule or an assignment
// turns up in else position, everything remaining is wrapped in a single
// trailing else block, because a bare command between if and elsif would
// not be valid Sieve.
func (t *Translator) Rules(nodes []procmail.Node, ctx Context) ([]sieve.Command, error) {
	entry := ctx
	var out []sieve.Command
	for i, node := range nodes {
		switch n := node.(type) {
		case *procmail.Assignment:
			if ctx.Chain() == ChainElse {
				tail, err := t.elseTail(nodes[i:], ctx)
				if err != nil {
					return nil, err
				}
				return append(out, tail...), nil
			}
			cmds, err := t.assignment(n, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, cmds...)
		case *procmail.Recipe:
			if ctx.Chain() == ChainElse && len(n.Conditions) == 0 {
				tail, err := t.elseTail(nodes[i:], ctx)
				if err != nil {
					return nil, err
				}
				return append(out, tail...), nil
			}
			cmds, err := t.recipe(n, ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, cmds...)
			if n.IsDelivering() {
				ctx = entry.ChainChild(ChainElse)
			} else if ctx.Chain() == ChainElse {
				// The continuation is used up. Later conditioned rules
				// start fresh if chains, which is correct because every
				// delivering branch ends in a stop.
				ctx = ctx.Parent()
			}
		default:
			panic(fmt.Sprintf("convert: unknown rule type %T", node))
		}
	}
	return out, nil
}

// elseTail translates the remaining rules one block level down and wraps
// them in the chain's closing else.
func (t *Translator) elseTail(nodes []procmail.Node, ctx Context) ([]sieve.Command, error) {
	inner, err := t.Rules(nodes, ctx.BlockChild())
	if err != nil || len(inner) == 0 {
		return nil, err
	}
	return []sieve.Command{sieve.Else{Commands: inner}}, nil
}

// Variables that configure procmail itself. Assigning them steers the
// translation but says nothing a Sieve script needs to replay.
var procmailOnlyVariables = map[string]bool{
	"PATH":        true,
	"LOCKFILE":    true,
	"LOGFILE":     true,
	"VERBOSE":     true,
	"LOGABSTRACT": true,
	"SHELL":       true,
	"MAILDIR":     true,
	"DEFAULT":     true,
	"ORGMAIL":     true,
}

func (t *Translator) assignment(a *procmail.Assignment, ctx Context) ([]sieve.Command, error) {
	switch a.Variable {
	case "HOST", "SWITCHRC":
		return []sieve.Command{t.diags.Fixme(a.String(), sieve.Stop{})}, nil
	case "INCLUDERC":
		path := ctx.ResolvePath(ctx.Interpolate(a.Value), ctx.Getenv("MAILDIR"))
		included, err := t.RuleFile(path, ctx.ChainChild(ChainNone))
		if err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				include := sieve.Include{Value: ctx.Interpolate(a.Value)}
				return []sieve.Command{t.diags.Fixme(include.String(), nil)}, nil
			}
			return nil, err
		}
		return included, nil
	}
	value := ctx.Interpolate(a.Value)
	ctx.Setenv(a.Variable, a.Value)
	if procmailOnlyVariables[a.Variable] {
		return nil, nil
	}
	return []sieve.Command{sieve.Set{Variable: a.Variable, Value: value}}, nil
}

func (t *Translator) recipe(r *procmail.Recipe, ctx Context) ([]sieve.Command, error) {
	if letters := unsupportedFlags(r.Flags); letters != "" {
		actions, err := t.Action(r.Flags, r.Action, ctx.BlockChild())
		if err != nil {
			return nil, err
		}
		fixme := t.diags.Fixme("Unsupported recipe flag "+letters, sieve.FalseTest{})
		return ctx.ContextChain(fixme, actions), nil
	}

	if hasMailExtensionConditions(r) {
		child := ctx.blockChildWith(map[string]Binding{"EXTENSION": Literal("${subaddress}")})
		actions, err := t.Action(r.Flags, r.Action, child)
		if err != nil {
			return nil, err
		}
		test := sieve.AllofTest{Tests: []sieve.Command{
			sieve.EnvelopeTest{Parts: []string{"to"}, Keys: []string{"*"}, MatchType: ":matches", AddressPart: ":detail"},
			sieve.MailboxExistsTest{Mailboxes: []string{consts.MailboxRootPrefix + "${1}"}},
		}}
		commands := append([]sieve.Command{sieve.Set{Variable: "subaddress", Value: "${1}"}}, actions...)
		return ctx.ContextChain(test, commands), nil
	}

	var test sieve.Command
	if len(r.Conditions) > 0 {
		var err error
		test, err = t.Test(r.Flags, r.Conditions, ctx)
		if err != nil {
			return nil, err
		}
	}
	actions, err := t.Action(r.Flags, r.Action, ctx.BlockChild())
	if err != nil {
		return nil, err
	}
	return ctx.ContextChain(test, actions), nil
}

func unsupportedFlags(flags procmail.Flags) string {
	var letters []byte
	for _, f := range []byte("DAaEe") {
		if flags.Has(f) {
			letters = append(letters, f)
		}
	}
	return string(letters)
}

// The condition shapes some sites generated for subaddress routing,
// recognized whole and rebuilt as an envelope detail test.
var mailExtensionConditions = [][]procmail.Condition{
	{
		{ExitProgram: "test -n ${EXTENSION}"},
		{ExitProgram: "test -d ${MAILDIR}/.${EXTENSION}"},
	},
	{
		{ExitProgram: `test -n "${EXTENSION}"`},
		{ExitProgram: `test -d "${MAILDIR}/.${EXTENSION}"`},
	},
	{
		{ExitProgram: `test -n "${EXTENSION}" -a -d "${MAILDIR}/.${EXTENSION}"`},
	},
}

func hasMailExtensionConditions(r *procmail.Recipe) bool {
	for _, want := range mailExtensionConditions {
		if len(r.Conditions) != len(want) {
			continue
		}
		match := true
		for i := range want {
			if r.Conditions[i] != want[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// isErrcheck recognizes the idiom that records a pipe's exit code for
// procmail's own bookkeeping. It carries no delivery semantics.
func isErrcheck(node procmail.Node) bool {
	r, ok := node.(*procmail.Recipe)
	if !ok || !r.Flags.Equal(procmail.Flags{Letters: "e"}) || len(r.Conditions) > 0 {
		return false
	}
	block, ok := r.Action.(procmail.Block)
	if !ok || len(block.Nodes) != 1 {
		return false
	}
	a, ok := block.Nodes[0].(*procmail.Assignment)
	return ok && a.Variable == "EXITCODE" && a.HasAssign && a.Value == "$?"
}
