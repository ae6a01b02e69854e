package convert

import (
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/helpers"
	"github.com/migadu/procsieve/sieve"
)

// ChainType says how a context's output joins the surrounding conditional
// chain: a fresh chain, or a continuation that renders as elsif.
type ChainType int

const (
	ChainNone ChainType = iota
	ChainElse
)

// BindingKind distinguishes literal variable values from the per-user
// locations that are only known to the root context.
type BindingKind int

const (
	// BindingLiteral is a plain string value.
	BindingLiteral BindingKind = iota
	// BindingHomeDirectory resolves to the user's home directory.
	BindingHomeDirectory
	// BindingDefaultInbox resolves to the user's default inbox path.
	BindingDefaultInbox
)

// Binding is one environment entry. Deferred kinds carry no value of their
// own; the root context supplies it when the binding is read.
type Binding struct {
	Kind  BindingKind
	Value string
}

// Literal wraps a plain string value as a binding.
func Literal(value string) Binding {
	return Binding{Kind: BindingLiteral, Value: value}
}

// ArenaConfig carries the per-user facts deferred bindings resolve against.
// Home and Inbox must already be absolute paths.
type ArenaConfig struct {
	User        string
	Home        string
	Inbox       string
	EmailDomain string
	SearchPath  string
	Provenance  bool
}

// DefaultSearchPath is the PATH commands in rule files resolve against
// unless configured otherwise.
const DefaultSearchPath = "/usr/local/bin:/usr/bin:/bin"

// Arena owns every context of one conversion run. Contexts are flat nodes
// holding only their local bindings and a parent index; variable lookups
// walk the parent chain.
type Arena struct {
	cfg          ArenaConfig
	nodes        []contextNode
	inboxPattern *regexp.Regexp
}

type contextNode struct {
	parent   int
	bindings map[string]Binding
	chain    ChainType
	nest     int
}

// Context is a handle on one arena node. It is a small value, copied freely;
// all state lives in the arena.
type Context struct {
	arena *Arena
	idx   int
}

// NewArena builds the context arena for one user and seeds the root context
// with the environment procmail itself would start from.
func NewArena(cfg ArenaConfig) *Arena {
	searchPath := cfg.SearchPath
	if searchPath == "" {
		searchPath = DefaultSearchPath
	}
	a := &Arena{
		cfg: cfg,
		nodes: []contextNode{{
			parent: -1,
			bindings: map[string]Binding{
				"LOGNAME": Literal(cfg.User),
				"HOME":    {Kind: BindingHomeDirectory},
				"MAILDIR": {Kind: BindingHomeDirectory},
				"DEFAULT": {Kind: BindingDefaultInbox},
				"ORGMAIL": Literal("/var/mail/" + cfg.User),
				"PATH":    Literal(searchPath),
			},
		}},
		inboxPattern: regexp.MustCompile("^" + regexp.QuoteMeta(cfg.Inbox) + "/+(.*?)/*$"),
	}
	return a
}

// Root returns the root context.
func (a *Arena) Root() Context {
	return Context{arena: a, idx: 0}
}

func (a *Arena) resolve(b Binding) string {
	switch b.Kind {
	case BindingLiteral:
		return b.Value
	case BindingHomeDirectory:
		return a.cfg.Home
	case BindingDefaultInbox:
		return a.cfg.Inbox
	default:
		panic("convert: unknown binding kind")
	}
}

func (a *Arena) child(parent int, chain ChainType, nest int, bindings map[string]Binding) Context {
	if bindings == nil {
		bindings = make(map[string]Binding)
	}
	a.nodes = append(a.nodes, contextNode{
		parent:   parent,
		bindings: bindings,
		chain:    chain,
		nest:     nest,
	})
	return Context{arena: a, idx: len(a.nodes) - 1}
}

// ChainChild opens a context for a run of rules at the same output depth:
// a rule chunk, or the contents of an included file.
func (c Context) ChainChild(chain ChainType) Context {
	return c.arena.child(c.idx, chain, c.node().nest, nil)
}

// BlockChild opens a context one output block deeper: a recipe's action
// side, a brace block's contents, or the rules slurped into an else branch.
func (c Context) BlockChild() Context {
	return c.arena.child(c.idx, ChainNone, c.node().nest+1, nil)
}

func (c Context) blockChildWith(bindings map[string]Binding) Context {
	return c.arena.child(c.idx, ChainNone, c.node().nest+1, bindings)
}

func (c Context) node() *contextNode {
	return &c.arena.nodes[c.idx]
}

// Parent returns the enclosing context; the root is its own parent.
func (c Context) Parent() Context {
	if p := c.node().parent; p >= 0 {
		return Context{arena: c.arena, idx: p}
	}
	return c
}

// Chain reports how this context joins the surrounding conditional chain.
func (c Context) Chain() ChainType {
	return c.node().chain
}

// NestLevel reports how many output blocks enclose commands emitted in this
// context. At level zero emitted commands sit at script top level.
func (c Context) NestLevel() int {
	return c.node().nest
}

// User returns the login name of the user whose files are being translated.
func (c Context) User() string {
	return c.arena.cfg.User
}

// HomeDirectory returns the user's home directory.
func (c Context) HomeDirectory() string {
	return c.arena.cfg.Home
}

// Provenance reports whether source comments should be emitted.
func (c Context) Provenance() bool {
	return c.arena.cfg.Provenance
}

// EmailDomain returns the domain used to qualify bare local addresses. It is
// only consulted when a rule actually needs it, so rule files that never
// forward off-host translate without one.
func (c Context) EmailDomain() (string, error) {
	if c.arena.cfg.EmailDomain == "" {
		return "", consts.ErrMissingDomain
	}
	return c.arena.cfg.EmailDomain, nil
}

// Getenv looks a variable up through the parent chain. Unset variables
// resolve to the empty string, as they do in procmail.
func (c Context) Getenv(name string) string {
	for idx := c.idx; idx >= 0; {
		node := &c.arena.nodes[idx]
		if b, ok := node.bindings[name]; ok {
			return c.arena.resolve(b)
		}
		idx = node.parent
	}
	return ""
}

// Setenv records an assignment in this context, interpolating the value
// against the bindings visible here.
func (c Context) Setenv(name, value string) {
	c.node().bindings[name] = Literal(c.Interpolate(value))
}

func (c Context) bind(name string, b Binding) {
	c.node().bindings[name] = b
}

// Interpolate expands $VAR and ${VAR} references against this context.
// Single-quoted spans pass through verbatim with the quotes dropped; an
// unmatched quote stays put. Unset variables expand to nothing.
func (c Context) Interpolate(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		switch s[i] {
		case '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				b.WriteByte('\'')
				i++
				continue
			}
			b.WriteString(s[i+1 : i+1+end])
			i += end + 2
		case '$':
			name, width := scanVariableRef(s[i+1:])
			if width == 0 {
				b.WriteByte('$')
				i++
				continue
			}
			b.WriteString(c.Getenv(name))
			i += width + 1
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// scanVariableRef reads a variable reference after a $, returning the
// variable name and the number of bytes consumed. A braced reference may
// start with a digit; a bare one must start with a letter or underscore.
func scanVariableRef(s string) (name string, width int) {
	if strings.HasPrefix(s, "{") {
		end := 1
		for end < len(s) && isVariableByte(s[end]) {
			end++
		}
		if end == 1 || end >= len(s) || s[end] != '}' {
			return "", 0
		}
		return s[1:end], end + 1
	}
	if len(s) == 0 || !isVariableStart(s[0]) {
		return "", 0
	}
	end := 1
	for end < len(s) && isVariableByte(s[end]) {
		end++
	}
	return s[:end], end
}

func isVariableStart(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func isVariableByte(b byte) bool {
	return isVariableStart(b) || b >= '0' && b <= '9'
}

// ResolvePath makes path absolute the way procmail would: ~ expands to the
// user's home, a relative path lands under relTo, or under the home
// directory when relTo is empty.
func (c Context) ResolvePath(path, relTo string) string {
	path = expandUser(path, c.arena.cfg.Home)
	if filepath.IsAbs(path) {
		return path
	}
	if relTo == "" {
		relTo = c.arena.cfg.Home
	}
	return filepath.Join(relTo, path)
}

func expandUser(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return home + path[1:]
	}
	if strings.HasPrefix(path, "~") {
		name, rest, _ := strings.Cut(path[1:], "/")
		u, err := user.Lookup(name)
		if err != nil {
			return path
		}
		if rest == "" {
			return u.HomeDir
		}
		return u.HomeDir + "/" + rest
	}
	return path
}

// ResolveEmailAddress qualifies a bare local part with the configured email
// domain and normalizes the result to header form. Addresses that already
// carry a domain never consult the configuration.
func (c Context) ResolveEmailAddress(addr string) (string, error) {
	name, address := helpers.ParseAddress(addr)
	if address != "" && !strings.Contains(address, "@") {
		domain, err := c.EmailDomain()
		if err != nil {
			return "", err
		}
		address += "@" + domain
	}
	return helpers.FormatAddress(name, address), nil
}

// MailboxName rewrites a delivery path under the default inbox into the
// INBOX folder namespace. Anything else passes through untouched.
func (c Context) MailboxName(path string) string {
	if m := c.arena.inboxPattern.FindStringSubmatch(path); m != nil {
		return consts.MailboxInbox + m[1]
	}
	return path
}

// ContextChain joins translated commands to the surrounding conditional
// chain. A nil test splices bare commands when the context already sits
// inside an output block, or wraps them in an always-true conditional at
// top level so the rule still reads as a unit. A continuation context turns
// the test into an elsif.
func (c Context) ContextChain(test sieve.Command, commands []sieve.Command) []sieve.Command {
	switch {
	case test == nil && c.Chain() == ChainNone:
		if c.NestLevel() > 0 {
			return commands
		}
		return []sieve.Command{sieve.If{Test: sieve.TrueTest{}, Commands: commands}}
	case c.Chain() == ChainNone:
		return []sieve.Command{sieve.If{Test: test, Commands: commands}}
	case test == nil:
		return commands
	default:
		return []sieve.Command{sieve.Elsif{Test: test, Commands: commands}}
	}
}
