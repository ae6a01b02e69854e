package sieve

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/migadu/procsieve/consts"
)

// Command is implemented by every node that can appear in a script:
// controls, actions, tests, and comments. Nodes are immutable once built.
type Command interface {
	// String renders the node in RFC 5228 syntax. Statements include their
	// trailing semicolon; tests render bare.
	String() string

	// Requires reports the capability names the node and its descendants
	// depend on, possibly with duplicates. It is a pure structural fold:
	// the result depends only on the node's fields.
	Requires() []string

	// Name labels the node for rule comments. Empty means anonymous.
	Name() string

	sieveNode()
}

// command is embedded by every node type. It seals the Command interface and
// supplies defaults for anonymous nodes with no capability requirements.
type command struct{}

func (command) sieveNode()         {}
func (command) Requires() []string { return nil }
func (command) Name() string       { return "" }

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Quote renders s per RFC 5228 Sec 2.4.2: a quoted string when it fits on
// one line, otherwise a dot-stuffed multiline literal.
func Quote(s string) string {
	if !strings.Contains(s, "\n") {
		return `"` + quoteEscaper.Replace(s) + `"`
	}
	return "text:\r\n" + dotStuff(normalizeCRLF(s)) + "\r\n.\r\n"
}

func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func dotStuff(s string) string {
	lines := strings.Split(s, "\r\n")
	for i, line := range lines {
		if strings.HasPrefix(line, ".") {
			lines[i] = "." + line
		}
	}
	return strings.Join(lines, "\r\n")
}

// stringList renders per RFC 5228 Sec 2.4.2.1: a single string stays bare,
// anything longer gets bracketed.
func stringList(items []string) string {
	if len(items) == 1 {
		return Quote(items[0])
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// matchTypeRequires folds a match type into its capability names:
// relational match types per RFC 5231 Sec 4.1, the regex match type per
// draft-murchison-sieve-regex.
func matchTypeRequires(matchType string) []string {
	var caps []string
	if strings.HasPrefix(matchType, ":count") || strings.HasPrefix(matchType, ":value") {
		caps = append(caps, "relational")
	}
	if matchType == ":regex" {
		caps = append(caps, "regex")
	}
	return caps
}

var variableRef = regexp.MustCompile(`\$\{\w+\}`)

// usesVariables reports whether any argument carries a ${...} reference,
// which the interpreter only expands when the variables extension is loaded.
func usesVariables(args ...string) bool {
	for _, a := range args {
		if variableRef.MatchString(a) {
			return true
		}
	}
	return false
}

func childRequires(cmds []Command) []string {
	var caps []string
	for _, c := range cmds {
		caps = append(caps, c.Requires()...)
	}
	return caps
}

func firstName(cmds []Command) string {
	for _, c := range cmds {
		if name := c.Name(); name != "" {
			return name
		}
	}
	return ""
}

// Defaults for optional tagged arguments. A zero field means the default and
// is omitted from the rendered form.
const (
	defaultComparator  = "i;ascii-casemap"
	defaultMatchType   = ":is"
	defaultAddressPart = ":all"
)

func isDefault(value, def string) bool {
	return value == "" || value == def
}

// Comment renders as a hash comment, or a bracketed comment when the text
// spans multiple lines (RFC 5228 Sec 2.3).
type Comment struct {
	command
	Text string
}

func (c Comment) String() string {
	if strings.Contains(c.Text, "\n") {
		return "/* " + strings.ReplaceAll(c.Text, "*/", "* /") + " */"
	}
	return "# " + c.Text
}

// Fixme marks a construct the translation could not carry over. It renders
// the placeholder (when present) followed by a FIXME comment naming the
// untranslatable source, so the emitted script stays loadable while the
// problem spot stays visible.
type Fixme struct {
	command
	Problem     string
	Placeholder Command
}

func (f Fixme) Requires() []string {
	if f.Placeholder != nil {
		return f.Placeholder.Requires()
	}
	return nil
}

func (f Fixme) String() string {
	s := ""
	if f.Placeholder != nil {
		s = f.Placeholder.String() + " "
	}
	return s + Comment{Text: "FIXME: " + f.Problem}.String()
}

// If is a conditional control (RFC 5228 Sec 3.1). Direct children are
// indented one level; nested blocks keep their own rendering. A non-empty
// Label overrides the derived rule name.
type If struct {
	command
	Test     Command
	Commands []Command
	Label    string
}

func (c If) Requires() []string {
	return append(c.Test.Requires(), childRequires(c.Commands)...)
}

func (c If) Name() string {
	if c.Label != "" {
		return c.Label
	}
	if name := firstName(c.Commands); name != "" {
		return name
	}
	return c.Test.Name()
}

func (c If) String() string {
	return "if " + c.Test.String() + blockBody(c.Commands)
}

// Elsif continues a conditional chain (RFC 5228 Sec 3.1).
type Elsif struct {
	command
	Test     Command
	Commands []Command
}

func (c Elsif) Requires() []string {
	return append(c.Test.Requires(), childRequires(c.Commands)...)
}

func (c Elsif) Name() string {
	if name := firstName(c.Commands); name != "" {
		return name
	}
	return c.Test.Name()
}

func (c Elsif) String() string {
	return "elsif " + c.Test.String() + blockBody(c.Commands)
}

// Else closes a conditional chain (RFC 5228 Sec 3.1).
type Else struct {
	command
	Commands []Command
}

func (c Else) Requires() []string { return childRequires(c.Commands) }
func (c Else) Name() string       { return firstName(c.Commands) }

func (c Else) String() string {
	return "else" + blockBody(c.Commands)
}

func blockBody(cmds []Command) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return "\r\n{\r\n    " + strings.Join(parts, "\r\n    ") + "\r\n}"
}

// Require declares the capabilities a script uses (RFC 5228 Sec 3.2).
type Require struct {
	command
	Extensions []string
}

func (c Require) String() string {
	return "require " + stringList(c.Extensions) + ";"
}

// Stop ends all processing (RFC 5228 Sec 3.3).
type Stop struct {
	command
}

func (Stop) String() string { return "stop;" }

// Fileinto delivers into a named folder (RFC 5228 Sec 4.1), optionally as a
// copy (RFC 3894 Sec 3) and optionally creating the folder (RFC 5490 Sec 3.2).
type Fileinto struct {
	command
	Mailbox string
	Copy    bool
	Create  bool
}

func (a Fileinto) Requires() []string {
	caps := []string{"fileinto"}
	if a.Copy {
		caps = append(caps, "copy")
	}
	if a.Create {
		caps = append(caps, "mailbox")
	}
	if usesVariables(a.Mailbox) {
		caps = append(caps, "variables")
	}
	return caps
}

func (a Fileinto) Name() string {
	name := strings.TrimPrefix(a.Mailbox, consts.MailboxRootPrefix)
	if strings.HasPrefix(name, "$") {
		return ""
	}
	return name
}

func (a Fileinto) String() string {
	s := "fileinto"
	if a.Copy {
		s += " :copy"
	}
	if a.Create {
		s += " :create"
	}
	return s + " " + Quote(a.Mailbox) + ";"
}

// Redirect forwards the message (RFC 5228 Sec 4.2), optionally keeping a
// copy in the normal delivery flow (RFC 3894 Sec 3).
type Redirect struct {
	command
	Address string
	Copy    bool
}

func (a Redirect) Requires() []string {
	var caps []string
	if a.Copy {
		caps = append(caps, "copy")
	}
	if usesVariables(a.Address) {
		caps = append(caps, "variables")
	}
	return caps
}

func (a Redirect) Name() string { return a.Address }

func (a Redirect) String() string {
	s := "redirect"
	if a.Copy {
		s += " :copy"
	}
	return s + " " + Quote(a.Address) + ";"
}

// Keep files into the default folder (RFC 5228 Sec 4.3).
type Keep struct {
	command
}

func (Keep) Name() string   { return "Keep" }
func (Keep) String() string { return "keep;" }

// Discard silently drops the message (RFC 5228 Sec 4.4).
type Discard struct {
	command
}

func (Discard) Name() string   { return "Discard" }
func (Discard) String() string { return "discard;" }

// AddHeader prepends a header field (RFC 5293 Sec 4).
type AddHeader struct {
	command
	Field string
	Value string
}

func (a AddHeader) Requires() []string {
	caps := []string{"editheader"}
	if usesVariables(a.Value) {
		caps = append(caps, "variables")
	}
	return caps
}

func (a AddHeader) String() string {
	return "addheader " + Quote(a.Field) + " " + Quote(a.Value) + ";"
}

// DeleteHeader removes all occurrences of a header field (RFC 5293 Sec 5).
type DeleteHeader struct {
	command
	Field string
}

func (a DeleteHeader) Requires() []string { return []string{"editheader"} }

func (a DeleteHeader) String() string {
	return "deleteheader " + Quote(a.Field) + ";"
}

// Set assigns a script variable (RFC 5229 Sec 4).
type Set struct {
	command
	Variable string
	Value    string
	Modifier string
}

func (a Set) Requires() []string { return []string{"variables"} }

func (a Set) String() string {
	s := "set"
	if a.Modifier != "" {
		s += " " + a.Modifier
	}
	return s + " " + Quote(a.Variable) + " " + Quote(a.Value) + ";"
}

// Notify sends an out-of-band notification (RFC 5435 Sec 3).
type Notify struct {
	command
	Method     string
	Message    string
	From       string
	Importance string
	Options    []string
}

func (a Notify) Requires() []string {
	caps := []string{"enotify"}
	if usesVariables(append([]string{a.Method, a.Message, a.From}, a.Options...)...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (a Notify) Name() string { return a.Method }

func (a Notify) String() string {
	s := "notify"
	if a.From != "" {
		s += " :from " + Quote(a.From)
	}
	if a.Importance != "" && a.Importance != "2" {
		s += " :importance " + Quote(a.Importance)
	}
	if len(a.Options) > 0 {
		s += " :options " + stringList(a.Options)
	}
	if a.Message != "" {
		s += " :message " + Quote(a.Message)
	}
	return s + " " + Quote(a.Method) + ";"
}

// Vacation emits an auto-response (RFC 5230), or with a seconds interval the
// vacation-seconds variant (RFC 6131).
type Vacation struct {
	command
	Reason    string
	Days      int
	Seconds   *int
	Subject   string
	From      string
	Addresses []string
	MIME      bool
	Handle    string
}

func (a Vacation) Requires() []string {
	var caps []string
	if a.Seconds != nil {
		caps = append(caps, "vacation-seconds")
	} else {
		caps = append(caps, "vacation")
	}
	if usesVariables(append([]string{a.Reason, a.Subject, a.From, a.Handle}, a.Addresses...)...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (a Vacation) Name() string { return "Vacation" }

func (a Vacation) String() string {
	s := "vacation"
	if a.Seconds != nil {
		// :seconds 0 is allowed (RFC 6131 Sec 2)
		s += " :seconds " + strconv.Itoa(*a.Seconds)
	} else if a.Days > 0 {
		// :days 0 is not allowed (RFC 5230 Sec 4.1)
		s += " :days " + strconv.Itoa(a.Days)
	}
	if a.Subject != "" {
		s += " :subject " + Quote(a.Subject)
	}
	if a.From != "" {
		s += " :from " + Quote(a.From)
	}
	if len(a.Addresses) > 0 {
		s += " :addresses " + stringList(a.Addresses)
	}
	if a.MIME {
		s += " :mime"
	}
	if a.Handle != "" {
		s += " :handle " + Quote(a.Handle)
	}
	return s + " " + Quote(a.Reason) + ";"
}

// Include pulls in another stored script (RFC 6609 Sec 3.2).
type Include struct {
	command
	Value    string
	Global   bool
	Once     bool
	Optional bool
}

func (c Include) Requires() []string { return []string{"include"} }

func (c Include) String() string {
	s := "include"
	if c.Global {
		s += " :global"
	}
	if c.Once {
		s += " :once"
	}
	if c.Optional {
		s += " :optional"
	}
	return s + " " + Quote(c.Value) + ";"
}

// Return stops the current included script (RFC 6609 Sec 3.3).
type Return struct {
	command
}

func (Return) Requires() []string { return []string{"include"} }
func (Return) String() string     { return "return;" }

// Global declares variables shared across included scripts (RFC 6609 Sec 3.4).
type Global struct {
	command
	Variables []string
}

func (c Global) Requires() []string { return []string{"include"} }

func (c Global) String() string {
	return "global " + stringList(c.Variables) + ";"
}

// AddressTest matches addresses parsed out of header fields
// (RFC 5228 Sec 5.1; address parts beyond :all per RFC 5233).
type AddressTest struct {
	command
	Headers     []string
	Keys        []string
	MatchType   string
	AddressPart string
	Comparator  string
}

func (t AddressTest) Requires() []string {
	caps := matchTypeRequires(t.MatchType)
	if t.AddressPart == ":detail" {
		caps = append(caps, "subaddress")
	}
	if usesVariables(t.Keys...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (t AddressTest) Name() string { return strings.Join(t.Keys, ",") }

func (t AddressTest) String() string {
	s := "address"
	if !isDefault(t.Comparator, defaultComparator) {
		s += " :comparator " + Quote(t.Comparator)
	}
	if !isDefault(t.MatchType, defaultMatchType) {
		s += " " + t.MatchType
	}
	if !isDefault(t.AddressPart, defaultAddressPart) {
		s += " " + t.AddressPart
	}
	return s + " " + stringList(t.Headers) + " " + stringList(t.Keys)
}

// AllofTest is logical AND (RFC 5228 Sec 5.2).
type AllofTest struct {
	command
	Tests []Command
}

func (t AllofTest) Requires() []string { return childRequires(t.Tests) }
func (t AllofTest) Name() string       { return firstName(t.Tests) }

func (t AllofTest) String() string {
	return "allof(" + joinTests(t.Tests) + ")"
}

// AnyofTest is logical OR (RFC 5228 Sec 5.3).
type AnyofTest struct {
	command
	Tests []Command
}

func (t AnyofTest) Requires() []string { return childRequires(t.Tests) }
func (t AnyofTest) Name() string       { return firstName(t.Tests) }

func (t AnyofTest) String() string {
	return "anyof(" + joinTests(t.Tests) + ")"
}

func joinTests(tests []Command) string {
	parts := make([]string, len(tests))
	for i, t := range tests {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// EnvelopeTest matches SMTP envelope addresses (RFC 5228 Sec 5.4). The
// address part renders before the comparator, unlike the address test.
type EnvelopeTest struct {
	command
	Parts       []string
	Keys        []string
	MatchType   string
	AddressPart string
	Comparator  string
}

func (t EnvelopeTest) Requires() []string {
	caps := append(matchTypeRequires(t.MatchType), "envelope")
	if t.AddressPart == ":detail" {
		caps = append(caps, "subaddress")
	}
	if usesVariables(t.Keys...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (t EnvelopeTest) Name() string {
	if t.MatchType == ":matches" && len(t.Keys) == 1 && t.Keys[0] == "*" {
		return "Envelope " + strings.ReplaceAll(t.Parts[0], ":", "")
	}
	return strings.Join(t.Keys, ",")
}

func (t EnvelopeTest) String() string {
	s := "envelope"
	if !isDefault(t.AddressPart, defaultAddressPart) {
		s += " " + t.AddressPart
	}
	if !isDefault(t.Comparator, defaultComparator) {
		s += " :comparator " + Quote(t.Comparator)
	}
	if !isDefault(t.MatchType, defaultMatchType) {
		s += " " + t.MatchType
	}
	return s + " " + stringList(t.Parts) + " " + stringList(t.Keys)
}

// ExistsTest checks header presence (RFC 5228 Sec 5.5).
type ExistsTest struct {
	command
	Headers []string
}

func (t ExistsTest) String() string {
	return "exists " + stringList(t.Headers)
}

// FalseTest never matches (RFC 5228 Sec 5.6). A placeholder test documents
// what the branch would have checked had it been translatable.
type FalseTest struct {
	command
	Placeholder Command
}

func (t FalseTest) String() string {
	if t.Placeholder != nil {
		return "false # " + t.Placeholder.String()
	}
	return "false"
}

// HeaderTest matches raw header values (RFC 5228 Sec 5.7).
type HeaderTest struct {
	command
	Headers    []string
	Keys       []string
	MatchType  string
	Comparator string
}

func (t HeaderTest) Requires() []string {
	caps := matchTypeRequires(t.MatchType)
	if usesVariables(t.Keys...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (t HeaderTest) Name() string {
	return strings.Join(t.Headers, ",") + " " + strings.Join(t.Keys, ",")
}

func (t HeaderTest) String() string {
	s := "header"
	if !isDefault(t.Comparator, defaultComparator) {
		s += " :comparator " + Quote(t.Comparator)
	}
	if !isDefault(t.MatchType, defaultMatchType) {
		s += " " + t.MatchType
	}
	return s + " " + stringList(t.Headers) + " " + stringList(t.Keys)
}

// NotTest negates its inner test (RFC 5228 Sec 5.8).
type NotTest struct {
	command
	Test Command
}

func (t NotTest) Requires() []string { return t.Test.Requires() }

func (t NotTest) Name() string {
	if name := t.Test.Name(); name != "" {
		return "not " + name
	}
	return ""
}

func (t NotTest) String() string {
	return "not " + t.Test.String()
}

// SizeTest compares the message size against a limit (RFC 5228 Sec 5.9).
type SizeTest struct {
	command
	Over  bool
	Limit string
}

func (t SizeTest) String() string {
	tag := ":under"
	if t.Over {
		tag = ":over"
	}
	return "size " + tag + " " + t.Limit
}

// TrueTest always matches (RFC 5228 Sec 5.10).
type TrueTest struct {
	command
}

func (TrueTest) String() string { return "true" }

// StringTest matches expanded variable values (RFC 5229 Sec 5). The match
// type always renders, even when it is the default.
type StringTest struct {
	command
	Sources    []string
	Keys       []string
	MatchType  string
	Comparator string
}

func (t StringTest) Requires() []string {
	return append(matchTypeRequires(t.MatchType), "variables")
}

func (t StringTest) String() string {
	s := "string"
	if !isDefault(t.Comparator, defaultComparator) {
		s += " :comparator " + Quote(t.Comparator)
	}
	matchType := t.MatchType
	if matchType == "" {
		matchType = defaultMatchType
	}
	s += " " + matchType
	return s + " " + stringList(t.Sources) + " " + stringList(t.Keys)
}

// MailboxExistsTest checks that folders exist (RFC 5490 Sec 3.1).
type MailboxExistsTest struct {
	command
	Mailboxes []string
}

func (t MailboxExistsTest) Requires() []string {
	caps := []string{"mailbox"}
	if usesVariables(t.Mailboxes...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (t MailboxExistsTest) String() string {
	return "mailboxexists " + stringList(t.Mailboxes)
}

// BodyTest matches against the message body (RFC 5173 Sec 4).
type BodyTest struct {
	command
	Keys       []string
	MatchType  string
	Comparator string
	Transform  string
}

func (t BodyTest) Requires() []string {
	caps := append(matchTypeRequires(t.MatchType), "body")
	if usesVariables(t.Keys...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (t BodyTest) Name() string {
	return "Body " + strings.Join(t.Keys, ",")
}

func (t BodyTest) String() string {
	s := "body"
	if !isDefault(t.Comparator, defaultComparator) {
		s += " :comparator " + Quote(t.Comparator)
	}
	if !isDefault(t.MatchType, defaultMatchType) {
		s += " " + t.MatchType
	}
	if !isDefault(t.Transform, ":text") {
		s += " " + t.Transform
	}
	return s + " " + stringList(t.Keys)
}

// CurrentDateTest compares against the delivery-time clock (RFC 5260 Sec 5).
// Zone and OriginalZone are mutually exclusive; Zone wins when both are set.
type CurrentDateTest struct {
	command
	DatePart     string
	Keys         []string
	Zone         string
	OriginalZone bool
	MatchType    string
	Comparator   string
}

func (t CurrentDateTest) Requires() []string {
	caps := append(matchTypeRequires(t.MatchType), "date")
	if usesVariables(t.Keys...) {
		caps = append(caps, "variables")
	}
	return caps
}

func (t CurrentDateTest) String() string {
	s := "currentdate"
	if !isDefault(t.Comparator, defaultComparator) {
		s += " :comparator " + Quote(t.Comparator)
	}
	if !isDefault(t.MatchType, defaultMatchType) {
		s += " " + t.MatchType
	}
	if t.Zone != "" {
		s += " :zone " + Quote(t.Zone)
	} else if t.OriginalZone {
		s += " :originalzone"
	}
	return s + " " + Quote(t.DatePart) + " " + stringList(t.Keys)
}
