package procmail

import (
	"fmt"
	"strings"
)

// Node is one parsed item of a rule file: a variable assignment or a recipe.
// The set of implementations is closed; translators switch over it
// exhaustively.
type Node interface {
	// IsDelivering reports whether procmail would consider the mail
	// delivered once this node's action ran, ending rule processing.
	// Computed on demand so nested blocks are always current.
	IsDelivering() bool

	procmailNode()
}

// Assignment is a VARIABLE=value line (or a bare VARIABLE, which unsets).
type Assignment struct {
	Variable  string
	HasAssign bool
	Value     string
	File      string
	Line      int
}

func (*Assignment) procmailNode()      {}
func (*Assignment) IsDelivering() bool { return false }

func (a *Assignment) String() string {
	switch {
	case a.HasAssign:
		return a.Variable + "=" + a.Value
	case a.Value != "":
		return a.Variable + " " + a.Value
	default:
		return a.Variable
	}
}

// Recipe is a :0 rule: flags, zero or more conditions, and one action.
type Recipe struct {
	Flags      Flags
	Conditions []Condition
	Action     Action
	File       string
	Line       int
}

func (*Recipe) procmailNode() {}

// IsDelivering reports whether the recipe writes the mail to a file, feeds
// it to a program, or forwards it, without the c flag that turns delivery
// into a carbon copy. A nesting block delivers when any rule inside it does.
func (r *Recipe) IsDelivering() bool {
	if r.Flags.Has('c') {
		return false
	}
	switch action := r.Action.(type) {
	case Forward, Mailbox, Pipe:
		return true
	case Block:
		for _, node := range action.Nodes {
			if node.IsDelivering() {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("procmail: unknown action type %T", r.Action))
	}
}

func (r *Recipe) String() string {
	parts := []string{r.Flags.String()}
	for _, cond := range r.Conditions {
		parts = append(parts, cond.String())
	}
	return strings.Join(parts, " ")
}

// flagLetters are the recipe flags procmail defines, in its own order.
const flagLetters = "HBDAaEehbfcwWir"

// Flags holds a recipe's flag letters and lock marker.
type Flags struct {
	Letters  string // sorted, deduplicated
	Lock     bool
	LockFile string
}

func (f Flags) Has(letter byte) bool {
	return strings.IndexByte(f.Letters, letter) >= 0
}

func (f *Flags) add(letter byte) {
	if f.Has(letter) {
		return
	}
	letters := []byte(f.Letters + string(letter))
	for i := len(letters) - 1; i > 0 && letters[i] < letters[i-1]; i-- {
		letters[i], letters[i-1] = letters[i-1], letters[i]
	}
	f.Letters = string(letters)
}

// Equal compares flag sets including the lock marker, which procmail treats
// as part of the flag line.
func (f Flags) Equal(other Flags) bool {
	return f.Letters == other.Letters && f.Lock == other.Lock && f.LockFile == other.LockFile
}

func (f Flags) String() string {
	s := ":0"
	if f.Letters != "" {
		s += " " + f.Letters
	}
	if f.Lock {
		s += ":"
		if f.LockFile != "" {
			s += f.LockFile
		}
	}
	return s
}

// Condition is one * line of a recipe. Invert and Shell may combine with at
// most one primary kind; Weight and Exponent are set together.
type Condition struct {
	Invert       bool
	Shell        bool
	Weight       string
	Exponent     string
	VariableName string
	ExitProgram  string
	ShorterThan  string
	LongerThan   string
	Regexp       string
}

func (c Condition) String() string {
	var b strings.Builder
	b.WriteString("*")
	if c.Weight != "" {
		b.WriteString(" " + c.Weight + "^" + c.Exponent)
	}
	if c.Invert {
		b.WriteString(" !")
	}
	if c.Shell {
		b.WriteString(" $")
	}
	if c.VariableName != "" {
		b.WriteString(" " + c.VariableName + " ??")
	}
	switch {
	case c.ExitProgram != "":
		b.WriteString(" ? " + c.ExitProgram)
	case c.ShorterThan != "":
		b.WriteString(" < " + c.ShorterThan)
	case c.LongerThan != "":
		b.WriteString(" > " + c.LongerThan)
	case c.Regexp != "":
		b.WriteString(" " + c.Regexp)
	}
	return b.String()
}

// Action is a recipe's action. The set of implementations is closed:
// Forward, Mailbox, Pipe, and Block.
type Action interface {
	procmailAction()
}

// Forward is a ! action: bounce the mail to other addresses.
type Forward struct {
	Destinations []string
}

// Mailbox is a file or directory delivery action.
type Mailbox struct {
	Destination string
}

// Pipe feeds the mail to a shell command, optionally capturing the output
// into a variable.
type Pipe struct {
	Command  string
	Variable string
}

// Block is a { ... } nesting action holding its own rule list.
type Block struct {
	Nodes []Node
}

func (Forward) procmailAction() {}
func (Mailbox) procmailAction() {}
func (Pipe) procmailAction()    {}
func (Block) procmailAction()   {}
