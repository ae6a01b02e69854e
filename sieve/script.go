package sieve

import (
	"sort"
	"strings"
)

// Script assembles translated commands into a complete script. Commands are
// appended in order; rendering computes the capability union and drops
// redundant trailing commands.
type Script struct {
	commands []Command
}

func NewScript() *Script { return &Script{} }

// Add appends a command, preceded by a rule comment when the command is named.
func (s *Script) Add(cmd Command) {
	if name := cmd.Name(); name != "" {
		s.commands = append(s.commands, Comment{Text: "rule:[" + name + "]"})
	}
	s.commands = append(s.commands, cmd)
}

// Requires returns the deduplicated, sorted capability union of the script.
func (s *Script) Requires() []string {
	seen := make(map[string]struct{})
	var caps []string
	for _, c := range s.commands {
		for _, name := range c.Requires() {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				caps = append(caps, name)
			}
		}
	}
	sort.Strings(caps)
	return caps
}

// String renders the finished script with CRLF line endings and no trailing
// newline. A require statement leads when any capability is used. A final
// stop is superfluous and drops, and so does a final keep (RFC 5228
// Sec 2.10.2).
func (s *Script) String() string {
	out := make([]Command, 0, len(s.commands)+1)
	if caps := s.Requires(); len(caps) > 0 {
		out = append(out, Require{Extensions: caps})
	}
	out = append(out, s.commands...)
	if len(out) > 0 {
		if _, ok := out[len(out)-1].(Stop); ok {
			out = out[:len(out)-1]
		}
	}
	if len(out) > 0 && out[len(out)-1].String() == "keep;" {
		out = out[:len(out)-1]
	}
	parts := make([]string, len(out))
	for i, c := range out {
		parts[i] = c.String()
	}
	return strings.Join(parts, "\r\n")
}
