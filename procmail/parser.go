package procmail

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/migadu/procsieve/consts"
)

// numberedLine is a logical line together with the number of its first
// physical line.
type numberedLine struct {
	num  int
	text string
}

// lineScanner yields stripped logical lines: comments and blank lines drop,
// backslash-continued lines fold into one, and a single line of pushback
// lets the recipe parser peek ahead for the action line.
type lineScanner struct {
	scanner  *bufio.Scanner
	num      int
	pushback *numberedLine
}

func newLineScanner(r io.Reader) *lineScanner {
	return &lineScanner{scanner: bufio.NewScanner(r)}
}

func (s *lineScanner) unread(line numberedLine) {
	s.pushback = &line
}

// rawNext returns the next stripped physical line that is neither blank nor
// a comment.
func (s *lineScanner) rawNext() (numberedLine, bool) {
	for s.scanner.Scan() {
		s.num++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		return numberedLine{num: s.num, text: text}, true
	}
	return numberedLine{}, false
}

// next returns the next logical line, folding continuations. A folded line
// keeps the number of its first physical line.
func (s *lineScanner) next() (numberedLine, bool) {
	if s.pushback != nil {
		line := *s.pushback
		s.pushback = nil
		return line, true
	}
	line, ok := s.rawNext()
	if !ok {
		return numberedLine{}, false
	}
	for strings.HasSuffix(line.text, `\`) {
		cont, ok := s.rawNext()
		if !ok {
			line.text = strings.TrimSuffix(line.text, `\`)
			break
		}
		line.text = strings.TrimSuffix(line.text, `\`) + cont.text
	}
	return line, true
}

func (s *lineScanner) err() error { return s.scanner.Err() }

// Parser reads procmail rule files into nodes. Parse errors abort the file;
// there is no mid-file recovery.
type Parser struct {
	filename  string
	nestLevel int
}

// ParseFile reads and parses the named rule file.
func ParseFile(path string) ([]Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads rules from r; filename appears in error messages.
func Parse(r io.Reader, filename string) ([]Node, error) {
	p := &Parser{filename: filename}
	lines := newLineScanner(r)
	nodes, err := p.parseRules(lines)
	if err != nil {
		return nil, err
	}
	if err := lines.err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return nodes, nil
}

func (p *Parser) parseRules(lines *lineScanner) ([]Node, error) {
	var nodes []Node
	for {
		line, ok := lines.next()
		if !ok {
			if p.nestLevel != 0 {
				return nil, fmt.Errorf("%w at EOF in %s", consts.ErrUnmatchedBrace, p.filename)
			}
			return nodes, nil
		}
		switch {
		case line.text == "}":
			if p.nestLevel <= 0 {
				return nil, fmt.Errorf(`%w: unexpected "}" at file %s line %d`, consts.ErrUnmatchedBrace, p.filename, line.num)
			}
			p.nestLevel--
			return nodes, nil
		case strings.HasPrefix(line.text, ":0"):
			recipe, err := p.parseRecipe(lines, line)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, recipe)
		default:
			assignment, err := p.parseAssignment(line)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, assignment)
		}
	}
}

func (p *Parser) parseRecipe(lines *lineScanner, flagLine numberedLine) (*Recipe, error) {
	flags, err := p.parseFlags(flagLine)
	if err != nil {
		return nil, err
	}
	recipe := &Recipe{Flags: flags, File: p.filename, Line: flagLine.num}
	for {
		line, ok := lines.next()
		if !ok {
			return nil, fmt.Errorf("%w: missing action at %s line %d", consts.ErrInvalidRecipe, p.filename, flagLine.num)
		}
		if strings.HasPrefix(line.text, "*") {
			recipe.Conditions = append(recipe.Conditions, parseCondition(line.text))
			continue
		}
		lines.unread(line)
		action, err := p.parseAction(lines)
		if err != nil {
			return nil, err
		}
		recipe.Action = action
		return recipe, nil
	}
}

// parseFlags scans the letters after :0. A colon introduces the lock marker
// with an optional lockfile; a comment is only valid after the colon.
func (p *Parser) parseFlags(line numberedLine) (Flags, error) {
	rest := strings.TrimPrefix(line.text, ":0")
	var flags Flags
	for i := 0; i < len(rest); {
		c := rest[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.IndexByte(flagLetters, c) >= 0:
			flags.add(c)
			i++
		case c == ':':
			flags.Lock = true
			tail := strings.TrimSpace(rest[i+1:])
			if tail == "" {
				return flags, nil
			}
			token, after := tail, ""
			if cut := strings.IndexAny(tail, " \t"); cut >= 0 {
				token, after = tail[:cut], strings.TrimSpace(tail[cut+1:])
			}
			switch {
			case after == "" || strings.HasPrefix(after, "#"):
				flags.LockFile = token
			case strings.HasPrefix(token, "#"):
				// comment only, no lockfile
			default:
				return Flags{}, fmt.Errorf("%w at %s line %d: flag %q", consts.ErrInvalidRecipe, p.filename, line.num, rest[i:])
			}
			return flags, nil
		default:
			return Flags{}, fmt.Errorf("%w at %s line %d: flag %q", consts.ErrInvalidRecipe, p.filename, line.num, rest[i:])
		}
	}
	return flags, nil
}

var (
	weightPrefix   = regexp.MustCompile(`^([+-]?(?:\d*\.)?\d+)\^([+-]?(?:\d*\.)?\d+)\s*`)
	variablePrefix = regexp.MustCompile(`^([A-Za-z_][A-Za-z_0-9]*)\s*\?\?`)
	sizeCondition  = regexp.MustCompile(`^([<>])\s*(\d+)\s*$`)
)

// parseCondition scans one * line. Modifiers (weight, invert, shell,
// variable target) accumulate until a primary clause consumes the rest of
// the line.
func parseCondition(text string) Condition {
	var cond Condition
	rest := strings.TrimPrefix(text, "*")
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return cond
		}
		if m := weightPrefix.FindStringSubmatch(rest); m != nil {
			cond.Weight, cond.Exponent = m[1], m[2]
			rest = rest[len(m[0]):]
			continue
		}
		switch rest[0] {
		case '!':
			cond.Invert = true
			rest = rest[1:]
			continue
		case '$':
			cond.Shell = true
			rest = rest[1:]
			continue
		}
		if m := variablePrefix.FindStringSubmatch(rest); m != nil {
			cond.VariableName = m[1]
			rest = rest[len(m[0]):]
			continue
		}
		if rest[0] == '?' {
			cond.ExitProgram = strings.TrimLeft(rest[1:], " \t")
			return cond
		}
		if m := sizeCondition.FindStringSubmatch(rest); m != nil {
			if m[1] == "<" {
				cond.ShorterThan = m[2]
			} else {
				cond.LongerThan = m[2]
			}
			return cond
		}
		cond.Regexp = rest
		return cond
	}
}

var pipeAction = regexp.MustCompile(`^(?:(\S+)\s*=\s*)?\|\s*(.*)$`)

// parseAction consumes the action line: a ! forward, a pipe with an optional
// capture variable, a { nesting block parsed recursively, or a mailbox path.
func (p *Parser) parseAction(lines *lineScanner) (Action, error) {
	line, ok := lines.next()
	if !ok {
		return nil, fmt.Errorf("%w: missing action in %s", consts.ErrInvalidAction, p.filename)
	}
	text := line.text

	if strings.HasPrefix(text, "!") {
		dests := text[1:]
		if cut := strings.IndexByte(dests, '#'); cut >= 0 {
			dests = dests[:cut]
		}
		fields := strings.FieldsFunc(dests, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		if len(fields) == 0 {
			return nil, p.actionError(line)
		}
		return Forward{Destinations: fields}, nil
	}

	if m := pipeAction.FindStringSubmatch(text); m != nil {
		return Pipe{Command: m[2], Variable: m[1]}, nil
	}

	if strings.HasPrefix(text, "{") {
		tail := strings.TrimSpace(text[1:])
		if tail == "" || strings.HasPrefix(tail, "#") {
			p.nestLevel++
			nodes, err := p.parseRules(lines)
			if err != nil {
				return nil, err
			}
			return Block{Nodes: nodes}, nil
		}
	}

	token, after := text, ""
	if cut := strings.IndexAny(text, " #"); cut >= 0 {
		token, after = text[:cut], strings.TrimSpace(text[cut:])
	}
	if token != "" && (after == "" || strings.HasPrefix(after, "#")) {
		return Mailbox{Destination: token}, nil
	}
	return nil, p.actionError(line)
}

func (p *Parser) actionError(line numberedLine) error {
	return fmt.Errorf("%w at %s line %d: %q", consts.ErrInvalidAction, p.filename, line.num, line.text)
}

var assignmentLine = regexp.MustCompile(`^([A-Za-z_][A-Za-z_0-9]*)\s*(?:(=)?\s*(.*?))?\s*(?:#.*)?$`)

func (p *Parser) parseAssignment(line numberedLine) (*Assignment, error) {
	m := assignmentLine.FindStringSubmatch(line.text)
	if m == nil {
		return nil, fmt.Errorf("%w at file %s line %d: %q", consts.ErrInvalidAssignment, p.filename, line.num, line.text)
	}
	return &Assignment{
		Variable:  m[1],
		HasAssign: m[2] == "=",
		Value:     m[3],
		File:      p.filename,
		Line:      line.num,
	}, nil
}
