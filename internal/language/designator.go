package language

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Designator is a client-side nullability override written after a field
// selection.
type Designator int

const (
	DesignatorNone     Designator = iota
	DesignatorRequired            // !
	DesignatorOptional            // ?
)

func (d Designator) String() string {
	switch d {
	case DesignatorRequired:
		return "!"
	case DesignatorOptional:
		return "?"
	default:
		return ""
	}
}

// MarshalText renders the designator as its punctuator.
func (d Designator) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func designatorFor(r rune) Designator {
	switch r {
	case '!':
		return DesignatorRequired
	case '?':
		return DesignatorOptional
	}
	return DesignatorNone
}

type designatorMark struct {
	designator Designator
	offset     int // rune offset of the punctuator
	line       int
	column     int
}

type spreadState int

const (
	spreadNone spreadState = iota
	spreadStart
	spreadOn
)

// scanner walks GraphQL source one token at a time, tracking only what it
// needs to tell designators apart from the `!` of variable types.
type scanner struct {
	src       *Source
	input     []rune
	out       []rune
	pos       int
	line      int
	lineStart int

	braces int
	parens int

	// designator is allowed right after a field name or its arguments
	canDesignate bool
	// canDesignate saved at each '(' inside a selection set
	parenStack []bool

	afterAt    bool
	spread     spreadState
	afterKey   bool // previous token was a field name in alias position
	designated bool // previous token was a designator

	marks []designatorMark
}

// stripDesignators blanks every designator in src and reports where they were.
func stripDesignators(src *Source) (string, []designatorMark, error) {
	s := &scanner{
		src:   src,
		input: []rune(src.Input),
		line:  1,
	}
	s.out = make([]rune, len(s.input))
	copy(s.out, s.input)
	if err := s.run(); err != nil {
		return "", nil, err
	}
	return string(s.out), s.marks, nil
}

func (s *scanner) column() int { return s.pos - s.lineStart + 1 }

func (s *scanner) newline() {
	s.line++
	s.lineStart = s.pos
}

func (s *scanner) inSelection() bool { return s.braces > 0 && s.parens == 0 }

func (s *scanner) run() error {
	for s.pos < len(s.input) {
		r := s.input[s.pos]
		switch {
		case r == '\r':
			s.pos++
			if s.pos < len(s.input) && s.input[s.pos] == '\n' {
				s.pos++
			}
			s.newline()
			continue
		case r == '\n':
			s.pos++
			s.newline()
			continue
		case r == ' ' || r == '\t' || r == ',' || r == '\uFEFF':
			s.pos++
			continue
		case r == '#':
			for s.pos < len(s.input) && s.input[s.pos] != '\n' && s.input[s.pos] != '\r' {
				s.pos++
			}
			continue
		case r == '!' || r == '?':
			if err := s.designator(r); err != nil {
				return err
			}
			continue
		}

		designated := s.designated
		s.designated = false
		switch {
		case r == '"':
			s.skipString()
		case isNameStart(r):
			start := s.pos
			for s.pos < len(s.input) && isNameContinue(s.input[s.pos]) {
				s.pos++
			}
			s.name(string(s.input[start:s.pos]))
		case r == '.' && s.peekDots():
			s.pos += 3
			if s.inSelection() {
				s.spread = spreadStart
				s.canDesignate = false
				s.afterKey = false
			}
		case r == ':' && designated && s.inSelection():
			return errorAt(s.src, s.line, s.column(), "Nullability designator must follow the field name, not its alias")
		default:
			s.punct(r)
			s.pos++
		}
	}
	return nil
}

func (s *scanner) peekDots() bool {
	return s.pos+2 < len(s.input) && s.input[s.pos+1] == '.' && s.input[s.pos+2] == '.'
}

func (s *scanner) name(n string) {
	if !s.inSelection() {
		return
	}
	switch {
	case s.afterAt:
		s.afterAt = false
		s.canDesignate = false
	case s.spread == spreadStart:
		if n == "on" {
			s.spread = spreadOn
		} else {
			s.spread = spreadNone
		}
		s.canDesignate = false
	case s.spread == spreadOn:
		s.spread = spreadNone
		s.canDesignate = false
	default:
		// alias or field name
		s.canDesignate = true
		s.afterKey = true
	}
}

func (s *scanner) designator(r rune) error {
	if !s.inSelection() {
		// `!` of variable and argument types, or a stray `?` for the parser to reject
		s.pos++
		return nil
	}
	if !s.canDesignate {
		return errorAt(s.src, s.line, s.column(), "Nullability designator %q must directly follow a field name or its arguments", string(r))
	}
	s.marks = append(s.marks, designatorMark{
		designator: designatorFor(r),
		offset:     s.pos,
		line:       s.line,
		column:     s.column(),
	})
	s.out[s.pos] = ' '
	s.canDesignate = false
	s.designated = true
	s.pos++
	return nil
}

func (s *scanner) punct(r rune) {
	switch r {
	case '{':
		if s.parens == 0 {
			s.braces++
			s.reset()
		}
	case '}':
		if s.parens == 0 && s.braces > 0 {
			s.braces--
			s.reset()
		}
	case '(':
		if s.inSelection() {
			s.parenStack = append(s.parenStack, s.canDesignate)
			s.afterAt = false
		}
		s.parens++
	case ')':
		if s.parens > 0 {
			s.parens--
		}
		if s.inSelection() && len(s.parenStack) > 0 {
			s.canDesignate = s.parenStack[len(s.parenStack)-1]
			s.parenStack = s.parenStack[:len(s.parenStack)-1]
			s.afterKey = false
		}
	case ':':
		if s.inSelection() && s.afterKey {
			// the name before was an alias; the field name follows
			s.afterKey = false
			s.canDesignate = false
			return
		}
		if s.inSelection() {
			s.canDesignate = false
		}
	case '@':
		if s.inSelection() {
			s.afterAt = true
			s.canDesignate = false
			s.afterKey = false
		}
	default:
		if s.inSelection() {
			s.canDesignate = false
			s.afterKey = false
		}
	}
}

func (s *scanner) reset() {
	s.canDesignate = false
	s.afterAt = false
	s.afterKey = false
	s.spread = spreadNone
}

func (s *scanner) skipString() {
	if s.pos+2 < len(s.input) && s.input[s.pos+1] == '"' && s.input[s.pos+2] == '"' {
		s.pos += 3
		for s.pos < len(s.input) {
			r := s.input[s.pos]
			switch {
			case r == '\\' && s.pos+3 < len(s.input) && s.input[s.pos+1] == '"' && s.input[s.pos+2] == '"' && s.input[s.pos+3] == '"':
				s.pos += 4
			case r == '"' && s.pos+2 < len(s.input) && s.input[s.pos+1] == '"' && s.input[s.pos+2] == '"':
				s.pos += 3
				return
			case r == '\n':
				s.pos++
				s.newline()
			case r == '\r':
				s.pos++
				if s.pos < len(s.input) && s.input[s.pos] == '\n' {
					s.pos++
				}
				s.newline()
			default:
				s.pos++
			}
		}
		return
	}
	s.pos++
	for s.pos < len(s.input) {
		switch s.input[s.pos] {
		case '\\':
			s.pos += 2
		case '"':
			s.pos++
			return
		case '\n', '\r':
			// unterminated; leave it to the parser
			return
		default:
			s.pos++
		}
	}
}

func isNameStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameContinue(r rune) bool {
	return isNameStart(r) || (r >= '0' && r <= '9')
}

func errorAt(src *Source, line, column int, format string, args ...any) *Error {
	return gqlerror.ErrorLocf(src.Name, line, column, "%s", fmt.Sprintf(format, args...))
}
