// Package lexdef adapts a compiled lexer to participle's lexer.Definition so
// grammars can be parsed on top of generated tables.
package lexdef

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	plexer "github.com/alecthomas/participle/v2/lexer"

	"lexgen/internal/automaton"
	"lexgen/internal/lexer"
	"lexgen/internal/scanner"
)

// Definition maps each rule name to a participle token type. Rules sharing a
// name share a type. Skip rules never reach the parser.
type Definition struct {
	lexer   *lexer.Lexer
	symbols map[string]plexer.TokenType
}

var (
	_ plexer.Definition       = (*Definition)(nil)
	_ plexer.StringDefinition = (*Definition)(nil)
)

func New(l *lexer.Lexer) *Definition {
	d := &Definition{
		lexer:   l,
		symbols: map[string]plexer.TokenType{"EOF": plexer.EOF},
	}
	for _, r := range l.Rules() {
		if _, ok := d.symbols[r.Name]; !ok {
			d.symbols[r.Name] = plexer.EOF - plexer.TokenType(len(d.symbols))
		}
	}
	return d
}

func (d *Definition) Symbols() map[string]plexer.TokenType { return d.symbols }

func (d *Definition) Lex(filename string, r io.Reader) (plexer.Lexer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return d.LexString(filename, string(data))
}

func (d *Definition) LexString(filename string, input string) (plexer.Lexer, error) {
	return &stream{
		def:   d,
		sc:    d.lexer.Scanner(strings.NewReader(input)),
		src:   input,
		runes: utf8.RuneCountInString(input),
		pos:   plexer.Position{Filename: filename, Line: 1, Column: 1},
	}, nil
}

type stream struct {
	def   *Definition
	sc    *scanner.Scanner
	src   string
	runes int
	pos   plexer.Position
	at    int // rune offset of pos
}

// advance moves pos forward to rune offset to.
func (s *stream) advance(to int) {
	from := s.pos.Offset
	i := from
	for ; s.at < to; s.at++ {
		_, n := utf8.DecodeRuneInString(s.src[i:])
		i += n
	}
	s.pos.Advance(s.src[from:i])
}

func (s *stream) Next() (plexer.Token, error) {
	for {
		m, err := s.sc.Next()
		switch {
		case err == io.EOF:
			s.advance(s.runes)
			return plexer.EOFToken(s.pos), nil
		case errors.Is(err, scanner.ErrNoMatch):
			s.advance(s.sc.Offset() - 1)
			r, _ := utf8.DecodeRuneInString(s.src[s.pos.Offset:])
			return plexer.Token{}, &plexer.Error{Msg: fmt.Sprintf("invalid input text %q", r), Pos: s.pos}
		case err != nil:
			return plexer.Token{}, err
		}

		rule, ok := s.def.lexer.RuleOf(m.Token)
		if !ok {
			return plexer.Token{}, fmt.Errorf("%w: token %d has no rule", automaton.ErrInvariantViolation, m.Token)
		}
		s.advance(m.Start)
		pos := s.pos
		s.advance(m.End)
		if rule.Skip {
			continue
		}
		return plexer.Token{Type: s.def.symbols[rule.Name], Value: m.Text, Pos: pos}, nil
	}
}
