// Package rulefile loads lexer rules from YAML. Patterns are written as
// nested combinator maps rather than regular expression syntax:
//
//	defs:
//	  digit: {range: ["0", "9"]}
//	rules:
//	  - name: Int
//	    match: {oneOrMore: {ref: digit}}
package rulefile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
	"lexgen/internal/lexer"
	"lexgen/internal/rx"
)

var ErrInvalidExpr = errors.New("invalid expression")

type File struct {
	Defs  map[string]*Expr `yaml:"defs,omitempty"`
	Rules []RuleSpec       `yaml:"rules"`
}

type RuleSpec struct {
	Name  string `yaml:"name"`
	Skip  bool   `yaml:"skip,omitempty"`
	Match *Expr  `yaml:"match"`
}

// Expr is one combinator. Exactly one field must be set.
type Expr struct {
	Empty         bool       `yaml:"empty,omitempty"`
	Literal       *string    `yaml:"literal,omitempty"`
	Range         []string   `yaml:"range,omitempty"`
	String        *string    `yaml:"string,omitempty"`
	AnyOf         *string    `yaml:"anyOf,omitempty"`
	NotIn         *string    `yaml:"notIn,omitempty"`
	NotInSet      [][]string `yaml:"notInSet,omitempty"`
	Seq           []*Expr    `yaml:"seq,omitempty"`
	Alt           []*Expr    `yaml:"alt,omitempty"`
	ZeroOrMore    *Expr      `yaml:"zeroOrMore,omitempty"`
	OneOrMore     *Expr      `yaml:"oneOrMore,omitempty"`
	Optional      *Expr      `yaml:"optional,omitempty"`
	Lookahead     *Guarded   `yaml:"lookahead,omitempty"`
	Excludes      *Guarded   `yaml:"excludes,omitempty"`
	Completes     *Guarded   `yaml:"completes,omitempty"`
	Trigger       *string    `yaml:"trigger,omitempty"`
	Unsatisfiable *int       `yaml:"unsatisfiable,omitempty"`
	Ref           *string    `yaml:"ref,omitempty"`
}

// Guarded holds the two operands of lookahead, excludes and completes. The
// second operand is the lookahead, the excluded language or the terminator.
type Guarded struct {
	Expr *Expr `yaml:"expr"`
	With *Expr `yaml:"with"`
}

// TriggerFunc observes trigger callbacks declared in a rule file.
type TriggerFunc func(name string, a automaton.Analyzer)

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("parse rules: no rules")
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

type compiler struct {
	file     *File
	onFire   TriggerFunc
	triggers map[string]*automaton.Token
	nextID   int
	visiting map[string]bool
}

// LexerRules converts the file into lexer rules. Trigger names map to one action
// each, numbered after the rule ids; onFire may be nil.
func (f *File) LexerRules(onFire TriggerFunc) ([]lexer.Rule, error) {
	c := &compiler{
		file:     f,
		onFire:   onFire,
		triggers: make(map[string]*automaton.Token),
		nextID:   len(f.Rules) + 1,
		visiting: make(map[string]bool),
	}
	out := make([]lexer.Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		if r.Name == "" {
			return nil, fmt.Errorf("rule %d: missing name", i)
		}
		n, err := c.node(r.Match, "match")
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		out = append(out, lexer.Rule{Name: r.Name, Node: n, Skip: r.Skip})
	}
	return out, nil
}

func (e *Expr) kinds() []string {
	var k []string
	add := func(set bool, name string) {
		if set {
			k = append(k, name)
		}
	}
	add(e.Empty, "empty")
	add(e.Literal != nil, "literal")
	add(e.Range != nil, "range")
	add(e.String != nil, "string")
	add(e.AnyOf != nil, "anyOf")
	add(e.NotIn != nil, "notIn")
	add(e.NotInSet != nil, "notInSet")
	add(e.Seq != nil, "seq")
	add(e.Alt != nil, "alt")
	add(e.ZeroOrMore != nil, "zeroOrMore")
	add(e.OneOrMore != nil, "oneOrMore")
	add(e.Optional != nil, "optional")
	add(e.Lookahead != nil, "lookahead")
	add(e.Excludes != nil, "excludes")
	add(e.Completes != nil, "completes")
	add(e.Trigger != nil, "trigger")
	add(e.Unsatisfiable != nil, "unsatisfiable")
	add(e.Ref != nil, "ref")
	return k
}

func (c *compiler) node(e *Expr, path string) (rx.Node, error) {
	if e == nil {
		return nil, fmt.Errorf("%w at %s: missing", ErrInvalidExpr, path)
	}
	kinds := e.kinds()
	if len(kinds) != 1 {
		return nil, fmt.Errorf("%w at %s: want one combinator, got [%s]", ErrInvalidExpr, path, strings.Join(kinds, " "))
	}
	path += "." + kinds[0]

	switch {
	case e.Empty:
		return rx.Empty(), nil
	case e.Literal != nil:
		r, err := single(*e.Literal, path)
		if err != nil {
			return nil, err
		}
		return rx.Literal(r), nil
	case e.Range != nil:
		lo, hi, err := pair(e.Range, path)
		if err != nil {
			return nil, err
		}
		return rx.Range(lo, hi), nil
	case e.String != nil:
		return rx.String(*e.String), nil
	case e.AnyOf != nil:
		return rx.AnyOf(*e.AnyOf), nil
	case e.NotIn != nil:
		return rx.NotIn(*e.NotIn), nil
	case e.NotInSet != nil:
		ranges := make([]alphabet.CharRange, 0, len(e.NotInSet))
		for i, p := range e.NotInSet {
			lo, hi, err := pair(p, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, alphabet.Runes(lo, hi))
		}
		return rx.NotInSet(ranges...), nil
	case e.Seq != nil:
		nodes, err := c.list(e.Seq, path)
		return rx.Seq(nodes...), err
	case e.Alt != nil:
		nodes, err := c.list(e.Alt, path)
		return rx.Alt(nodes...), err
	case e.ZeroOrMore != nil:
		return c.unary(e.ZeroOrMore, path, rx.ZeroOrMore)
	case e.OneOrMore != nil:
		return c.unary(e.OneOrMore, path, rx.OneOrMore)
	case e.Optional != nil:
		return c.unary(e.Optional, path, rx.Optional)
	case e.Lookahead != nil:
		return c.binary(e.Lookahead, path, rx.Lookahead)
	case e.Excludes != nil:
		return c.binary(e.Excludes, path, rx.Excludes)
	case e.Completes != nil:
		return c.binary(e.Completes, path, rx.Completes)
	case e.Trigger != nil:
		return rx.Trigger(c.trigger(*e.Trigger)), nil
	case e.Unsatisfiable != nil:
		return rx.Unsatisfiable(*e.Unsatisfiable), nil
	default:
		return c.ref(*e.Ref, path)
	}
}

func (c *compiler) list(es []*Expr, path string) ([]rx.Node, error) {
	if len(es) == 0 {
		return nil, fmt.Errorf("%w at %s: empty list", ErrInvalidExpr, path)
	}
	nodes := make([]rx.Node, len(es))
	for i, e := range es {
		n, err := c.node(e, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func (c *compiler) unary(e *Expr, path string, f func(rx.Node) rx.Node) (rx.Node, error) {
	n, err := c.node(e, path)
	if err != nil {
		return nil, err
	}
	return f(n), nil
}

func (c *compiler) binary(g *Guarded, path string, f func(x, y rx.Node) rx.Node) (rx.Node, error) {
	x, err := c.node(g.Expr, path+".expr")
	if err != nil {
		return nil, err
	}
	y, err := c.node(g.With, path+".with")
	if err != nil {
		return nil, err
	}
	return f(x, y), nil
}

func (c *compiler) ref(name, path string) (rx.Node, error) {
	e, ok := c.file.Defs[name]
	if !ok {
		return nil, fmt.Errorf("%w at %s: unknown def %q", ErrInvalidExpr, path, name)
	}
	if c.visiting[name] {
		return nil, fmt.Errorf("%w at %s: def %q refers to itself", ErrInvalidExpr, path, name)
	}
	c.visiting[name] = true
	defer delete(c.visiting, name)
	return c.node(e, "defs."+name)
}

func (c *compiler) trigger(name string) *automaton.Token {
	if t, ok := c.triggers[name]; ok {
		return t
	}
	t := automaton.NewToken(c.nextID, func(a automaton.Analyzer) bool {
		if c.onFire != nil {
			c.onFire(name, a)
		}
		return true
	})
	c.nextID++
	c.triggers[name] = t
	return t
}

func single(s, path string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w at %s: %q is not one character", ErrInvalidExpr, path, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func pair(p []string, path string) (rune, rune, error) {
	if len(p) != 2 {
		return 0, 0, fmt.Errorf("%w at %s: want [low, high]", ErrInvalidExpr, path)
	}
	lo, err := single(p[0], path)
	if err != nil {
		return 0, 0, err
	}
	hi, err := single(p[1], path)
	if err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}
