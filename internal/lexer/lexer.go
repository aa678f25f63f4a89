// Package lexer compiles a list of named rules into a scanner table and runs
// it over text.
package lexer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
	"lexgen/internal/dfa"
	"lexgen/internal/minimize"
	"lexgen/internal/nfa"
	"lexgen/internal/rx"
	"lexgen/internal/scanner"
	"lexgen/internal/table"
)

// Rule is one token definition. Rules registered earlier win ties.
type Rule struct {
	Name string
	Node rx.Node
	// Skip drops matches of this rule from Tokenize output.
	Skip bool
	// Action overrides the default callback. Its TokenID must be unique.
	Action automaton.Action
}

// Stage names one of the automata kept by a compiled lexer.
type Stage string

const (
	StageNFA       Stage = "nfa"
	StageDFA       Stage = "dfa"
	StageMinimized Stage = "min"
)

type Stats struct {
	Rules          int
	AlphabetRanges int
	Classes        int
	Actions        int
	NFAStates      int
	DFAStates      int
	MinStates      int
	Minimized      bool
}

// Token is one non-skipped match.
type Token struct {
	Type  string
	ID    int
	Text  string
	Start int
	End   int
}

type Lexer struct {
	rules  []Rule
	byID   map[int]int // token id -> rule index
	graphs map[Stage]*automaton.Graph
	table  *table.Table
	stats  Stats
	logger *zap.Logger
}

type options struct {
	logger        *zap.Logger
	minimize      bool
	keepDeadState bool
	maxRanges     int
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithMinimize toggles DFA minimization. It is on by default.
func WithMinimize(on bool) Option { return func(o *options) { o.minimize = on } }

// WithKeepDeadState keeps the sink state in the final table.
func WithKeepDeadState(on bool) Option { return func(o *options) { o.keepDeadState = on } }

// WithMaxRanges caps the number of alphabet ranges; 0 means the index limit.
func WithMaxRanges(n int) Option { return func(o *options) { o.maxRanges = n } }

// Compile builds a lexer. Every rule gets the token id of its position plus
// one unless it brings its own action.
func Compile(rules []Rule, opts ...Option) (*Lexer, error) {
	o := options{logger: zap.NewNop(), minimize: true}
	for _, opt := range opts {
		opt(&o)
	}
	if len(rules) == 0 {
		return nil, errors.New("no rules")
	}

	l := &Lexer{
		rules:  rules,
		byID:   make(map[int]int),
		graphs: make(map[Stage]*automaton.Graph),
		logger: o.logger,
	}

	b, err := nfa.NewBuilder(alphabet.New(o.maxRanges), automaton.NewSession())
	if err != nil {
		return nil, err
	}
	for i, r := range rules {
		action := r.Action
		if action == nil {
			action = automaton.NewToken(i+1, nil)
		}
		if prev, dup := l.byID[action.TokenID()]; dup {
			return nil, fmt.Errorf("rule %q: token id %d already used by %q", r.Name, action.TokenID(), rules[prev].Name)
		}
		l.byID[action.TokenID()] = i
		if _, err := b.AddAlternative(r.Node, action); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	l.graphs[StageNFA] = b.Graph()
	l.logger.Debug("nfa built",
		zap.Int("rules", len(rules)),
		zap.Int("states", b.Graph().Len()),
		zap.Int("ranges", b.Alphabet().Len()))

	g, err := dfa.Construct(b.Graph(), dfa.Options{
		DeadState:   o.minimize || o.keepDeadState,
		Completions: b.Completions(),
	})
	if err != nil {
		return nil, fmt.Errorf("subset construction: %w", err)
	}
	l.graphs[StageDFA] = g.Clone()
	l.logger.Debug("dfa built", zap.Int("states", g.Len()), zap.Int("actions", b.Session().Len()))

	l.stats = Stats{
		Rules:          len(rules),
		AlphabetRanges: b.Alphabet().Len(),
		NFAStates:      b.Graph().Len(),
		DFAStates:      g.Len(),
	}

	if o.minimize {
		changed, err := minimize.Minimize(g)
		if err != nil {
			return nil, fmt.Errorf("minimize: %w", err)
		}
		l.stats.Minimized = changed
		l.logger.Debug("dfa minimized", zap.Bool("changed", changed), zap.Int("states", g.Len()))
	}
	if !o.keepDeadState {
		minimize.RemoveDeadState(g)
	}
	l.graphs[StageMinimized] = g
	l.stats.MinStates = g.Len()
	l.stats.Actions = g.Session.Len()

	l.table, err = table.Compile(g)
	if err != nil {
		return nil, err
	}
	l.stats.Classes = l.table.Classes().Len()
	l.logger.Info("lexer compiled",
		zap.Int("rules", l.stats.Rules),
		zap.Int("states", l.stats.MinStates),
		zap.Int("classes", l.stats.Classes))
	return l, nil
}

func (l *Lexer) Stats() Stats { return l.stats }

func (l *Lexer) Table() *table.Table { return l.table }

func (l *Lexer) Rules() []Rule { return l.rules }

// Graph returns the automaton of one stage, or nil for an unknown stage.
func (l *Lexer) Graph(s Stage) *automaton.Graph { return l.graphs[s] }

// RuleOf returns the rule a token id belongs to.
func (l *Lexer) RuleOf(id int) (Rule, bool) {
	i, ok := l.byID[id]
	if !ok {
		return Rule{}, false
	}
	return l.rules[i], true
}

func (l *Lexer) Scanner(r io.Reader) *scanner.Scanner { return scanner.New(l.table, r) }

// Tokenize scans all of s. It stops at the first rune no rule matches.
func (l *Lexer) Tokenize(s string) ([]Token, error) {
	sc := scanner.New(l.table, strings.NewReader(s))
	var out []Token
	for {
		m, err := sc.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		r, ok := l.RuleOf(m.Token)
		if !ok {
			return out, fmt.Errorf("%w: match without rule (token %d)", automaton.ErrInvariantViolation, m.Token)
		}
		if r.Skip {
			continue
		}
		out = append(out, Token{Type: r.Name, ID: m.Token, Text: m.Text, Start: m.Start, End: m.End})
	}
}
