package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lexgen/internal/automaton"
	"lexgen/internal/lexer"
	"lexgen/internal/nfa"
	"lexgen/internal/rx"
	"lexgen/internal/scanner"
)

func mustCompile(t *testing.T, rules []lexer.Rule, opts ...lexer.Option) *lexer.Lexer {
	t.Helper()
	l, err := lexer.Compile(rules, opts...)
	require.NoError(t, err)
	return l
}

func calcRules() []lexer.Rule {
	digit := rx.Range('0', '9')
	letter := rx.Or(rx.Range('a', 'z'), rx.Range('A', 'Z'))
	return []lexer.Rule{
		{Name: "Whitespace", Node: rx.OneOrMore(rx.AnyOf(" \t\n")), Skip: true},
		{Name: "Let", Node: rx.String("let")},
		{Name: "Ident", Node: rx.Follows(letter, rx.ZeroOrMore(rx.Or(letter, digit)))},
		{Name: "Float", Node: rx.Seq(rx.OneOrMore(digit), rx.Literal('.'), rx.OneOrMore(digit))},
		{Name: "Int", Node: rx.OneOrMore(digit)},
		{Name: "Op", Node: rx.AnyOf("+-*/=")},
	}
}

func TestTokenize(t *testing.T) {
	l := mustCompile(t, calcRules())
	toks, err := l.Tokenize("let x1 = 3.25 * letter")
	require.NoError(t, err)

	var got [][2]string
	for _, tk := range toks {
		got = append(got, [2]string{tk.Type, tk.Text})
	}
	assert.Equal(t, [][2]string{
		{"Let", "let"},
		{"Ident", "x1"},
		{"Op", "="},
		{"Float", "3.25"},
		{"Op", "*"},
		{"Ident", "letter"},
	}, got)
	assert.Equal(t, 4, toks[1].Start)
}

func TestTokenizeStopsAtUnknownInput(t *testing.T) {
	l := mustCompile(t, calcRules())
	toks, err := l.Tokenize("x = $")
	assert.ErrorIs(t, err, scanner.ErrNoMatch)
	assert.Len(t, toks, 2)
}

func TestIntBacksOffFromFloat(t *testing.T) {
	l := mustCompile(t, calcRules())
	toks, err := l.Tokenize("12.")
	assert.ErrorIs(t, err, scanner.ErrNoMatch)
	require.Len(t, toks, 1)
	assert.Equal(t, "Int", toks[0].Type)
	assert.Equal(t, "12", toks[0].Text)
}

func TestStagesAgree(t *testing.T) {
	rules := calcRules()
	plain := mustCompile(t, rules, lexer.WithMinimize(false))
	minimized := mustCompile(t, rules)

	assert.LessOrEqual(t, minimized.Stats().MinStates, minimized.Stats().DFAStates)
	assert.Equal(t, plain.Stats().DFAStates, plain.Stats().MinStates)

	nfaGraph := minimized.Graph(lexer.StageNFA)
	for _, in := range []string{"let", "lets", "x9", "12", "1.5", "+", "  ", "9x"} {
		want := nfa.Accepting(nfaGraph, in)

		var fromTable []int
		ms, _ := scanner.NewString(minimized.Table(), in).All()
		if len(ms) == 1 && ms[0].Text == in {
			fromTable = []int{ms[0].Action}
		}
		var fromPlain []int
		ms, _ = scanner.NewString(plain.Table(), in).All()
		if len(ms) == 1 && ms[0].Text == in {
			fromPlain = []int{ms[0].Action}
		}

		if len(want) == 0 {
			assert.Empty(t, fromTable, in)
			assert.Empty(t, fromPlain, in)
			continue
		}
		assert.Equal(t, want[:1], fromTable, in)
		assert.Equal(t, want[:1], fromPlain, in)
	}
}

func TestKeepDeadState(t *testing.T) {
	l := mustCompile(t, calcRules(), lexer.WithKeepDeadState(true))
	g := l.Graph(lexer.StageMinimized)
	assert.Equal(t, 0, g.Dead)

	toks, err := l.Tokenize("let y")
	require.NoError(t, err)
	assert.Len(t, toks, 2)
}

func TestCompileErrors(t *testing.T) {
	_, err := lexer.Compile(nil)
	assert.Error(t, err)

	_, err = lexer.Compile([]lexer.Rule{{Name: "bad", Node: rx.Range('z', 'a')}})
	assert.ErrorIs(t, err, automaton.ErrInvalidRange)
	assert.Contains(t, err.Error(), `rule "bad"`)

	_, err = lexer.Compile([]lexer.Rule{
		{Name: "a", Node: rx.Literal('a'), Action: automaton.NewToken(7, nil)},
		{Name: "b", Node: rx.Literal('b'), Action: automaton.NewToken(7, nil)},
	})
	assert.ErrorContains(t, err, "token id 7")

	_, err = lexer.Compile([]lexer.Rule{{Name: "wide", Node: rx.AnyOf("acegikm")}}, lexer.WithMaxRanges(4))
	assert.ErrorIs(t, err, automaton.ErrAlphabetOverflow)
}

func TestTriggersThroughLexer(t *testing.T) {
	var depth, maxDepth int
	open := automaton.NewToken(100, func(automaton.Analyzer) bool {
		depth++
		maxDepth = max(maxDepth, depth)
		return true
	})
	closeTrig := automaton.NewToken(101, func(automaton.Analyzer) bool { depth--; return true })
	l := mustCompile(t, []lexer.Rule{
		{Name: "Open", Node: rx.Follows(rx.Literal('('), rx.Trigger(open))},
		{Name: "Close", Node: rx.Follows(rx.Literal(')'), rx.Trigger(closeTrig))},
		{Name: "Atom", Node: rx.OneOrMore(rx.Range('a', 'z'))},
	})
	toks, err := l.Tokenize("(a(b)(c))")
	require.NoError(t, err)
	assert.Len(t, toks, 9)
	assert.Equal(t, 0, depth)
	assert.Equal(t, 2, maxDepth)
}

func TestCompileLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	mustCompile(t, calcRules(), lexer.WithLogger(zap.New(core)))

	assert.Equal(t, 1, logs.FilterMessage("nfa built").Len())
	assert.Equal(t, 1, logs.FilterMessage("dfa minimized").Len())
	compiled := logs.FilterMessage("lexer compiled").All()
	require.Len(t, compiled, 1)
	assert.Equal(t, int64(len(calcRules())), compiled[0].ContextMap()["rules"])
}

func TestRuleOf(t *testing.T) {
	l := mustCompile(t, calcRules())
	r, ok := l.RuleOf(2)
	require.True(t, ok)
	assert.Equal(t, "Let", r.Name)
	_, ok = l.RuleOf(99)
	assert.False(t, ok)
	assert.Nil(t, l.Graph("bogus"))
}
