package scanner_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
	"lexgen/internal/dfa"
	"lexgen/internal/minimize"
	"lexgen/internal/nfa"
	"lexgen/internal/rx"
	"lexgen/internal/scanner"
	"lexgen/internal/table"
)

type rule struct {
	node   rx.Node
	action automaton.Action
}

func tok(id int) automaton.Action { return automaton.NewToken(id, nil) }

type compiled struct {
	nfa   *automaton.Graph
	dfa   *automaton.Graph
	table *table.Table
}

func compile(t testing.TB, rules ...rule) compiled {
	t.Helper()
	b, err := nfa.NewBuilder(alphabet.New(0), automaton.NewSession())
	require.NoError(t, err)
	for _, r := range rules {
		_, err := b.AddAlternative(r.node, r.action)
		require.NoError(t, err)
	}
	g, err := dfa.Construct(b.Graph(), dfa.Options{DeadState: true, Completions: b.Completions()})
	require.NoError(t, err)
	_, err = minimize.Minimize(g)
	require.NoError(t, err)
	minimize.RemoveDeadState(g)

	tbl, err := table.Compile(g)
	require.NoError(t, err)
	return compiled{nfa: b.Graph(), dfa: g, table: tbl}
}

func texts(ms []scanner.Match) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.Text)
	}
	return out
}

func TestEarlierRuleWinsOnTie(t *testing.T) {
	c := compile(t,
		rule{rx.String("aa"), tok(1)},
		rule{rx.OneOrMore(rx.Literal('a')), tok(2)},
	)
	m, err := scanner.NewString(c.table, "aa").Next()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Token)
	assert.Equal(t, "aa", m.Text)

	m, err = scanner.NewString(c.table, "aaa").Next()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Token)
}

func TestLookahead(t *testing.T) {
	var fired []string
	p := automaton.NewToken(1, func(a automaton.Analyzer) bool {
		fired = append(fired, a.Text())
		return true
	})
	c := compile(t, rule{rx.Lookahead(rx.Literal('a'), rx.Literal('b')), p})

	s := scanner.NewString(c.table, "ab")
	m, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, scanner.Match{Token: 1, Action: m.Action, Text: "a", Start: 0, End: 1}, m)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, scanner.Accepted, s.Status())

	s = scanner.NewString(c.table, "ac")
	_, err = s.Next()
	assert.ErrorIs(t, err, scanner.ErrNoMatch)
	assert.Equal(t, scanner.Rejected, s.Status())
	assert.Equal(t, []string{"a"}, fired)
}

func TestLookaheadWithLongerPrefix(t *testing.T) {
	// identifiers that are directly followed by '('
	c := compile(t,
		rule{rx.Lookahead(rx.OneOrMore(rx.Range('a', 'z')), rx.Literal('(')), tok(1)},
		rule{rx.OneOrMore(rx.Range('a', 'z')), tok(2)},
		rule{rx.Literal('('), tok(3)},
	)
	ms, err := scanner.NewString(c.table, "foo(bar").All()
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, []string{"foo", "(", "bar"}, texts(ms))
	assert.Equal(t, []int{1, 3, 2}, []int{ms[0].Token, ms[1].Token, ms[2].Token})
}

func TestLookaheadWithEmptyTail(t *testing.T) {
	c := compile(t, rule{rx.Lookahead(rx.OneOrMore(rx.Literal('a')), rx.ZeroOrMore(rx.Literal('b'))), tok(1)})
	for input, want := range map[string]string{"a": "a", "aa": "aa", "ab": "a", "aabb": "aa"} {
		m, err := scanner.NewString(c.table, input).Next()
		require.NoError(t, err, input)
		assert.Equal(t, 1, m.Token, input)
		assert.Equal(t, want, m.Text, input)
	}

	c = compile(t, rule{rx.Lookahead(rx.Literal('a'), rx.Empty()), tok(1)})
	ms, err := scanner.NewString(c.table, "aa").All()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, texts(ms))
}

func TestEmptyTailLookaheadBeatsLaterRule(t *testing.T) {
	c := compile(t,
		rule{rx.Lookahead(rx.Literal('a'), rx.ZeroOrMore(rx.Literal('b'))), tok(1)},
		rule{rx.Literal('a'), tok(2)},
	)
	m, err := scanner.NewString(c.table, "a").Next()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Token)
	assert.Equal(t, "a", m.Text)
}

func TestTriggerFiresOnceBeforeAction(t *testing.T) {
	var events []string
	trig := automaton.NewToken(100, func(a automaton.Analyzer) bool {
		events = append(events, fmt.Sprintf("trigger@%d", a.Pos()))
		return true
	})
	act := automaton.NewToken(1, func(a automaton.Analyzer) bool {
		events = append(events, "accept:"+a.Text())
		return true
	})
	c := compile(t, rule{rx.Follows(rx.Trigger(trig), rx.Literal('x')), act})

	m, err := scanner.NewString(c.table, "x").Next()
	require.NoError(t, err)
	assert.Equal(t, "x", m.Text)
	assert.Equal(t, []string{"trigger@0", "accept:x"}, events)
}

func TestTriggerMidRule(t *testing.T) {
	var at []int
	trig := automaton.NewToken(100, func(a automaton.Analyzer) bool {
		at = append(at, a.Pos())
		return true
	})
	c := compile(t, rule{rx.Seq(rx.String("ab"), rx.Trigger(trig), rx.Literal('c')), tok(1)})

	ms, err := scanner.NewString(c.table, "abcabc").All()
	require.NoError(t, err)
	assert.Len(t, ms, 2)
	assert.Equal(t, []int{2, 5}, at)

	// triggers fire even when the rule fails afterwards
	at = nil
	_, err = scanner.NewString(c.table, "abd").Next()
	assert.ErrorIs(t, err, scanner.ErrNoMatch)
	assert.Equal(t, []int{2}, at)
}

func TestExclusion(t *testing.T) {
	c := compile(t, rule{rx.Excludes(rx.OneOrMore(rx.Range('a', 'z')), rx.String("the")), tok(1)})

	_, err := scanner.NewString(c.table, "the").Next()
	assert.ErrorIs(t, err, scanner.ErrNoMatch)

	m, err := scanner.NewString(c.table, "cat").Next()
	require.NoError(t, err)
	assert.Equal(t, "cat", m.Text)

	m, err = scanner.NewString(c.table, "there").Next()
	require.NoError(t, err)
	assert.Equal(t, "there", m.Text)
}

func TestCallbackRejectsMatch(t *testing.T) {
	ident := automaton.NewToken(1, func(a automaton.Analyzer) bool { return a.Text() != "bad" })
	c := compile(t,
		rule{rx.OneOrMore(rx.Range('a', 'z')), ident},
		rule{rx.Literal(' '), tok(2)},
	)
	ms, err := scanner.NewString(c.table, "ok bad fine").All()
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", " ", " ", "fine"}, texts(ms))
	assert.Equal(t, 7, ms[3].Start)
}

func TestLongestMatchBacksUp(t *testing.T) {
	c := compile(t,
		rule{rx.Literal('a'), tok(1)},
		rule{rx.String("abc"), tok(2)},
	)
	s := scanner.NewString(c.table, "abx")
	m, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", m.Text)

	_, err = s.Next()
	assert.ErrorIs(t, err, scanner.ErrNoMatch)
	_, err = s.Next()
	assert.ErrorIs(t, err, scanner.ErrNoMatch)
	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestZeroLengthMatchesIgnored(t *testing.T) {
	c := compile(t, rule{rx.ZeroOrMore(rx.Literal('a')), tok(1)})
	_, err := scanner.NewString(c.table, "b").Next()
	assert.ErrorIs(t, err, scanner.ErrNoMatch)

	m, err := scanner.NewString(c.table, "aab").Next()
	require.NoError(t, err)
	assert.Equal(t, "aa", m.Text)
}

func TestBlockComment(t *testing.T) {
	c := compile(t,
		rule{rx.Seq(rx.String("/*"), rx.Completes(rx.NotIn(""), rx.String("*/"))), tok(1)},
		rule{rx.OneOrMore(rx.Range('a', 'z')), tok(2)},
		rule{rx.Literal(' '), tok(3)},
	)
	ms, err := scanner.NewString(c.table, "/* x */ y /**/").All()
	require.NoError(t, err)
	assert.Equal(t, []string{"/* x */", " ", "y", " ", "/**/"}, texts(ms))
}

func TestGraphAndTableAgree(t *testing.T) {
	c := compile(t,
		rule{rx.String("if"), tok(1)},
		rule{rx.Lookahead(rx.OneOrMore(rx.Range('a', 'z')), rx.Literal('=')), tok(2)},
		rule{rx.OneOrMore(rx.Range('a', 'z')), tok(3)},
		rule{rx.OneOrMore(rx.Range('0', '9')), tok(4)},
		rule{rx.AnyOf(" ="), tok(5)},
	)
	input := "if x=10 iffy = 7 ?if"
	fromGraph, errGraph := scanner.NewString(c.dfa, input).All()
	fromTable, errTable := scanner.NewString(c.table, input).All()
	assert.Equal(t, fromGraph, fromTable)
	assert.Equal(t, errGraph, errTable)
	assert.Equal(t, []string{"if", " ", "x", "=", "10", " ", "iffy", " ", "=", " ", "7", " ", "if"}, texts(fromTable))
	assert.Equal(t, 2, fromTable[2].Token)
}

func TestReaderInput(t *testing.T) {
	c := compile(t, rule{rx.OneOrMore(rx.Range('a', 'z')), tok(1)}, rule{rx.Literal('\n'), tok(2)})
	input := strings.Repeat("lorem\n", 1000)
	ms, err := scanner.New(c.table, io.MultiReader(strings.NewReader(input))).All()
	require.NoError(t, err)
	assert.Len(t, ms, 2000)
	assert.Equal(t, 6*999, ms[1998].Start)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestReadErrorsSurface(t *testing.T) {
	c := compile(t, rule{rx.Literal('a'), tok(1)})
	_, err := scanner.New(c.table, failingReader{}).Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, scanner.ErrNoMatch)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestConcurrentScanners(t *testing.T) {
	var calls atomic.Int64
	word := automaton.NewToken(1, func(automaton.Analyzer) bool { calls.Add(1); return true })
	c := compile(t, rule{rx.OneOrMore(rx.Range('a', 'z')), word}, rule{rx.Literal(' '), tok(2)})

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			ms, err := scanner.NewString(c.table, strings.Repeat("go fast ", 100)).All()
			if err != nil {
				return err
			}
			if len(ms) != 400 {
				return fmt.Errorf("got %d matches", len(ms))
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(16*200), calls.Load())
}

// reference scans input with plain NFA simulation: longest prefix first,
// lowest action id on ties, one skipped rune when nothing matches.
func reference(g *automaton.Graph, input string) []int {
	rs := []rune(input)
	var out []int
	for start := 0; start < len(rs); {
		matched := false
		for end := len(rs); end > start; end-- {
			if ids := nfa.Accepting(g, string(rs[start:end])); len(ids) > 0 {
				out = append(out, ids[0])
				start = end
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, -1)
			start++
		}
	}
	return out
}

func FuzzScannerMatchesNFA(f *testing.F) {
	for _, seed := range []string{"if x1 = 42", "iffy", "  ", "x=y=z", "ünïcode 9"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		if len(input) > 64 {
			t.Skip()
		}
		c := compile(t,
			rule{rx.String("if"), tok(1)},
			rule{rx.Seq(rx.Range('a', 'z'), rx.ZeroOrMore(rx.Or(rx.Range('a', 'z'), rx.Range('0', '9')))), tok(2)},
			rule{rx.OneOrMore(rx.Range('0', '9')), tok(3)},
			rule{rx.OneOrMore(rx.Literal(' ')), tok(4)},
			rule{rx.Literal('='), tok(5)},
		)
		var got []int
		s := scanner.NewString(c.table, input)
		for {
			m, err := s.Next()
			if err == io.EOF {
				break
			}
			if errors.Is(err, scanner.ErrNoMatch) {
				got = append(got, -1)
				continue
			}
			require.NoError(t, err)
			got = append(got, m.Action)
		}
		assert.Equal(t, reference(c.nfa, input), got)
	})
}
