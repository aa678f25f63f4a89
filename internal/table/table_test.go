package table_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
	"lexgen/internal/dfa"
	"lexgen/internal/minimize"
	"lexgen/internal/nfa"
	"lexgen/internal/rx"
	"lexgen/internal/table"
)

func build(t *testing.T, nodes ...rx.Node) (*automaton.Graph, *table.Table) {
	t.Helper()
	b, err := nfa.NewBuilder(alphabet.New(0), automaton.NewSession())
	require.NoError(t, err)
	for i, n := range nodes {
		_, err := b.AddAlternative(n, automaton.NewToken(i+1, nil))
		require.NoError(t, err)
	}
	g, err := dfa.Construct(b.Graph(), dfa.Options{DeadState: true})
	require.NoError(t, err)
	_, err = minimize.Minimize(g)
	require.NoError(t, err)
	tbl, err := table.Compile(g)
	require.NoError(t, err)
	return g, tbl
}

func TestCompressedClassesRoundTrip(t *testing.T) {
	g, tbl := build(t,
		rx.OneOrMore(rx.Or(rx.Range('a', 'f'), rx.Range('g', 'z'))),
		rx.Range('0', '4'),
		rx.Range('5', '9'),
	)
	// a-f and g-z are never told apart, 0-4 and 5-9 are
	assert.Less(t, tbl.Classes().Len(), len(g.Alphabet.Ranges()))

	for _, r := range g.Alphabet.Ranges() {
		if !r.Low.IsChar() {
			continue
		}
		for _, sym := range []alphabet.Symbol{r.Low, r.High} {
			c, ok := tbl.Classes().Lookup(sym)
			require.True(t, ok)
			assert.True(t, tbl.Classes().Range(c).Contains(sym))
		}
	}

	ca, _ := tbl.Classes().Lookup(alphabet.Char('a'))
	cz, _ := tbl.Classes().Lookup(alphabet.Char('z'))
	c0, _ := tbl.Classes().Lookup(alphabet.Char('0'))
	c9, _ := tbl.Classes().Lookup(alphabet.Char('9'))
	assert.Equal(t, ca, cz)
	assert.NotEqual(t, c0, c9)
}

func TestTableMatchesGraph(t *testing.T) {
	g, tbl := build(t, rx.String("for"), rx.OneOrMore(rx.Range('a', 'z')))
	assert.Equal(t, g.Len(), tbl.Len())
	assert.Equal(t, g.Start, tbl.StartState())

	for s := 0; s < g.Len(); s++ {
		for _, r := range "forxz!" {
			gn, gok := g.Next(s, r)
			tn, tok := tbl.Next(s, r)
			assert.Equal(t, gok, tok, "state %d rune %q", s, r)
			if gok {
				assert.Equal(t, gn, tn)
			}
		}
		assert.Same(t, g.AcceptAt(s), tbl.AcceptAt(s))
	}
}

func TestStateView(t *testing.T) {
	trig := automaton.NewToken(9, nil)
	g, tbl := build(t, rx.Seq(rx.Literal('a'), rx.Trigger(trig), rx.Range('b', 'd')))

	s, ok := g.Next(g.Start, 'a')
	require.True(t, ok)
	v := tbl.State(s)
	assert.Equal(t, 1, v.Triggers)
	assert.True(t, v.IsTrigger)
	assert.Equal(t, automaton.KindNone, v.Kind)
	assert.Empty(t, v.Transitions)

	next, ok := tbl.TriggerTarget(s)
	require.True(t, ok)
	v = tbl.State(next)
	require.Len(t, v.Transitions, 1)
	assert.Equal(t, alphabet.Runes('b', 'd'), v.Transitions[0].Range)
	assert.Zero(t, v.Triggers)

	start := tbl.State(tbl.StartState())
	require.Len(t, start.Transitions, 1)
	assert.Equal(t, s, start.Transitions[0].Target)
}
