package automaton

import (
	"bytes"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexgen/internal/alphabet"
)

func newTestGraph(n int) *Graph {
	g := NewGraph(NewSession(), alphabet.New(0))
	for i := 0; i < n; i++ {
		g.AddState()
	}
	return g
}

func TestAddTransitionKeepsOrder(t *testing.T) {
	g := newTestGraph(3)
	g.AddTransition(0, alphabet.Runes('x', 'z'), 1)
	g.AddTransition(0, alphabet.Runes('a', 'c'), 2)
	g.AddTransition(0, alphabet.EpsilonRange, 2)
	g.AddTransition(0, alphabet.Runes('a', 'a'), 1)

	var lows []alphabet.Symbol
	for _, tr := range g.States[0].Trans {
		lows = append(lows, tr.Range.Low)
	}
	assert.Equal(t, []alphabet.Symbol{alphabet.Epsilon, alphabet.Char('a'), alphabet.Char('a'), alphabet.Char('x')}, lows)
	// equal lower bounds keep insertion order
	assert.Equal(t, 2, g.States[0].Trans[1].Target)
	assert.Equal(t, 1, g.States[0].Trans[2].Target)
}

func TestTruncateReleasesEdges(t *testing.T) {
	g := newTestGraph(4)
	g.AddTransition(0, alphabet.EpsilonRange, 1)
	g.AddTransition(0, alphabet.EpsilonRange, 3)
	g.AddTransition(1, alphabet.Runes('a', 'a'), 2)

	g.Truncate(2)
	assert.Equal(t, 2, g.Len())
	require.Len(t, g.States[0].Trans, 1)
	assert.Empty(t, g.States[1].Trans)
}

func TestCompactRenumbers(t *testing.T) {
	g := newTestGraph(4)
	g.Start = 1
	g.Dead = 0
	g.AddTransition(1, alphabet.Runes('a', 'a'), 3)
	g.AddTransition(1, alphabet.Runes('b', 'b'), 0)
	g.AddTransition(3, alphabet.Runes('a', 'a'), 2)

	remap := g.Compact([]bool{false, true, false, true})
	assert.Equal(t, []StateID{-1, 0, -1, 1}, remap)
	assert.Equal(t, 0, g.Start)
	assert.Equal(t, -1, g.Dead)
	require.Len(t, g.States[0].Trans, 1)
	assert.Equal(t, 1, g.States[0].Trans[0].Target)
	assert.Empty(t, g.States[1].Trans)
}

func TestNextSkipsDeadState(t *testing.T) {
	g := newTestGraph(3)
	g.Dead = 0
	g.AddTransition(1, alphabet.Runes('a', 'f'), 2)
	g.AddTransition(1, alphabet.Runes('g', 'z'), 0)

	next, ok := g.Next(1, 'c')
	require.True(t, ok)
	assert.Equal(t, 2, next)

	_, ok = g.Next(1, 'q')
	assert.False(t, ok)
	_, ok = g.Next(1, '!')
	assert.False(t, ok)
}

func TestPartitionValidate(t *testing.T) {
	g := newTestGraph(4)
	a := g.Session.Register(&AcceptAction{Kind: KindAccept})
	b := g.Session.Register(&AcceptAction{Kind: KindAccept})
	g.States[1].Action = a
	g.States[3].Action = a
	g.States[2].Action = b

	p := BuildPartition(g)
	require.NoError(t, p.Validate(g))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []StateID{1, 3}, p.Class(a.ID).States)

	g.States[0].Action = b
	assert.ErrorIs(t, p.Validate(g), ErrInvariantViolation)
}

func TestSameCallback(t *testing.T) {
	deps := bitset.New(4).Set(2)
	x := &Token{ID: 1, Deps: deps}
	y := &Token{ID: 1, Deps: bitset.New(8).Set(2)}
	z := &Token{ID: 2}

	assert.True(t, SameCallback(x, y))
	assert.False(t, SameCallback(x, z))
	assert.True(t, SameCallback(nil, (*Token)(nil)))
	assert.False(t, SameCallback(nil, z))
}

func TestSessionValidate(t *testing.T) {
	s := NewSession()
	a := s.Register(&AcceptAction{Kind: KindAccept})
	require.NoError(t, s.Validate())
	a.Related = 5
	assert.ErrorIs(t, s.Validate(), ErrInvariantViolation)

	// a lookahead-accept points at the lookahead registered after it
	s = NewSession()
	la := s.Register(&AcceptAction{Kind: KindLookaheadAccept})
	la.Pending = bitset.New(1).Set(uint(la.ID))
	lk := s.Register(&AcceptAction{Kind: KindLookahead, Related: la.ID, RelatedSet: bitset.New(1).Set(uint(la.ID))})
	la.Related = lk.ID
	require.NoError(t, s.Validate())

	lk.RelatedSet.Set(7)
	assert.ErrorIs(t, s.Validate(), ErrInvariantViolation)
}

func TestExportDOT(t *testing.T) {
	g := newTestGraph(3)
	g.Start = 1
	g.Dead = 0
	g.States[2].Action = g.Session.Register(&AcceptAction{Kind: KindAccept})
	g.AddTransition(1, alphabet.Runes('a', 'c'), 2)
	g.AddTransition(1, alphabet.Runes('d', 'd'), 0)

	var buf bytes.Buffer
	require.NoError(t, ExportDOT(&buf, g))
	out := buf.String()
	assert.Contains(t, out, `q1 -> q2 [label="a-c"]`)
	assert.Contains(t, out, "q2 [shape=doublecircle")
	assert.NotContains(t, out, "q1 -> q0")
	assert.Contains(t, out, "_start -> q1")
}
