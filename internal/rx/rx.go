// Package rx holds the combinator tree a lexer is described with. Every node
// emits its own NFA fragment into an nfa.Builder.
package rx

import (
	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
	"lexgen/internal/nfa"
)

type Node = nfa.Node

type emptyNode struct{}

func (emptyNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Empty() }

// Empty matches the empty string.
func Empty() Node { return emptyNode{} }

type rangeNode struct{ lo, hi rune }

func (n rangeNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Range(n.lo, n.hi) }

func Literal(r rune) Node { return rangeNode{r, r} }

// Range matches one character in lo..hi inclusive.
func Range(lo, hi rune) Node { return rangeNode{lo, hi} }

type stringNode string

func (n stringNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.String(string(n)) }

func String(s string) Node { return stringNode(s) }

type notInSetNode []alphabet.CharRange

func (n notInSetNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) {
	return b.NotInSet(n)
}

// NotInSet matches any single character outside the given ranges.
func NotInSet(ranges ...alphabet.CharRange) Node { return notInSetNode(ranges) }

// NotIn is NotInSet for a list of individual characters.
func NotIn(chars string) Node {
	var rs []alphabet.CharRange
	for _, r := range chars {
		rs = append(rs, alphabet.Runes(r, r))
	}
	return notInSetNode(rs)
}

type followsNode struct{ x, y Node }

func (n followsNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Follows(n.x, n.y) }

func Follows(x, y Node) Node { return followsNode{x, y} }

type orNode struct{ x, y Node }

func (n orNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Or(n.x, n.y) }

func Or(x, y Node) Node { return orNode{x, y} }

type zeroOrMoreNode struct{ x Node }

func (n zeroOrMoreNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.ZeroOrMore(n.x) }

func ZeroOrMore(x Node) Node { return zeroOrMoreNode{x} }

type lookaheadNode struct{ x, y Node }

func (n lookaheadNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Lookahead(n.x, n.y) }

// Lookahead matches x only when y follows; the match covers x alone.
func Lookahead(x, y Node) Node { return lookaheadNode{x, y} }

type excludesNode struct{ x, y Node }

func (n excludesNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Excludes(n.x, n.y) }

// Excludes matches x unless the input matched is also a complete match of y.
func Excludes(x, y Node) Node { return excludesNode{x, y} }

type completesNode struct{ x, t Node }

func (n completesNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Completes(n.x, n.t) }

// Completes matches repetitions of x up to and including the first match of
// terminator, as in block comments.
func Completes(x, terminator Node) Node { return completesNode{x, terminator} }

type triggerNode struct{ action automaton.Action }

func (n triggerNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) { return b.Trigger(n.action) }

// Trigger fires action whenever a scan crosses this point.
func Trigger(action automaton.Action) Node { return triggerNode{action} }

type unsatisfiableNode int

func (n unsatisfiableNode) ConstructInto(b *nfa.Builder) (nfa.Fragment, error) {
	return b.Unsatisfiable(int(n))
}

// Unsatisfiable never matches.
func Unsatisfiable(n int) Node { return unsatisfiableNode(n) }

// Derived combinators.

func OneOrMore(x Node) Node { return Follows(x, ZeroOrMore(x)) }

func Optional(x Node) Node { return Or(x, Empty()) }

// Seq is Follows over any number of nodes.
func Seq(nodes ...Node) Node {
	switch len(nodes) {
	case 0:
		return Empty()
	case 1:
		return nodes[0]
	}
	return Follows(nodes[0], Seq(nodes[1:]...))
}

// Alt is Or over any number of nodes.
func Alt(nodes ...Node) Node {
	switch len(nodes) {
	case 0:
		return Empty()
	case 1:
		return nodes[0]
	}
	return Or(nodes[0], Alt(nodes[1:]...))
}

// AnyOf matches one of the given characters.
func AnyOf(chars string) Node {
	var nodes []Node
	for _, r := range chars {
		nodes = append(nodes, Literal(r))
	}
	return Alt(nodes...)
}
