package nfa

import (
	"slices"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
)

// closure extends set with everything reachable over epsilon and trigger
// edges.
func closure(g *automaton.Graph, set map[StateID]bool) {
	stack := make([]StateID, 0, len(set))
	for s := range set {
		stack = append(stack, s)
	}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, t := range g.States[s].Trans {
			if !t.Range.IsEpsilon() && !t.Range.Low.IsTrigger() {
				continue
			}
			if !set[t.Target] {
				set[t.Target] = true
				stack = append(stack, t.Target)
			}
		}
	}
}

// Accepting runs g over the whole of input and returns the sorted ids of the
// plain accept actions reached at the end. It ignores lookahead, exclusion
// and completion bookkeeping, so it is only an oracle for rules built from
// the regular operators.
func Accepting(g *automaton.Graph, input string) []int {
	cur := map[StateID]bool{g.Start: true}
	closure(g, cur)
	for _, r := range input {
		sym := alphabet.Char(r)
		next := make(map[StateID]bool)
		for s := range cur {
			for _, t := range g.States[s].Trans {
				if t.Range.Contains(sym) {
					next[t.Target] = true
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		closure(g, next)
		cur = next
	}

	var ids []int
	for s := range cur {
		if a := g.States[s].Action; a != nil && a.Kind == automaton.KindAccept {
			ids = append(ids, a.ID)
		}
	}
	slices.Sort(ids)
	return ids
}
