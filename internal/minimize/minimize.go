// Package minimize merges DFA states with identical future behaviour.
package minimize

import (
	"encoding/binary"
	"fmt"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
)

type StateID = automaton.StateID

// ErrMissingDeadState is returned when the DFA has no total transition
// function.
var ErrMissingDeadState = fmt.Errorf("%w: minimization needs a dead state", automaton.ErrInvariantViolation)

// table is the dense view of a DFA: next[s][c] for every character column c
// plus the trigger target of s, -1 when absent.
type table struct {
	next    [][]StateID
	trigger []StateID
}

func dense(g *automaton.Graph) (*table, error) {
	var cols []alphabet.Index
	ranges := g.Alphabet.Ranges()
	col := make(map[alphabet.Index]int)
	for i, r := range ranges {
		if r.Low.IsChar() {
			col[alphabet.Index(i)] = len(cols)
			cols = append(cols, alphabet.Index(i))
		}
	}

	t := &table{next: make([][]StateID, g.Len()), trigger: make([]StateID, g.Len())}
	for id, s := range g.States {
		row := make([]StateID, len(cols))
		for i := range row {
			row[i] = g.Dead
		}
		t.trigger[id] = -1
		for _, tr := range s.Trans {
			switch {
			case tr.Range.Low.IsTrigger():
				t.trigger[id] = tr.Target
			case tr.Range.Low.IsChar():
				first, last, ok := g.Alphabet.Cover(tr.Range)
				if !ok {
					return nil, fmt.Errorf("%w: state %d edge %v outside the alphabet", automaton.ErrInvariantViolation, id, tr.Range)
				}
				for i := int(first); i <= int(last); i++ {
					row[col[alphabet.Index(i)]] = tr.Target
				}
			}
		}
		t.next[id] = row
	}
	return t, nil
}

// initial groups states by accept behaviour. Trigger-bearing actions are keyed
// by their callbacks rather than their ids so that triggers found through
// different rules start out together.
func initial(g *automaton.Graph, t *table) []int {
	keys := make(map[string]int)
	classes := make([]int, g.Len())
	for id, s := range g.States {
		var k string
		switch {
		case id == g.Dead && !leavesDead(t, id):
			k = "dead"
		case s.Action == nil:
			k = "-"
		case s.Action.IsTrigger:
			k = triggerKey(g, s.Action)
		default:
			k = fmt.Sprintf("a%d", s.Action.ID)
		}
		c, ok := keys[k]
		if !ok {
			c = len(keys)
			keys[k] = c
		}
		classes[id] = c
	}
	return classes
}

func leavesDead(t *table, dead StateID) bool {
	for _, n := range t.next[dead] {
		if n != dead {
			return true
		}
	}
	return t.trigger[dead] >= 0
}

func triggerKey(g *automaton.Graph, a *automaton.AcceptAction) string {
	k := fmt.Sprintf("t%d|%d|%v|%v", a.Kind, a.AcceptID, a.Pending, a.RelatedSet)
	for i, ok := a.Triggers.NextSet(0); ok; i, ok = a.Triggers.NextSet(i + 1) {
		cb := g.Session.Action(int(i)).Callback
		k += fmt.Sprintf("|%d:%v", cb.TokenID(), cb.DependentTriggers())
	}
	return k
}

// refine splits classes until every member of a class moves to the same
// classes on every column. It returns the final classes and their count.
func refine(t *table, classes []int) ([]int, int) {
	count := len(toSet(classes))
	for {
		keys := make(map[string]int)
		next := make([]int, len(classes))
		for s := range classes {
			buf := binary.AppendUvarint(nil, uint64(classes[s]))
			for _, n := range t.next[s] {
				buf = binary.AppendVarint(buf, int64(classOf(classes, n)))
			}
			buf = binary.AppendVarint(buf, int64(classOf(classes, t.trigger[s])))
			k := string(buf)
			c, ok := keys[k]
			if !ok {
				c = len(keys)
				keys[k] = c
			}
			next[s] = c
		}
		classes = next
		if len(keys) == count {
			return classes, count
		}
		count = len(keys)
	}
}

func classOf(classes []int, s StateID) int {
	if s < 0 {
		return -1
	}
	return classes[s]
}

func toSet(xs []int) map[int]bool {
	m := make(map[int]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

// Minimize merges equivalent states of g in place and reports whether
// anything changed. g must have a dead state.
func Minimize(g *automaton.Graph) (bool, error) {
	if g.Dead < 0 {
		return false, ErrMissingDeadState
	}
	t, err := dense(g)
	if err != nil {
		return false, err
	}
	classes, count := refine(t, initial(g, t))
	if count == g.Len() {
		return false, nil
	}

	rep := make([]StateID, count)
	for i := range rep {
		rep[i] = -1
	}
	for s, c := range classes {
		if rep[c] < 0 {
			rep[c] = s
		}
	}

	keep := make([]bool, g.Len())
	for _, r := range rep {
		keep[r] = true
	}
	for s := range g.States {
		if !keep[s] {
			// the representative already has an equivalent edge for each
			g.States[s].Trans = nil
			continue
		}
		ts := g.States[s].Trans
		for i := range ts {
			ts[i].Target = rep[classes[ts[i].Target]]
		}
		g.States[s].Trans = mergeAdjacent(ts)
	}
	g.Start = rep[classes[g.Start]]
	g.Dead = rep[classes[g.Dead]]
	g.Compact(keep)
	g.Partition = automaton.BuildPartition(g)

	if err := verify(g); err != nil {
		return true, err
	}
	return true, nil
}

func mergeAdjacent(ts []automaton.Transition) []automaton.Transition {
	out := ts[:0]
	for _, t := range ts {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Target == t.Target && last.Range.Low.IsChar() && t.Range.Low.IsChar() && last.Range.High+1 == t.Range.Low {
				last.Range.High = t.Range.High
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// verify checks the result: the accept partition must be consistent and a
// second refinement must leave every state on its own.
func verify(g *automaton.Graph) error {
	if err := g.Partition.Validate(g); err != nil {
		return err
	}
	t, err := dense(g)
	if err != nil {
		return err
	}
	if _, count := refine(t, initial(g, t)); count != g.Len() {
		return fmt.Errorf("%w: %d states collapse to %d after minimization", automaton.ErrInvariantViolation, g.Len(), count)
	}
	return nil
}

// RemoveDeadState drops the sink of g together with every edge into it.
func RemoveDeadState(g *automaton.Graph) {
	if g.Dead < 0 {
		return
	}
	keep := make([]bool, g.Len())
	for i := range keep {
		keep[i] = i != g.Dead
	}
	g.Compact(keep)
	g.Dead = -1
}
