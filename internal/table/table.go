// Package table compiles a DFA graph into a dense, read-only transition
// table over a compressed alphabet. A Table is safe for concurrent use.
package table

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
)

// Transition is one row entry of a compiled state.
type Transition struct {
	Range  alphabet.CharRange
	Target int
}

// State is the view of one compiled state a code generator needs.
type State struct {
	Transitions []Transition
	Triggers    int
	Kind        automaton.AcceptKind
	IsTrigger   bool
	Related     int
	RelatedSet  *bitset.BitSet
}

type Table struct {
	classes *alphabet.Classes
	width   int
	next    []int32 // state*width + class, -1 for no edge
	trigger []int32
	actions []*automaton.AcceptAction
	session *automaton.Session
	start   int
}

// Compile builds a table from a DFA. Edges into the dead state become
// missing edges.
func Compile(g *automaton.Graph) (*Table, error) {
	var cols []alphabet.CharRange
	var colOf []int
	for i, r := range g.Alphabet.Ranges() {
		colOf = append(colOf, -1)
		if r.Low.IsChar() {
			colOf[i] = len(cols)
			cols = append(cols, r)
		}
	}

	raw := make([][]int32, g.Len())
	trig := make([]int32, g.Len())
	for id, s := range g.States {
		row := make([]int32, len(cols))
		for i := range row {
			row[i] = -1
		}
		trig[id] = -1
		for _, tr := range s.Trans {
			if tr.Target == g.Dead {
				continue
			}
			switch {
			case tr.Range.Low.IsTrigger():
				trig[id] = int32(tr.Target)
			case tr.Range.Low.IsChar():
				first, last, ok := g.Alphabet.Cover(tr.Range)
				if !ok {
					return nil, fmt.Errorf("%w: edge %v of state %d", automaton.ErrInvariantViolation, tr.Range, id)
				}
				for i := int(first); i <= int(last); i++ {
					row[colOf[i]] = int32(tr.Target)
				}
			}
		}
		raw[id] = row
	}

	classes := alphabet.Compress(cols, func(i, j int) bool {
		for _, row := range raw {
			if row[i] != row[j] {
				return false
			}
		}
		return true
	})

	t := &Table{
		classes: classes,
		width:   classes.Len(),
		next:    make([]int32, g.Len()*classes.Len()),
		trigger: trig,
		actions: make([]*automaton.AcceptAction, g.Len()),
		session: g.Session,
		start:   g.Start,
	}
	for id, row := range raw {
		for c, target := range row {
			t.next[id*t.width+int(classes.Remap(c))] = target
		}
		t.actions[id] = g.States[id].Action
	}
	return t, nil
}

func (t *Table) Len() int { return len(t.actions) }

func (t *Table) Classes() *alphabet.Classes { return t.classes }

func (t *Table) StartState() int { return t.start }

func (t *Table) Next(s int, r rune) (int, bool) {
	c, ok := t.classes.Lookup(alphabet.Char(r))
	if !ok {
		return 0, false
	}
	n := t.next[s*t.width+int(c)]
	return int(n), n >= 0
}

func (t *Table) TriggerTarget(s int) (int, bool) {
	n := t.trigger[s]
	return int(n), n >= 0
}

func (t *Table) AcceptAt(s int) *automaton.AcceptAction { return t.actions[s] }

func (t *Table) ActionByID(id int) *automaton.AcceptAction { return t.session.Action(id) }

// State returns the serializable view of state s. Transitions are ordered by
// range and adjacent classes with one target are merged.
func (t *Table) State(s int) State {
	var st State
	for c := 0; c < t.width; c++ {
		target := int(t.next[s*t.width+c])
		if target < 0 {
			continue
		}
		r := t.classes.Range(alphabet.Index(c))
		if n := len(st.Transitions); n > 0 {
			last := &st.Transitions[n-1]
			if last.Target == target && last.Range.High+1 == r.Low {
				last.Range.High = r.High
				continue
			}
		}
		st.Transitions = append(st.Transitions, Transition{Range: r, Target: target})
	}
	if t.trigger[s] >= 0 {
		st.Triggers = 1
	}
	if a := t.actions[s]; a != nil {
		st.Kind = a.Kind
		st.IsTrigger = a.IsTrigger
		st.Related = a.Related
		st.RelatedSet = a.RelatedSet
		if a.IsTrigger {
			st.Triggers = int(a.Triggers.Count())
		}
	}
	return st
}
