package automaton

import (
	"slices"
	"sort"

	"lexgen/internal/alphabet"
)

type StateID = int

// Transition is one labelled edge.
type Transition struct {
	Range  alphabet.CharRange
	Target StateID
}

// State owns its out-transitions, ordered by Range.Low, and at most one action.
type State struct {
	Trans  []Transition
	Action *AcceptAction
}

// Graph is an arena of states used for both NFAs and DFAs. States are
// addressed by index; deletion is mark-and-compact.
type Graph struct {
	Start  StateID
	Dead   StateID // -1 when the graph has no dead state
	States []State

	// Partition groups DFA states by accept action. Nil for NFAs.
	Partition *AcceptPartition

	Session  *Session
	Alphabet *alphabet.Alphabet
}

func NewGraph(session *Session, alpha *alphabet.Alphabet) *Graph {
	return &Graph{Dead: -1, Session: session, Alphabet: alpha}
}

func (g *Graph) Len() int { return len(g.States) }

func (g *Graph) AddState() StateID {
	g.States = append(g.States, State{})
	return len(g.States) - 1
}

// AddTransition inserts an edge keeping the list ordered by lower bound.
// Edges with equal lower bounds keep insertion order.
func (g *Graph) AddTransition(from StateID, r alphabet.CharRange, to StateID) {
	ts := g.States[from].Trans
	i := sort.Search(len(ts), func(i int) bool { return ts[i].Range.Low > r.Low })
	g.States[from].Trans = slices.Insert(ts, i, Transition{Range: r, Target: to})
}

// Truncate releases every state with id >= n together with all edges that
// lead into them.
func (g *Graph) Truncate(n int) {
	if n >= len(g.States) {
		return
	}
	g.States = g.States[:n]
	for i := range g.States {
		g.States[i].Trans = slices.DeleteFunc(g.States[i].Trans, func(t Transition) bool {
			return t.Target >= n
		})
	}
}

// Compact keeps only states with keep[i] set, renumbers them in order and
// drops edges into removed states. It returns the old-to-new id map, -1 for
// removed states.
func (g *Graph) Compact(keep []bool) []StateID {
	remap := make([]StateID, len(g.States))
	next := 0
	for i := range g.States {
		if keep[i] {
			remap[i] = next
			next++
		} else {
			remap[i] = -1
		}
	}
	states := make([]State, 0, next)
	for i, s := range g.States {
		if !keep[i] {
			continue
		}
		ts := s.Trans[:0]
		for _, t := range s.Trans {
			if remap[t.Target] >= 0 {
				t.Target = remap[t.Target]
				ts = append(ts, t)
			}
		}
		s.Trans = ts
		states = append(states, s)
	}
	g.States = states
	g.Start = remap[g.Start]
	if g.Dead >= 0 {
		g.Dead = remap[g.Dead]
	}
	if g.Partition != nil {
		g.Partition = BuildPartition(g)
	}
	return remap
}

// Clone returns a deep copy sharing the session, alphabet and actions.
func (g *Graph) Clone() *Graph {
	c := *g
	c.States = make([]State, len(g.States))
	for i, s := range g.States {
		c.States[i] = State{Trans: slices.Clone(s.Trans), Action: s.Action}
	}
	if g.Partition != nil {
		c.Partition = BuildPartition(&c)
	}
	return &c
}

// StartState, Next, TriggerTarget, AcceptAt and ActionByID let a DFA graph be
// walked directly by a scanner. Next assumes disjoint labels.

func (g *Graph) StartState() int { return g.Start }

func (g *Graph) Next(s StateID, r rune) (StateID, bool) {
	sym := alphabet.Char(r)
	ts := g.States[s].Trans
	i := sort.Search(len(ts), func(i int) bool { return ts[i].Range.High >= sym })
	if i == len(ts) || !ts[i].Range.Contains(sym) || ts[i].Target == g.Dead {
		return 0, false
	}
	return ts[i].Target, true
}

func (g *Graph) TriggerTarget(s StateID) (StateID, bool) {
	for _, t := range g.States[s].Trans {
		if t.Range.Low.IsTrigger() {
			return t.Target, true
		}
	}
	return 0, false
}

func (g *Graph) AcceptAt(s StateID) *AcceptAction { return g.States[s].Action }

func (g *Graph) ActionByID(id int) *AcceptAction { return g.Session.Action(id) }
