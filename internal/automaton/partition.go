package automaton

import (
	"fmt"
	"sort"
)

// AcceptClass is one member set of an AcceptPartition.
type AcceptClass struct {
	Action *AcceptAction
	States []StateID
}

// AcceptPartition maps sets of DFA states to the single action they share.
// Classes are ordered by action id and member lists ascend.
type AcceptPartition struct {
	classes []*AcceptClass
	byID    map[int]*AcceptClass
}

// BuildPartition groups the states of g by accept action.
func BuildPartition(g *Graph) *AcceptPartition {
	p := &AcceptPartition{byID: make(map[int]*AcceptClass)}
	for id, s := range g.States {
		if s.Action == nil {
			continue
		}
		c, ok := p.byID[s.Action.ID]
		if !ok {
			c = &AcceptClass{Action: s.Action}
			p.byID[s.Action.ID] = c
			p.classes = append(p.classes, c)
		}
		c.States = append(c.States, id)
	}
	sort.Slice(p.classes, func(i, j int) bool { return p.classes[i].Action.ID < p.classes[j].Action.ID })
	return p
}

func (p *AcceptPartition) Len() int { return len(p.classes) }

func (p *AcceptPartition) Classes() []*AcceptClass { return p.classes }

// Class returns the class of action id, or nil.
func (p *AcceptPartition) Class(id int) *AcceptClass { return p.byID[id] }

// Validate checks that classes are disjoint and cover exactly the states of g
// that carry an action.
func (p *AcceptPartition) Validate(g *Graph) error {
	seen := make(map[StateID]bool)
	for _, c := range p.classes {
		for _, s := range c.States {
			if seen[s] {
				return fmt.Errorf("%w: state %d in two accept classes", ErrInvariantViolation, s)
			}
			seen[s] = true
			if s >= g.Len() || g.States[s].Action != c.Action {
				return fmt.Errorf("%w: state %d misfiled under action %d", ErrInvariantViolation, s, c.Action.ID)
			}
		}
	}
	for id, s := range g.States {
		if s.Action != nil && !seen[id] {
			return fmt.Errorf("%w: accepting state %d outside the partition", ErrInvariantViolation, id)
		}
	}
	return nil
}
