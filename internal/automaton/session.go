package automaton

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Session owns the action registry of one construction run. Ids are dense and
// handed out in registration order, so a lower id means an earlier rule.
type Session struct {
	actions []*AcceptAction
}

func NewSession() *Session { return &Session{} }

// Register assigns the next id to a and records it.
func (s *Session) Register(a *AcceptAction) *AcceptAction {
	a.ID = len(s.actions)
	s.actions = append(s.actions, a)
	return a
}

// Action returns the action with the given id, or nil.
func (s *Session) Action(id int) *AcceptAction {
	if id < 0 || id >= len(s.actions) {
		return nil
	}
	return s.actions[id]
}

func (s *Session) Len() int { return len(s.actions) }

// Validate checks that every related id, and every id in RelatedSet and
// Pending, names an action registered in this session. A lookahead-accept
// and its lookahead refer to each other, so a reference may point at an
// action registered after the one holding it.
func (s *Session) Validate() error {
	n := uint(len(s.actions))
	for _, a := range s.actions {
		if a.Related < 0 || a.Related >= len(s.actions) {
			return fmt.Errorf("%w: action %d relates to unknown %d", ErrInvariantViolation, a.ID, a.Related)
		}
		for _, set := range []*bitset.BitSet{a.RelatedSet, a.Pending} {
			if set == nil {
				continue
			}
			if id, ok := set.NextSet(n); ok {
				return fmt.Errorf("%w: action %d names unknown %d", ErrInvariantViolation, a.ID, id)
			}
		}
	}
	return nil
}

// Truncate forgets every action with id >= n.
func (s *Session) Truncate(n int) {
	if n < len(s.actions) {
		s.actions = s.actions[:n]
	}
}
