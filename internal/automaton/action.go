package automaton

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Analyzer is the view of a running scan handed to callbacks.
type Analyzer interface {
	// Text is the matched text for accept callbacks and the text scanned so
	// far for triggers.
	Text() string
	Start() int
	End() int
	// Pos is the current scan offset in runes.
	Pos() int
}

// Action is a user callback attached to a rule or a trigger.
type Action interface {
	TokenID() int
	IsNull() bool
	Clear()
	DependentTriggers() *bitset.BitSet
	// Do runs the callback. Returning false rejects the matched text.
	Do(Analyzer) bool
}

// AcceptKind tags the payload of an AcceptAction.
type AcceptKind uint8

const (
	// KindNone carries no accept at all; the state only fires triggers.
	KindNone AcceptKind = iota
	KindAccept
	KindLookahead
	KindLookaheadAccept
	KindLookaheadAcceptAndAccept
	KindLookaheadAcceptAndLookahead
	KindAntiAccepting
)

var kindNames = [...]string{
	KindNone:                        "none",
	KindAccept:                      "accept",
	KindLookahead:                   "lookahead",
	KindLookaheadAccept:             "lookahead-accept",
	KindLookaheadAcceptAndAccept:    "lookahead-accept+accept",
	KindLookaheadAcceptAndLookahead: "lookahead-accept+lookahead",
	KindAntiAccepting:               "anti-accepting",
}

func (k AcceptKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// AcceptAction describes what reaching a state means.
//
// Field use by kind:
//   - Accept: AcceptID is the rule action that matches here.
//   - LookaheadAccept: Pending holds the lookahead-accept ids that become
//     pending here; Related is the paired lookahead id.
//   - Lookahead: RelatedSet holds the lookahead-accept ids confirmed here;
//     Related is the first of them.
//   - the two combined kinds carry both halves.
//   - AntiAccepting: RelatedSet holds the action ids of the excluded rule.
//
// Triggers is set whenever IsTrigger is.
type AcceptAction struct {
	Kind      AcceptKind
	IsTrigger bool
	ID        int
	Related   int

	RelatedSet *bitset.BitSet
	Pending    *bitset.BitSet
	AcceptID   int
	Triggers   *bitset.BitSet

	Callback Action
}

// Accepts reports whether reaching the state completes a match outright.
func (a *AcceptAction) Accepts() bool {
	return a.Kind == KindAccept || a.Kind == KindLookaheadAcceptAndAccept
}

// LeavesPending reports whether the state records a pending lookahead-accept.
func (a *AcceptAction) LeavesPending() bool {
	switch a.Kind {
	case KindLookaheadAccept, KindLookaheadAcceptAndAccept, KindLookaheadAcceptAndLookahead:
		return true
	}
	return false
}

// Confirms reports whether the state confirms a pending lookahead-accept.
func (a *AcceptAction) Confirms() bool {
	return a.Kind == KindLookahead || a.Kind == KindLookaheadAcceptAndLookahead
}

func (a *AcceptAction) String() string {
	s := fmt.Sprintf("%s#%d", a.Kind, a.ID)
	if a.IsTrigger {
		s += fmt.Sprintf(" triggers%v", a.Triggers)
	}
	return s
}

// Token is a plain Action reporting a fixed token id.
type Token struct {
	ID   int
	Fn   func(Analyzer) bool
	Deps *bitset.BitSet
}

// NewToken returns an action for token id. fn may be nil.
func NewToken(id int, fn func(Analyzer) bool) *Token {
	return &Token{ID: id, Fn: fn}
}

func (t *Token) TokenID() int { return t.ID }
func (t *Token) IsNull() bool { return t == nil }
func (t *Token) Clear() {}

func (t *Token) DependentTriggers() *bitset.BitSet {
	if t.Deps == nil {
		return &bitset.BitSet{}
	}
	return t.Deps
}

func (t *Token) Do(a Analyzer) bool {
	if t.Fn == nil {
		return true
	}
	return t.Fn(a)
}

func isNull(a Action) bool { return a == nil || a.IsNull() }

// SameCallback reports whether two callbacks are interchangeable: both null,
// or the same token id with the same dependent triggers.
func SameCallback(a, b Action) bool {
	if isNull(a) || isNull(b) {
		return isNull(a) == isNull(b)
	}
	return a.TokenID() == b.TokenID() &&
		a.DependentTriggers().SymmetricDifferenceCardinality(b.DependentTriggers()) == 0
}
