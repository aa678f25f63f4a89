package nfa

import (
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
)

type StateID = automaton.StateID

// Fragment is a partially built NFA with one entry and one exit.
type Fragment struct {
	Start, Accept StateID
}

// Node is a combinator that can emit its NFA fragment into a builder.
type Node interface {
	ConstructInto(b *Builder) (Fragment, error)
}

// Completion is the state region [Lo, Hi) cut away from a DFA state once the
// terminator of a completed-by construct has been matched.
type Completion struct {
	Lo, Hi StateID
}

// Builder is the construction context combinators build into. It owns the
// graph; fragments returned by one call are consumed by the next.
type Builder struct {
	graph   *automaton.Graph
	alpha   *alphabet.Alphabet
	session *automaton.Session

	refs        []int // incoming edges per state
	triggers    int
	completions []Completion
	root        StateID

	// bookkeeping for the rule under construction
	lookaheads []StateID
	excluded   []StateID
}

// NewBuilder returns an empty construction context.
func NewBuilder(alpha *alphabet.Alphabet, session *automaton.Session) (*Builder, error) {
	if err := alpha.Register(alphabet.EpsilonRange); err != nil {
		return nil, err
	}
	return &Builder{
		graph:   automaton.NewGraph(session, alpha),
		alpha:   alpha,
		session: session,
		root:    -1,
	}, nil
}

func (b *Builder) Graph() *automaton.Graph { return b.graph }
func (b *Builder) Completions() []Completion { return b.completions }
func (b *Builder) Alphabet() *alphabet.Alphabet { return b.alpha }
func (b *Builder) Session() *automaton.Session { return b.session }

// --- arena helpers ----------------------------------------------------------

func (b *Builder) newState() StateID {
	b.refs = append(b.refs, 0)
	return b.graph.AddState()
}

func (b *Builder) edge(from StateID, r alphabet.CharRange, to StateID) error {
	if err := b.alpha.Register(r); err != nil {
		return err
	}
	b.graph.AddTransition(from, r, to)
	b.refs[to]++
	return nil
}

func (b *Builder) epsilon(from, to StateID) {
	b.graph.AddTransition(from, alphabet.EpsilonRange, to)
	b.refs[to]++
}

type mark struct {
	states, actions, triggers, completions, lookaheads, excluded int
}

func (b *Builder) mark() mark {
	return mark{
		states:      b.graph.Len(),
		actions:     b.session.Len(),
		triggers:    b.triggers,
		completions: len(b.completions),
		lookaheads:  len(b.lookaheads),
		excluded:    len(b.excluded),
	}
}

// rollback releases everything created since m. Nothing built after a
// failure is ever reused.
func (b *Builder) rollback(m mark) {
	b.graph.Truncate(m.states)
	b.session.Truncate(m.actions)
	for i := range b.graph.States {
		if a := b.graph.States[i].Action; a != nil && a.ID >= m.actions {
			b.graph.States[i].Action = nil
		}
	}
	b.triggers = m.triggers
	b.completions = b.completions[:m.completions]
	b.lookaheads = b.lookaheads[:m.lookaheads]
	b.excluded = b.excluded[:m.excluded]

	b.refs = make([]int, b.graph.Len())
	for _, s := range b.graph.States {
		for _, t := range s.Trans {
			b.refs[t.Target]++
		}
	}
}

func (b *Builder) guard(build func() (Fragment, error)) (Fragment, error) {
	m := b.mark()
	f, err := build()
	if err != nil {
		b.rollback(m)
		return Fragment{}, err
	}
	return f, nil
}

// private reports whether s is referenced by nothing but its own fragment:
// no incoming edges, no action and no bookkeeping entry.
func (b *Builder) private(s StateID) bool {
	if b.refs[s] != 0 || b.graph.States[s].Action != nil {
		return false
	}
	if slices.Contains(b.lookaheads, s) || slices.Contains(b.excluded, s) {
		return false
	}
	for _, c := range b.completions {
		if s >= c.Lo && s < c.Hi {
			return false
		}
	}
	return true
}

// join concatenates x and y. When y's entry is private to y its edges are
// spliced onto x's exit; otherwise the two are linked by epsilon.
func (b *Builder) join(x, y Fragment) Fragment {
	ys := &b.graph.States[y.Start]
	switch {
	case y.Start == y.Accept && len(ys.Trans) == 0 && b.private(y.Start):
		return x
	case y.Start != y.Accept && b.private(y.Start):
		moved := ys.Trans
		ys.Trans = nil
		for _, t := range moved {
			b.graph.AddTransition(x.Accept, t.Range, t.Target)
		}
		return Fragment{Start: x.Start, Accept: y.Accept}
	default:
		b.epsilon(x.Accept, y.Start)
		return Fragment{Start: x.Start, Accept: y.Accept}
	}
}

// markable returns s, or a fresh epsilon successor of s when s already
// carries an action.
func (b *Builder) markable(s StateID) StateID {
	if b.graph.States[s].Action == nil {
		return s
	}
	n := b.newState()
	b.epsilon(s, n)
	return n
}

// --- leaf constructs --------------------------------------------------------

// Empty matches the empty string.
func (b *Builder) Empty() (Fragment, error) {
	s := b.newState()
	return Fragment{Start: s, Accept: s}, nil
}

func (b *Builder) Literal(r rune) (Fragment, error) { return b.Range(r, r) }

// Range matches one character in lo..hi.
func (b *Builder) Range(lo, hi rune) (Fragment, error) {
	if lo > hi {
		return Fragment{}, fmt.Errorf("%w: %q > %q", automaton.ErrInvalidRange, lo, hi)
	}
	return b.guard(func() (Fragment, error) {
		s, a := b.newState(), b.newState()
		if err := b.edge(s, alphabet.Runes(lo, hi), a); err != nil {
			return Fragment{}, err
		}
		return Fragment{Start: s, Accept: a}, nil
	})
}

// String matches str exactly.
func (b *Builder) String(str string) (Fragment, error) {
	if str == "" {
		return b.Empty()
	}
	return b.guard(func() (Fragment, error) {
		start := b.newState()
		cur := start
		for _, r := range str {
			next := b.newState()
			if err := b.edge(cur, alphabet.Runes(r, r), next); err != nil {
				return Fragment{}, err
			}
			cur = next
		}
		return Fragment{Start: start, Accept: cur}, nil
	})
}

// NotInSet matches one character outside every range of set.
func (b *Builder) NotInSet(set []alphabet.CharRange) (Fragment, error) {
	sorted := slices.Clone(set)
	slices.SortFunc(sorted, func(x, y alphabet.CharRange) int { return int(x.Low) - int(y.Low) })
	for _, r := range sorted {
		if !r.Valid() || !r.Low.IsChar() || !r.High.IsChar() {
			return Fragment{}, fmt.Errorf("%w: %v", automaton.ErrInvalidRange, r)
		}
	}
	return b.guard(func() (Fragment, error) {
		s, a := b.newState(), b.newState()
		next := alphabet.Char(0)
		for _, r := range sorted {
			if r.Low > next {
				if err := b.edge(s, alphabet.CharRange{Low: next, High: r.Low - 1}, a); err != nil {
					return Fragment{}, err
				}
			}
			if r.High+1 > next {
				next = r.High + 1
			}
		}
		if next <= alphabet.MaxChar {
			if err := b.edge(s, alphabet.CharRange{Low: next, High: alphabet.MaxChar}, a); err != nil {
				return Fragment{}, err
			}
		}
		return Fragment{Start: s, Accept: a}, nil
	})
}

// Unsatisfiable matches nothing: its only edge is labelled with a symbol
// that never occurs in input, so everything behind it is pruned from the DFA.
func (b *Builder) Unsatisfiable(n int) (Fragment, error) {
	if n < 0 {
		return Fragment{}, fmt.Errorf("%w: unsatisfiable(%d)", automaton.ErrInvalidRange, n)
	}
	return b.guard(func() (Fragment, error) {
		s, a := b.newState(), b.newState()
		if err := b.edge(s, alphabet.Single(alphabet.Unsatisfiable(n)), a); err != nil {
			return Fragment{}, err
		}
		return Fragment{Start: s, Accept: a}, nil
	})
}

// Trigger emits a transition on a fresh trigger symbol pair whose entry state
// fires action.
func (b *Builder) Trigger(action automaton.Action) (Fragment, error) {
	if b.graph.Len() == 0 {
		return Fragment{}, automaton.ErrTriggerIsFirstState
	}
	if action == nil || action.IsNull() {
		return Fragment{}, fmt.Errorf("%w: trigger %d", automaton.ErrMissingActionObject, b.triggers)
	}
	return b.guard(func() (Fragment, error) {
		enter, exit := alphabet.TriggerPair(b.triggers)
		b.triggers++
		s, a := b.newState(), b.newState()
		if err := b.edge(s, alphabet.CharRange{Low: enter, High: exit}, a); err != nil {
			return Fragment{}, err
		}
		b.AddTrigger(s, action)
		return Fragment{Start: s, Accept: a}, nil
	})
}

// AddTrigger registers action against the entry state of a trigger.
func (b *Builder) AddTrigger(s StateID, action automaton.Action) *automaton.AcceptAction {
	a := b.session.Register(&automaton.AcceptAction{
		Kind:      automaton.KindNone,
		IsTrigger: true,
		Callback:  action,
	})
	a.Related = a.ID
	a.Triggers = bitset.New(uint(a.ID + 1)).Set(uint(a.ID))
	b.graph.States[s].Action = a
	return a
}

// --- composite constructs ---------------------------------------------------

// Follows matches x then y.
func (b *Builder) Follows(x, y Node) (Fragment, error) {
	return b.guard(func() (Fragment, error) {
		fx, err := x.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		fy, err := y.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		return b.join(fx, fy), nil
	})
}

// Or matches x or y.
func (b *Builder) Or(x, y Node) (Fragment, error) {
	return b.guard(func() (Fragment, error) {
		s := b.newState()
		fx, err := x.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		fy, err := y.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		a := b.newState()
		b.epsilon(s, fx.Start)
		b.epsilon(s, fy.Start)
		b.epsilon(fx.Accept, a)
		b.epsilon(fy.Accept, a)
		return Fragment{Start: s, Accept: a}, nil
	})
}

// ZeroOrMore matches any number of repetitions of x.
func (b *Builder) ZeroOrMore(x Node) (Fragment, error) {
	return b.guard(func() (Fragment, error) {
		s := b.newState()
		fx, err := x.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		a := b.newState()
		b.epsilon(s, fx.Start)
		b.epsilon(fx.Accept, a)
		b.epsilon(fx.Accept, fx.Start)
		b.epsilon(s, a)
		return Fragment{Start: s, Accept: a}, nil
	})
}

// Excludes matches x, except that reaching the end of y marks the state
// anti-accepting for the enclosing rule.
func (b *Builder) Excludes(x, y Node) (Fragment, error) {
	return b.guard(func() (Fragment, error) {
		s := b.newState()
		fx, err := x.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		fy, err := y.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		b.epsilon(s, fx.Start)
		b.epsilon(s, fy.Start)
		b.excluded = append(b.excluded, fy.Accept)
		return Fragment{Start: s, Accept: fx.Accept}, nil
	})
}

// Lookahead matches x followed by y while remembering x's exit so that the
// rule only consumes x.
func (b *Builder) Lookahead(x, y Node) (Fragment, error) {
	return b.guard(func() (Fragment, error) {
		fx, err := x.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		b.lookaheads = append(b.lookaheads, fx.Accept)
		fy, err := y.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		return b.join(fx, fy), nil
	})
}

// Completes matches repetitions of x up to and including the first complete
// match of terminator. The terminator's exit carries a completion marker
// edge; the subset constructor drops the whole region once it sees one.
func (b *Builder) Completes(x, terminator Node) (Fragment, error) {
	return b.guard(func() (Fragment, error) {
		lo := b.graph.Len()
		body, err := b.ZeroOrMore(x)
		if err != nil {
			return Fragment{}, err
		}
		ft, err := terminator.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		b.epsilon(body.Accept, ft.Start)

		k := len(b.completions)
		sink := b.newState()
		if err := b.edge(ft.Accept, alphabet.Single(alphabet.CompletionMarker(k)), sink); err != nil {
			return Fragment{}, err
		}
		hi := b.graph.Len()
		a := b.newState()
		b.epsilon(ft.Accept, a)
		b.completions = append(b.completions, Completion{Lo: lo, Hi: hi})
		return Fragment{Start: body.Start, Accept: a}, nil
	})
}

// --- rules ------------------------------------------------------------------

// StartAddRules creates the shared start state rules hang off.
func (b *Builder) StartAddRules() StateID {
	if b.root < 0 {
		b.root = b.newState()
		b.graph.Start = b.root
	}
	return b.root
}

// AddAlternative builds node as a new rule reachable from the start state.
func (b *Builder) AddAlternative(node Node, action automaton.Action) (Fragment, error) {
	root := b.StartAddRules()
	return b.guard(func() (Fragment, error) {
		f, err := node.ConstructInto(b)
		if err != nil {
			return Fragment{}, err
		}
		b.epsilon(root, f.Start)
		return b.AddAccept(f, action)
	})
}

// AddAccept registers the accept actions of a completed rule: one
// lookahead-accept per tracked lookahead exit, then the rule's own accept (or
// lookahead confirmation), then one anti-accepting action per excluded exit.
func (b *Builder) AddAccept(f Fragment, action automaton.Action) (Fragment, error) {
	var pending []*automaton.AcceptAction
	for _, s := range b.lookaheads {
		s = b.markable(s)
		la := b.session.Register(&automaton.AcceptAction{Kind: automaton.KindLookaheadAccept, Callback: action})
		la.Pending = bitset.New(uint(la.ID + 1)).Set(uint(la.ID))
		b.graph.States[s].Action = la
		pending = append(pending, la)
	}

	final := b.markable(f.Accept)
	ids := &bitset.BitSet{}
	if len(pending) == 0 {
		acc := b.session.Register(&automaton.AcceptAction{Kind: automaton.KindAccept, Callback: action})
		acc.Related = acc.ID
		acc.AcceptID = acc.ID
		b.graph.States[final].Action = acc
		ids.Set(uint(acc.ID))
	} else {
		lk := b.session.Register(&automaton.AcceptAction{Kind: automaton.KindLookahead, Callback: action})
		lk.Related = pending[0].ID
		lk.RelatedSet = &bitset.BitSet{}
		for _, la := range pending {
			la.Related = lk.ID
			lk.RelatedSet.Set(uint(la.ID))
			ids.Set(uint(la.ID))
		}
		b.graph.States[final].Action = lk
	}

	for _, s := range b.excluded {
		s = b.markable(s)
		first, _ := ids.NextSet(0)
		anti := b.session.Register(&automaton.AcceptAction{
			Kind:       automaton.KindAntiAccepting,
			Related:    int(first),
			RelatedSet: ids.Clone(),
			Callback:   action,
		})
		b.graph.States[s].Action = anti
	}

	b.lookaheads = b.lookaheads[:0]
	b.excluded = b.excluded[:0]
	return Fragment{Start: f.Start, Accept: final}, nil
}
