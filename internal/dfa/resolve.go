package dfa

import (
	"fmt"
	"slices"

	"github.com/bits-and-blooms/bitset"

	"lexgen/internal/automaton"
)

// resolver picks the single action of a DFA state from the NFA actions it
// contains. Synthetic actions are memoized so that equal combinations share
// one id and therefore one partition class.
type resolver struct {
	session *automaton.Session
	memo    map[string]*automaton.AcceptAction
}

func newResolver(s *automaton.Session) *resolver {
	return &resolver{session: s, memo: make(map[string]*automaton.AcceptAction)}
}

func lowest(as []*automaton.AcceptAction) *automaton.AcceptAction {
	var best *automaton.AcceptAction
	for _, a := range as {
		if best == nil || a.ID < best.ID {
			best = a
		}
	}
	return best
}

func union(dst *bitset.BitSet, src *bitset.BitSet) *bitset.BitSet {
	if src == nil {
		return dst
	}
	if dst == nil {
		return src.Clone()
	}
	dst.InPlaceUnion(src)
	return dst
}

func first(b *bitset.BitSet) int {
	i, _ := b.NextSet(0)
	return int(i)
}

// resolve applies the disambiguation policy:
//   - an anti-accepting candidate pre-empts every other candidate; meeting a
//     trigger as well is an error.
//   - a lookahead-accept whose confirmation sits in the same state had an
//     empty lookahead match and completes here like an accept.
//   - among accepts and lookahead-accepts the lowest id wins. A winning
//     accept drops every lookahead candidate since nothing they could confirm
//     is longer. Lookahead-accepts of earlier rules survive next to it.
//   - triggers with interchangeable callbacks collapse to the lowest id.
//   - a lone candidate keeps its own action.
func (r *resolver) resolve(cands []*automaton.AcceptAction) (*automaton.AcceptAction, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	var accepts, las, lks, trigs, antis []*automaton.AcceptAction
	for _, a := range cands {
		if a.IsTrigger {
			trigs = append(trigs, a)
		}
		switch a.Kind {
		case automaton.KindAccept:
			accepts = append(accepts, a)
		case automaton.KindLookaheadAccept:
			las = append(las, a)
		case automaton.KindLookahead:
			lks = append(lks, a)
		case automaton.KindAntiAccepting:
			antis = append(antis, a)
		}
	}

	if len(antis) > 0 {
		if len(trigs) > 0 {
			return nil, fmt.Errorf("%w: anti-accepting action %d meets trigger %d",
				automaton.ErrAmbiguousAntiAccepting, lowest(antis).ID, lowest(trigs).ID)
		}
		if len(antis) == 1 {
			return antis[0], nil
		}
		var set *bitset.BitSet
		for _, a := range antis {
			set = union(set, a.RelatedSet)
		}
		return r.intern(&automaton.AcceptAction{
			Kind:       automaton.KindAntiAccepting,
			Related:    first(set),
			RelatedSet: set,
			Callback:   lowest(antis).Callback,
		}, antis)
	}

	trigs = coalesce(trigs)

	var confirmed *bitset.BitSet
	for _, a := range lks {
		confirmed = union(confirmed, a.RelatedSet)
	}
	for _, a := range las {
		if confirmed != nil && confirmed.Test(uint(a.ID)) {
			accepts = append(accepts, a)
		}
	}

	acc := lowest(accepts)
	if acc != nil {
		las = slices.DeleteFunc(las, func(a *automaton.AcceptAction) bool { return a.ID > acc.ID })
		lks = nil
	}

	out := &automaton.AcceptAction{Related: -1}
	var parts []*automaton.AcceptAction
	switch {
	case len(las) > 0:
		for _, a := range las {
			out.Pending = union(out.Pending, a.Pending)
		}
		win := lowest(las)
		out.Related = win.Related
		out.Callback = win.Callback
		parts = append(parts, las...)
		switch {
		case acc != nil:
			out.Kind = automaton.KindLookaheadAcceptAndAccept
			out.AcceptID = acc.ID
			if acc.Kind == automaton.KindAccept {
				parts = append(parts, acc)
			}
		case len(lks) > 0:
			out.Kind = automaton.KindLookaheadAcceptAndLookahead
			for _, a := range lks {
				out.RelatedSet = union(out.RelatedSet, a.RelatedSet)
			}
			parts = append(parts, lks...)
		default:
			out.Kind = automaton.KindLookaheadAccept
		}
	case acc != nil:
		out.Kind = automaton.KindAccept
		out.AcceptID = acc.ID
		out.Related = acc.ID
		out.Callback = acc.Callback
		parts = append(parts, acc)
	case len(lks) > 0:
		out.Kind = automaton.KindLookahead
		for _, a := range lks {
			out.RelatedSet = union(out.RelatedSet, a.RelatedSet)
		}
		out.Related = first(out.RelatedSet)
		out.Callback = lowest(lks).Callback
		parts = append(parts, lks...)
	default:
		out.Kind = automaton.KindNone
	}

	if len(trigs) > 0 {
		out.IsTrigger = true
		out.Triggers = &bitset.BitSet{}
		for _, t := range trigs {
			out.Triggers.Set(uint(t.ID))
		}
		if out.Kind == automaton.KindNone {
			out.Related = trigs[0].ID
			out.Callback = trigs[0].Callback
		}
		parts = append(parts, trigs...)
	}

	if len(parts) == 1 {
		return parts[0], nil
	}
	return r.intern(out, parts)
}

// coalesce keeps the lowest id of every group of triggers with
// interchangeable callbacks.
func coalesce(trigs []*automaton.AcceptAction) []*automaton.AcceptAction {
	slices.SortFunc(trigs, func(a, b *automaton.AcceptAction) int { return a.ID - b.ID })
	var out []*automaton.AcceptAction
	for _, t := range trigs {
		dup := slices.ContainsFunc(out, func(o *automaton.AcceptAction) bool {
			return automaton.SameCallback(o.Callback, t.Callback)
		})
		if !dup {
			out = append(out, t)
		}
	}
	return out
}

func signature(a *automaton.AcceptAction) string {
	return fmt.Sprintf("%d|%t|%d|%d|%v|%v|%v", a.Kind, a.IsTrigger, a.Related, a.AcceptID,
		a.RelatedSet, a.Pending, a.Triggers)
}

// intern registers a synthetic action unless an equal one exists. A lone
// contributor that already has exactly this shape is reused instead.
func (r *resolver) intern(a *automaton.AcceptAction, parts []*automaton.AcceptAction) (*automaton.AcceptAction, error) {
	sig := signature(a)
	for _, p := range parts {
		if signature(p) == sig {
			return p, nil
		}
	}
	if m, ok := r.memo[sig]; ok {
		return m, nil
	}
	r.session.Register(a)
	r.memo[sig] = a
	return a, nil
}
