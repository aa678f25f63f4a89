package alphabet

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/emirpasic/gods/v2/trees/redblacktree"
)

// Index addresses one range of a frozen alphabet.
type Index uint16

// MaxRanges is the number of distinct ranges an Index can address.
const MaxRanges = math.MaxUint16 + 1

var (
	ErrAlphabetOverflow = errors.New("alphabet overflow")
	ErrInvalidRange     = errors.New("invalid range")
)

// Alphabet is the set of pairwise disjoint ranges used as edge labels.
// Registering a range refines the set so that every registered range is
// exactly a union of members.
type Alphabet struct {
	tree  *redblacktree.Tree[Symbol, Symbol] // low -> high
	limit int

	ranges []CharRange // sorted snapshot, nil when stale
}

// New returns an empty alphabet holding at most limit ranges. A limit <= 0 or
// above MaxRanges means MaxRanges.
func New(limit int) *Alphabet {
	if limit <= 0 || limit > MaxRanges {
		limit = MaxRanges
	}
	return &Alphabet{
		tree:  redblacktree.New[Symbol, Symbol](),
		limit: limit,
	}
}

func (a *Alphabet) Len() int { return a.tree.Size() }

// Register inserts r, splitting every member it overlaps. The alphabet is
// left untouched when an error is returned.
func (a *Alphabet) Register(r CharRange) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRange, r.Low, r.High)
	}
	overlaps := a.overlapping(r)
	if len(overlaps) == 1 && overlaps[0] == r {
		return nil
	}

	cuts := []int64{int64(r.Low), int64(r.High) + 1}
	for _, o := range overlaps {
		cuts = append(cuts, int64(o.Low), int64(o.High)+1)
	}
	slices.Sort(cuts)
	cuts = slices.Compact(cuts)

	pieces := make([]CharRange, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		p := CharRange{Low: Symbol(cuts[i]), High: Symbol(cuts[i+1] - 1)}
		if r.Contains(p.Low) || covered(overlaps, p.Low) {
			pieces = append(pieces, p)
		}
	}

	if n := a.tree.Size() - len(overlaps) + len(pieces); n > a.limit {
		return fmt.Errorf("%w: %d ranges exceed limit %d", ErrAlphabetOverflow, n, a.limit)
	}
	for _, o := range overlaps {
		a.tree.Remove(o.Low)
	}
	for _, p := range pieces {
		a.tree.Put(p.Low, p.High)
	}
	a.ranges = nil
	return nil
}

func covered(rs []CharRange, s Symbol) bool {
	for _, r := range rs {
		if r.Contains(s) {
			return true
		}
	}
	return false
}

func (a *Alphabet) overlapping(r CharRange) []CharRange {
	var out []CharRange
	lo := r.Low
	if n, ok := a.tree.Floor(r.Low); ok && n.Value >= r.Low {
		out = append(out, CharRange{Low: n.Key, High: n.Value})
		if n.Value >= r.High {
			return out
		}
		lo = n.Value + 1
	}
	for {
		n, ok := a.tree.Ceiling(lo)
		if !ok || n.Key > r.High {
			return out
		}
		out = append(out, CharRange{Low: n.Key, High: n.Value})
		if n.Value >= r.High {
			return out
		}
		lo = n.Value + 1
	}
}

// Ranges returns the members in ascending order. The slice is shared until
// the next Register call and must not be modified.
func (a *Alphabet) Ranges() []CharRange {
	if a.ranges == nil {
		lows, highs := a.tree.Keys(), a.tree.Values()
		a.ranges = make([]CharRange, len(lows))
		for i := range lows {
			a.ranges[i] = CharRange{Low: lows[i], High: highs[i]}
		}
	}
	return a.ranges
}

// IndexOf returns the index of the member containing s.
func (a *Alphabet) IndexOf(s Symbol) (Index, bool) {
	rs := a.Ranges()
	i := sort.Search(len(rs), func(i int) bool { return rs[i].High >= s })
	if i == len(rs) || !rs[i].Contains(s) {
		return 0, false
	}
	return Index(i), true
}

// Cover returns the first and last member indexes of a registered range.
func (a *Alphabet) Cover(r CharRange) (first, last Index, ok bool) {
	first, ok = a.IndexOf(r.Low)
	if !ok {
		return 0, 0, false
	}
	last, ok = a.IndexOf(r.High)
	return first, last, ok
}
