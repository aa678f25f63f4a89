package alphabet

import "sort"

// Classes is a compressed alphabet: runs of adjacent ranges that every state
// treats identically are merged into one class range.
type Classes struct {
	ranges []CharRange
	remap  []Index
}

// Compress merges consecutive, adjacent members of ranges when same(i, j)
// reports that columns i and j lead to the same targets everywhere. It is a
// table-compaction pass and must only run once all states exist.
func Compress(ranges []CharRange, same func(i, j int) bool) *Classes {
	c := &Classes{remap: make([]Index, len(ranges))}
	for i, r := range ranges {
		if n := len(c.ranges); n > 0 {
			last := &c.ranges[n-1]
			if last.High+1 == r.Low && same(i-1, i) {
				last.High = r.High
				c.remap[i] = Index(n - 1)
				continue
			}
		}
		c.ranges = append(c.ranges, r)
		c.remap[i] = Index(len(c.ranges) - 1)
	}
	return c
}

func (c *Classes) Len() int { return len(c.ranges) }

// Range returns the merged range of class i.
func (c *Classes) Range(i Index) CharRange { return c.ranges[i] }

// Remap returns the class of original member i.
func (c *Classes) Remap(i int) Index { return c.remap[i] }

// Lookup returns the class whose range contains s.
func (c *Classes) Lookup(s Symbol) (Index, bool) {
	i := sort.Search(len(c.ranges), func(i int) bool { return c.ranges[i].High >= s })
	if i == len(c.ranges) || !c.ranges[i].Contains(s) {
		return 0, false
	}
	return Index(i), true
}
