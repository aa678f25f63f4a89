// Package dfa turns an NFA into a DFA by subset construction.
package dfa

import (
	"encoding/binary"
	"slices"

	"github.com/emirpasic/gods/v2/queues/linkedlistqueue"
	"github.com/emirpasic/gods/v2/stacks/arraystack"
	"golang.org/x/exp/maps"

	"lexgen/internal/alphabet"
	"lexgen/internal/automaton"
	"lexgen/internal/nfa"
)

type StateID = automaton.StateID

// Options tune subset construction.
type Options struct {
	// DeadState adds a sink at id 0 so that every state has a transition on
	// every character. The minimizer requires it.
	DeadState bool
	// Completions are the cut regions recorded by the NFA builder.
	Completions []nfa.Completion
}

type span struct {
	first, last alphabet.Index
	target      StateID
}

type constructor struct {
	src    *automaton.Graph
	ranges []alphabet.CharRange
	opts   Options

	chars    [][]span    // character edges of every NFA state
	triggers [][]StateID // trigger exits of every NFA state
	markers  [][]int     // completion markers carried by every NFA state
	closures [][]StateID // memoized epsilon closures

	out   *automaton.Graph
	sets  [][]StateID
	index map[string]StateID

	res *resolver
}

// Construct builds a DFA from src. The DFA shares src's session and
// alphabet; resolved actions are registered in that session.
func Construct(src *automaton.Graph, opts Options) (*automaton.Graph, error) {
	c := &constructor{
		src:      src,
		ranges:   src.Alphabet.Ranges(),
		opts:     opts,
		chars:    make([][]span, src.Len()),
		triggers: make([][]StateID, src.Len()),
		markers:  make([][]int, src.Len()),
		closures: make([][]StateID, src.Len()),
		out:      automaton.NewGraph(src.Session, src.Alphabet),
		index:    make(map[string]StateID),
		res:      newResolver(src.Session),
	}
	if err := c.indexEdges(); err != nil {
		return nil, err
	}
	return c.run()
}

func (c *constructor) indexEdges() error {
	for id, s := range c.src.States {
		for _, t := range s.Trans {
			r := t.Range
			switch {
			case r.IsEpsilon():
			case r.Low.IsChar():
				first, last, ok := c.src.Alphabet.Cover(r)
				if !ok {
					return automaton.ErrInvariantViolation
				}
				c.chars[id] = append(c.chars[id], span{first, last, t.Target})
			case r.Low.IsTrigger():
				c.triggers[id] = append(c.triggers[id], t.Target)
			case r.Low.IsUnsatisfiable() && r.Low > alphabet.CompletionMarker(len(c.opts.Completions)):
				c.markers[id] = append(c.markers[id], r.Low.CompletionIndex())
			}
		}
	}
	return nil
}

// closure returns the sorted epsilon closure of s, computing it once.
func (c *constructor) closure(s StateID) []StateID {
	if c.closures[s] != nil {
		return c.closures[s]
	}
	seen := map[StateID]bool{s: true}
	stack := arraystack.New[StateID]()
	stack.Push(s)
	for !stack.Empty() {
		cur, _ := stack.Pop()
		for _, t := range c.src.States[cur].Trans {
			if t.Range.IsEpsilon() && !seen[t.Target] {
				seen[t.Target] = true
				stack.Push(t.Target)
			}
		}
	}
	ids := maps.Keys(seen)
	slices.Sort(ids)
	c.closures[s] = ids
	return ids
}

// expand closes seeds under epsilon and applies completion cuts: once the
// terminator of a completed-by region has matched, the region's other states
// leave the set.
func (c *constructor) expand(seeds []StateID) []StateID {
	set := make(map[StateID]bool)
	for _, s := range seeds {
		for _, x := range c.closure(s) {
			set[x] = true
		}
	}

	done := make(map[int]bool)
	for cut := true; cut; {
		cut = false
		for _, s := range sortedKeys(set) {
			for _, k := range c.markers[s] {
				if done[k] {
					continue
				}
				done[k], cut = true, true
				region := c.opts.Completions[k]
				for x := range set {
					if x >= region.Lo && x < region.Hi {
						delete(set, x)
					}
				}
				for _, x := range c.closure(s) {
					set[x] = true
				}
			}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[StateID]bool) []StateID {
	ids := maps.Keys(set)
	slices.Sort(ids)
	return ids
}

func key(ids []StateID) string {
	buf := make([]byte, 0, 2*len(ids))
	for _, id := range ids {
		buf = binary.AppendUvarint(buf, uint64(id))
	}
	return string(buf)
}

// state returns the DFA state for an NFA state set, creating and queueing
// it when new.
func (c *constructor) state(set []StateID, queue *linkedlistqueue.Queue[StateID]) (StateID, error) {
	k := key(set)
	if id, ok := c.index[k]; ok {
		return id, nil
	}
	action, err := c.res.resolve(c.actionsOf(set))
	if err != nil {
		return 0, err
	}
	id := c.out.AddState()
	c.out.States[id].Action = action
	c.index[k] = id
	c.sets = append(c.sets, set)
	queue.Enqueue(id)
	return id, nil
}

func (c *constructor) actionsOf(set []StateID) []*automaton.AcceptAction {
	var as []*automaton.AcceptAction
	for _, s := range set {
		if a := c.src.States[s].Action; a != nil {
			as = append(as, a)
		}
	}
	return as
}

func (c *constructor) run() (*automaton.Graph, error) {
	queue := linkedlistqueue.New[StateID]()

	if c.opts.DeadState {
		dead := c.out.AddState()
		c.index[key(nil)] = dead
		c.sets = append(c.sets, nil)
		c.out.Dead = dead
		c.addDeadLoops(dead)
	}

	start, err := c.state(c.expand([]StateID{c.src.Start}), queue)
	if err != nil {
		return nil, err
	}
	c.out.Start = start

	for !queue.Empty() {
		id, _ := queue.Dequeue()
		set := c.sets[id]

		hasTrigger, err := c.addTriggerEdge(id, set, queue)
		if err != nil {
			return nil, err
		}
		if hasTrigger {
			// the scanner always takes the trigger edge first
			c.fillDead(id)
			continue
		}
		if err := c.addCharEdges(id, set, queue); err != nil {
			return nil, err
		}
		c.fillDead(id)
	}

	c.out.Partition = automaton.BuildPartition(c.out)
	return c.out, nil
}

// addTriggerEdge unifies the trigger edges of a DFA state into one edge
// labelled with the lowest trigger pair. The target holds everything but the
// trigger entry states plus the closure of every trigger exit.
func (c *constructor) addTriggerEdge(id StateID, set []StateID, queue *linkedlistqueue.Queue[StateID]) (bool, error) {
	var enters, exits []StateID
	lowest := alphabet.MaxSymbol
	for _, s := range set {
		if len(c.triggers[s]) == 0 {
			continue
		}
		enters = append(enters, s)
		exits = append(exits, c.triggers[s]...)
		for _, t := range c.src.States[s].Trans {
			if t.Range.Low.IsTrigger() && t.Range.Low < lowest {
				lowest = t.Range.Low
			}
		}
	}
	if len(enters) == 0 {
		return false, nil
	}

	seeds := slices.Clone(set)
	seeds = append(seeds, exits...)
	target := slices.DeleteFunc(c.expand(seeds), func(s StateID) bool {
		return slices.Contains(enters, s)
	})

	to, err := c.state(target, queue)
	if err != nil {
		return false, err
	}
	c.out.AddTransition(id, alphabet.CharRange{Low: lowest, High: lowest + 1}, to)
	return true, nil
}

func (c *constructor) addCharEdges(id StateID, set []StateID, queue *linkedlistqueue.Queue[StateID]) error {
	buckets := make(map[alphabet.Index][]StateID)
	for _, s := range set {
		for _, sp := range c.chars[s] {
			for i := int(sp.first); i <= int(sp.last); i++ {
				buckets[alphabet.Index(i)] = append(buckets[alphabet.Index(i)], sp.target)
			}
		}
	}
	indexes := maps.Keys(buckets)
	slices.Sort(indexes)

	moves := make(map[string]StateID)
	var last *automaton.Transition
	for _, i := range indexes {
		seeds := buckets[i]
		slices.Sort(seeds)
		seeds = slices.Compact(seeds)

		mk := key(seeds)
		to, ok := moves[mk]
		if !ok {
			var err error
			to, err = c.state(c.expand(seeds), queue)
			if err != nil {
				return err
			}
			moves[mk] = to
		}

		r := c.ranges[i]
		if last != nil && last.Target == to && last.Range.High+1 == r.Low {
			last.Range.High = r.High
			continue
		}
		c.out.AddTransition(id, r, to)
		ts := c.out.States[id].Trans
		last = &ts[len(ts)-1]
	}
	return nil
}

// addDeadLoops gives the sink a self loop on every character.
func (c *constructor) addDeadLoops(dead StateID) {
	for _, r := range mergeRuns(c.charRanges()) {
		c.out.AddTransition(dead, r, dead)
	}
}

// fillDead sends every character without an edge out of id to the sink.
func (c *constructor) fillDead(id StateID) {
	if c.out.Dead < 0 || id == c.out.Dead {
		return
	}
	covered := make([]bool, len(c.ranges))
	for _, t := range c.out.States[id].Trans {
		if !t.Range.Low.IsChar() {
			continue
		}
		first, last, _ := c.src.Alphabet.Cover(t.Range)
		for i := int(first); i <= int(last); i++ {
			covered[i] = true
		}
	}
	var missing []alphabet.CharRange
	for i, r := range c.ranges {
		if r.Low.IsChar() && !covered[i] {
			missing = append(missing, r)
		}
	}
	for _, r := range mergeRuns(missing) {
		c.out.AddTransition(id, r, c.out.Dead)
	}
}

func (c *constructor) charRanges() []alphabet.CharRange {
	var rs []alphabet.CharRange
	for _, r := range c.ranges {
		if r.Low.IsChar() {
			rs = append(rs, r)
		}
	}
	return rs
}

// mergeRuns joins adjacent ranges of an ascending list.
func mergeRuns(rs []alphabet.CharRange) []alphabet.CharRange {
	var out []alphabet.CharRange
	for _, r := range rs {
		if n := len(out); n > 0 && out[n-1].High+1 == r.Low {
			out[n-1].High = r.High
			continue
		}
		out = append(out, r)
	}
	return out
}
