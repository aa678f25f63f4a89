// Package scanner runs a compiled automaton over an input stream, keeping the
// longest accepted prefix, replaying lookahead decisions and firing triggers.
package scanner

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"lexgen/internal/automaton"
)

// ErrNoMatch is returned when no rule matches at the current position. It is
// a normal outcome; the offending rune is skipped.
var ErrNoMatch = errors.New("no match")

// Table is what the scanner walks. Both automaton.Graph and table.Table
// implement it. Implementations must not be mutated while scanning.
type Table interface {
	StartState() int
	Next(state int, r rune) (int, bool)
	TriggerTarget(state int) (int, bool)
	AcceptAt(state int) *automaton.AcceptAction
	ActionByID(id int) *automaton.AcceptAction
}

type Status int

const (
	Scanning Status = iota
	Accepted
	Rejected
)

func (s Status) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Match is one accepted token. Offsets count runes from the start of input.
type Match struct {
	Token  int
	Action int
	Text   string
	Start  int
	End    int
}

type record struct {
	pos int // absolute, -1 when unset
	id  int
}

// Scanner is single-use state over one input. Create one per goroutine; the
// table may be shared.
type Scanner struct {
	table Table
	in    io.RuneReader
	eof   bool

	buf  []rune
	base int // absolute offset of buf[0]

	status Status
	start  int
	pos    int
	text   string // text handed to the running callback

	last    record
	pending record
	waiting *bitset.BitSet
}

// New returns a scanner reading from r.
func New(t Table, r io.Reader) *Scanner {
	rr, ok := r.(io.RuneReader)
	if !ok {
		rr = bufio.NewReader(r)
	}
	return &Scanner{table: t, in: rr}
}

func NewString(t Table, s string) *Scanner { return New(t, strings.NewReader(s)) }

func (s *Scanner) Status() Status { return s.status }

// Offset is the position where the next match will start.
func (s *Scanner) Offset() int { return s.base }

// Analyzer view handed to callbacks.

func (s *Scanner) Text() string { return s.text }
func (s *Scanner) Start() int   { return s.start }
func (s *Scanner) End() int     { return s.pos }
func (s *Scanner) Pos() int     { return s.pos }

// at returns the rune at absolute offset off, reading more input on demand.
func (s *Scanner) at(off int) (rune, bool, error) {
	for off-s.base >= len(s.buf) {
		if s.eof {
			return 0, false, nil
		}
		r, _, err := s.in.ReadRune()
		if err == io.EOF {
			s.eof = true
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		s.buf = append(s.buf, r)
	}
	return s.buf[off-s.base], true, nil
}

func (s *Scanner) slice(from, to int) string {
	return string(s.buf[from-s.base : to-s.base])
}

// discard drops buffered runes before off.
func (s *Scanner) discard(off int) {
	n := off - s.base
	s.buf = s.buf[:copy(s.buf, s.buf[n:])]
	s.base = off
}

// Next returns the next match. It returns io.EOF at the end of input and an
// error wrapping ErrNoMatch when no rule matches at the current offset.
func (s *Scanner) Next() (Match, error) {
	for {
		if _, ok, err := s.at(s.base); err != nil {
			return Match{}, err
		} else if !ok {
			return Match{}, io.EOF
		}

		if err := s.scan(); err != nil {
			return Match{}, err
		}
		if s.last.pos < 0 {
			s.status = Rejected
			r, _, _ := s.at(s.base)
			off := s.base
			s.discard(s.base + 1)
			return Match{}, fmt.Errorf("%w at offset %d (%q)", ErrNoMatch, off, r)
		}

		action := s.table.ActionByID(s.last.id)
		if action == nil {
			return Match{}, fmt.Errorf("%w: unknown action %d", automaton.ErrInvariantViolation, s.last.id)
		}
		m := Match{
			Action: s.last.id,
			Text:   s.slice(s.start, s.last.pos),
			Start:  s.start,
			End:    s.last.pos,
		}
		s.pos, s.text = m.End, m.Text
		s.discard(m.End)

		cb := action.Callback
		if cb != nil && !cb.IsNull() {
			m.Token = cb.TokenID()
			if !cb.Do(s) {
				// rejected by the callback: forget it and go on after the text
				cb.Clear()
				continue
			}
		}
		s.status = Accepted
		return m, nil
	}
}

// scan runs the automaton from s.base for as long as transitions exist and
// leaves the outcome in s.last.
func (s *Scanner) scan() error {
	s.status = Scanning
	s.start, s.pos = s.base, s.base
	s.last = record{pos: -1}
	s.pending = record{pos: -1}
	s.waiting = nil

	state := s.enter(s.table.StartState())
	for {
		r, ok, err := s.at(s.pos)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		next, ok := s.table.Next(state, r)
		if !ok {
			return nil
		}
		s.pos++
		state = s.enter(next)
	}
}

// enter records the action of state and follows trigger edges, firing the
// callbacks of each trigger once per position.
func (s *Scanner) enter(state int) int {
	var seen map[int]bool
	for {
		a := s.table.AcceptAt(state)
		if a != nil {
			s.record(a)
		}
		next, ok := s.table.TriggerTarget(state)
		if !ok || seen[state] {
			return state
		}
		if seen == nil {
			seen = make(map[int]bool)
		}
		seen[state] = true
		if a != nil && a.IsTrigger {
			s.fire(a)
		}
		state = next
	}
}

func (s *Scanner) fire(a *automaton.AcceptAction) {
	s.text = s.slice(s.start, s.pos)
	for i, ok := a.Triggers.NextSet(0); ok; i, ok = a.Triggers.NextSet(i + 1) {
		t := s.table.ActionByID(int(i))
		if t != nil && t.Callback != nil && !t.Callback.IsNull() {
			t.Callback.Do(s)
		}
	}
}

func (s *Scanner) accept(pos, id int) {
	if pos == s.start {
		return
	}
	if pos > s.last.pos || (pos == s.last.pos && id < s.last.id) {
		s.last = record{pos: pos, id: id}
	}
}

func (s *Scanner) record(a *automaton.AcceptAction) {
	if a.Kind == automaton.KindAntiAccepting {
		if s.last.pos >= 0 && a.RelatedSet.Test(uint(s.last.id)) {
			s.last = record{pos: -1}
		}
		if s.waiting != nil {
			s.waiting.InPlaceDifference(a.RelatedSet)
			if !s.waiting.Any() {
				s.pending, s.waiting = record{pos: -1}, nil
			}
		}
		return
	}
	if a.Confirms() && s.waiting != nil {
		hit := s.waiting.Intersection(a.RelatedSet)
		if id, ok := hit.NextSet(0); ok {
			s.accept(s.pending.pos, int(id))
			s.waiting.InPlaceDifference(hit)
			if !s.waiting.Any() {
				s.pending, s.waiting = record{pos: -1}, nil
			}
		}
	}
	if a.Accepts() {
		s.accept(s.pos, a.AcceptID)
	}
	if a.LeavesPending() && s.pos > s.start {
		s.pending = record{pos: s.pos}
		s.waiting = a.Pending.Clone()
	}
}

// All scans the rest of the input and returns every match. Unmatched runes
// are skipped; the first ErrNoMatch is returned alongside the matches.
func (s *Scanner) All() ([]Match, error) {
	var out []Match
	var first error
	for {
		m, err := s.Next()
		switch {
		case err == io.EOF:
			return out, first
		case errors.Is(err, ErrNoMatch):
			if first == nil {
				first = err
			}
		case err != nil:
			return out, err
		default:
			out = append(out, m)
		}
	}
}
