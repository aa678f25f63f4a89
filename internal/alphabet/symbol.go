package alphabet

import (
	"fmt"
	"math"
	"unicode/utf8"
)

// Symbol is one value of the extended input domain. Ordinary characters are
// shifted up by one so that symbol 0 can stand for epsilon; two reserved
// bands follow the characters: triggers, then unsatisfiable markers.
type Symbol int32

const (
	Epsilon Symbol = 0

	// MaxChar is the symbol of utf8.MaxRune.
	MaxChar = Symbol(utf8.MaxRune) + 1

	// TriggerBase is even; trigger k owns (TriggerBase+2k, TriggerBase+2k+1).
	TriggerBase = MaxChar + 2

	UnsatisfiableBase Symbol = 1 << 30

	MaxSymbol Symbol = math.MaxInt32
)

// Char returns the symbol for r.
func Char(r rune) Symbol { return Symbol(r) + 1 }

// Rune is the inverse of Char. It is only meaningful for character symbols.
func (s Symbol) Rune() rune { return rune(s - 1) }

// TriggerPair returns the enter (even) and exit (odd) symbols of trigger k.
func TriggerPair(k int) (enter, exit Symbol) {
	enter = TriggerBase + Symbol(2*k)
	return enter, enter + 1
}

// Unsatisfiable returns the n-th user unsatisfiable symbol.
func Unsatisfiable(n int) Symbol { return UnsatisfiableBase + Symbol(n) }

// CompletionMarker returns the k-th completion marker. Markers are handed out
// from the top of the unsatisfiable band so they never meet user symbols.
func CompletionMarker(k int) Symbol { return MaxSymbol - Symbol(k) }

func (s Symbol) IsEpsilon() bool { return s == Epsilon }
func (s Symbol) IsChar() bool { return s > Epsilon && s <= MaxChar }
func (s Symbol) IsTrigger() bool { return s >= TriggerBase && s < UnsatisfiableBase }
func (s Symbol) IsUnsatisfiable() bool { return s >= UnsatisfiableBase }

// TriggerIndex returns k for either symbol of trigger k.
func (s Symbol) TriggerIndex() int { return int(s-TriggerBase) / 2 }

// CompletionIndex returns k for CompletionMarker(k).
func (s Symbol) CompletionIndex() int { return int(MaxSymbol - s) }

func (s Symbol) String() string {
	switch {
	case s.IsEpsilon():
		return "ε"
	case s.IsChar():
		r := s.Rune()
		if r > ' ' && r < utf8.RuneSelf && r != '"' && r != '\\' {
			return string(r)
		}
		return fmt.Sprintf("\\u%04x", r)
	case s.IsTrigger():
		if (s-TriggerBase)%2 == 0 {
			return fmt.Sprintf("T%d", s.TriggerIndex())
		}
		return fmt.Sprintf("T%d'", s.TriggerIndex())
	default:
		return fmt.Sprintf("!%d", s-UnsatisfiableBase)
	}
}

// CharRange is an inclusive range of symbols.
type CharRange struct {
	Low, High Symbol
}

// EpsilonRange labels epsilon transitions.
var EpsilonRange = CharRange{Low: Epsilon, High: Epsilon}

// Single returns the range holding only s.
func Single(s Symbol) CharRange { return CharRange{Low: s, High: s} }

// Runes returns the range of characters lo..hi.
func Runes(lo, hi rune) CharRange { return CharRange{Low: Char(lo), High: Char(hi)} }

func (r CharRange) Valid() bool { return r.Low <= r.High }
func (r CharRange) Contains(s Symbol) bool { return r.Low <= s && s <= r.High }
func (r CharRange) Overlaps(o CharRange) bool { return r.Low <= o.High && o.Low <= r.High }
func (r CharRange) IsEpsilon() bool { return r == EpsilonRange }

func (r CharRange) String() string {
	if r.Low == r.High {
		return r.Low.String()
	}
	return r.Low.String() + "-" + r.High.String()
}
