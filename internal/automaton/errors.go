package automaton

import (
	"errors"

	"lexgen/internal/alphabet"
)

// Construction errors. They abort the current build session only.
var (
	ErrAlphabetOverflow       = alphabet.ErrAlphabetOverflow
	ErrInvalidRange           = alphabet.ErrInvalidRange
	ErrTriggerIsFirstState    = errors.New("trigger is first state")
	ErrAmbiguousAntiAccepting = errors.New("ambiguous anti-accepting state")
	ErrMissingActionObject    = errors.New("missing action object")
	ErrInvariantViolation     = errors.New("invariant violation")
)
