package core

import "errors"

var (
	ErrInvalidConfidence = errors.New("confidence must be within [0, 1]")
	ErrInvalidCategory   = errors.New("unknown fact category")
	ErrInvalidCandidate  = errors.New("fact type and value must not be empty")
	ErrUnknownSession    = errors.New("unknown session")
	ErrBudgetExceeded    = errors.New("persona exceeds bundle budget")
	ErrEngineInit        = errors.New("execution context initialization failed")
	ErrUnknownContext    = errors.New("unknown execution context")
	ErrIllegalTransition = errors.New("illegal context state transition")
)
