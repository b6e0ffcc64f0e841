package domain

import "errors"

// Malformed input, rejected before it reaches the model
var ErrMalformedAddress = errors.New("malformed address")

// Model inconsistency. These abort the current pass and indicate a bug in
// model construction or matching, not noisy evidence.
var (
	ErrDuplicateAddress      = errors.New("duplicate address")
	ErrAmbiguousMatch        = errors.New("ambiguous entity resolution")
	ErrUnresolvedPlaceholder = errors.New("placeholder left unresolved")
	ErrDuplicateEntity       = errors.New("duplicate entity")
)

// ErrNotFound is returned for unknown entity references
var ErrNotFound = errors.New("not found")

// ErrUnknownEvent is returned for event kinds the inspector does not handle
var ErrUnknownEvent = errors.New("unknown event kind")
