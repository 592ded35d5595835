package quiz

import "errors"

// Failure taxonomy for engine operations. Callers match with errors.Is;
// specific reasons are attached via fmt.Errorf("%w: ...", ...).
//
// Ownership failures are reported as ErrNotFound rather than a dedicated
// forbidden error so that callers cannot probe for the existence of other
// users' sessions.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthenticated = errors.New("unauthenticated")
)
