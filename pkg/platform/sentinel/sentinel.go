package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and chain adapters
// return these (optionally wrapped) so services can translate them into coded
// domain errors:
//   - ErrNotFound: the record or account does not exist
//   - ErrConflict: a concurrent writer holds or already changed the resource
//   - ErrInvalidState: the entity is in the wrong state for the operation
//   - ErrUnavailable: the backing service could not be reached
//
// Validation failures belong in pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
