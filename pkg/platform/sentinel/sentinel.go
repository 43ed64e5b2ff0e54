package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so components can translate them into coded errors.
//
//   - ErrNotFound: key or entity does not exist in the store
//   - ErrUnavailable: a collaborator or backend is temporarily unavailable
//   - ErrClosed: the component was closed and no longer accepts work
//   - ErrTimeout: a bounded wait elapsed
//   - ErrInvalidState: entity in the wrong state for the requested operation
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
	ErrTimeout      = errors.New("timed out")
	ErrInvalidState = errors.New("invalid state")
)
