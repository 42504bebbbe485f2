package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates an invalid user identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrUnknownView indicates a view type missing from the registry.
	ErrUnknownView = errors.New("unknown view type")
	// ErrIndexOutOfRange indicates a tab index outside the open tabs.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrTabNotFound indicates a requested tab key could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrCellNotFound indicates a requested grid cell could not be found.
	ErrCellNotFound = errors.New("cell not found")
	// ErrUnknownBreakpoint indicates a breakpoint name that is not configured.
	ErrUnknownBreakpoint = errors.New("unknown breakpoint")
	// ErrUnknownNavIndex indicates a sidebar index with no view.
	ErrUnknownNavIndex = errors.New("unknown navigation index")
	// ErrMalformedSnapshot indicates an arrangement blob that cannot be restored.
	ErrMalformedSnapshot = errors.New("malformed arrangement snapshot")
	// ErrInvalidDragPayload indicates a drop payload without a usable view type.
	ErrInvalidDragPayload = errors.New("invalid drag payload")
	// ErrArrangementNotFound indicates a saved arrangement could not be found.
	ErrArrangementNotFound = errors.New("arrangement not found")
	// ErrLinkNotFound indicates a rendered view has no link at the requested index.
	ErrLinkNotFound = errors.New("view link not found")
	// ErrLibraryUnavailable indicates no arrangement library is configured.
	ErrLibraryUnavailable = errors.New("arrangement library not configured")
)
