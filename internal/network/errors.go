package network

import "errors"

// Recoverable errors returned to callers.
var (
	// ErrDuplicateConnection is returned when an edge between the pair already exists.
	ErrDuplicateConnection = errors.New("duplicate connection")

	// ErrSizeMismatch is returned by one-to-one group operations on groups of different length.
	ErrSizeMismatch = errors.New("group size mismatch")

	// ErrInvalidGateTarget is returned when a connection cannot be gated as requested.
	ErrInvalidGateTarget = errors.New("invalid gate target")

	// ErrInputSizeMismatch is returned when Activate receives the wrong number of inputs.
	ErrInputSizeMismatch = errors.New("input size mismatch")

	// ErrTargetSizeMismatch is returned when Propagate receives the wrong number of targets.
	ErrTargetSizeMismatch = errors.New("target size mismatch")

	// ErrNoEligibleMutationTarget reports that an explicit edit had nothing to act on.
	// Mutate treats this condition as a no-op and never returns it.
	ErrNoEligibleMutationTarget = errors.New("no eligible mutation target")

	ErrUnknownNode       = errors.New("unknown node")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrUnknownMutation   = errors.New("unknown mutation")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")

	// ErrProtectedNode is returned when an edit reserved for hidden nodes
	// targets an input or output node.
	ErrProtectedNode = errors.New("protected node")

	// ErrNotActivated is returned by Propagate when no traced activation
	// precedes it since construction, Clear, or the last structural edit.
	ErrNotActivated = errors.New("propagate called before activate")
)

// ErrDanglingReference marks a broken cross-reference inside the graph.
// Validate wraps it; internal accessors panic with it. It is never caused by
// user input.
var ErrDanglingReference = errors.New("dangling reference")
