package domain

import "errors"

var (
	// ErrSplitNotFound is returned when no split contract family recognizes the address
	ErrSplitNotFound = errors.New("split not found")

	// ErrAmbiguousProtocol is returned when both the v1 and v2 families recognize the address
	ErrAmbiguousProtocol = errors.New("found both v1 and v2 split")

	// ErrUnsupportedLookup is returned for v1 splits on the primary network
	ErrUnsupportedLookup = errors.New("v1 split lookup not supported via provider")

	// ErrUnknownVersion is returned when a v2 split reports an unrecognized version
	ErrUnknownVersion = errors.New("unknown split version")

	// ErrLookupFailed is returned when the node kept failing after retries
	ErrLookupFailed = errors.New("split lookup failed")

	// ErrMissingLogs is returned when a split is built without any event log
	ErrMissingLogs = errors.New("no creation or update log to build split from")

	// ErrUnsupportedChain is returned for chains without a configured address table
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrInvalidAllocation is returned when recipient units do not add up to the declared total
	ErrInvalidAllocation = errors.New("invalid split allocation")

	// ErrInvalidAddress is returned for malformed split addresses
	ErrInvalidAddress = errors.New("invalid address")
)
