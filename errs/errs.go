// Package errs defines the sentinel error taxonomy shared by every package
// in this module. Callers should use errors.Is against these sentinels
// rather than comparing error strings; most functions return one of these
// values wrapped with additional context via fmt.Errorf("...: %w", ...).
package errs

import "errors"

var (
	// ErrInvalidArgument indicates a configuration or call-site argument is
	// out of range or otherwise invalid (e.g. a negative min_tokens).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownToken indicates a token has no assigned class during strict
	// encoding and the codec was not configured to extend itself or map to
	// the reserved unknown class.
	ErrUnknownToken = errors.New("unknown token")

	// ErrMalformedData indicates corpus or model bytes are inconsistent
	// with the documented binary format (bad continuation bits, a missing
	// sentinel, a truncated header, and so on).
	ErrMalformedData = errors.New("malformed data")

	// ErrVersionUnsupported indicates a model or corpus file declares a
	// version newer than this reader understands.
	ErrVersionUnsupported = errors.New("unsupported version")

	// ErrNotFound indicates a pattern is absent from a model, or could not
	// be matched at a requested corpus position.
	ErrNotFound = errors.New("not found")

	// ErrNotLoaded indicates an operation requires a reverse index or other
	// resource that has not been loaded.
	ErrNotLoaded = errors.New("not loaded")

	// ErrOutOfRange indicates slice or index arguments exceed pattern or
	// corpus bounds.
	ErrOutOfRange = errors.New("out of range")

	// ErrInternal indicates an invariant was violated; this is always a bug.
	ErrInternal = errors.New("internal error")
)
