// Package errs implements the typed error taxonomy from spec.md §7:
// InputError, UpstreamError, and InvariantError (ConfigError lives in
// internal/config, the only place it originates). Each of the three wraps
// an underlying cause via Unwrap so callers can use errors.Is/errors.As,
// matching the %w wrapping idiom used throughout this module.
package errs

import "fmt"

// InputError reports a problem with a source file or its sidecar
// metadata: unreadable text, malformed JSON, and similar per-file
// defects that do not indict the rest of the run.
type InputError struct {
	Path string
	Msg  string
	Err  error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("input %s: %s", e.Path, e.Msg)
}

func (e *InputError) Unwrap() error { return e.Err }

// UpstreamError reports a failure talking to an external service: the
// embedding endpoint, the vector store, or the full-text index.
type UpstreamError struct {
	Service string
	Msg     string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %s: %v", e.Service, e.Msg, e.Err)
	}
	return fmt.Sprintf("upstream %s: %s", e.Service, e.Msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InvariantError reports a violation of an internal contract that
// should be unreachable given valid inputs and config (a batch/vector
// count mismatch, a negative offset, and the like). Seeing one means a
// bug, not bad input.
type InvariantError struct {
	Msg string
	Err error
}

func (e *InvariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invariant violated: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("invariant violated: %s", e.Msg)
}

func (e *InvariantError) Unwrap() error { return e.Err }
