// Package mirrorerr defines the error taxonomy shared by every git-mirror
// component and the process exit code each kind maps to.
package mirrorerr

import "fmt"

// Kind discriminates the four error families the orchestrator can see at
// the top level. Per-job failures never surface this way: they are folded
// into a JobOutcome by the engine and only aggregate into a SyncError count
// once a run has finished.
type Kind int

const (
	// KindGeneric covers configuration, filesystem, locking and layout
	// conflicts.
	KindGeneric Kind = iota
	// KindGit covers git child-process failures.
	KindGit
	// KindMirror covers provider-enumeration failures.
	KindMirror
	// KindSync is the aggregate "n jobs failed" error returned by the
	// orchestrator when fail_on_sync_error is set.
	KindSync
)

// ExitCode returns the contractual process exit code for a Kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindGeneric:
		return 2
	case KindGit:
		return 3
	case KindMirror:
		return 4
	case KindSync:
		return 1
	default:
		return 2
	}
}

// GenericError is a configuration, filesystem, locking or layout failure.
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string { return e.Message }

// ExitKind implements the exitCoder interface used by ExitCodeFor.
func (e *GenericError) ExitKind() Kind { return KindGeneric }

// NewGeneric builds a GenericError with a formatted message.
func NewGeneric(format string, args ...any) *GenericError {
	return &GenericError{Message: fmt.Sprintf(format, args...)}
}

// MirrorError wraps a provider-construction or provider-enumeration
// failure, both of which are terminal for the run.
type MirrorError struct {
	Message string
	Err     error
}

func (e *MirrorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *MirrorError) Unwrap() error { return e.Err }

// ExitKind implements the exitCoder interface used by ExitCodeFor.
func (e *MirrorError) ExitKind() Kind { return KindMirror }

// NewMirror wraps err as a terminal provider-enumeration failure.
func NewMirror(message string, err error) *MirrorError {
	return &MirrorError{Message: message, Err: err}
}

// SyncError is the aggregate error returned when one or more jobs failed
// and the run was configured to fail on sync errors.
type SyncError struct {
	Count int
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%d sync task(s) failed", e.Count)
}

// ExitKind implements the exitCoder interface used by ExitCodeFor.
func (e *SyncError) ExitKind() Kind { return KindSync }

// exitCoder is implemented by every error kind that can reach the top of
// the orchestrator; ExitCodeFor type-asserts on it to pick an exit code
// without importing each concrete error type individually.
type exitCoder interface {
	error
	ExitKind() Kind
}

// ExitCodeFor inspects err and returns the process exit code it implies.
// A nil error maps to 0; any error that does not implement exitCoder maps
// to the generic configuration-error code.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitKind().ExitCode()
	}
	return KindGeneric.ExitCode()
}
