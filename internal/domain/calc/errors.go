package calc

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure classification. Every failure surfaced by the
// engine is a *ComputeError matching exactly one of these via errors.Is.
var (
	// ErrAdapterNotFound indicates no adapter is registered for the program.
	ErrAdapterNotFound = errors.New("no adapter found for program")

	// ErrAdapterInput indicates the spec was invalid for the adapter or an
	// unsupported feature was requested. The program was never started.
	ErrAdapterInput = errors.New("invalid adapter input")

	// ErrProgramNotFound indicates the program executable is not installed
	// or not on the PATH.
	ErrProgramNotFound = errors.New("program not found")

	// ErrSubprocess indicates the process could not be started or crashed at
	// the OS level, yielding no usable program output.
	ErrSubprocess = errors.New("subprocess failed")

	// ErrExternalProgram indicates the program ran but reported or implied a
	// computational failure. Partial structured data may exist.
	ErrExternalProgram = errors.New("external program failed")

	// ErrTimeout indicates the wall-clock budget was exceeded. Partial
	// captured output is attached.
	ErrTimeout = errors.New("execution timed out")
)

// ComputeError is the failure signal raised by the engine. It always carries
// the fully assembled ProgramOutput so callers using error-based control flow
// do not lose the structured outcome.
type ComputeError struct {
	// Program is the name of the program the failure concerns.
	Program string

	// Kind is one of the sentinel errors above.
	Kind error

	// Message describes the failure.
	Message string

	// Logs holds whatever output was captured before the failure, if any.
	Logs string

	// Output is the provenance-complete outcome with Success=false. It is
	// attached by the engine boundary; lower layers may leave it nil.
	Output *ProgramOutput

	// Err is the underlying cause, if any.
	Err error
}

// Error returns the failure message prefixed with the program name.
func (e *ComputeError) Error() string {
	if e.Program != "" {
		return fmt.Sprintf("%s: %s", e.Program, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *ComputeError) Unwrap() error {
	return e.Err
}

// Is matches the error's kind. A program-not-found failure also matches
// ErrSubprocess since the process never produced usable output.
func (e *ComputeError) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrProgramNotFound && target == ErrSubprocess
}

// NewComputeError builds a ComputeError wrapping err.
func NewComputeError(program string, kind error, message string, err error) *ComputeError {
	return &ComputeError{Program: program, Kind: kind, Message: message, Err: err}
}

// AsComputeError converts an arbitrary error into a *ComputeError. Errors
// that are not already ComputeErrors are classified as adapter-internal
// failures, which share the adapter-input kind since the program never ran
// usefully under them.
func AsComputeError(program string, err error) *ComputeError {
	var cerr *ComputeError
	if errors.As(err, &cerr) {
		return cerr
	}
	return NewComputeError(program, ErrAdapterInput, err.Error(), err)
}
