package ports

import (
	"context"
	"io"
	"time"
)

// Program describes one external program invocation for a harness.
type Program struct {
	// Command is the executable name or path.
	Command string

	// Args are the command line arguments.
	Args []string

	// Dir is the working directory for the program. Input files are already
	// present there and output files must be written there.
	Dir string

	// Output receives the program's merged stdout/stderr incrementally as
	// the program runs, not only at completion.
	Output io.Writer

	// Timeout is the wall-clock budget. Zero means no limit.
	Timeout time.Duration
}

// Harness launches external programs and streams their output. Non-zero exit
// codes are returned, not converted to errors: the adapter decides whether a
// given program's non-zero exit is a recoverable, parseable failure.
//
// Errors are *calc.ComputeError values: ErrProgramNotFound when the
// executable is missing, ErrSubprocess when the process could not run, and
// ErrTimeout when the budget expired (the process is terminated first and
// partial output has already been written to prog.Output).
type Harness interface {
	Run(ctx context.Context, prog Program) (exitCode int, err error)
	Close() error
}
