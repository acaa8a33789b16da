// Package subprocess implements the local execution harness: it launches an
// external program with merged stdout/stderr, streams output incrementally,
// and enforces an optional wall-clock timeout.
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/ports"
)

// waitDelay bounds how long Wait blocks on lingering pipe I/O after the
// process is killed on cancellation.
const waitDelay = 5 * time.Second

// Runner executes programs as local subprocesses.
type Runner struct{}

var _ ports.Harness = (*Runner)(nil)

// New creates a local subprocess Runner.
func New() *Runner {
	return &Runner{}
}

// Run starts the program with stdout and stderr merged into a single stream
// routed to prog.Output. Output is pumped on a helper goroutine while the
// calling goroutine blocks on the process; the pump is always joined before
// Run returns. Non-zero exit codes are returned to the caller, not treated
// as errors.
func (r *Runner) Run(ctx context.Context, prog ports.Program) (int, error) {
	runCtx := ctx
	if prog.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, prog.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, prog.Command, prog.Args...)
	cmd.Dir = prog.Dir
	cmd.WaitDelay = waitDelay

	// One pipe for both streams so interleaving matches what a terminal
	// would show.
	pr, pw, err := os.Pipe()
	if err != nil {
		return -1, calc.NewComputeError(prog.Command, calc.ErrSubprocess, fmt.Sprintf("create output pipe: %v", err), err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		if errors.Is(err, exec.ErrNotFound) {
			msg := fmt.Sprintf("Program not found: %q. To use %s please install it on your system and ensure that it is on your PATH.", prog.Command, prog.Command)
			return -1, calc.NewComputeError(prog.Command, calc.ErrProgramNotFound, msg, err)
		}
		return -1, calc.NewComputeError(prog.Command, calc.ErrSubprocess, fmt.Sprintf("start program: %v", err), err)
	}
	// The child holds its own copy of the write end; close ours so the pump
	// sees EOF when the child exits.
	pw.Close()

	var pump errgroup.Group
	pump.Go(func() error {
		defer pr.Close()
		buf := make([]byte, 4096)
		for {
			n, readErr := pr.Read(buf)
			if n > 0 {
				if _, writeErr := prog.Output.Write(buf[:n]); writeErr != nil {
					return writeErr
				}
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					return nil
				}
				return readErr
			}
		}
	})

	waitErr := cmd.Wait()
	pumpErr := pump.Wait()

	// A run cut short by the timeout (not by the caller's context) is
	// reported as a timeout; partial output has already reached prog.Output.
	if prog.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		msg := fmt.Sprintf("program exceeded %s wall-clock budget and was terminated", prog.Timeout)
		return -1, calc.NewComputeError(prog.Command, calc.ErrTimeout, msg, runCtx.Err())
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, calc.NewComputeError(prog.Command, calc.ErrSubprocess, fmt.Sprintf("wait for program: %v", waitErr), waitErr)
	}
	if pumpErr != nil {
		return -1, calc.NewComputeError(prog.Command, calc.ErrSubprocess, fmt.Sprintf("pump program output: %v", pumpErr), pumpErr)
	}

	return cmd.ProcessState.ExitCode(), nil
}

// Close implements ports.Harness. The local runner holds no resources.
func (r *Runner) Close() error {
	return nil
}

// Available reports whether the program executable can be found on the PATH.
func Available(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}
