// Package adapters implements the per-program adapters and the shared
// execution pipeline that drives them: validation, workspace setup, program
// invocation, result collection, and outcome assembly.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coltonbh/qcop/internal/capture"
	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/infra/scratch"
	"github.com/coltonbh/qcop/internal/ports"
)

// WavefunctionPrefix namespaces collected wavefunction files inside
// ProgramOutput.Files so drivers can find them for propagation.
const WavefunctionPrefix = "wavefunction/"

// ExecOptions configures one trip through the execution pipeline.
type ExecOptions struct {
	// Harness runs external programs. Required for subprocess adapters.
	Harness ports.Harness

	// ScratchBase overrides the parent directory for scratch workspaces.
	// Empty means the system temporary directory.
	ScratchBase string

	// KeepScratchDir leaves the workspace on disk after the invocation.
	KeepScratchDir bool

	// CollectFiles copies every file the program produced into the outcome.
	CollectFiles bool

	// CollectWavefunction retains wavefunction files in the outcome under
	// WavefunctionPrefix keys.
	CollectWavefunction bool

	// Propagate seeds the spec with wavefunction data from a prior outcome
	// before the calculation starts.
	Propagate *calc.ProgramOutput

	// Update observes captured output incrementally, line by line.
	Update capture.UpdateFunc

	// Mirror additionally receives output as it is captured, typically a
	// terminal.
	Mirror io.Writer

	// Timeout bounds the invocation wall-clock time. Zero means no limit.
	Timeout time.Duration
}

// run carries the state threaded through one pipeline trip so every exit
// path, success or failure, assembles the same provenance-complete outcome.
type run struct {
	program    string
	spec       *calc.CalcSpec
	fspec      *calc.FileSpec
	version    func(logs string) string
	ch         *capture.Channel
	started    time.Time
	jobID      string
	scratchDir string
}

func newRun(program string, version func(string) string, opts ExecOptions) *run {
	return &run{
		program: program,
		version: version,
		ch:      capture.New(opts.Update, opts.Mirror),
		started: time.Now(),
		jobID:   uuid.NewString(),
	}
}

func (r *run) output(success bool, data calc.Data, files map[string][]byte, tb string) *calc.ProgramOutput {
	r.ch.Flush()
	logs := r.ch.String()
	hostname, _ := os.Hostname()
	return &calc.ProgramOutput{
		Spec:      r.spec,
		FileSpec:  r.fspec,
		Success:   success,
		Data:      data,
		Files:     files,
		Logs:      logs,
		Traceback: tb,
		Provenance: calc.Provenance{
			Program:    r.program,
			Version:    r.version(logs),
			JobID:      r.jobID,
			ScratchDir: r.scratchDir,
			WallTime:   time.Since(r.started),
			Hostname:   hostname,
			HostCPUs:   runtime.NumCPU(),
		},
	}
}

// fail finalizes a failed trip: the ComputeError gets the captured logs and
// the fully assembled outcome attached, and both are returned together.
func (r *run) fail(data calc.Data, cerr *calc.ComputeError) (*calc.ProgramOutput, error) {
	out := r.output(false, data, nil, traceback(cerr))
	cerr.Logs = out.Logs
	cerr.Output = out
	return out, cerr
}

// Execute runs one structured calculation against an adapter. The returned
// ProgramOutput is always fully constructed, also on failure; a non-nil error
// is a *calc.ComputeError carrying that same outcome.
func Execute(ctx context.Context, adapter ports.Adapter, spec *calc.CalcSpec, opts ExecOptions) (*calc.ProgramOutput, error) {
	program := adapter.Program()
	caps := adapter.Capabilities()
	r := newRun(program, adapter.Version, opts)
	r.spec = spec

	// Capability and validity checks come before any filesystem work so
	// unsupported requests never leave a workspace behind.
	if opts.Propagate != nil {
		prop, ok := adapter.(ports.WavefunctionPropagator)
		if !ok || !caps.SupportsWavefunction {
			return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrAdapterInput,
				fmt.Sprintf("%s cannot accept propagated wavefunction data", program), nil))
		}
		if err := prop.PropagateWavefunction(opts.Propagate, spec); err != nil {
			return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrAdapterInput, err.Error(), err))
		}
	}
	if opts.CollectWavefunction && !caps.SupportsWavefunction {
		return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrAdapterInput,
			fmt.Sprintf("%s cannot collect wavefunction data", program), nil))
	}
	if len(spec.Files) > 0 && !caps.UsesFiles {
		return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrAdapterInput,
			fmt.Sprintf("%s does not accept input files", program), nil))
	}
	if !caps.SupportsCalcType(spec.CalcType) {
		return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrAdapterInput,
			fmt.Sprintf("%s does not support calctype %q; supported types: %s",
				program, spec.CalcType, joinCalcTypes(caps.CalcTypes)), nil))
	}
	if err := spec.Validate(); err != nil {
		return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrAdapterInput, err.Error(), err))
	}
	if err := adapter.Validate(spec); err != nil {
		return r.fail(calc.Data{}, calc.AsComputeError(program, err))
	}
	if caps.UsesFiles && opts.Harness == nil {
		return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrAdapterInput,
			fmt.Sprintf("no harness configured to run %s", program), nil))
	}

	ws, err := scratch.Enter(opts.ScratchBase, caps.UsesFiles, !opts.KeepScratchDir)
	if err != nil {
		return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrSubprocess, err.Error(), err))
	}
	defer ws.Close()
	r.scratchDir = ws.Path()

	if caps.UsesFiles && len(spec.Files) > 0 {
		if err := ws.WriteFiles(spec.Files); err != nil {
			return r.fail(calc.Data{}, calc.NewComputeError(program, calc.ErrSubprocess, err.Error(), err))
		}
	}

	rc := &ports.RunContext{
		Dir:                 ws.Path(),
		Output:              r.ch,
		Harness:             opts.Harness,
		Timeout:             opts.Timeout,
		CollectWavefunction: opts.CollectWavefunction,
	}

	data, err := adapter.Compute(ctx, spec, rc)
	if err != nil {
		// Partial data stays attached so salvageable results survive the
		// failure.
		return r.fail(data, calc.AsComputeError(program, err))
	}

	var files map[string][]byte
	if opts.CollectWavefunction {
		collector, ok := adapter.(ports.WavefunctionCollector)
		if !ok {
			return r.fail(data, calc.NewComputeError(program, calc.ErrAdapterInput,
				fmt.Sprintf("%s cannot collect wavefunction data", program), nil))
		}
		wfn, err := collector.CollectWavefunction(ws.Path())
		if err != nil {
			return r.fail(data, calc.NewComputeError(program, calc.ErrExternalProgram,
				"collect wavefunction: "+err.Error(), err))
		}
		files = make(map[string][]byte, len(wfn))
		for name, contents := range wfn {
			files[WavefunctionPrefix+name] = contents
		}
	}
	if opts.CollectFiles {
		collected, err := ws.CollectFiles(inputNames(spec.Files))
		if err != nil {
			return r.fail(data, calc.NewComputeError(program, calc.ErrExternalProgram,
				"collect output files: "+err.Error(), err))
		}
		if files == nil {
			files = collected
		} else {
			for name, contents := range collected {
				files[name] = contents
			}
		}
	}

	return r.output(true, data, files, ""), nil
}

// ExecuteFile runs the file-based escape hatch: an explicit command with
// caller-supplied input files and no structured parsing. All files the
// command produced are collected into the outcome.
func ExecuteFile(ctx context.Context, fspec *calc.FileSpec, opts ExecOptions) (*calc.ProgramOutput, error) {
	r := newRun(fspec.Command, func(string) string { return calc.VersionUnknown }, opts)
	r.fspec = fspec

	if err := fspec.Validate(); err != nil {
		return r.fail(calc.Data{}, calc.NewComputeError(fspec.Command, calc.ErrAdapterInput, err.Error(), err))
	}
	if opts.Harness == nil {
		return r.fail(calc.Data{}, calc.NewComputeError(fspec.Command, calc.ErrAdapterInput,
			"no harness configured for file-based execution", nil))
	}

	ws, err := scratch.Enter(opts.ScratchBase, true, !opts.KeepScratchDir)
	if err != nil {
		return r.fail(calc.Data{}, calc.NewComputeError(fspec.Command, calc.ErrSubprocess, err.Error(), err))
	}
	defer ws.Close()
	r.scratchDir = ws.Path()

	if err := ws.WriteFiles(fspec.Files); err != nil {
		return r.fail(calc.Data{}, calc.NewComputeError(fspec.Command, calc.ErrSubprocess, err.Error(), err))
	}

	code, err := opts.Harness.Run(ctx, ports.Program{
		Command: fspec.Command,
		Args:    fspec.Args,
		Dir:     ws.Path(),
		Output:  r.ch,
		Timeout: opts.Timeout,
	})
	if err != nil {
		return r.fail(calc.Data{}, calc.AsComputeError(fspec.Command, err))
	}
	if code != 0 {
		return r.fail(calc.Data{}, calc.NewComputeError(fspec.Command, calc.ErrExternalProgram,
			fmt.Sprintf("%s exited with code %d", fspec.Command, code), nil))
	}

	files, err := ws.CollectFiles(inputNames(fspec.Files))
	if err != nil {
		return r.fail(calc.Data{}, calc.NewComputeError(fspec.Command, calc.ErrExternalProgram,
			"collect output files: "+err.Error(), err))
	}

	return r.output(true, calc.Data{}, files, ""), nil
}

// traceback renders the failure chain, outermost first.
func traceback(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		if b.Len() > 0 {
			b.WriteString("\ncaused by: ")
		}
		b.WriteString(e.Error())
	}
	return b.String()
}

func joinCalcTypes(types []calc.CalcType) string {
	names := make([]string, len(types))
	for i, ct := range types {
		names[i] = string(ct)
	}
	return strings.Join(names, ", ")
}

func inputNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	return names
}

// writeInputs writes adapter-generated input files into the workspace.
func writeInputs(dir string, files map[string]string) error {
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
