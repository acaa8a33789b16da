// Package compute wires the adapter registry and a harness into the
// top-level calculation service.
package compute

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/coltonbh/qcop/internal/adapters"
	"github.com/coltonbh/qcop/internal/capture"
	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/infra/docker"
	"github.com/coltonbh/qcop/internal/infra/subprocess"
	"github.com/coltonbh/qcop/internal/ports"
)

// Config selects how the service executes programs.
type Config struct {
	// ScratchBase is the parent directory for scratch workspaces. Empty
	// means the system temporary directory.
	ScratchBase string

	// Docker, when set, runs programs in containers instead of local
	// subprocesses.
	Docker *docker.Config

	// DefaultTimeout applies when an invocation does not set its own. Zero
	// means no limit.
	DefaultTimeout time.Duration
}

// Options tunes one calculation.
type Options struct {
	// KeepScratchDir leaves the workspace on disk afterwards.
	KeepScratchDir bool

	// CollectFiles copies every produced file into the outcome.
	CollectFiles bool

	// CollectWavefunction retains wavefunction files in the outcome.
	CollectWavefunction bool

	// Propagate seeds the calculation with a prior outcome's wavefunction.
	Propagate *calc.ProgramOutput

	// Update observes captured output line by line as the program runs.
	Update capture.UpdateFunc

	// Mirror additionally receives output as it is captured.
	Mirror io.Writer

	// Timeout overrides the service default. Zero keeps the default.
	Timeout time.Duration

	// FallbackPrograms are tried in order when the requested program has no
	// adapter or its executable is not installed.
	FallbackPrograms []string

	// Fallback is consulted when the registry has no adapter for a program.
	// It lets callers plug in a generic engine without registering it.
	Fallback ports.Adapter
}

// Service runs structured calculations against registered program adapters.
type Service struct {
	cfg      Config
	registry *adapters.Registry
	harness  ports.Harness
	local    bool
}

// New builds a service with the built-in adapters: terachem, orca, xtb,
// crest, and the geometric driver.
func New(cfg Config) (*Service, error) {
	var harness ports.Harness
	local := true
	if cfg.Docker != nil {
		h, err := docker.New(*cfg.Docker)
		if err != nil {
			return nil, err
		}
		harness = h
		local = false
	} else {
		harness = subprocess.New()
	}

	registry, err := adapters.NewRegistry(
		adapters.NewTeraChem(),
		adapters.NewOrca(),
		adapters.NewXTB(),
		adapters.NewCREST(),
	)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(adapters.NewGeometric(registry.Resolver())); err != nil {
		return nil, err
	}

	return newService(cfg, registry, harness, local), nil
}

func newService(cfg Config, registry *adapters.Registry, harness ports.Harness, local bool) *Service {
	return &Service{cfg: cfg, registry: registry, harness: harness, local: local}
}

// Close releases the harness resources.
func (s *Service) Close() error {
	return s.harness.Close()
}

// Compute runs one structured calculation with the named program. When
// fallbacks are configured, programs that are unregistered or not installed
// are skipped in favor of the next candidate; other failures surface
// immediately.
func (s *Service) Compute(ctx context.Context, program string, spec *calc.CalcSpec, opts Options) (*calc.ProgramOutput, error) {
	candidates := append([]string{program}, opts.FallbackPrograms...)

	var out *calc.ProgramOutput
	var err error
	for i, candidate := range candidates {
		out, err = s.computeOne(ctx, candidate, spec, opts)
		if err == nil {
			return out, nil
		}
		last := i == len(candidates)-1
		if last || !fallbackWorthy(err) {
			return out, err
		}
	}
	return out, err
}

func (s *Service) computeOne(ctx context.Context, program string, spec *calc.CalcSpec, opts Options) (*calc.ProgramOutput, error) {
	adapter, err := s.registry.Lookup(program)
	if err != nil {
		if opts.Fallback == nil {
			return lookupFailure(program, spec, calc.AsComputeError(program, err))
		}
		adapter = opts.Fallback
	}
	return adapters.Execute(ctx, adapter, spec, s.execOptions(opts))
}

// lookupFailure assembles the outcome for a calculation that never reached an
// adapter. The same object is attached to the error so both reporting
// channels carry it.
func lookupFailure(program string, spec *calc.CalcSpec, cerr *calc.ComputeError) (*calc.ProgramOutput, error) {
	hostname, _ := os.Hostname()
	out := &calc.ProgramOutput{
		Spec:      spec,
		Traceback: cerr.Error(),
		Provenance: calc.Provenance{
			Program:  program,
			Version:  calc.VersionUnknown,
			Hostname: hostname,
		},
	}
	cerr.Output = out
	return out, cerr
}

// ComputeArgs assembles a spec from its parts and runs it. Convenience
// wrapper for callers that do not build a CalcSpec themselves.
func (s *Service) ComputeArgs(ctx context.Context, program string, structure calc.Structure,
	calctype calc.CalcType, model calc.Model, keywords map[string]any, opts Options) (*calc.ProgramOutput, error) {
	spec := &calc.CalcSpec{
		CalcType:  calctype,
		Structure: structure,
		Model:     model,
		Keywords:  keywords,
	}
	return s.Compute(ctx, program, spec, opts)
}

// ComputeFile runs the file-based escape hatch: an explicit command with raw
// input files and no structured parsing.
func (s *Service) ComputeFile(ctx context.Context, fspec *calc.FileSpec, opts Options) (*calc.ProgramOutput, error) {
	return adapters.ExecuteFile(ctx, fspec, s.execOptions(opts))
}

func (s *Service) execOptions(opts Options) adapters.ExecOptions {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.cfg.DefaultTimeout
	}
	return adapters.ExecOptions{
		Harness:             s.harness,
		ScratchBase:         s.cfg.ScratchBase,
		KeepScratchDir:      opts.KeepScratchDir,
		CollectFiles:        opts.CollectFiles,
		CollectWavefunction: opts.CollectWavefunction,
		Propagate:           opts.Propagate,
		Update:              opts.Update,
		Mirror:              opts.Mirror,
		Timeout:             timeout,
	}
}

// Programs returns the registered program names, sorted.
func (s *Service) Programs() []string {
	return s.registry.Programs()
}

// Available reports whether a program can actually run: it must have an
// adapter, and for subprocess execution its executable must be installed.
// Container images are assumed to carry their program.
func (s *Service) Available(program string) bool {
	adapter, err := s.registry.Lookup(program)
	if err != nil {
		return false
	}
	if !adapter.Capabilities().UsesFiles || !s.local {
		return true
	}
	return subprocess.Available(program)
}

// AvailablePrograms returns the registered programs that can run right now.
func (s *Service) AvailablePrograms() []string {
	var available []string
	for _, program := range s.Programs() {
		if s.Available(program) {
			available = append(available, program)
		}
	}
	return available
}

func fallbackWorthy(err error) bool {
	return errors.Is(err, calc.ErrAdapterNotFound) || errors.Is(err, calc.ErrProgramNotFound)
}

// Validate checks a spec against a program's adapter without running
// anything.
func (s *Service) Validate(program string, spec *calc.CalcSpec) error {
	adapter, err := s.registry.Lookup(program)
	if err != nil {
		return err
	}
	if !adapter.Capabilities().SupportsCalcType(spec.CalcType) {
		return calc.NewComputeError(program, calc.ErrAdapterInput,
			fmt.Sprintf("%s does not support calctype %q", program, spec.CalcType), nil)
	}
	if err := spec.Validate(); err != nil {
		return calc.NewComputeError(program, calc.ErrAdapterInput, err.Error(), err)
	}
	if err := adapter.Validate(spec); err != nil {
		return calc.AsComputeError(program, err)
	}
	return nil
}
