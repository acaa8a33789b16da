package ports

import (
	"context"
	"io"
	"time"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

// Capabilities describes the static facts about one adapter: which
// calculation types it supports, whether it performs on-disk I/O, and whether
// it can collect and propagate wavefunction data between chained invocations.
type Capabilities struct {
	CalcTypes            []calc.CalcType
	UsesFiles            bool
	SupportsWavefunction bool
}

// SupportsCalcType reports whether ct is among the supported types.
func (c Capabilities) SupportsCalcType(ct calc.CalcType) bool {
	for _, supported := range c.CalcTypes {
		if supported == ct {
			return true
		}
	}
	return false
}

// RunContext is the ephemeral per-invocation state handed to an adapter. It
// is created when an invocation starts and discarded when it ends.
type RunContext struct {
	// Dir is the scratch workspace, or empty for disk-free adapters.
	Dir string

	// Output receives all program output as it is produced. It is never nil.
	Output io.Writer

	// Harness executes external programs for subprocess-driven adapters.
	Harness Harness

	// Timeout is the wall-clock budget for the invocation. Zero means no
	// limit.
	Timeout time.Duration

	// CollectWavefunction asks the adapter chain to retain wavefunction
	// files so a driver can feed them into the next step.
	CollectWavefunction bool
}

// Adapter is the per-program unit implementing validation, setup, invocation,
// and parsing for one external or in-process computational program.
type Adapter interface {
	// Program returns the program name the adapter serves.
	Program() string

	// Capabilities returns the adapter's static capability descriptor.
	Capabilities() Capabilities

	// Validate checks the spec for compatibility with the adapter. It has no
	// side effects and is idempotent.
	Validate(spec *calc.CalcSpec) error

	// Compute runs the calculation, writing program output to rc.Output.
	// Returned errors should be *calc.ComputeError values so failures stay
	// classifiable; the engine converts anything else into an adapter-input
	// failure.
	Compute(ctx context.Context, spec *calc.CalcSpec, rc *RunContext) (calc.Data, error)

	// Version extracts the program version from captured output.
	// Best-effort: implementations return calc.VersionUnknown rather than
	// fail the invocation.
	Version(logs string) string
}

// WavefunctionCollector is implemented by adapters that can gather
// wavefunction files from the scratch directory after a calculation.
type WavefunctionCollector interface {
	CollectWavefunction(dir string) (map[string][]byte, error)
}

// WavefunctionPropagator is implemented by adapters that can seed a follow-up
// spec with wavefunction data from a prior outcome.
type WavefunctionPropagator interface {
	PropagateWavefunction(prev *calc.ProgramOutput, next *calc.CalcSpec) error
}

// Resolver looks up the adapter for a program name. It exists so multi-stage
// driver adapters can invoke nested single-point adapters without depending
// on the registry implementation.
type Resolver func(program string) (Adapter, error)
