package adapters

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/coltonbh/qcop/internal/codec"
	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/ports"
)

// Orca runs the ORCA quantum chemistry package as a subprocess. Geometry
// optimizations against Orca go through the geometric driver, which only
// needs gradients.
type Orca struct{}

// NewOrca returns the Orca adapter.
func NewOrca() *Orca { return &Orca{} }

func (*Orca) Program() string { return "orca" }

func (*Orca) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		CalcTypes: []calc.CalcType{calc.Energy, calc.Gradient, calc.Hessian},
		UsesFiles: true,
	}
}

func (*Orca) Validate(spec *calc.CalcSpec) error {
	if spec.Model.Basis == "" {
		return fmt.Errorf("orca requires a basis set")
	}
	return nil
}

func (a *Orca) Compute(ctx context.Context, spec *calc.CalcSpec, rc *ports.RunContext) (calc.Data, error) {
	input, geometry, err := codec.EncodeOrca(spec)
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrAdapterInput, err.Error(), err)
	}
	if err := writeInputs(rc.Dir, map[string]string{
		codec.OrcaInputFile:    input,
		codec.OrcaGeometryFile: geometry,
	}); err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrSubprocess, err.Error(), err)
	}

	var buf strings.Builder
	code, err := rc.Harness.Run(ctx, ports.Program{
		Command: a.Program(),
		Args:    []string{codec.OrcaInputFile},
		Dir:     rc.Dir,
		Output:  io.MultiWriter(rc.Output, &buf),
		Timeout: rc.Timeout,
	})
	if err != nil {
		return calc.Data{}, err
	}
	if code != 0 {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram,
			fmt.Sprintf("orca exited with code %d", code), nil)
	}

	sp, err := codec.ParseOrca(buf.String(), rc.Dir, spec.CalcType, len(spec.Structure.Symbols))
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram, err.Error(), err)
	}
	return calc.Data{SinglePoint: sp}, nil
}

func (*Orca) Version(logs string) string {
	if v, err := codec.ParseOrcaVersion(logs); err == nil {
		return v
	}
	return calc.VersionUnknown
}
