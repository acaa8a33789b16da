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

// CREST runs the CREST conformer search program as a subprocess.
type CREST struct{}

// NewCREST returns the CREST adapter.
func NewCREST() *CREST { return &CREST{} }

func (*CREST) Program() string { return "crest" }

func (*CREST) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		CalcTypes: []calc.CalcType{calc.ConformerSearch},
		UsesFiles: true,
	}
}

func (*CREST) Validate(spec *calc.CalcSpec) error {
	return nil
}

func (a *CREST) Compute(ctx context.Context, spec *calc.CalcSpec, rc *ports.RunContext) (calc.Data, error) {
	input, geometry, err := codec.EncodeCREST(spec)
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrAdapterInput, err.Error(), err)
	}
	if err := writeInputs(rc.Dir, map[string]string{
		codec.CRESTInputFile:    input,
		codec.CRESTGeometryFile: geometry,
	}); err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrSubprocess, err.Error(), err)
	}

	var buf strings.Builder
	code, err := rc.Harness.Run(ctx, ports.Program{
		Command: a.Program(),
		Args:    []string{"--input", codec.CRESTInputFile},
		Dir:     rc.Dir,
		Output:  io.MultiWriter(rc.Output, &buf),
		Timeout: rc.Timeout,
	})
	if err != nil {
		return calc.Data{}, err
	}
	if code != 0 {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram,
			fmt.Sprintf("crest exited with code %d", code), nil)
	}

	collectRotamers, _ := spec.Extras["collect_rotamers"].(bool)
	data, err := codec.ParseCRESTDir(rc.Dir, spec.Structure.Charge,
		spec.Structure.EffectiveMultiplicity(), collectRotamers)
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram, err.Error(), err)
	}
	return calc.Data{ConformerSearch: data}, nil
}

func (*CREST) Version(logs string) string {
	if v, err := codec.ParseCRESTVersion(logs); err == nil {
		return v
	}
	return calc.VersionUnknown
}
