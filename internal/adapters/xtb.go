package adapters

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/coltonbh/qcop/internal/codec"
	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/ports"
)

// XTB runs the xtb semiempirical package as a subprocess.
type XTB struct{}

// NewXTB returns the xtb adapter.
func NewXTB() *XTB { return &XTB{} }

func (*XTB) Program() string { return "xtb" }

func (*XTB) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		CalcTypes: []calc.CalcType{calc.Energy, calc.Gradient},
		UsesFiles: true,
	}
}

func (*XTB) Validate(spec *calc.CalcSpec) error {
	if _, err := codec.XTBMethodFlags(spec.Model.Method); err != nil {
		return err
	}
	if spec.Model.Basis != "" {
		return fmt.Errorf("xtb does not accept a basis set; the GFN method implies it")
	}
	return nil
}

func (a *XTB) Compute(ctx context.Context, spec *calc.CalcSpec, rc *ports.RunContext) (calc.Data, error) {
	flags, err := codec.XTBMethodFlags(spec.Model.Method)
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrAdapterInput, err.Error(), err)
	}
	if err := writeInputs(rc.Dir, map[string]string{
		codec.XTBGeometryFile: codec.EncodeXYZ(&spec.Structure, "qcop generated geometry"),
	}); err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrSubprocess, err.Error(), err)
	}

	args := append([]string{codec.XTBGeometryFile}, flags...)
	args = append(args,
		"--chrg", strconv.Itoa(spec.Structure.Charge),
		"--uhf", strconv.Itoa(spec.Structure.EffectiveMultiplicity()-1),
	)
	if spec.CalcType == calc.Gradient {
		args = append(args, "--grad")
	}
	args = append(args, keywordFlags(spec.Keywords)...)

	var buf strings.Builder
	code, err := rc.Harness.Run(ctx, ports.Program{
		Command: a.Program(),
		Args:    args,
		Dir:     rc.Dir,
		Output:  io.MultiWriter(rc.Output, &buf),
		Timeout: rc.Timeout,
	})
	if err != nil {
		return calc.Data{}, err
	}
	if code != 0 {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram,
			fmt.Sprintf("xtb exited with code %d", code), nil)
	}

	sp, err := codec.ParseXTB(buf.String(), rc.Dir, spec.CalcType, len(spec.Structure.Symbols))
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram, err.Error(), err)
	}
	return calc.Data{SinglePoint: sp}, nil
}

func (*XTB) Version(logs string) string {
	if v, err := codec.ParseXTBVersion(logs); err == nil {
		return v
	}
	return calc.VersionUnknown
}

// keywordFlags renders free-form keywords as xtb command line flags in
// deterministic order. A true boolean becomes a bare flag; other values are
// passed as flag plus argument.
func keywordFlags(keywords map[string]any) []string {
	keys := make([]string, 0, len(keywords))
	for k := range keywords {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var flags []string
	for _, k := range keys {
		switch v := keywords[k].(type) {
		case bool:
			if v {
				flags = append(flags, "--"+k)
			}
		default:
			flags = append(flags, "--"+k, fmt.Sprintf("%v", v))
		}
	}
	return flags
}
