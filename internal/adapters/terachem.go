package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/coltonbh/qcop/internal/codec"
	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/ports"
)

// terachemScratchPrefix is the prefix TeraChem uses for its own scratch
// subdirectory, scr.<geometry stem>, where wavefunction files land.
const terachemScratchPrefix = "scr."

// TeraChem runs the TeraChem quantum chemistry package as a subprocess.
type TeraChem struct{}

// NewTeraChem returns the TeraChem adapter.
func NewTeraChem() *TeraChem { return &TeraChem{} }

func (*TeraChem) Program() string { return "terachem" }

func (*TeraChem) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		CalcTypes:            []calc.CalcType{calc.Energy, calc.Gradient, calc.Hessian},
		UsesFiles:            true,
		SupportsWavefunction: true,
	}
}

func (*TeraChem) Validate(spec *calc.CalcSpec) error {
	if spec.Model.Basis == "" {
		return fmt.Errorf("terachem requires a basis set")
	}
	return nil
}

func (a *TeraChem) Compute(ctx context.Context, spec *calc.CalcSpec, rc *ports.RunContext) (calc.Data, error) {
	input, geometry, err := codec.EncodeTeraChem(spec)
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrAdapterInput, err.Error(), err)
	}
	if err := writeInputs(rc.Dir, map[string]string{
		codec.TeraChemInputFile:    input,
		codec.TeraChemGeometryFile: geometry,
	}); err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrSubprocess, err.Error(), err)
	}

	var buf strings.Builder
	code, err := rc.Harness.Run(ctx, ports.Program{
		Command: a.Program(),
		Args:    []string{codec.TeraChemInputFile},
		Dir:     rc.Dir,
		Output:  io.MultiWriter(rc.Output, &buf),
		Timeout: rc.Timeout,
	})
	if err != nil {
		return calc.Data{}, err
	}
	if code != 0 {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram,
			fmt.Sprintf("terachem exited with code %d", code), nil)
	}

	sp, err := codec.ParseTeraChem(buf.String(), spec.CalcType, len(spec.Structure.Symbols))
	if err != nil {
		return calc.Data{}, calc.NewComputeError(a.Program(), calc.ErrExternalProgram, err.Error(), err)
	}
	return calc.Data{SinglePoint: sp}, nil
}

func (*TeraChem) Version(logs string) string {
	if v, err := codec.ParseTeraChemVersion(logs); err == nil {
		return v
	}
	return calc.VersionUnknown
}

// CollectWavefunction gathers the molecular orbital files TeraChem left in
// its scratch subdirectory: c0 for restricted runs, ca0 and cb0 for
// unrestricted ones.
func (*TeraChem) CollectWavefunction(dir string) (map[string][]byte, error) {
	stem := strings.TrimSuffix(codec.TeraChemGeometryFile, filepath.Ext(codec.TeraChemGeometryFile))
	scr := filepath.Join(dir, terachemScratchPrefix+stem)

	files := make(map[string][]byte)
	for _, name := range []string{"c0", "ca0", "cb0"} {
		contents, err := os.ReadFile(filepath.Join(scr, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read wavefunction file %s: %w", name, err)
		}
		files[name] = contents
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no wavefunction files found under %s", scr)
	}
	return files, nil
}

// PropagateWavefunction seeds next with the orbital files from prev and sets
// the guess keyword so TeraChem starts SCF from them.
func (*TeraChem) PropagateWavefunction(prev *calc.ProgramOutput, next *calc.CalcSpec) error {
	c0 := prev.Files[WavefunctionPrefix+"c0"]
	ca0 := prev.Files[WavefunctionPrefix+"ca0"]
	cb0 := prev.Files[WavefunctionPrefix+"cb0"]

	if next.Files == nil {
		next.Files = make(map[string][]byte)
	}
	if next.Keywords == nil {
		next.Keywords = make(map[string]any)
	}

	switch {
	case c0 != nil:
		next.Files["c0"] = c0
		next.Keywords["guess"] = "c0"
	case ca0 != nil && cb0 != nil:
		next.Files["ca0"] = ca0
		next.Files["cb0"] = cb0
		next.Keywords["guess"] = "ca0 cb0"
	default:
		return fmt.Errorf("prior outcome carries no wavefunction files")
	}
	return nil
}
