package codec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

func orcaSpec(ct calc.CalcType) *calc.CalcSpec {
	return &calc.CalcSpec{
		CalcType:  ct,
		Structure: *water(),
		Model:     calc.Model{Method: "b3lyp", Basis: "def2-svp"},
		Keywords:  map[string]any{"TightSCF": true, "maxcore": 3000},
	}
}

func TestEncodeOrca(t *testing.T) {
	t.Parallel()

	input, geometry, err := EncodeOrca(orcaSpec(calc.Gradient))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(input, "\n")
	if lines[0] != "! b3lyp def2-svp EnGrad TightSCF" {
		t.Fatalf("bang line: %q", lines[0])
	}
	for _, want := range []string{
		"%maxcore 3000 end\n",
		"* xyzfile 0 1 geometry.xyz\n",
	} {
		if !strings.Contains(input, want) {
			t.Errorf("input missing %q:\n%s", want, input)
		}
	}
	if !strings.HasPrefix(geometry, "3\n") {
		t.Fatalf("geometry: %q", geometry)
	}
}

func TestEncodeOrcaRejectsUnsupported(t *testing.T) {
	t.Parallel()

	if _, _, err := EncodeOrca(orcaSpec(calc.ConformerSearch)); err == nil {
		t.Fatal("expected error for conformer_search")
	}
	spec := orcaSpec(calc.Energy)
	spec.Model.Basis = ""
	if _, _, err := EncodeOrca(spec); err == nil {
		t.Fatal("expected error for missing basis")
	}
}

const orcaLog = `
                                 * O   R   C   A *

                         Program Version 5.0.4  -   RELEASE  -

-------------------------   --------------------
FINAL SINGLE POINT ENERGY      -76.323568298695
-------------------------   --------------------
`

const orcaEngradFile = `#
# Number of atoms
#
 3
#
# The current total energy in Eh
#
    -76.323568298695
#
# The current gradient in Eh/bohr
#
      -0.000017880
       0.000000000
       0.000011226
       0.000013341
       0.000000000
       0.000002499
       0.000004539
       0.000000000
      -0.000013725
#
# The atomic numbers and current coordinates in Bohr
#
   8    0.0000000    0.0000000    0.0000000
   1    0.5240000    1.6870000    0.4800000
   1    1.1460000   -0.4500000   -1.3540000
`

const orcaHessFile = `$orca_hessian_file

$act_atom
0

$hessian
3
                  0          1          2
    0       0.100000   0.000000   0.000000
    1       0.000000   0.200000   0.000000
    2       0.000000   0.000000   0.300000

$end
`

func TestParseOrcaEnergy(t *testing.T) {
	t.Parallel()

	sp, err := ParseOrca(orcaLog, t.TempDir(), calc.Energy, 3)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sp.Energy != -76.323568298695 {
		t.Fatalf("energy: %v", sp.Energy)
	}
	if sp.Gradient != nil || sp.Hessian != nil {
		t.Fatalf("energy run should carry no gradient or hessian: %+v", sp)
	}
}

func TestParseOrcaGradient(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, OrcaGradientFile), []byte(orcaEngradFile), 0o644); err != nil {
		t.Fatal(err)
	}

	sp, err := ParseOrca(orcaLog, dir, calc.Gradient, 3)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sp.Gradient) != 3 {
		t.Fatalf("gradient rows: %d", len(sp.Gradient))
	}
	if sp.Gradient[0][0] != -0.000017880 || sp.Gradient[2][2] != -0.000013725 {
		t.Fatalf("gradient values: %+v", sp.Gradient)
	}
}

func TestParseOrcaGradientMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := ParseOrca(orcaLog, t.TempDir(), calc.Gradient, 3); err == nil {
		t.Fatal("expected error for missing engrad file")
	}
}

func TestParseOrcaHessian(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, OrcaHessianFile), []byte(orcaHessFile), 0o644); err != nil {
		t.Fatal(err)
	}

	sp, err := ParseOrca(orcaLog, dir, calc.Hessian, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(sp.Hessian) != 3 || len(sp.Hessian[0]) != 3 {
		t.Fatalf("hessian shape: %dx%d", len(sp.Hessian), len(sp.Hessian[0]))
	}
	if sp.Hessian[0][0] != 0.1 || sp.Hessian[1][1] != 0.2 || sp.Hessian[2][2] != 0.3 {
		t.Fatalf("hessian diagonal: %+v", sp.Hessian)
	}
}

func TestParseOrcaFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"error termination": orcaLog + "\nORCA finished by error termination in SCF\n",
		"no energy":         "Program Version 5.0.4\nSCF NOT CONVERGED\n",
	}
	for name, logs := range cases {
		if _, err := ParseOrca(logs, t.TempDir(), calc.Energy, 3); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestParseOrcaVersion(t *testing.T) {
	t.Parallel()

	v, err := ParseOrcaVersion(orcaLog)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != "5.0.4" {
		t.Fatalf("version: %q", v)
	}
	if _, err := ParseOrcaVersion("no banner here"); err == nil {
		t.Fatal("expected error without version banner")
	}
}
