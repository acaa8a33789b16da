package codec

import (
	"strings"
	"testing"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

func terachemSpec(ct calc.CalcType) *calc.CalcSpec {
	return &calc.CalcSpec{
		CalcType:  ct,
		Structure: *water(),
		Model:     calc.Model{Method: "b3lyp", Basis: "6-31g"},
		Keywords:  map[string]any{"purify": false, "maxiter": 200},
	}
}

func TestEncodeTeraChem(t *testing.T) {
	t.Parallel()

	input, geometry, err := EncodeTeraChem(terachemSpec(calc.Gradient))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, want := range []string{
		"run gradient\n",
		"coordinates geometry.xyz\n",
		"method b3lyp\n",
		"basis 6-31g\n",
		"charge 0\n",
		"spinmult 1\n",
		"maxiter 200\n",
		"purify no\n",
	} {
		if !strings.Contains(input, want) {
			t.Errorf("input missing %q:\n%s", want, input)
		}
	}
	if !strings.HasPrefix(geometry, "3\n") {
		t.Fatalf("geometry not xyz: %q", geometry)
	}
}

func TestEncodeTeraChemRejectsUnsupported(t *testing.T) {
	t.Parallel()

	if _, _, err := EncodeTeraChem(terachemSpec(calc.ConformerSearch)); err == nil {
		t.Fatal("expected error for conformer_search")
	}
	spec := terachemSpec(calc.Energy)
	spec.Model.Basis = ""
	if _, _, err := EncodeTeraChem(spec); err == nil {
		t.Fatal("expected error for missing basis")
	}
}

const terachemGradientLog = `
Startfile from command line: tc.in
TeraChem version 1.9-2021.12-dev
...
FINAL ENERGY: -76.2726979999 a.u.
Gradient units are Hartree/Bohr
---------------------------------------------------
         dE/dX            dE/dY            dE/dZ
    0.0000123456    -0.0000234567     0.0000345678
   -0.0000111111     0.0000222222    -0.0000333333
    0.0000099999    -0.0000088888     0.0000077777
---------------------------------------------------
Total processing time: 1.23 sec
`

func TestParseTeraChemEnergyAndGradient(t *testing.T) {
	t.Parallel()

	data, err := ParseTeraChem(terachemGradientLog, calc.Gradient, 3)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.Energy != -76.2726979999 {
		t.Fatalf("energy: got %v", data.Energy)
	}
	if len(data.Gradient) != 3 {
		t.Fatalf("gradient rows: got %d", len(data.Gradient))
	}
	if data.Gradient[1][1] != 0.0000222222 {
		t.Fatalf("gradient value: got %v", data.Gradient[1][1])
	}
	if data.Hessian != nil {
		t.Fatal("unexpected hessian for gradient run")
	}
}

func TestParseTeraChemFailures(t *testing.T) {
	t.Parallel()

	if _, err := ParseTeraChem("DIE called at line 123 of file foo.cpp", calc.Energy, 3); err == nil {
		t.Fatal("expected error on DIE marker")
	}
	if _, err := ParseTeraChem("nothing useful here", calc.Energy, 3); err == nil {
		t.Fatal("expected error on missing energy")
	}
	truncated := strings.Replace(terachemGradientLog, "    0.0000099999    -0.0000088888     0.0000077777\n", "", 1)
	if _, err := ParseTeraChem(truncated, calc.Gradient, 3); err == nil {
		t.Fatal("expected error on truncated gradient")
	}
}

func TestParseTeraChemHessian(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("FINAL ENERGY: -1.1000000000 a.u.\n")
	b.WriteString("         dE/dX            dE/dY            dE/dZ\n")
	b.WriteString("0.1 0.2 0.3\n\n")
	b.WriteString("Hessian matrix\n")
	// 1 atom: 3x3 values, split unevenly across lines.
	b.WriteString("1.0 2.0 3.0 4.0\n5.0 6.0\n7.0 8.0 9.0\n\n")

	data, err := ParseTeraChem(b.String(), calc.Hessian, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(data.Hessian) != 3 || len(data.Hessian[0]) != 3 {
		t.Fatalf("hessian shape: %v", data.Hessian)
	}
	if data.Hessian[2][2] != 9.0 {
		t.Fatalf("hessian[2][2]: got %v", data.Hessian[2][2])
	}
}

func TestParseTeraChemVersion(t *testing.T) {
	t.Parallel()

	v, err := ParseTeraChemVersion(terachemGradientLog)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != "1.9-2021.12-dev" {
		t.Fatalf("got %q", v)
	}
	if _, err := ParseTeraChemVersion("no banner"); err == nil {
		t.Fatal("expected error")
	}
}
