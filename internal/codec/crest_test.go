package codec

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

func crestSpec() *calc.CalcSpec {
	s := *water()
	s.Charge = -1
	s.Multiplicity = 2
	return &calc.CalcSpec{
		CalcType:  calc.ConformerSearch,
		Structure: s,
		Model:     calc.Model{Method: "gfn2"},
		Keywords:  map[string]any{"threads": 4, "runtype": "imtd-gc"},
	}
}

func TestEncodeCREST(t *testing.T) {
	t.Parallel()

	input, geometry, err := EncodeCREST(crestSpec())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, want := range []string{
		"input = \"struct.xyz\"\n",
		"runtype = \"imtd-gc\"\n",
		"threads = 4\n",
		"[calculation]",
		"[[calculation.level]]",
		"method = \"gfn2\"\n",
		"charge = -1\n",
		"uhf = 1\n",
	} {
		if !strings.Contains(input, want) {
			t.Errorf("input missing %q:\n%s", want, input)
		}
	}
	if !strings.HasPrefix(geometry, "3\n") {
		t.Fatalf("geometry not xyz: %q", geometry)
	}
}

func TestEncodeCRESTRejectsOtherCalcTypes(t *testing.T) {
	t.Parallel()

	spec := crestSpec()
	spec.CalcType = calc.Energy
	if _, _, err := EncodeCREST(spec); err == nil {
		t.Fatal("expected error for non conformer_search calctype")
	}
}

func TestParseCRESTDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	conformers := EncodeXYZ(water(), "-14.92310000") + EncodeXYZ(water(), "-14.92100000")
	if err := os.WriteFile(filepath.Join(dir, CRESTConformersFile), []byte(conformers), 0o644); err != nil {
		t.Fatal(err)
	}
	rotamers := EncodeXYZ(water(), "-14.92310000")
	if err := os.WriteFile(filepath.Join(dir, CRESTRotamersFile), []byte(rotamers), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := ParseCRESTDir(dir, -1, 2, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(data.Conformers) != 2 {
		t.Fatalf("conformers: got %d", len(data.Conformers))
	}
	if data.ConformerEnergies[0] != -14.9231 || data.ConformerEnergies[1] != -14.921 {
		t.Fatalf("energies: %v", data.ConformerEnergies)
	}
	if data.Conformers[0].Charge != -1 || data.Conformers[0].Multiplicity != 2 {
		t.Fatalf("charge/multiplicity not stamped: %+v", data.Conformers[0])
	}
	if len(data.Rotamers) != 1 {
		t.Fatalf("rotamers: got %d", len(data.Rotamers))
	}
}

func TestParseCRESTDirMissingRotamersIsFine(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	conformers := EncodeXYZ(water(), "-14.92310000")
	if err := os.WriteFile(filepath.Join(dir, CRESTConformersFile), []byte(conformers), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := ParseCRESTDir(dir, 0, 1, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.Rotamers != nil {
		t.Fatalf("expected no rotamers, got %d", len(data.Rotamers))
	}
}

func TestParseCRESTDirMissingConformersFails(t *testing.T) {
	t.Parallel()

	if _, err := ParseCRESTDir(t.TempDir(), 0, 1, false); err == nil {
		t.Fatal("expected error for missing conformer file")
	}
}

func TestParseCRESTVersion(t *testing.T) {
	t.Parallel()

	v, err := ParseCRESTVersion("      Version 3.0.1, Mon 10. Jun 2024")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != "3.0.1" {
		t.Fatalf("got %q", v)
	}
	if _, err := ParseCRESTVersion("no banner"); err == nil {
		t.Fatal("expected error")
	}
}
