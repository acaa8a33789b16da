package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

func TestProgramsCommandListsBuiltins(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"programs"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("programs: %v", err)
	}
	for _, program := range []string{"crest", "geometric", "orca", "terachem", "xtb"} {
		if !strings.Contains(out.String(), program) {
			t.Fatalf("missing %q in:\n%s", program, out.String())
		}
	}
}

func TestRunRequiresProgramFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--input", "/nonexistent.json"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --program")
	}
}

func TestRunWritesFailureOutcome(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "spec.json")
	outPath := filepath.Join(dir, "out.json")

	spec := &calc.CalcSpec{
		CalcType: calc.Energy,
		Structure: calc.Structure{
			Symbols:  []string{"He"},
			Geometry: [][3]float64{{0, 0, 0}},
		},
		Model: calc.Model{Method: "hf", Basis: "sto-3g"},
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(specPath, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--program", "terachem", "--input", specPath, "--output", outPath})

	// TeraChem is not installed in the test environment, so the run fails
	// but still writes a provenance-complete outcome.
	if err := cmd.Execute(); err == nil {
		t.Skip("terachem is installed; failure path not exercised")
	}

	var out calc.ProgramOutput
	rawOut, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("outcome not written: %v", err)
	}
	if err := json.Unmarshal(rawOut, &out); err != nil {
		t.Fatalf("outcome not valid JSON: %v", err)
	}
	if out.Success {
		t.Fatal("expected failure outcome")
	}
	if out.Provenance.Program != "terachem" {
		t.Fatalf("provenance: %+v", out.Provenance)
	}
	if out.Traceback == "" {
		t.Fatal("traceback missing")
	}
}
