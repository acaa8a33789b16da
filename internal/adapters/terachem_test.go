package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coltonbh/qcop/internal/codec"
	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/ports"
)

const terachemLog = `Startfile from command line: tc.in
TeraChem version 1.9-2021.12-dev
FINAL ENERGY: -76.2726979999 a.u.
         dE/dX            dE/dY            dE/dZ
    0.0000123456    -0.0000234567     0.0000345678
   -0.0000111111     0.0000222222    -0.0000333333
    0.0000099999    -0.0000088888     0.0000077777
Total processing time: 1.23 sec
`

func terachemTestSpec(ct calc.CalcType) *calc.CalcSpec {
	spec := energySpec()
	spec.CalcType = ct
	return spec
}

func TestTeraChemCompute(t *testing.T) {
	t.Parallel()

	h := &fakeHarness{output: terachemLog}
	out, err := Execute(context.Background(), NewTeraChem(), terachemTestSpec(calc.Gradient), ExecOptions{Harness: h})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Data.SinglePoint == nil || out.Data.SinglePoint.Energy != -76.2726979999 {
		t.Fatalf("data: %+v", out.Data)
	}
	if len(out.Data.SinglePoint.Gradient) != 3 {
		t.Fatalf("gradient rows: %d", len(out.Data.SinglePoint.Gradient))
	}
	if out.Provenance.Version != "1.9-2021.12-dev" {
		t.Fatalf("version: %q", out.Provenance.Version)
	}
	if h.last.Command != "terachem" || len(h.last.Args) != 1 || h.last.Args[0] != codec.TeraChemInputFile {
		t.Fatalf("invocation: %+v", h.last)
	}
	if h.last.Dir == "" {
		t.Fatal("no working directory passed to harness")
	}
}

func TestTeraChemWritesInputDeck(t *testing.T) {
	t.Parallel()

	var deck, geometry []byte
	h := &fakeHarness{run: func(prog ports.Program) (int, error) {
		deck, _ = os.ReadFile(filepath.Join(prog.Dir, codec.TeraChemInputFile))
		geometry, _ = os.ReadFile(filepath.Join(prog.Dir, codec.TeraChemGeometryFile))
		prog.Output.Write([]byte("FINAL ENERGY: -1.0000000000 a.u.\n"))
		return 0, nil
	}}

	_, err := Execute(context.Background(), NewTeraChem(), terachemTestSpec(calc.Energy), ExecOptions{Harness: h})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(string(deck), "run energy\n") || !strings.Contains(string(deck), "basis sto-3g\n") {
		t.Fatalf("input deck: %q", deck)
	}
	if !strings.HasPrefix(string(geometry), "3\n") {
		t.Fatalf("geometry file: %q", geometry)
	}
}

func TestTeraChemNonZeroExit(t *testing.T) {
	t.Parallel()

	h := &fakeHarness{output: "DIE called at line 100\n", exitCode: 1}
	out, err := Execute(context.Background(), NewTeraChem(), terachemTestSpec(calc.Energy), ExecOptions{Harness: h})
	if !errors.Is(err, calc.ErrExternalProgram) {
		t.Fatalf("expected ErrExternalProgram, got %v", err)
	}
	if !strings.Contains(out.Logs, "DIE called") {
		t.Fatalf("logs lost: %q", out.Logs)
	}
}

func TestTeraChemValidateRequiresBasis(t *testing.T) {
	t.Parallel()

	spec := terachemTestSpec(calc.Energy)
	spec.Model.Basis = ""
	_, err := Execute(context.Background(), NewTeraChem(), spec, ExecOptions{Harness: &fakeHarness{}})
	if !errors.Is(err, calc.ErrAdapterInput) {
		t.Fatalf("expected ErrAdapterInput, got %v", err)
	}
}

func TestTeraChemCollectWavefunction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	scr := filepath.Join(dir, "scr.geometry")
	if err := os.MkdirAll(scr, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(scr, "c0"), []byte("orbitals"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := NewTeraChem().CollectWavefunction(dir)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if string(files["c0"]) != "orbitals" {
		t.Fatalf("files: %v", files)
	}

	if _, err := NewTeraChem().CollectWavefunction(t.TempDir()); err == nil {
		t.Fatal("expected error when no wavefunction files exist")
	}
}

func TestTeraChemPropagateWavefunction(t *testing.T) {
	t.Parallel()

	next := terachemTestSpec(calc.Energy)
	prev := &calc.ProgramOutput{Files: map[string][]byte{WavefunctionPrefix + "c0": []byte("orbitals")}}
	if err := NewTeraChem().PropagateWavefunction(prev, next); err != nil {
		t.Fatalf("propagate: %v", err)
	}
	if string(next.Files["c0"]) != "orbitals" || next.Keywords["guess"] != "c0" {
		t.Fatalf("spec not seeded: files=%v keywords=%v", next.Files, next.Keywords)
	}

	next = terachemTestSpec(calc.Energy)
	prev = &calc.ProgramOutput{Files: map[string][]byte{
		WavefunctionPrefix + "ca0": []byte("alpha"),
		WavefunctionPrefix + "cb0": []byte("beta"),
	}}
	if err := NewTeraChem().PropagateWavefunction(prev, next); err != nil {
		t.Fatalf("propagate unrestricted: %v", err)
	}
	if next.Keywords["guess"] != "ca0 cb0" {
		t.Fatalf("unrestricted guess: %v", next.Keywords)
	}

	if err := NewTeraChem().PropagateWavefunction(&calc.ProgramOutput{}, terachemTestSpec(calc.Energy)); err == nil {
		t.Fatal("expected error when prior outcome has no wavefunction")
	}
}
