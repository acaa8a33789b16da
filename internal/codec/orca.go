package codec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

// File names used by the Orca adapter. Orca derives its output file names
// from the input file stem.
const (
	OrcaInputFile    = "orca.inp"
	OrcaGeometryFile = "geometry.xyz"
	OrcaGradientFile = "orca.engrad"
	OrcaHessianFile  = "orca.hess"
)

var (
	orcaEnergyRe  = regexp.MustCompile(`FINAL SINGLE POINT ENERGY\s+(-?\d+\.\d+)`)
	orcaVersionRe = regexp.MustCompile(`Program Version\s+(\S+)`)
	orcaAborted   = regexp.MustCompile(`(?i)ORCA finished by error termination|aborting the run`)
)

// EncodeOrca renders the spec as an Orca input deck. It returns the orca.inp
// contents and the xyz geometry file contents. Boolean-true keywords become
// simple-input tokens on the bang line; valued keywords become %-blocks.
func EncodeOrca(spec *calc.CalcSpec) (input string, geometry string, err error) {
	var task string
	switch spec.CalcType {
	case calc.Energy:
		task = "SP"
	case calc.Gradient:
		task = "EnGrad"
	case calc.Hessian:
		task = "Freq"
	default:
		return "", "", fmt.Errorf("orca encoder cannot express calctype %q", spec.CalcType)
	}
	if spec.Model.Basis == "" {
		return "", "", fmt.Errorf("orca requires a basis set")
	}

	keys := make([]string, 0, len(spec.Keywords))
	for k := range spec.Keywords {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "! %s %s %s", spec.Model.Method, spec.Model.Basis, task)
	for _, k := range keys {
		if v, ok := spec.Keywords[k].(bool); ok && v {
			fmt.Fprintf(&b, " %s", k)
		}
	}
	b.WriteString("\n")
	for _, k := range keys {
		switch v := spec.Keywords[k].(type) {
		case bool:
		default:
			fmt.Fprintf(&b, "%%%s %v end\n", k, v)
		}
	}
	fmt.Fprintf(&b, "* xyzfile %d %d %s\n",
		spec.Structure.Charge, spec.Structure.EffectiveMultiplicity(), OrcaGeometryFile)

	return b.String(), EncodeXYZ(&spec.Structure, "qcop generated geometry"), nil
}

// ParseOrca extracts structured results from Orca's stdout and output files.
// The energy comes from stdout; the gradient from the engrad file and the
// hessian from the hess file Orca writes into dir.
func ParseOrca(logs, dir string, calctype calc.CalcType, natoms int) (*calc.SinglePointData, error) {
	if orcaAborted.MatchString(logs) {
		return nil, fmt.Errorf("orca finished by error termination")
	}

	m := orcaEnergyRe.FindStringSubmatch(logs)
	if m == nil {
		return nil, fmt.Errorf("no final single point energy found in orca output")
	}
	energy, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parse orca energy %q: %w", m[1], err)
	}

	data := &calc.SinglePointData{Energy: energy}

	if calctype == calc.Gradient {
		grad, err := parseOrcaEngrad(filepath.Join(dir, OrcaGradientFile), natoms)
		if err != nil {
			return nil, err
		}
		data.Gradient = grad
	}
	if calctype == calc.Hessian {
		hess, err := parseOrcaHessian(filepath.Join(dir, OrcaHessianFile), natoms)
		if err != nil {
			return nil, err
		}
		data.Hessian = hess
	}
	return data, nil
}

// parseOrcaEngrad reads the engrad file: comment lines start with #, the
// numeric payload is atom count, energy, then 3*natoms gradient values.
func parseOrcaEngrad(path string, natoms int) ([][3]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engrad file: %w", err)
	}

	var values []float64
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, f := range strings.Fields(line) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("bad engrad value %q", f)
			}
			values = append(values, v)
		}
	}
	if len(values) < 2+3*natoms {
		return nil, fmt.Errorf("engrad file has %d values, want at least %d", len(values), 2+3*natoms)
	}
	if int(values[0]) != natoms {
		return nil, fmt.Errorf("engrad file is for %d atoms, want %d", int(values[0]), natoms)
	}

	grad := make([][3]float64, natoms)
	for i := 0; i < natoms; i++ {
		for c := 0; c < 3; c++ {
			grad[i][c] = values[2+3*i+c]
		}
	}
	return grad, nil
}

// parseOrcaHessian reads the $hessian block of the hess file: the dimension
// on its own line, then column-blocked data where an all-integer line names
// the columns and each following line is a row index plus values.
func parseOrcaHessian(path string, natoms int) ([][]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hess file: %w", err)
	}

	lines := strings.Split(string(raw), "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "$hessian" {
			start = i
			break
		}
	}
	if start < 0 || start+1 >= len(lines) {
		return nil, fmt.Errorf("no $hessian block found in hess file")
	}

	dim := 3 * natoms
	declared, err := strconv.Atoi(strings.TrimSpace(lines[start+1]))
	if err != nil || declared != dim {
		return nil, fmt.Errorf("hessian dimension %q, want %d", strings.TrimSpace(lines[start+1]), dim)
	}

	hess := make([][]float64, dim)
	for r := range hess {
		hess[r] = make([]float64, dim)
	}

	var cols []int
	filled := 0
	for _, line := range lines[start+2:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "$") {
			break
		}
		fields := strings.Fields(line)
		if header, ok := intFields(fields); ok {
			cols = header
			continue
		}
		row, err := strconv.Atoi(fields[0])
		if err != nil || row < 0 || row >= dim || len(fields)-1 != len(cols) {
			return nil, fmt.Errorf("malformed hessian row %q", line)
		}
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("bad hessian value %q", f)
			}
			hess[row][cols[i]] = v
			filled++
		}
	}
	if filled != dim*dim {
		return nil, fmt.Errorf("hessian block has %d values, want %d", filled, dim*dim)
	}
	return hess, nil
}

// intFields reports whether every field parses as an integer, returning them.
func intFields(fields []string) ([]int, bool) {
	ints := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, false
		}
		ints[i] = v
	}
	return ints, true
}

// ParseOrcaVersion extracts the version string from stdout.
func ParseOrcaVersion(logs string) (string, error) {
	m := orcaVersionRe.FindStringSubmatch(logs)
	if m == nil {
		return "", fmt.Errorf("no orca version string found")
	}
	return m[1], nil
}
