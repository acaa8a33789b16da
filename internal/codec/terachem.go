package codec

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

// File names used by the TeraChem encoder. The geometry stem also names
// TeraChem's own scratch subdirectory (scr.<stem>).
const (
	TeraChemInputFile    = "tc.in"
	TeraChemGeometryFile = "geometry.xyz"
)

var (
	terachemEnergyRe  = regexp.MustCompile(`FINAL ENERGY:\s+(-?\d+\.\d+)\s+a\.u\.`)
	terachemVersionRe = regexp.MustCompile(`TeraChem version\s+(\S+)`)
	terachemDieRe     = regexp.MustCompile(`DIE called at line`)
)

// EncodeTeraChem renders the spec as a TeraChem input deck. It returns the
// tc.in contents and the xyz geometry file contents.
func EncodeTeraChem(spec *calc.CalcSpec) (input string, geometry string, err error) {
	var run string
	switch spec.CalcType {
	case calc.Energy:
		run = "energy"
	case calc.Gradient:
		run = "gradient"
	case calc.Hessian:
		run = "frequencies"
	default:
		return "", "", fmt.Errorf("terachem encoder cannot express calctype %q", spec.CalcType)
	}
	if spec.Model.Basis == "" {
		return "", "", fmt.Errorf("terachem requires a basis set")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", run)
	fmt.Fprintf(&b, "coordinates %s\n", TeraChemGeometryFile)
	fmt.Fprintf(&b, "method %s\n", spec.Model.Method)
	fmt.Fprintf(&b, "basis %s\n", spec.Model.Basis)
	fmt.Fprintf(&b, "charge %d\n", spec.Structure.Charge)
	fmt.Fprintf(&b, "spinmult %d\n", spec.Structure.EffectiveMultiplicity())

	// Deterministic keyword order keeps input decks reproducible.
	keys := make([]string, 0, len(spec.Keywords))
	for k := range spec.Keywords {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %s\n", k, keywordValue(spec.Keywords[k]))
	}

	return b.String(), EncodeXYZ(&spec.Structure, "qcop generated geometry"), nil
}

// keywordValue renders a free-form keyword value in TeraChem's yes/no style.
func keywordValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "yes"
		}
		return "no"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ParseTeraChem extracts structured results from TeraChem's stdout. The atom
// count dimensions the gradient and hessian blocks. A DIE marker or a
// missing final energy implies the program failed.
func ParseTeraChem(logs string, calctype calc.CalcType, natoms int) (*calc.SinglePointData, error) {
	if terachemDieRe.MatchString(logs) {
		return nil, fmt.Errorf("terachem reported an internal failure (DIE called)")
	}

	m := terachemEnergyRe.FindStringSubmatch(logs)
	if m == nil {
		return nil, fmt.Errorf("no final energy found in terachem output")
	}
	energy, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parse terachem energy %q: %w", m[1], err)
	}

	data := &calc.SinglePointData{Energy: energy}

	if calctype == calc.Gradient || calctype == calc.Hessian {
		grad, err := parseTeraChemGradient(logs, natoms)
		if err != nil {
			return nil, err
		}
		data.Gradient = grad
	}
	if calctype == calc.Hessian {
		hess, err := parseTeraChemHessian(logs, natoms)
		if err != nil {
			return nil, err
		}
		data.Hessian = hess
	}
	return data, nil
}

func parseTeraChemGradient(logs string, natoms int) ([][3]float64, error) {
	lines := strings.Split(logs, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "dE/dX") {
			continue
		}
		grad := make([][3]float64, 0, natoms)
		for _, row := range lines[i+1:] {
			fields := strings.Fields(row)
			if len(fields) != 3 {
				break
			}
			var g [3]float64
			ok := true
			for c, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					ok = false
					break
				}
				g[c] = v
			}
			if !ok {
				break
			}
			grad = append(grad, g)
			if len(grad) == natoms {
				return grad, nil
			}
		}
		return nil, fmt.Errorf("gradient block truncated: found %d of %d rows", len(grad), natoms)
	}
	return nil, fmt.Errorf("no gradient block found in terachem output")
}

func parseTeraChemHessian(logs string, natoms int) ([][]float64, error) {
	dim := 3 * natoms
	lines := strings.Split(logs, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "Hessian matrix") {
			continue
		}
		var values []float64
		for _, row := range lines[i+1:] {
			fields := strings.Fields(row)
			if len(fields) == 0 {
				break
			}
			for _, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("bad hessian value %q", f)
				}
				values = append(values, v)
			}
			if len(values) >= dim*dim {
				break
			}
		}
		if len(values) != dim*dim {
			return nil, fmt.Errorf("hessian block has %d values, want %d", len(values), dim*dim)
		}
		hess := make([][]float64, dim)
		for r := 0; r < dim; r++ {
			hess[r] = values[r*dim : (r+1)*dim]
		}
		return hess, nil
	}
	return nil, fmt.Errorf("no hessian block found in terachem output")
}

// ParseTeraChemVersion extracts the version string from stdout.
func ParseTeraChemVersion(logs string) (string, error) {
	m := terachemVersionRe.FindStringSubmatch(logs)
	if m == nil {
		return "", fmt.Errorf("no terachem version string found")
	}
	return m[1], nil
}
