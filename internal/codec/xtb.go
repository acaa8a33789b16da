package codec

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

// File names used by the xtb adapter.
const (
	XTBGeometryFile = "struct.xyz"
	XTBGradientFile = "gradient"
)

var (
	xtbEnergyRe  = regexp.MustCompile(`TOTAL ENERGY\s+(-?\d+\.\d+)\s+Eh`)
	xtbVersionRe = regexp.MustCompile(`xtb version\s+(\S+)`)
	xtbAbnormal  = regexp.MustCompile(`(?i)abnormal termination of xtb`)
)

// XTBMethodFlags maps a model method to xtb command line flags. Supported
// methods are the GFN family; anything else is an input error the adapter
// reports before launching the program.
func XTBMethodFlags(method string) ([]string, error) {
	switch strings.ToLower(method) {
	case "gfn2xtb", "gfn2-xtb", "gfn2":
		return []string{"--gfn", "2"}, nil
	case "gfn1xtb", "gfn1-xtb", "gfn1":
		return []string{"--gfn", "1"}, nil
	case "gfn0xtb", "gfn0-xtb", "gfn0":
		return []string{"--gfn", "0"}, nil
	case "gfnff", "gfn-ff":
		return []string{"--gfnff"}, nil
	}
	return nil, fmt.Errorf("unsupported xtb method %q; supported methods: GFN2-xTB, GFN1-xTB, GFN0-xTB, GFN-FF", method)
}

// ParseXTB extracts the total energy from xtb's stdout and, for gradient
// calculations, the gradient from the Turbomole-format gradient file xtb
// writes into dir.
func ParseXTB(logs, dir string, calctype calc.CalcType, natoms int) (*calc.SinglePointData, error) {
	if xtbAbnormal.MatchString(logs) {
		return nil, fmt.Errorf("xtb terminated abnormally")
	}

	m := xtbEnergyRe.FindStringSubmatch(logs)
	if m == nil {
		return nil, fmt.Errorf("no total energy found in xtb output")
	}
	energy, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("parse xtb energy %q: %w", m[1], err)
	}

	data := &calc.SinglePointData{Energy: energy}

	if calctype == calc.Gradient {
		grad, err := parseTurbomoleGradient(filepath.Join(dir, XTBGradientFile), natoms)
		if err != nil {
			return nil, err
		}
		data.Gradient = grad
	}
	return data, nil
}

// parseTurbomoleGradient reads the trailing natoms gradient rows of a
// Turbomole $grad file. Fortran D exponents are normalized before parsing.
func parseTurbomoleGradient(path string, natoms int) ([][3]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gradient file: %w", err)
	}

	var rows [][3]float64
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "$") || strings.Contains(line, "cycle") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		var g [3]float64
		ok := true
		for c, f := range fields {
			v, err := strconv.ParseFloat(strings.ReplaceAll(strings.ReplaceAll(f, "D", "E"), "d", "e"), 64)
			if err != nil {
				ok = false
				break
			}
			g[c] = v
		}
		if ok {
			rows = append(rows, g)
		}
	}

	if len(rows) < natoms {
		return nil, fmt.Errorf("gradient file has %d rows, want %d", len(rows), natoms)
	}
	return rows[len(rows)-natoms:], nil
}

// ParseXTBVersion extracts the version string from stdout.
func ParseXTBVersion(logs string) (string, error) {
	m := xtbVersionRe.FindStringSubmatch(logs)
	if m == nil {
		return "", fmt.Errorf("no xtb version string found")
	}
	return m[1], nil
}
