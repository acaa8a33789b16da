// Package codec holds the per-program input encoders and output parsers the
// adapters delegate to. Encoders turn a CalcSpec into native input files;
// parsers turn captured output and result files back into structured data.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

// BohrToAngstrom converts bohr to angstrom. Geometries are stored in bohr;
// xyz files use angstrom by convention.
const BohrToAngstrom = 0.529177210903

// EncodeXYZ renders a structure as an xyz file with coordinates in angstrom.
func EncodeXYZ(s *calc.Structure, comment string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n%s\n", len(s.Symbols), comment)
	for i, sym := range s.Symbols {
		fmt.Fprintf(&b, "%-3s %16.10f %16.10f %16.10f\n",
			sym,
			s.Geometry[i][0]*BohrToAngstrom,
			s.Geometry[i][1]*BohrToAngstrom,
			s.Geometry[i][2]*BohrToAngstrom,
		)
	}
	return b.String()
}

// ParseMultiXYZ parses a concatenated xyz file into structures, converting
// coordinates back to bohr. The comment line of each frame is returned
// alongside its structure.
func ParseMultiXYZ(text string) ([]calc.Structure, []string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var structures []calc.Structure
	var comments []string

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++
			continue
		}
		natoms, err := strconv.Atoi(line)
		if err != nil || natoms <= 0 {
			return nil, nil, fmt.Errorf("xyz frame %d: bad atom count %q", len(structures), line)
		}
		comment := ""
		if i+1 < len(lines) {
			comment = strings.TrimSpace(lines[i+1])
		}

		s := calc.Structure{
			Symbols:  make([]string, 0, natoms),
			Geometry: make([][3]float64, 0, natoms),
		}
		for a := 0; a < natoms; a++ {
			idx := i + 2 + a
			if idx >= len(lines) {
				return nil, nil, fmt.Errorf("xyz frame %d: missing atom line %d", len(structures), a)
			}
			fields := strings.Fields(lines[idx])
			if len(fields) < 4 {
				return nil, nil, fmt.Errorf("xyz frame %d: malformed atom line %q", len(structures), lines[idx])
			}
			var coords [3]float64
			for c := 0; c < 3; c++ {
				v, err := strconv.ParseFloat(fields[c+1], 64)
				if err != nil {
					return nil, nil, fmt.Errorf("xyz frame %d: bad coordinate %q", len(structures), fields[c+1])
				}
				coords[c] = v / BohrToAngstrom
			}
			s.Symbols = append(s.Symbols, fields[0])
			s.Geometry = append(s.Geometry, coords)
		}
		structures = append(structures, s)
		comments = append(comments, comment)
		i += 2 + natoms
	}

	if len(structures) == 0 {
		return nil, nil, fmt.Errorf("no xyz frames found")
	}
	return structures, comments, nil
}
