package codec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/coltonbh/qcop/internal/domain/calc"
)

// File names used by the CREST encoder and parser.
const (
	CRESTInputFile      = "input.toml"
	CRESTGeometryFile   = "struct.xyz"
	CRESTConformersFile = "crest_conformers.xyz"
	CRESTRotamersFile   = "crest_rotamers.xyz"
)

var crestVersionRe = regexp.MustCompile(`Version\s+(\d[\w.\-]*)`)

// EncodeCREST renders the spec as a CREST toml input plus an xyz geometry.
// Keywords are passed through as top-level toml assignments; method, charge,
// and uhf (multiplicity - 1) come from the model and structure.
func EncodeCREST(spec *calc.CalcSpec) (input string, geometry string, err error) {
	if spec.CalcType != calc.ConformerSearch {
		return "", "", fmt.Errorf("crest encoder cannot express calctype %q", spec.CalcType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "input = %q\n", CRESTGeometryFile)

	keys := make([]string, 0, len(spec.Keywords))
	for k := range spec.Keywords {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s = %s\n", k, tomlValue(spec.Keywords[k]))
	}

	b.WriteString("\n[calculation]\n\n[[calculation.level]]\n")
	fmt.Fprintf(&b, "method = %q\n", spec.Model.Method)
	fmt.Fprintf(&b, "charge = %d\n", spec.Structure.Charge)
	fmt.Fprintf(&b, "uhf = %d\n", spec.Structure.EffectiveMultiplicity()-1)

	return b.String(), EncodeXYZ(&spec.Structure, "qcop generated geometry"), nil
}

func tomlValue(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case string:
		return strconv.Quote(val)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return strconv.Quote(fmt.Sprintf("%v", val))
	}
}

// ParseCRESTDir reads the conformer (and optionally rotamer) ensembles CREST
// wrote into dir. Energies come from each frame's comment line; charge and
// multiplicity are stamped onto every parsed structure since xyz files do
// not carry them.
func ParseCRESTDir(dir string, charge, multiplicity int, collectRotamers bool) (*calc.ConformerSearchData, error) {
	conformers, energies, err := parseEnsembleFile(filepath.Join(dir, CRESTConformersFile), charge, multiplicity)
	if err != nil {
		return nil, err
	}

	data := &calc.ConformerSearchData{
		Conformers:        conformers,
		ConformerEnergies: energies,
	}

	if collectRotamers {
		rotamers, rotEnergies, err := parseEnsembleFile(filepath.Join(dir, CRESTRotamersFile), charge, multiplicity)
		if err == nil {
			data.Rotamers = rotamers
			data.RotamerEnergies = rotEnergies
		} else if !errors.Is(err, os.ErrNotExist) {
			// Rotamers are optional output; only real parse failures abort.
			return nil, err
		}
	}

	return data, nil
}

func parseEnsembleFile(path string, charge, multiplicity int) ([]calc.Structure, []float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read ensemble %s: %w", filepath.Base(path), err)
	}
	structures, comments, err := ParseMultiXYZ(string(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse ensemble %s: %w", filepath.Base(path), err)
	}

	energies := make([]float64, len(structures))
	for i := range structures {
		structures[i].Charge = charge
		structures[i].Multiplicity = multiplicity
		fields := strings.Fields(comments[i])
		if len(fields) == 0 {
			return nil, nil, fmt.Errorf("ensemble %s frame %d has no energy comment", filepath.Base(path), i)
		}
		e, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("ensemble %s frame %d: bad energy %q", filepath.Base(path), i, fields[0])
		}
		energies[i] = e
	}
	return structures, energies, nil
}

// ParseCRESTVersion extracts the version string from stdout.
func ParseCRESTVersion(logs string) (string, error) {
	m := crestVersionRe.FindStringSubmatch(logs)
	if m == nil {
		return "", fmt.Errorf("no crest version string found")
	}
	return m[1], nil
}
