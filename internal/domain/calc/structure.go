package calc

import "fmt"

// Structure describes a molecular structure. Geometry is in bohr.
type Structure struct {
	Symbols      []string     `json:"symbols"`
	Geometry     [][3]float64 `json:"geometry"`
	Charge       int          `json:"charge"`
	Multiplicity int          `json:"multiplicity"`
	// Identifiers carries free-form identifiers such as SMILES or InChI.
	Identifiers map[string]string `json:"identifiers,omitempty"`
}

// Validate checks basic structural consistency.
func (s *Structure) Validate() error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf("structure has no atoms")
	}
	if len(s.Symbols) != len(s.Geometry) {
		return fmt.Errorf("structure has %d symbols but %d geometry rows", len(s.Symbols), len(s.Geometry))
	}
	if s.Multiplicity < 0 {
		return fmt.Errorf("structure multiplicity must be non-negative, got %d", s.Multiplicity)
	}
	return nil
}

// WithGeometry returns a copy of the structure with a new geometry. Symbols,
// charge, multiplicity, and identifiers are shared with the receiver.
func (s Structure) WithGeometry(geometry [][3]float64) Structure {
	s.Geometry = geometry
	return s
}

// EffectiveMultiplicity returns the multiplicity, defaulting the zero value to
// a singlet so specs built from literals stay valid.
func (s *Structure) EffectiveMultiplicity() int {
	if s.Multiplicity == 0 {
		return 1
	}
	return s.Multiplicity
}
