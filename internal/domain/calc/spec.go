package calc

import "fmt"

// Model selects the level of theory for a calculation.
type Model struct {
	Method string `json:"method"`
	Basis  string `json:"basis,omitempty"`
}

// ProgramArgs carries the model and keywords for a nested single-point
// program driven by a multi-stage adapter.
type ProgramArgs struct {
	Model    Model          `json:"model"`
	Keywords map[string]any `json:"keywords,omitempty"`
}

// CalcSpec is the structured description of one requested calculation. It is
// read-only once submitted to an adapter.
type CalcSpec struct {
	CalcType  CalcType       `json:"calctype"`
	Structure Structure      `json:"structure"`
	Model     Model          `json:"model"`
	Keywords  map[string]any `json:"keywords,omitempty"`
	// Files maps additional input file names to contents. Names are unique
	// by construction of the map.
	Files map[string][]byte `json:"files,omitempty"`
	// Subprogram names the nested single-point program for multi-stage
	// calculations such as optimizations. SubprogramArgs configures it.
	Subprogram     string         `json:"subprogram,omitempty"`
	SubprogramArgs *ProgramArgs   `json:"subprogram_args,omitempty"`
	Extras         map[string]any `json:"extras,omitempty"`
}

// Validate checks that the spec is internally consistent before it reaches an
// adapter. Adapters layer program-specific checks on top.
func (s *CalcSpec) Validate() error {
	if _, err := ParseCalcType(string(s.CalcType)); err != nil {
		return err
	}
	if err := s.Structure.Validate(); err != nil {
		return err
	}
	if s.Model.Method == "" {
		return fmt.Errorf("model method is required")
	}
	return nil
}

// FileSpec is the escape hatch for programs or calculation types the
// structured path does not cover: an explicit command plus named input files.
type FileSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Files   map[string][]byte `json:"files,omitempty"`
}

// Validate checks that the file spec names a command to run.
func (s *FileSpec) Validate() error {
	if s.Command == "" {
		return fmt.Errorf("file spec command is required")
	}
	return nil
}
