package calc

import "time"

// VersionUnknown is recorded when a program version cannot be determined.
// Version parsing is best-effort and never fails an invocation.
const VersionUnknown = "unknown"

// Provenance records where and how one invocation ran.
type Provenance struct {
	Program    string        `json:"program"`
	Version    string        `json:"version"`
	JobID      string        `json:"job_id,omitempty"`
	ScratchDir string        `json:"scratch_dir,omitempty"`
	WallTime   time.Duration `json:"wall_time"`
	Hostname   string        `json:"hostname,omitempty"`
	HostCPUs   int           `json:"host_cpus,omitempty"`
}

// SinglePointData holds the results of an energy, gradient, or hessian
// calculation. Gradient rows are per atom in hartree/bohr; the hessian is a
// row-major 3N x 3N matrix.
type SinglePointData struct {
	Energy   float64      `json:"energy"`
	Gradient [][3]float64 `json:"gradient,omitempty"`
	Hessian  [][]float64  `json:"hessian,omitempty"`
}

// OptimizationData holds the per-step trajectory of a geometry optimization.
// The last step carries the final geometry and energy.
type OptimizationData struct {
	Trajectory []*ProgramOutput `json:"trajectory"`
}

// FinalStructure returns the structure of the last trajectory step, or nil if
// the trajectory is empty.
func (d *OptimizationData) FinalStructure() *Structure {
	last := d.lastStep()
	if last == nil || last.Spec == nil {
		return nil
	}
	return &last.Spec.Structure
}

// FinalEnergy returns the energy of the last trajectory step.
func (d *OptimizationData) FinalEnergy() (float64, bool) {
	last := d.lastStep()
	if last == nil || last.Data.SinglePoint == nil {
		return 0, false
	}
	return last.Data.SinglePoint.Energy, true
}

func (d *OptimizationData) lastStep() *ProgramOutput {
	if len(d.Trajectory) == 0 {
		return nil
	}
	return d.Trajectory[len(d.Trajectory)-1]
}

// ConformerSearchData holds the conformers found by a conformer search with
// their energies in hartree, sorted ascending by energy.
type ConformerSearchData struct {
	Conformers        []Structure `json:"conformers"`
	ConformerEnergies []float64   `json:"conformer_energies"`
	Rotamers          []Structure `json:"rotamers,omitempty"`
	RotamerEnergies   []float64   `json:"rotamer_energies,omitempty"`
}

// Data is the structured payload of an outcome. Exactly one field is set for
// a successful structured calculation; all fields are nil for the file escape
// hatch and may be partially set on failure when results were salvageable.
type Data struct {
	SinglePoint     *SinglePointData     `json:"single_point,omitempty"`
	Optimization    *OptimizationData    `json:"optimization,omitempty"`
	ConformerSearch *ConformerSearchData `json:"conformer_search,omitempty"`
}

// Empty reports whether no structured payload is present.
func (d Data) Empty() bool {
	return d.SinglePoint == nil && d.Optimization == nil && d.ConformerSearch == nil
}

// ProgramOutput is the normalized outcome of one invocation. It is always
// fully constructed: every code path, including failures, yields an output
// with complete provenance, captured logs, and whatever data was salvageable.
type ProgramOutput struct {
	// Exactly one of Spec or FileSpec echoes the input.
	Spec     *CalcSpec `json:"spec,omitempty"`
	FileSpec *FileSpec `json:"file_spec,omitempty"`

	Success bool `json:"success"`
	Data    Data `json:"data"`
	// Files maps collected output file names (relative to the scratch dir)
	// to contents.
	Files map[string][]byte `json:"files,omitempty"`
	// Logs is the merged stdout/stderr captured from the program.
	Logs string `json:"logs,omitempty"`
	// Traceback describes the failure chain; empty on success.
	Traceback  string     `json:"traceback,omitempty"`
	Provenance Provenance `json:"provenance"`
}
