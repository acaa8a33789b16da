package calc

import "fmt"

// CalcType identifies the kind of calculation requested from a program.
type CalcType string

const (
	Energy          CalcType = "energy"
	Gradient        CalcType = "gradient"
	Hessian         CalcType = "hessian"
	Optimization    CalcType = "optimization"
	TransitionState CalcType = "transition_state"
	ConformerSearch CalcType = "conformer_search"
)

// ParseCalcType converts a string into a known CalcType.
func ParseCalcType(raw string) (CalcType, error) {
	ct := CalcType(raw)
	switch ct {
	case Energy, Gradient, Hessian, Optimization, TransitionState, ConformerSearch:
		return ct, nil
	}
	return "", fmt.Errorf("unknown calctype %q", raw)
}
