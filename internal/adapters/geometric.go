package adapters

import (
	"context"
	"fmt"

	"github.com/coltonbh/qcop/internal/domain/calc"
	"github.com/coltonbh/qcop/internal/optimize"
	"github.com/coltonbh/qcop/internal/ports"
)

// Geometric is the in-process geometry driver. It walks a structure toward a
// minimum or a first order saddle point by repeatedly invoking a nested
// single-point adapter for gradients, reusing the full execution pipeline
// for every step.
type Geometric struct {
	resolve ports.Resolver
}

// NewGeometric returns the driver. resolve looks up the nested single-point
// adapter named by the spec's subprogram.
func NewGeometric(resolve ports.Resolver) *Geometric {
	return &Geometric{resolve: resolve}
}

func (*Geometric) Program() string { return "geometric" }

func (*Geometric) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		CalcTypes: []calc.CalcType{calc.Optimization, calc.TransitionState},
	}
}

func (g *Geometric) Validate(spec *calc.CalcSpec) error {
	if spec.Subprogram == "" {
		return fmt.Errorf("geometry optimization requires a subprogram to compute gradients")
	}
	if spec.Subprogram == g.Program() {
		return fmt.Errorf("subprogram cannot be the driver itself")
	}
	return nil
}

func (*Geometric) Version(string) string { return calc.VersionUnknown }

func (g *Geometric) Compute(ctx context.Context, spec *calc.CalcSpec, rc *ports.RunContext) (calc.Data, error) {
	sub, err := g.resolve(spec.Subprogram)
	if err != nil {
		return calc.Data{}, err
	}
	if !sub.Capabilities().SupportsCalcType(calc.Gradient) {
		return calc.Data{}, calc.NewComputeError(g.Program(), calc.ErrAdapterInput,
			fmt.Sprintf("subprogram %q cannot compute gradients", spec.Subprogram), nil)
	}

	maxiter := intKeyword(spec.Keywords, "maxiter", 100)
	trust := floatKeyword(spec.Keywords, "trust", 0.3)

	w := &walk{
		driver:  g,
		sub:     sub,
		spec:    spec,
		rc:      rc,
		wfn:     sub.Capabilities().SupportsWavefunction,
		current: spec.Structure,
	}

	var data calc.Data
	var werr error
	if spec.CalcType == calc.TransitionState {
		data, werr = w.saddle(ctx, maxiter, trust)
	} else {
		data, werr = w.minimize(ctx, maxiter, trust)
	}
	return data, werr
}

// walk is the state of one driver run: the moving structure, the trajectory
// so far, and the last outcome for wavefunction chaining.
type walk struct {
	driver  *Geometric
	sub     ports.Adapter
	spec    *calc.CalcSpec
	rc      *ports.RunContext
	wfn     bool
	current calc.Structure
	traj    []*calc.ProgramOutput
	prev    *calc.ProgramOutput
}

// step runs one nested gradient calculation on the walk's current structure,
// appends the outcome to the trajectory, and returns the flattened gradient
// with its energy.
func (w *walk) step(ctx context.Context) (grad []float64, energy float64, err error) {
	out, err := w.gradientAt(ctx, w.current, w.prev)
	if out != nil {
		w.traj = append(w.traj, out)
	}
	if err != nil {
		return nil, 0, err
	}
	w.prev = out
	g, err := flattenGradient(out)
	if err != nil {
		return nil, 0, calc.NewComputeError(w.driver.Program(), calc.ErrExternalProgram, err.Error(), err)
	}
	return g, out.Data.SinglePoint.Energy, nil
}

// gradientAt runs the nested adapter on an arbitrary structure without
// touching the trajectory state. prev, when non-nil, seeds the calculation
// with the prior wavefunction.
func (w *walk) gradientAt(ctx context.Context, s calc.Structure, prev *calc.ProgramOutput) (*calc.ProgramOutput, error) {
	subSpec := &calc.CalcSpec{
		CalcType:  calc.Gradient,
		Structure: s,
		Model:     w.spec.Model,
		Keywords:  copyKeywords(w.spec.Keywords, "maxiter", "trust", "hessian_step"),
		Extras:    w.spec.Extras,
	}
	if args := w.spec.SubprogramArgs; args != nil {
		subSpec.Model = args.Model
		subSpec.Keywords = copyKeywords(args.Keywords)
	}

	opts := ExecOptions{
		Harness:             w.rc.Harness,
		Mirror:              w.rc.Output,
		Timeout:             w.rc.Timeout,
		CollectWavefunction: w.wfn,
	}
	if prev != nil && w.wfn {
		opts.Propagate = prev
	}
	return Execute(ctx, w.sub, subSpec, opts)
}

func (w *walk) minimize(ctx context.Context, maxiter int, trust float64) (calc.Data, error) {
	g, _, err := w.step(ctx)
	if err != nil {
		return w.data(), err
	}

	bfgs := optimize.NewBFGS(len(g))
	for iter := 0; iter < maxiter; iter++ {
		if optimize.GradientConverged(g) {
			return w.data(), nil
		}
		dx := bfgs.Step(g, trust)
		w.displace(dx)
		next, _, err := w.step(ctx)
		if err != nil {
			return w.data(), err
		}
		bfgs.Update(dx, diff(next, g))
		g = next
	}
	if optimize.GradientConverged(g) {
		return w.data(), nil
	}
	return w.data(), w.noConvergence(maxiter)
}

func (w *walk) saddle(ctx context.Context, maxiter int, trust float64) (calc.Data, error) {
	g, _, err := w.step(ctx)
	if err != nil {
		return w.data(), err
	}

	// The saddle search needs curvature. A finite difference Hessian seeds
	// it; Bofill updates carry it forward between steps.
	step := floatKeyword(w.spec.Keywords, "hessian_step", 0.005)
	hess, err := optimize.NumericalHessian(func(x []float64) ([]float64, error) {
		out, err := w.gradientAt(ctx, structureAt(w.current, x), w.prev)
		if err != nil {
			return nil, err
		}
		return flattenGradient(out)
	}, flatten(w.current.Geometry), step)
	if err != nil {
		return w.data(), calc.AsComputeError(w.driver.Program(), err)
	}

	for iter := 0; iter < maxiter; iter++ {
		if optimize.GradientConverged(g) {
			return w.data(), nil
		}
		dx, err := optimize.SaddleStep(hess, g, trust)
		if err != nil {
			return w.data(), calc.NewComputeError(w.driver.Program(), calc.ErrAdapterInput, err.Error(), err)
		}
		w.displace(dx)
		next, _, err := w.step(ctx)
		if err != nil {
			return w.data(), err
		}
		optimize.BofillUpdate(hess, dx, diff(next, g))
		g = next
	}
	if optimize.GradientConverged(g) {
		return w.data(), nil
	}
	return w.data(), w.noConvergence(maxiter)
}

func (w *walk) displace(dx []float64) {
	geom := make([][3]float64, len(w.current.Geometry))
	for i := range geom {
		for c := 0; c < 3; c++ {
			geom[i][c] = w.current.Geometry[i][c] + dx[3*i+c]
		}
	}
	w.current = w.current.WithGeometry(geom)
}

func (w *walk) data() calc.Data {
	if len(w.traj) == 0 {
		return calc.Data{}
	}
	return calc.Data{Optimization: &calc.OptimizationData{Trajectory: w.traj}}
}

func (w *walk) noConvergence(maxiter int) error {
	return calc.NewComputeError(w.driver.Program(), calc.ErrExternalProgram,
		fmt.Sprintf("geometry did not converge in %d steps", maxiter), nil)
}

func flattenGradient(out *calc.ProgramOutput) ([]float64, error) {
	if out.Data.SinglePoint == nil || out.Data.SinglePoint.Gradient == nil {
		return nil, fmt.Errorf("subprogram returned no gradient")
	}
	return flatten(out.Data.SinglePoint.Gradient), nil
}

func flatten(rows [][3]float64) []float64 {
	flat := make([]float64, 0, 3*len(rows))
	for _, row := range rows {
		flat = append(flat, row[0], row[1], row[2])
	}
	return flat
}

func structureAt(s calc.Structure, x []float64) calc.Structure {
	geom := make([][3]float64, len(s.Geometry))
	for i := range geom {
		geom[i] = [3]float64{x[3*i], x[3*i+1], x[3*i+2]}
	}
	return s.WithGeometry(geom)
}

func diff(a, b []float64) []float64 {
	d := make([]float64, len(a))
	for i := range a {
		d[i] = a[i] - b[i]
	}
	return d
}

func copyKeywords(keywords map[string]any, drop ...string) map[string]any {
	if keywords == nil {
		return nil
	}
	skip := make(map[string]bool, len(drop))
	for _, k := range drop {
		skip[k] = true
	}
	out := make(map[string]any, len(keywords))
	for k, v := range keywords {
		if skip[k] {
			continue
		}
		out[k] = v
	}
	return out
}

func intKeyword(keywords map[string]any, key string, fallback int) int {
	switch v := keywords[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

func floatKeyword(keywords map[string]any, key string, fallback float64) float64 {
	switch v := keywords[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
