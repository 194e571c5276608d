// Package optimize implements a box-constrained limited-memory BFGS minimizer.
//
// The search direction comes from the usual two-loop recursion; components that
// would leave the feasible box at an active bound are dropped, and trial points are
// projected back onto the box during a backtracking Armijo line search.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Func evaluates the objective at x and writes its gradient into grad.
type Func func(x, grad []float64) float64

// Bounds holds per-coordinate limits. Use math.Inf for unbounded sides.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Unbounded returns bounds of length n with no limits.
func Unbounded(n int) Bounds {
	b := Bounds{Lower: make([]float64, n), Upper: make([]float64, n)}
	for i := range b.Lower {
		b.Lower[i] = math.Inf(-1)
		b.Upper[i] = math.Inf(1)
	}
	return b
}

// Project clamps x into the box in place.
func (b Bounds) Project(x []float64) {
	for i := range x {
		if x[i] < b.Lower[i] {
			x[i] = b.Lower[i]
		} else if x[i] > b.Upper[i] {
			x[i] = b.Upper[i]
		}
	}
}

// Settings tune the minimizer. Zero values select the defaults.
type Settings struct {
	MaxIterations int
	Memory        int
	// FTol stops when the relative objective decrease falls below it.
	FTol float64
	// PGTol stops when the infinity norm of the projected gradient falls below it.
	PGTol         float64
	MaxLineSearch int
}

// Default tolerances.
const (
	DefaultMaxIterations = 1000
	DefaultMemory        = 10
	DefaultFTol          = 2.220446049250313e-09
	DefaultPGTol         = 1e-5
	DefaultMaxLineSearch = 30

	armijo = 1e-4
)

func (s Settings) withDefaults() Settings {
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.Memory <= 0 {
		s.Memory = DefaultMemory
	}
	if s.FTol <= 0 {
		s.FTol = DefaultFTol
	}
	if s.PGTol <= 0 {
		s.PGTol = DefaultPGTol
	}
	if s.MaxLineSearch <= 0 {
		s.MaxLineSearch = DefaultMaxLineSearch
	}
	return s
}

// Status describes why Minimize stopped.
type Status int

const (
	// GradientConverged means the projected gradient fell below PGTol.
	GradientConverged Status = iota
	// FunctionConverged means the relative decrease fell below FTol.
	FunctionConverged
	// IterationLimit means MaxIterations was reached.
	IterationLimit
	// LineSearchFailed means no acceptable step was found along the direction.
	LineSearchFailed
	// Cancelled means the context ended the run.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case GradientConverged:
		return "gradient_converged"
	case FunctionConverged:
		return "function_converged"
	case IterationLimit:
		return "iteration_limit"
	case LineSearchFailed:
		return "line_search_failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Converged reports whether a tolerance was met.
func (s Status) Converged() bool { return s == GradientConverged || s == FunctionConverged }

// Result is the best iterate found.
type Result struct {
	X            []float64
	F            float64
	Iterations   int
	FuncEvals    int
	ProjGradNorm float64
	Status       Status
}

// ErrNotFinite is returned when the objective is not finite at the starting point.
var ErrNotFinite = errors.New("objective is not finite at the starting point")

// Minimize runs the bounded L-BFGS iteration from x0. Reaching the iteration cap or a
// failed line search is not an error: the best point is returned with its status.
// A cancelled context returns the best point so far together with ctx.Err().
func Minimize(ctx context.Context, fn Func, x0 []float64, bounds Bounds, settings Settings) (Result, error) {
	n := len(x0)
	if len(bounds.Lower) != n || len(bounds.Upper) != n {
		return Result{}, fmt.Errorf("bounds length %d/%d does not match %d parameters", len(bounds.Lower), len(bounds.Upper), n)
	}
	cfg := settings.withDefaults()

	x := slices.Clone(x0)
	bounds.Project(x)
	g := make([]float64, n)
	f := fn(x, g)
	res := Result{FuncEvals: 1}
	if !finite(f) {
		return res, ErrNotFinite
	}

	hist := newHistory(cfg.Memory, n)
	d := make([]float64, n)
	xt := make([]float64, n)
	gt := make([]float64, n)
	step := make([]float64, n)

	res.Status = IterationLimit
	for res.Iterations < cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			res.Status = Cancelled
			res.X, res.F = x, f
			res.ProjGradNorm = projectedGradientNorm(x, g, bounds)
			return res, err
		}

		if pg := projectedGradientNorm(x, g, bounds); pg <= cfg.PGTol {
			res.Status = GradientConverged
			break
		}

		hist.direction(d, g)
		maskActive(d, x, bounds)
		if floats.Dot(d, g) >= 0 {
			hist.reset()
			floats.ScaleTo(d, -1, g)
			maskActive(d, x, bounds)
			if floats.Dot(d, g) >= 0 {
				res.Status = GradientConverged
				break
			}
		}

		t := 1.0
		if hist.len() == 0 {
			if norm := floats.Norm(g, 2); norm > 0 {
				t = math.Min(1, 1/norm)
			}
		}

		accepted := false
		var ft float64
		for k := 0; k < cfg.MaxLineSearch; k++ {
			copy(xt, x)
			floats.AddScaled(xt, t, d)
			bounds.Project(xt)
			floats.SubTo(step, xt, x)
			decrease := floats.Dot(g, step)
			if decrease >= 0 {
				t *= 0.5
				continue
			}
			ft = fn(xt, gt)
			res.FuncEvals++
			if finite(ft) && ft <= f+armijo*decrease {
				accepted = true
				break
			}
			t *= 0.5
		}
		if !accepted {
			res.Status = LineSearchFailed
			break
		}

		hist.push(step, gt, g)

		prev := f
		copy(x, xt)
		copy(g, gt)
		f = ft
		res.Iterations++

		if (prev-f)/math.Max(math.Max(math.Abs(prev), math.Abs(f)), 1) <= cfg.FTol {
			res.Status = FunctionConverged
			break
		}
	}

	res.X = x
	res.F = f
	res.ProjGradNorm = projectedGradientNorm(x, g, bounds)
	return res, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// projectedGradientNorm is ‖P(x − g) − x‖∞.
func projectedGradientNorm(x, g []float64, b Bounds) float64 {
	norm := 0.0
	for i := range x {
		v := x[i] - g[i]
		if v < b.Lower[i] {
			v = b.Lower[i]
		} else if v > b.Upper[i] {
			v = b.Upper[i]
		}
		norm = math.Max(norm, math.Abs(v-x[i]))
	}
	return norm
}

// maskActive zeroes direction components that point out of the box at an active bound.
func maskActive(d, x []float64, b Bounds) {
	for i := range d {
		if (x[i] <= b.Lower[i] && d[i] < 0) || (x[i] >= b.Upper[i] && d[i] > 0) {
			d[i] = 0
		}
	}
}

// history stores the most recent curvature pairs in a ring.
type history struct {
	s, y  [][]float64
	rho   []float64
	alpha []float64
	tmp   []float64
	head  int
	count int
}

func newHistory(m, n int) *history {
	h := &history{
		s:     make([][]float64, m),
		y:     make([][]float64, m),
		rho:   make([]float64, m),
		alpha: make([]float64, m),
		tmp:   make([]float64, n),
	}
	for i := 0; i < m; i++ {
		h.s[i] = make([]float64, n)
		h.y[i] = make([]float64, n)
	}
	return h
}

func (h *history) len() int { return h.count }

func (h *history) reset() { h.head, h.count = 0, 0 }

// push records s = x_{k+1} − x_k and y = g_{k+1} − g_k when the curvature condition holds.
func (h *history) push(step, gNew, gOld []float64) {
	floats.SubTo(h.tmp, gNew, gOld)
	sy := floats.Dot(step, h.tmp)
	if sy <= 1e-10*floats.Dot(h.tmp, h.tmp) {
		return
	}
	m := len(h.s)
	slot := h.head
	if h.count < m {
		slot = (h.head + h.count) % m
		h.count++
	} else {
		h.head = (h.head + 1) % m
	}
	copy(h.s[slot], step)
	copy(h.y[slot], h.tmp)
	h.rho[slot] = 1 / sy
}

// direction writes −H·g into d using the two-loop recursion.
func (h *history) direction(d, g []float64) {
	copy(d, g)
	m := len(h.s)
	for k := h.count - 1; k >= 0; k-- {
		i := (h.head + k) % m
		h.alpha[i] = h.rho[i] * floats.Dot(h.s[i], d)
		floats.AddScaled(d, -h.alpha[i], h.y[i])
	}
	if h.count > 0 {
		newest := (h.head + h.count - 1) % m
		gamma := floats.Dot(h.s[newest], h.y[newest]) / floats.Dot(h.y[newest], h.y[newest])
		floats.Scale(gamma, d)
	}
	for k := 0; k < h.count; k++ {
		i := (h.head + k) % m
		beta := h.rho[i] * floats.Dot(h.y[i], d)
		floats.AddScaled(d, h.alpha[i]-beta, h.s[i])
	}
	floats.Scale(-1, d)
}
