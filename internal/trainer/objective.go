package trainer

import (
	"math"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/utility"
)

// logFloor keeps −log σ(diff) finite when diff is very negative.
const logFloor = 1e-12

// objective is the regularized Bradley-Terry negative log-likelihood over a fixed
// pairwise dataset.
type objective struct {
	layout  Layout
	reg     float64
	winners []int
	losers  []int
	xc      [][]float64
	xd      [][]float64
	views   []models.ProductParams
}

func newObjective(layout Layout, pairs []models.PairwiseObservation, index map[models.ProductID]int, reg float64) *objective {
	o := &objective{
		layout:  layout,
		reg:     reg,
		winners: make([]int, len(pairs)),
		losers:  make([]int, len(pairs)),
		xc:      make([][]float64, len(pairs)),
		xd:      make([][]float64, len(pairs)),
		views:   make([]models.ProductParams, len(layout.Products)),
	}
	for k, pair := range pairs {
		o.winners[k] = index[pair.WinnerID]
		o.losers[k] = index[pair.LoserID]
		o.xc[k] = pair.Features.Continuous()
		o.xd[k] = pair.Features.Indicators()
	}
	return o
}

// Value computes the objective at theta and writes its gradient into grad.
func (o *objective) Value(theta, grad []float64) float64 {
	for p := range o.views {
		o.views[p] = o.layout.View(theta, p)
	}

	f := 0.0
	for i, v := range theta {
		f += v * v
		grad[i] = 2 * o.reg * v
	}
	f *= o.reg

	for k := range o.winners {
		w, l := o.winners[k], o.losers[k]
		xc, xd := o.xc[k], o.xd[k]
		diff := utility.Evaluate(&o.views[w], xc, xd) - utility.Evaluate(&o.views[l], xc, xd)

		sig, comp := sigmoid(diff), sigmoid(-diff)
		f -= math.Log(sig + logFloor)

		// d(−log(σ+ε))/d diff
		g := -sig * comp / (sig + logFloor)
		o.accumulate(grad, w, g, xc, xd)
		o.accumulate(grad, l, -g, xc, xd)
	}
	return f
}

// accumulate adds coef·∂U_p/∂θ to grad.
func (o *objective) accumulate(grad []float64, p int, coef float64, xc, xd []float64) {
	view := &o.views[p]
	ideal, sens, weight := o.layout.idealOffset(p), o.layout.sensOffset(p), o.layout.weightOffset(p)
	for f, x := range xc {
		d := x - view.IdealPoint[f]
		grad[ideal+f] += coef * 2 * view.Sensitivity[f] * d
		grad[sens+f] -= coef * d * d
	}
	for j, x := range xd {
		grad[weight+j] += coef * x
	}
	grad[o.layout.interceptOffset(p)] += coef
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
