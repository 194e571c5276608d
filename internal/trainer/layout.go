package trainer

import (
	"math"
	"math/rand"
	"slices"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/optimize"
)

// SensitivityFloor is the lower bound on every sensitivity parameter.
const SensitivityFloor = 1e-6

// Layout describes the packed parameter vector. Each product owns a contiguous block
// [ideal points, sensitivities, indicator weights, intercept], products ordered as listed.
type Layout struct {
	Products      []models.ProductID
	NumContinuous int
	NumIndicators int
}

// Stride is the number of parameters per product.
func (l Layout) Stride() int { return 2*l.NumContinuous + l.NumIndicators + 1 }

// Len is the total number of packed parameters.
func (l Layout) Len() int { return len(l.Products) * l.Stride() }

func (l Layout) idealOffset(p int) int     { return p * l.Stride() }
func (l Layout) sensOffset(p int) int      { return p*l.Stride() + l.NumContinuous }
func (l Layout) weightOffset(p int) int    { return p*l.Stride() + 2*l.NumContinuous }
func (l Layout) interceptOffset(p int) int { return (p+1)*l.Stride() - 1 }

// View returns product p's parameters as slices aliasing theta.
func (l Layout) View(theta []float64, p int) models.ProductParams {
	nc, ni := l.NumContinuous, l.NumIndicators
	ideal, sens, weight := l.idealOffset(p), l.sensOffset(p), l.weightOffset(p)
	return models.ProductParams{
		ID:              l.Products[p],
		IdealPoint:      theta[ideal : ideal+nc : ideal+nc],
		Sensitivity:     theta[sens : sens+nc : sens+nc],
		IndicatorWeight: theta[weight : weight+ni : weight+ni],
		Intercept:       theta[l.interceptOffset(p)],
	}
}

// Pack flattens params, given in Products order, into a new vector.
func (l Layout) Pack(params []models.ProductParams) []float64 {
	theta := make([]float64, l.Len())
	for p, pp := range params {
		copy(theta[l.idealOffset(p):], pp.IdealPoint[:l.NumContinuous])
		copy(theta[l.sensOffset(p):], pp.Sensitivity[:l.NumContinuous])
		copy(theta[l.weightOffset(p):], pp.IndicatorWeight)
		theta[l.interceptOffset(p)] = pp.Intercept
	}
	return theta
}

// Unpack copies theta into one ProductParams per product.
func (l Layout) Unpack(theta []float64, names map[models.ProductID]string) []models.ProductParams {
	out := make([]models.ProductParams, len(l.Products))
	for p, id := range l.Products {
		view := l.View(theta, p)
		name, ok := names[id]
		if !ok || name == "" {
			name = id.String()
		}
		out[p] = models.ProductParams{
			ID:              id,
			Name:            name,
			IdealPoint:      slices.Clone(view.IdealPoint),
			Sensitivity:     slices.Clone(view.Sensitivity),
			IndicatorWeight: slices.Clone(view.IndicatorWeight),
			Intercept:       view.Intercept,
		}
	}
	return out
}

// Bounds returns the box constraints: ideal points in [0,1], sensitivities at least
// SensitivityFloor, everything else free.
func (l Layout) Bounds() optimize.Bounds {
	b := optimize.Unbounded(l.Len())
	for p := range l.Products {
		for f := 0; f < l.NumContinuous; f++ {
			b.Lower[l.idealOffset(p)+f] = 0
			b.Upper[l.idealOffset(p)+f] = 1
			b.Lower[l.sensOffset(p)+f] = SensitivityFloor
			b.Upper[l.sensOffset(p)+f] = math.Inf(1)
		}
	}
	return b
}

// Init draws the starting point: every product's ideal points from U[0,1], then every
// product's sensitivities from U[0.1,2.0]. Weights and intercepts start at zero.
func (l Layout) Init(seed int64) []float64 {
	//nolint:gosec // G404: deterministic initialization, not security sensitive
	rng := rand.New(rand.NewSource(seed))
	theta := make([]float64, l.Len())
	for p := range l.Products {
		for f := 0; f < l.NumContinuous; f++ {
			theta[l.idealOffset(p)+f] = rng.Float64()
		}
	}
	for p := range l.Products {
		for f := 0; f < l.NumContinuous; f++ {
			theta[l.sensOffset(p)+f] = 0.1 + 1.9*rng.Float64()
		}
	}
	return theta
}
