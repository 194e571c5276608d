// Package utility evaluates the quadratic ideal-point utility of a product.
//
//	U(p, x) = intercept + Σ_f −s_f (x_f − m_f)² + Σ_d β_d x_d
//
// Trainer and predictor both go through Evaluate so that fitted and served
// utilities agree exactly.
package utility

import "github.com/snowflowstack/snowflow-ranker/internal/models"

// Evaluate returns the utility of product p under the continuous values xc and
// indicator values xd. Slices follow the schema order of p's parameters.
func Evaluate(p *models.ProductParams, xc, xd []float64) float64 {
	u := p.Intercept
	for f, x := range xc {
		d := x - p.IdealPoint[f]
		u -= p.Sensitivity[f] * d * d
	}
	for j, x := range xd {
		if j < len(p.IndicatorWeight) {
			u += p.IndicatorWeight[j] * x
		}
	}
	return u
}

// EvaluateVector returns the utility of p for a canonical feature vector.
func EvaluateVector(p *models.ProductParams, v models.FeatureVector) float64 {
	return Evaluate(p, v.Continuous(), v.Indicators())
}

// Terms returns the per-feature contributions of Evaluate, in schema order:
// −s_f (x_f − m_f)² for continuous features then β_d x_d for indicators.
// Their sum plus the intercept equals Evaluate.
func Terms(p *models.ProductParams, v models.FeatureVector) []float64 {
	xc, xd := v.Continuous(), v.Indicators()
	out := make([]float64, 0, len(xc)+len(xd))
	for f, x := range xc {
		d := x - p.IdealPoint[f]
		out = append(out, -p.Sensitivity[f]*d*d)
	}
	for j, x := range xd {
		w := 0.0
		if j < len(p.IndicatorWeight) {
			w = p.IndicatorWeight[j]
		}
		out = append(out, w*x)
	}
	return out
}
