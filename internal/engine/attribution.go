package engine

import (
	"math"
	"sort"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/utility"
)

// attributionLimit is the number of features reported for the winner.
const attributionLimit = 5

// Attribute splits p's utility at v into per-feature magnitudes |term|·scale and
// returns the largest limit of them, descending. Ties keep schema order.
func Attribute(p *models.ProductParams, v models.FeatureVector, scale float64, limit int) []models.FeatureContribution {
	terms := utility.Terms(p, v)
	out := make([]models.FeatureContribution, len(terms))
	for i, term := range terms {
		out[i] = models.FeatureContribution{Feature: v.Schema.Name(i), Magnitude: math.Abs(term) * scale}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Magnitude > out[j].Magnitude })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// rescale maps scores linearly onto [0,100]; equal scores all become 100.
func rescale(ranked []models.RankedProduct) {
	if len(ranked) == 0 {
		return
	}
	lo, hi := ranked[0].Score, ranked[0].Score
	for _, r := range ranked[1:] {
		lo = math.Min(lo, r.Score)
		hi = math.Max(hi, r.Score)
	}
	span := hi - lo
	for i := range ranked {
		if span > 0 {
			ranked[i].Score = (ranked[i].Score - lo) / span * 100
		} else {
			ranked[i].Score = 100
		}
	}
}
