package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
	"github.com/snowflowstack/snowflow-ranker/internal/utility"
)

// Predictor ranks products for condition queries against a fitted model.
// It never mutates the model and is safe for concurrent use.
type Predictor struct {
	logger *slog.Logger
	model  *models.Model
}

// NewPredictor validates model against the normalizer's feature tables.
func NewPredictor(logger *slog.Logger, model *models.Model) (*Predictor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil || model.Schema == nil {
		return nil, models.NewConfigurationError("new predictor", "model has no feature metadata")
	}
	if len(model.Products) == 0 {
		return nil, models.NewConfigurationError("new predictor", "model has no products")
	}
	if err := normalize.CheckSchema(model.Schema); err != nil {
		return nil, err
	}
	nc, ni := model.Schema.NumContinuous(), model.Schema.NumIndicators()
	for _, p := range model.Products {
		if len(p.IdealPoint) != nc || len(p.Sensitivity) != nc || len(p.IndicatorWeight) > ni {
			return nil, models.NewConfigurationError("new predictor", fmt.Sprintf("product %s parameters do not match model features", p.ID))
		}
	}

	products := slices.Clone(model.Products)
	sort.SliceStable(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return &Predictor{logger: logger, model: &models.Model{Schema: model.Schema, Products: products}}, nil
}

// Model exposes the read-only model.
func (p *Predictor) Model() *models.Model { return p.model }

// Predict normalizes q and ranks every product.
func (p *Predictor) Predict(q models.Query, opts models.PredictOptions) (models.Prediction, error) {
	vec, err := normalize.Query(q, p.model.Schema)
	if err != nil {
		return models.Prediction{}, err
	}
	return p.rank(vec, opts), nil
}

// PredictVector ranks products for an already canonical vector.
func (p *Predictor) PredictVector(v models.FeatureVector, opts models.PredictOptions) (models.Prediction, error) {
	if !v.Schema.Equal(p.model.Schema) {
		return models.Prediction{}, models.NewConfigurationError("predict", "vector schema differs from model features")
	}
	vec, err := normalize.Canonical(v)
	if err != nil {
		return models.Prediction{}, err
	}
	return p.rank(vec, opts), nil
}

// rank scores products in id order and stably sorts by descending utility, so equal
// utilities keep ascending product id.
func (p *Predictor) rank(vec models.FeatureVector, opts models.PredictOptions) models.Prediction {
	ranked := make([]models.RankedProduct, len(p.model.Products))
	for i := range p.model.Products {
		params := &p.model.Products[i]
		ranked[i] = models.RankedProduct{ID: params.ID, Name: params.Name, Score: utility.EvaluateVector(params, vec)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if opts.TopN > 0 && opts.TopN < len(ranked) {
		ranked = ranked[:opts.TopN]
	}

	var attribution []models.FeatureContribution
	if len(ranked) > 0 {
		winner, _ := p.model.Product(ranked[0].ID)
		attribution = Attribute(winner, vec, opts.ImportanceScale, attributionLimit)
	}

	if opts.Rescale {
		rescale(ranked)
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	p.logger.Debug("prediction ranked",
		slog.Int("products", len(ranked)),
		slog.Any("winner", ranked[0].ID))
	return models.Prediction{Ranked: ranked, WinnerAttribution: attribution}
}
