// Package explain derives per-product importance summaries from a fitted model.
package explain

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
)

// DefaultBaseline is the normalized condition value importances are measured from.
const DefaultBaseline = 0.5

// otherTheme collects indicators that belong to no known categorical column.
const otherTheme = "other"

// Explainer summarises how products respond to conditions.
type Explainer struct {
	model  *models.Model
	logger *slog.Logger
}

// New constructs an Explainer over model.
func New(logger *slog.Logger, model *models.Model) (*Explainer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if model == nil || model.Schema == nil {
		return nil, models.NewConfigurationError("new explainer", "model has no feature metadata")
	}
	sorted := &models.Model{Schema: model.Schema, Products: slices.Clone(model.Products)}
	sorted.SortProducts()
	return &Explainer{model: sorted, logger: logger}, nil
}

// Explain returns numeric importance around baseline and grouped indicator
// sensitivity for product id. topK <= 0 keeps every numeric feature.
func (e *Explainer) Explain(id models.ProductID, baseline float64, topK int) (models.ProductExplanation, error) {
	p, ok := e.model.Product(id)
	if !ok {
		return models.ProductExplanation{}, models.NewValidationError("product_id", id, "unknown product")
	}
	if baseline < 0 || baseline > 1 {
		return models.ProductExplanation{}, models.NewValidationError("baseline", baseline, "must lie in [0,1]")
	}

	out := models.ProductExplanation{
		ID:         p.ID,
		Name:       p.Name,
		Baseline:   baseline,
		Numeric:    NumericImportance(p, e.model.Schema, baseline, topK),
		Indicators: IndicatorSensitivity(p, e.model.Schema),
	}
	e.logger.Debug("product explained",
		slog.String("product_id", id.String()),
		slog.Int("numeric", len(out.Numeric)),
		slog.Int("themes", len(out.Indicators)))
	return out, nil
}

// NumericImportance scores each continuous feature by the utility lost when the
// condition sits at baseline instead of the product's ideal point.
func NumericImportance(p *models.ProductParams, schema *models.FeatureSchema, baseline float64, topK int) []models.FeatureContribution {
	names := schema.Continuous()
	out := make([]models.FeatureContribution, 0, len(names))
	for i, name := range names {
		if i >= len(p.IdealPoint) || i >= len(p.Sensitivity) {
			break
		}
		d := baseline - p.IdealPoint[i]
		out = append(out, models.FeatureContribution{Feature: name, Magnitude: p.Sensitivity[i] * d * d})
	}
	sortDescending(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// IndicatorSensitivity groups |β| by categorical theme in the normalizer's group
// order, with unrecognised indicators last under "other".
func IndicatorSensitivity(p *models.ProductParams, schema *models.FeatureSchema) []models.IndicatorGroup {
	byTheme := make(map[string][]models.FeatureContribution)
	for i, name := range schema.Indicators() {
		weight := 0.0
		if i < len(p.IndicatorWeight) {
			weight = p.IndicatorWeight[i]
		}
		theme := otherTheme
		if g, _, ok := normalize.GroupOf(name); ok {
			theme = g.Column
		}
		if weight < 0 {
			weight = -weight
		}
		byTheme[theme] = append(byTheme[theme], models.FeatureContribution{Feature: name, Magnitude: weight})
	}

	themes := make([]string, 0, len(byTheme))
	for _, g := range normalize.Groups() {
		themes = append(themes, g.Column)
	}
	themes = append(themes, otherTheme)

	var out []models.IndicatorGroup
	for _, theme := range themes {
		features, ok := byTheme[theme]
		if !ok {
			continue
		}
		sortDescending(features)
		out = append(out, models.IndicatorGroup{Theme: theme, Features: features})
	}
	return out
}

func sortDescending(items []models.FeatureContribution) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Magnitude > items[j].Magnitude
	})
}

// Summary renders an explanation as short human-readable lines.
func Summary(e models.ProductExplanation) []string {
	lines := []string{fmt.Sprintf("%s (%s) at baseline %.2f", e.Name, e.ID, e.Baseline)}
	for _, c := range e.Numeric {
		lines = append(lines, fmt.Sprintf("  %-16s %.4f", c.Feature, c.Magnitude))
	}
	for _, g := range e.Indicators {
		if len(g.Features) == 0 {
			continue
		}
		top := g.Features[0]
		lines = append(lines, fmt.Sprintf("  %-16s strongest %s %.4f", g.Theme, top.Feature, top.Magnitude))
	}
	return lines
}
