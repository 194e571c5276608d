package models

import "time"

// Query maps feature names, aliases or labels to raw values.
type Query map[string]any

// PredictOptions tune a prediction call.
type PredictOptions struct {
	// TopN limits the ranking; zero or negative returns every product.
	TopN int
	// Rescale maps returned scores onto [0,100].
	Rescale bool
	// ImportanceScale multiplies attribution magnitudes as given; zero zeroes them.
	ImportanceScale float64
}

// DefaultPredictOptions returns every product, raw scores and unscaled attribution.
func DefaultPredictOptions() PredictOptions {
	return PredictOptions{ImportanceScale: 1}
}

// RankedProduct is one entry of a prediction ranking.
type RankedProduct struct {
	ID    ProductID `json:"id"`
	Name  string    `json:"name"`
	Score float64   `json:"score"`
	Rank  int       `json:"rank"`
}

// FeatureContribution is the absolute share of a feature in a utility.
type FeatureContribution struct {
	Feature   string  `json:"feature"`
	Magnitude float64 `json:"magnitude"`
}

// Prediction is the ranked output for a query.
type Prediction struct {
	Ranked            []RankedProduct       `json:"ranked_products"`
	WinnerAttribution []FeatureContribution `json:"top_features_for_winner"`
}

// IndicatorGroup collects indicator weights of one theme (clouds, snow_type, track).
type IndicatorGroup struct {
	Theme    string                `json:"theme"`
	Features []FeatureContribution `json:"features"`
}

// ProductExplanation summarises how a product responds to conditions.
type ProductExplanation struct {
	ID         ProductID             `json:"id"`
	Name       string                `json:"name"`
	Baseline   float64               `json:"baseline"`
	Numeric    []FeatureContribution `json:"numeric_importance"`
	Indicators []IndicatorGroup      `json:"indicator_sensitivity"`
}

// ModelSummary describes the model a service is serving.
type ModelSummary struct {
	Fingerprint     string    `json:"fingerprint"`
	NumericFeatures []string  `json:"numeric_features"`
	DummyFeatures   []string  `json:"dummy_features"`
	Products        []Product `json:"products"`
	LoadedAt        time.Time `json:"loaded_at"`
}
