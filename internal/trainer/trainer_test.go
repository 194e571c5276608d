package trainer

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/utility"
)

var (
	testContinuous = []string{"air_temp", "hardness"}
	testIndicators = []string{"snow_type_FS", "snow_type_NS"}
)

func testSchema(t *testing.T) *models.FeatureSchema {
	t.Helper()
	s, err := models.NewFeatureSchema(testContinuous, testIndicators)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func pair(schema *models.FeatureSchema, winner, loser models.ProductID, name string, values ...float64) models.PairwiseObservation {
	return models.PairwiseObservation{
		WinnerID:   winner,
		WinnerName: name,
		LoserID:    loser,
		Features:   models.FeatureVector{Schema: schema, Values: values},
	}
}

// seasonalPairs has product 1 winning on cold new snow and product 2 winning on warm old snow.
func seasonalPairs(schema *models.FeatureSchema) []models.PairwiseObservation {
	var pairs []models.PairwiseObservation
	for i := 0; i < 10; i++ {
		pairs = append(pairs,
			pair(schema, 1, 2, "Cold Glide", 0.1, 0.3, 1, 0),
			pair(schema, 2, 1, "Warm Klister", 0.9, 0.7, 0, 1),
			pair(schema, 1, 3, "Cold Glide", 0.15, 0.3, 1, 0),
		)
	}
	return pairs
}

func TestLayoutPackUnpack(t *testing.T) {
	layout := Layout{Products: []models.ProductID{4, 9}, NumContinuous: 2, NumIndicators: 3}
	if layout.Stride() != 8 || layout.Len() != 16 {
		t.Fatalf("expected stride 8 and length 16, got %d and %d", layout.Stride(), layout.Len())
	}
	params := []models.ProductParams{
		{ID: 4, IdealPoint: []float64{0.1, 0.2}, Sensitivity: []float64{1, 2}, IndicatorWeight: []float64{3, 4, 5}, Intercept: 6},
		{ID: 9, IdealPoint: []float64{0.7, 0.8}, Sensitivity: []float64{7, 8}, IndicatorWeight: []float64{9, 10, 11}, Intercept: 12},
	}
	theta := layout.Pack(params)
	want := []float64{0.1, 0.2, 1, 2, 3, 4, 5, 6, 0.7, 0.8, 7, 8, 9, 10, 11, 12}
	for i := range want {
		if theta[i] != want[i] {
			t.Fatalf("position %d: expected %v, got %v", i, want[i], theta[i])
		}
	}

	out := layout.Unpack(theta, map[models.ProductID]string{4: "Four"})
	if out[0].Name != "Four" || out[1].Name != "9" {
		t.Fatalf("unexpected names %q, %q", out[0].Name, out[1].Name)
	}
	if out[1].Intercept != 12 || out[1].IndicatorWeight[2] != 11 || out[0].Sensitivity[1] != 2 {
		t.Fatalf("unpack did not invert pack: %+v", out)
	}
	theta[0] = 99
	if out[0].IdealPoint[0] == 99 {
		t.Fatalf("unpacked params alias the packed vector")
	}
}

func TestLayoutBoundsAndInit(t *testing.T) {
	layout := Layout{Products: []models.ProductID{1, 2, 3}, NumContinuous: 2, NumIndicators: 2}
	b := layout.Bounds()
	init := layout.Init(17)
	again := layout.Init(17)

	for p := range layout.Products {
		view := layout.View(init, p)
		for f := 0; f < 2; f++ {
			if view.IdealPoint[f] < 0 || view.IdealPoint[f] > 1 {
				t.Fatalf("ideal point out of [0,1]: %v", view.IdealPoint[f])
			}
			if view.Sensitivity[f] < 0.1 || view.Sensitivity[f] > 2 {
				t.Fatalf("sensitivity out of [0.1,2]: %v", view.Sensitivity[f])
			}
			if b.Lower[layout.idealOffset(p)+f] != 0 || b.Upper[layout.idealOffset(p)+f] != 1 {
				t.Fatalf("ideal point bounds wrong")
			}
			if b.Lower[layout.sensOffset(p)+f] != SensitivityFloor || !math.IsInf(b.Upper[layout.sensOffset(p)+f], 1) {
				t.Fatalf("sensitivity bounds wrong")
			}
		}
		for _, w := range view.IndicatorWeight {
			if w != 0 {
				t.Fatalf("indicator weights must start at zero")
			}
		}
		if view.Intercept != 0 {
			t.Fatalf("intercept must start at zero")
		}
		if !math.IsInf(b.Lower[layout.interceptOffset(p)], -1) {
			t.Fatalf("intercept must be unbounded")
		}
	}
	for i := range init {
		if init[i] != again[i] {
			t.Fatalf("initialization is not reproducible at %d", i)
		}
	}
}

func TestObjectiveAtZeroDifference(t *testing.T) {
	schema := testSchema(t)
	pairs := []models.PairwiseObservation{pair(schema, 1, 2, "", 0.5, 0.5, 1, 0)}
	layout, index, _ := productIndex(pairs, schema)
	obj := newObjective(layout, pairs, index, 0)
	theta := make([]float64, layout.Len())
	grad := make([]float64, layout.Len())
	f := obj.Value(theta, grad)
	if math.Abs(f-math.Log(2)) > 1e-9 {
		t.Fatalf("expected log 2, got %v", f)
	}
	// Intercept gradient is −½ for the winner and +½ for the loser.
	if math.Abs(grad[layout.interceptOffset(0)]+0.5) > 1e-9 || math.Abs(grad[layout.interceptOffset(1)]-0.5) > 1e-9 {
		t.Fatalf("unexpected intercept gradients %v, %v", grad[layout.interceptOffset(0)], grad[layout.interceptOffset(1)])
	}
}

func TestObjectiveGradientMatchesFiniteDifferences(t *testing.T) {
	schema := testSchema(t)
	pairs := seasonalPairs(schema)
	layout, index, _ := productIndex(pairs, schema)
	obj := newObjective(layout, pairs, index, 0.1)

	theta := layout.Init(5)
	for i := range theta {
		theta[i] += 0.05 * float64(i%7)
	}
	grad := make([]float64, len(theta))
	obj.Value(theta, grad)

	scratch := make([]float64, len(theta))
	const h = 1e-6
	for i := range theta {
		orig := theta[i]
		theta[i] = orig + h
		up := obj.Value(theta, scratch)
		theta[i] = orig - h
		down := obj.Value(theta, scratch)
		theta[i] = orig
		numeric := (up - down) / (2 * h)
		if math.Abs(numeric-grad[i]) > 1e-4*math.Max(1, math.Abs(numeric)) {
			t.Fatalf("parameter %d: analytic %v, numeric %v", i, grad[i], numeric)
		}
	}
}

func TestFitLearnsConditionPreferences(t *testing.T) {
	schema := testSchema(t)
	pairs := seasonalPairs(schema)

	model, report, err := New(nil, DefaultConfig()).Fit(context.Background(), pairs, testContinuous, testIndicators)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if report.Products != 3 || report.Pairs != 30 || report.Parameters != 3*7 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(model.Products) != 3 || model.Products[0].ID != 1 || model.Products[2].ID != 3 {
		t.Fatalf("expected products sorted by id, got %+v", model.Products)
	}
	if model.Products[0].Name != "Cold Glide" || model.Products[1].Name != "Warm Klister" || model.Products[2].Name != "3" {
		t.Fatalf("unexpected names %q %q %q", model.Products[0].Name, model.Products[1].Name, model.Products[2].Name)
	}

	cold := models.FeatureVector{Schema: schema, Values: []float64{0.1, 0.3, 1, 0}}
	warm := models.FeatureVector{Schema: schema, Values: []float64{0.9, 0.7, 0, 1}}
	a, _ := model.Product(1)
	b, _ := model.Product(2)
	if utility.EvaluateVector(a, cold) <= utility.EvaluateVector(b, cold) {
		t.Fatalf("expected product 1 preferred in cold conditions")
	}
	if utility.EvaluateVector(b, warm) <= utility.EvaluateVector(a, warm) {
		t.Fatalf("expected product 2 preferred in warm conditions")
	}

	for _, p := range model.Products {
		for f := range p.IdealPoint {
			if p.IdealPoint[f] < 0 || p.IdealPoint[f] > 1 {
				t.Fatalf("ideal point outside [0,1]: %v", p.IdealPoint[f])
			}
			if p.Sensitivity[f] < SensitivityFloor {
				t.Fatalf("sensitivity below floor: %v", p.Sensitivity[f])
			}
		}
	}
}

func TestFitIsDeterministic(t *testing.T) {
	schema := testSchema(t)
	pairs := seasonalPairs(schema)
	cfg := DefaultConfig()
	cfg.MaxIterations = 25

	first, _, err := New(nil, cfg).Fit(context.Background(), pairs, testContinuous, testIndicators)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	second, _, err := New(nil, cfg).Fit(context.Background(), pairs, testContinuous, testIndicators)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	for p := range first.Products {
		if first.Products[p].Intercept != second.Products[p].Intercept {
			t.Fatalf("product %d: intercepts differ between runs", first.Products[p].ID)
		}
		for f := range first.Products[p].IdealPoint {
			if first.Products[p].IdealPoint[f] != second.Products[p].IdealPoint[f] {
				t.Fatalf("product %d: ideal points differ between runs", first.Products[p].ID)
			}
		}
	}
}

func TestFitIterationCapIsBestEffort(t *testing.T) {
	schema := testSchema(t)
	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	model, report, err := New(nil, cfg).Fit(context.Background(), seasonalPairs(schema), testContinuous, testIndicators)
	if err != nil {
		t.Fatalf("iteration cap must not fail the run: %v", err)
	}
	if model == nil || report.Converged {
		t.Fatalf("expected unconverged best-effort model, got converged=%v", report.Converged)
	}
}

func TestFitConfigurationErrors(t *testing.T) {
	schema := testSchema(t)
	other, _ := models.NewFeatureSchema([]string{"air_temp", "wind"}, testIndicators)
	fewer, _ := models.NewFeatureSchema([]string{"air_temp"}, testIndicators)

	tests := []struct {
		name       string
		pairs      []models.PairwiseObservation
		continuous []string
	}{
		{name: "empty dataset", pairs: nil, continuous: testContinuous},
		{name: "undeclared feature", pairs: []models.PairwiseObservation{pair(other, 1, 2, "", 0.1, 0.2, 1, 0)}, continuous: testContinuous},
		{name: "declared feature missing", pairs: []models.PairwiseObservation{pair(fewer, 1, 2, "", 0.1, 1, 0)}, continuous: testContinuous},
		{name: "no layout", pairs: []models.PairwiseObservation{{WinnerID: 1, LoserID: 2}}, continuous: testContinuous},
		{name: "duplicate declaration", pairs: []models.PairwiseObservation{pair(schema, 1, 2, "", 0.1, 0.2, 1, 0)}, continuous: []string{"air_temp", "air_temp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(nil, DefaultConfig()).Fit(context.Background(), tt.pairs, tt.continuous, testIndicators)
			if !models.IsConfiguration(err) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestFitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(nil, DefaultConfig()).Fit(ctx, seasonalPairs(testSchema(t)), testContinuous, testIndicators)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
