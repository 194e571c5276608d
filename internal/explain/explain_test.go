package explain

import (
	"math"
	"strings"
	"testing"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

func testModel(t *testing.T) *models.Model {
	t.Helper()
	schema, err := models.NewFeatureSchema(
		[]string{"air_temp", "hardness", "wind"},
		[]string{"clouds_fog", "snow_type_FS", "snow_type_NS", "track_T1"},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return &models.Model{Schema: schema, Products: []models.ProductParams{
		{
			ID:              9,
			Name:            "Violet",
			IdealPoint:      []float64{0.1, 0.5, 0.9},
			Sensitivity:     []float64{2, 5, 1},
			IndicatorWeight: []float64{-0.4, 0.2, -1.5, 0.3},
		},
		{
			ID:          4,
			Name:        "Green",
			IdealPoint:  []float64{0.5, 0.5, 0.5},
			Sensitivity: []float64{1, 1, 1},
		},
	}}
}

func TestNumericImportance(t *testing.T) {
	model := testModel(t)
	p := model.Products[0]
	got := NumericImportance(&p, model.Schema, DefaultBaseline, 0)

	want := []models.FeatureContribution{
		{Feature: "air_temp", Magnitude: 0.32},
		{Feature: "wind", Magnitude: 0.16},
		{Feature: "hardness", Magnitude: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d features, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Feature != want[i].Feature || math.Abs(got[i].Magnitude-want[i].Magnitude) > 1e-12 {
			t.Fatalf("position %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	if top := NumericImportance(&p, model.Schema, DefaultBaseline, 1); len(top) != 1 || top[0].Feature != "air_temp" {
		t.Fatalf("expected top-1 air_temp, got %+v", top)
	}
}

func TestIndicatorSensitivityGroupsByTheme(t *testing.T) {
	model := testModel(t)
	groups := IndicatorSensitivity(&model.Products[0], model.Schema)

	themes := make([]string, len(groups))
	for i, g := range groups {
		themes[i] = g.Theme
	}
	if strings.Join(themes, ",") != "clouds,snow_type,track" {
		t.Fatalf("unexpected theme order %v", themes)
	}
	snow := groups[1].Features
	if snow[0].Feature != "snow_type_NS" || snow[0].Magnitude != 1.5 || snow[1].Magnitude != 0.2 {
		t.Fatalf("expected |beta| sorted descending, got %+v", snow)
	}
	if groups[0].Features[0].Magnitude != 0.4 {
		t.Fatalf("expected absolute weight for clouds_fog")
	}

	// Missing weights count as zero.
	green := IndicatorSensitivity(&model.Products[1], model.Schema)
	for _, g := range green {
		for _, f := range g.Features {
			if f.Magnitude != 0 {
				t.Fatalf("expected zero sensitivity, got %+v", f)
			}
		}
	}
}

func TestExplain(t *testing.T) {
	e, err := New(nil, testModel(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := e.Explain(9, DefaultBaseline, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "Violet" || len(out.Numeric) != 2 || len(out.Indicators) != 3 {
		t.Fatalf("unexpected explanation %+v", out)
	}
	if lines := Summary(out); len(lines) != 1+2+3 || !strings.Contains(lines[0], "Violet") {
		t.Fatalf("unexpected summary %v", lines)
	}

	if _, err := e.Explain(77, DefaultBaseline, 0); !models.IsValidation(err) {
		t.Fatalf("expected ValidationError for unknown product, got %v", err)
	}
	if _, err := e.Explain(4, 1.5, 0); !models.IsValidation(err) {
		t.Fatalf("expected ValidationError for baseline, got %v", err)
	}
	if _, err := New(nil, nil); !models.IsConfiguration(err) {
		t.Fatalf("expected ConfigurationError for nil model, got %v", err)
	}
}
