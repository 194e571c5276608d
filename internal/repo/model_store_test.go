package repo

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

func sampleModel(t *testing.T) *models.Model {
	t.Helper()
	schema, err := models.NewFeatureSchema([]string{"air_temp", "hardness"}, []string{"snow_type_FS", "snow_type_NS"})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return &models.Model{Schema: schema, Products: []models.ProductParams{
		{ID: 12, Name: "Blue Glide", IdealPoint: []float64{0.2, 0.6}, Sensitivity: []float64{1.5, 0.3}, IndicatorWeight: []float64{0.4, -0.2}, Intercept: 0.7},
		{ID: 3, Name: "Graphite", IdealPoint: []float64{0.8, 0.1}, Sensitivity: []float64{0.9, 2}, IndicatorWeight: []float64{-0.1, 0.5}, Intercept: -0.3},
	}}
}

func TestEncodeDecodeModel(t *testing.T) {
	data, err := EncodeModel(sampleModel(t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, key := range []string{`"metadata"`, `"numeric_features"`, `"dummy_features"`, `"beta"`, `"intercept"`, `"12"`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("expected %s in document:\n%s", key, data)
		}
	}

	model, err := DecodeModel(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(model.Products) != 2 || model.Products[0].ID != 3 {
		t.Fatalf("expected products sorted by id, got %+v", model.Products)
	}
	p, ok := model.Product(12)
	if !ok || p.Name != "Blue Glide" || p.IdealPoint[1] != 0.6 || p.IndicatorWeight[1] != -0.2 || p.Intercept != 0.7 {
		t.Fatalf("unexpected product %+v", p)
	}
	if !model.Schema.Equal(sampleModel(t).Schema) {
		t.Fatalf("schema changed: %v", model.Schema.Names())
	}
}

func TestDecodeModelMissingBetaIsZero(t *testing.T) {
	doc := `{
  "7": {"id": 7, "m": {"air_temp": 0.5}, "s": {"air_temp": 1}, "beta": {"snow_type_NS": 2}, "intercept": 1},
  "metadata": {"numeric_features": ["air_temp"], "dummy_features": ["snow_type_FS", "snow_type_NS"]}
}`
	model, err := DecodeModel([]byte(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := model.Products[0]
	if p.Name != "7" || p.IndicatorWeight[0] != 0 || p.IndicatorWeight[1] != 2 {
		t.Fatalf("unexpected product %+v", p)
	}
}

func TestDecodeModelRejectsInvalidDocuments(t *testing.T) {
	meta := `"metadata": {"numeric_features": ["air_temp"], "dummy_features": ["snow_type_FS"]}`
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{`},
		{name: "missing metadata", doc: `{"1": {"m": {"air_temp": 0.5}, "s": {"air_temp": 1}}}`},
		{name: "no products", doc: `{` + meta + `}`},
		{name: "non integer key", doc: `{"abc": {"m": {"air_temp": 0.5}, "s": {"air_temp": 1}}, ` + meta + `}`},
		{name: "id mismatch", doc: `{"1": {"id": 2, "m": {"air_temp": 0.5}, "s": {"air_temp": 1}}, ` + meta + `}`},
		{name: "missing numeric feature", doc: `{"1": {"m": {"snow_temp": 0.5}, "s": {"air_temp": 1}}, ` + meta + `}`},
		{name: "extra numeric feature", doc: `{"1": {"m": {"air_temp": 0.5, "wind": 0}, "s": {"air_temp": 1}}, ` + meta + `}`},
		{name: "undeclared beta", doc: `{"1": {"m": {"air_temp": 0.5}, "s": {"air_temp": 1}, "beta": {"track_T1": 1}}, ` + meta + `}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeModel([]byte(tt.doc)); !models.IsConfiguration(err) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestModelFileSaveLoad(t *testing.T) {
	ctx := context.Background()
	file := NewModelFile(filepath.Join(t.TempDir(), "models", "product_model.json"))
	if err := file.SaveModel(ctx, sampleModel(t)); err != nil {
		t.Fatalf("save: %v", err)
	}
	model, err := file.LoadModel(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(model.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(model.Products))
	}

	if _, err := NewModelFile(filepath.Join(t.TempDir(), "missing.json")).LoadModel(ctx); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(sampleModel(t))
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, _ := Fingerprint(sampleModel(t))
	if a != b || len(a) != 16 {
		t.Fatalf("expected stable 16-char fingerprint, got %q and %q", a, b)
	}
	changed := sampleModel(t)
	changed.Products[0].Intercept = 9
	if c, _ := Fingerprint(changed); c == a {
		t.Fatalf("expected fingerprint to change with parameters")
	}
}
