package normalize

import (
	"testing"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

func TestQueryNormalizesOnce(t *testing.T) {
	q := models.Query{
		"air_temp *":   -15,
		"hardness *":   "H2",
		"wind":         "M",
		"snow_type_NS": 1,
	}
	vec, err := Query(q, Schema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]float64{
		AirTemp:                0.5,
		SnowTemp:               0.66,
		Hardness:               0.2,
		Wind:                   0.667,
		SnowMoisture:           0.24,
		AirHumidity:            0.72,
		"snow_type_NS":         1,
		"clouds_partly_cloudy": 1,
		"track_none":           1,
	}
	for name, expected := range want {
		if got, _ := vec.Get(name); !approx(got, expected) {
			t.Fatalf("%s: expected %v, got %v", name, expected, got)
		}
	}
	if _, err := Canonical(vec); err != nil {
		t.Fatalf("query vector is not canonical: %v", err)
	}
}

func TestQueryMatchesRecord(t *testing.T) {
	raw := models.RawConditionRecord{
		AirTemp:      ptr(-7),
		SnowTemp:     ptr(-9),
		Hardness:     "H4",
		Wind:         "S",
		SnowMoisture: "W2",
		AirHumidity:  ptr(85),
		Clouds:       "cloudy",
		SnowType:     "A3",
		Track:        "T2",
	}
	fromRecord, err := Record(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromQuery, err := Query(models.Query{
		"air_temp":      -7.0,
		"snow_temp":     "-9",
		"hardness":      "H4",
		"wind":          "S",
		"snow_moisture": "W2",
		"air_humidity":  85,
		"clouds":        "cloudy",
		"snow_type":     "A3",
		"track_T2":      true,
	}, Schema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range fromRecord.Values {
		if fromRecord.Values[i] != fromQuery.Values[i] {
			t.Fatalf("%s: record %v, query %v", Schema().Name(i), fromRecord.Values[i], fromQuery.Values[i])
		}
	}
}

func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name  string
		query models.Query
		field string
	}{
		{name: "missing air temperature", query: models.Query{"hardness": "H1", "snow_type_A1": 1}, field: AirTemp},
		{name: "missing hardness", query: models.Query{"air_temp": -5, "snow_type_A1": 1}, field: Hardness},
		{name: "no snow type", query: models.Query{"air_temp": -5, "hardness": "H1"}, field: SnowType},
		{name: "snow type set to zero", query: models.Query{"air_temp": -5, "hardness": "H1", "snow_type_A1": 0}, field: SnowType},
		{name: "two snow types", query: models.Query{"air_temp": -5, "hardness": "H1", "snow_type_A1": 1, "snow_type": "FS"}, field: SnowType},
		{name: "unmapped hardness code", query: models.Query{"air_temp": -5, "hardness": "H9", "snow_type_A1": 1}, field: Hardness},
		{name: "unmapped wind code", query: models.Query{"air_temp": -5, "hardness": "H1", "wind": "storm", "snow_type_A1": 1}, field: Wind},
		{name: "air temperature out of range", query: models.Query{"air_temp": -60, "hardness": "H1", "snow_type_A1": 1}, field: AirTemp},
		{name: "indicator not binary", query: models.Query{"air_temp": -5, "hardness": "H1", "snow_type_A1": 0.5}, field: "snow_type_A1"},
		{name: "unknown indicator", query: models.Query{"air_temp": -5, "hardness": "H1", "snow_type_QQ": 1}, field: "snow_type_QQ"},
		{name: "two cloud states", query: models.Query{"air_temp": -5, "hardness": "H1", "snow_type_A1": 1, "clouds_fog": 1, "clouds_cloudy": 1}, field: Clouds},
		{name: "duplicate after cleaning", query: models.Query{"air_temp": -5, "air_temp *": -4, "hardness": "H1", "snow_type_A1": 1}, field: AirTemp},
		{name: "non numeric temperature", query: models.Query{"air_temp": "cold", "hardness": "H1", "snow_type_A1": 1}, field: AirTemp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Query(tt.query, Schema())
			ve, ok := err.(*models.ValidationError)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("expected field %s, got %s (%v)", tt.field, ve.Field, err)
			}
		})
	}
}

func TestQueryUsesModelSchema(t *testing.T) {
	schema, err := models.NewFeatureSchema([]string{AirTemp, Hardness}, []string{"snow_type_FS", "snow_type_NS"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vec, err := Query(models.Query{"air_temp": 0, "hardness": 6, "snow_type_NS": 1}, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec.Values) != 4 {
		t.Fatalf("expected 4 values, got %d", len(vec.Values))
	}
	if vec.Values[0] != 0.8 || vec.Values[1] != 1 || vec.Values[2] != 0 || vec.Values[3] != 1 {
		t.Fatalf("unexpected vector %v", vec.Values)
	}
}
