package normalize

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

// Scale maps x from [min, max] onto [0,1], rounded to three decimals.
// A degenerate range yields 0.
func Scale(x, min, max float64) float64 {
	if max == min {
		return 0
	}
	return math.Round((x-min)/(max-min)*1000) / 1000
}

func scaleFeature(feature string, raw float64) (float64, error) {
	r := domainRanges[feature]
	if math.IsNaN(raw) || !r.Contains(raw) {
		return 0, models.NewValidationError(feature, raw, "outside domain range")
	}
	return Scale(raw, r.Min, r.Max), nil
}

// Record normalizes one raw test record into the canonical schema.
func Record(raw models.RawConditionRecord) (models.FeatureVector, error) {
	vec := models.NewFeatureVector(canonicalSchema)

	if raw.AirTemp == nil {
		return vec, models.NewValidationError(AirTemp, nil, "required")
	}
	airTemp := *raw.AirTemp
	if err := setScaled(vec, AirTemp, airTemp); err != nil {
		return vec, err
	}

	if raw.SnowTemp != nil {
		if err := setScaled(vec, SnowTemp, *raw.SnowTemp); err != nil {
			return vec, err
		}
	} else {
		derived := domainRanges[SnowTemp].Clip(airTemp - snowTempOffset)
		if err := setScaled(vec, SnowTemp, derived); err != nil {
			return vec, err
		}
	}

	if strings.TrimSpace(raw.Hardness) == "" {
		return vec, models.NewValidationError(Hardness, nil, "required")
	}
	hardness, err := HardnessOrdinal(raw.Hardness)
	if err != nil {
		return vec, err
	}
	if err := setScaled(vec, Hardness, hardness); err != nil {
		return vec, err
	}

	wind := continuousDefaults[Wind]
	if strings.TrimSpace(raw.Wind) != "" {
		if wind, err = WindOrdinal(raw.Wind); err != nil {
			return vec, err
		}
	}
	if err := setScaled(vec, Wind, wind); err != nil {
		return vec, err
	}

	moisture, err := moistureFromRecord(raw.SnowMoisture)
	if err != nil {
		return vec, err
	}
	if err := setScaled(vec, SnowMoisture, moisture); err != nil {
		return vec, err
	}

	humidity := continuousDefaults[AirHumidity]
	if raw.AirHumidity != nil {
		humidity = *raw.AirHumidity
	}
	if err := setScaled(vec, AirHumidity, humidity); err != nil {
		return vec, err
	}

	categories := map[string]string{Clouds: raw.Clouds, SnowType: raw.SnowType, Track: raw.Track}
	for _, g := range groups {
		value := strings.TrimSpace(categories[g.Column])
		if value == "" {
			if g.Default == "" {
				return vec, models.NewValidationError(g.Column, nil, "required")
			}
			value = g.Default
		}
		if !g.Has(value) {
			return vec, models.NewValidationError(g.Column, value, "not an enumerated value")
		}
		vec.Set(g.Indicator(value), 1)
	}
	return vec, nil
}

func setScaled(vec models.FeatureVector, feature string, raw float64) error {
	scaled, err := scaleFeature(feature, raw)
	if err != nil {
		return err
	}
	vec.Set(feature, scaled)
	return nil
}

func moistureFromRecord(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return continuousDefaults[SnowMoisture], nil
	}
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		return v, nil
	}
	return MoistureValue(value)
}

// NormalizedRecord is a test's canonical conditions.
type NormalizedRecord struct {
	TestID   int64
	Date     time.Time
	Location string
	Features models.FeatureVector
}

// FilterReport counts rows dropped during batch normalization, keyed by offending field.
type FilterReport struct {
	Total   int
	Kept    int
	Dropped map[string]int
}

// DroppedTotal is the number of rows filtered out.
func (r FilterReport) DroppedTotal() int { return r.Total - r.Kept }

// Batch normalizes every record, dropping rows that fail validation.
func Batch(raws []models.RawConditionRecord) ([]NormalizedRecord, FilterReport) {
	report := FilterReport{Total: len(raws), Dropped: make(map[string]int)}
	out := make([]NormalizedRecord, 0, len(raws))
	for _, raw := range raws {
		vec, err := Record(raw)
		if err != nil {
			reason := "unknown"
			var ve *models.ValidationError
			if errors.As(err, &ve) {
				reason = ve.Field
			}
			report.Dropped[reason]++
			continue
		}
		out = append(out, NormalizedRecord{
			TestID:   raw.TestID,
			Date:     raw.Date,
			Location: raw.Location,
			Features: vec,
		})
	}
	report.Kept = len(out)
	return out, report
}
