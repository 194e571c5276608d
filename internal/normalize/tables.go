// Package normalize turns raw test conditions and prediction queries into canonical
// feature vectors. It owns every feature name, domain range and code table so that
// training and prediction scale values identically.
package normalize

import (
	"fmt"
	"strings"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

// Continuous feature names.
const (
	AirTemp      = "air_temp"
	SnowTemp     = "snow_temp"
	Hardness     = "hardness"
	Wind         = "wind"
	SnowMoisture = "snow_moisture"
	AirHumidity  = "air_humidity"
)

// Categorical columns expanded into indicators.
const (
	Clouds   = "clouds"
	SnowType = "snow_type"
	Track    = "track"
)

// snowTempOffset is subtracted from air temperature when snow temperature is missing.
const snowTempOffset = 2.0

// Range is a closed domain interval in raw units.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether x lies in the closed interval.
func (r Range) Contains(x float64) bool { return x >= r.Min && x <= r.Max }

// Clip bounds x to the interval.
func (r Range) Clip(x float64) float64 {
	if x < r.Min {
		return r.Min
	}
	if x > r.Max {
		return r.Max
	}
	return x
}

var continuousOrder = []string{AirTemp, SnowTemp, Hardness, Wind, SnowMoisture, AirHumidity}

var domainRanges = map[string]Range{
	AirTemp:      {Min: -40, Max: 10},
	SnowTemp:     {Min: -50, Max: 0},
	Hardness:     {Min: 1, Max: 6},
	Wind:         {Min: 0, Max: 3},
	SnowMoisture: {Min: 0, Max: 100},
	AirHumidity:  {Min: 0, Max: 100},
}

var continuousDefaults = map[string]float64{
	AirHumidity:  72,
	Wind:         1,
	SnowMoisture: 24,
}

var requiredFields = []string{AirTemp, Hardness}

// Group is a closed categorical enumeration expanded into one indicator per value.
type Group struct {
	Column string
	Values []string
	// Default is used when the value is missing. Empty means the column is required.
	Default string
}

// Indicator returns the indicator feature name for value.
func (g Group) Indicator(value string) string { return g.Column + "_" + value }

// Has reports whether value is enumerated by the group.
func (g Group) Has(value string) bool {
	for _, v := range g.Values {
		if v == value {
			return true
		}
	}
	return false
}

var groups = []Group{
	{Column: Clouds, Values: []string{"clear_sky", "partly_cloudy", "cloudy", "fog"}, Default: "partly_cloudy"},
	{Column: SnowType, Values: []string{"A1", "A2", "A3", "A4", "A5", "FS", "NS", "IN", "IT", "TR"}},
	{Column: Track, Values: []string{"none", "T1", "T2", "D1", "D2"}, Default: "none"},
}

var (
	hardnessCodes = map[string]float64{"H1": 1, "H2": 2, "H3": 3, "H4": 4, "H5": 5, "H6": 6}
	windCodes     = map[string]float64{"S": 0, "L": 1, "M": 2, "ST": 3}
	moistureCodes = map[string]float64{"DS": 11, "W1": 26, "W2": 43, "W3": 65, "W4": 88}
	// cloudCodes are the cloud cover codes stored by the test registry.
	cloudCodes = map[string]string{"1": "clear_sky", "2": "partly_cloudy", "3": "cloudy", "4": "fog"}
)

var canonicalSchema = mustSchema()

func mustSchema() *models.FeatureSchema {
	var indicators []string
	for _, g := range groups {
		for _, v := range g.Values {
			indicators = append(indicators, g.Indicator(v))
		}
	}
	schema, err := models.NewFeatureSchema(continuousOrder, indicators)
	if err != nil {
		panic(err)
	}
	return schema
}

// Schema returns the canonical feature schema produced by Record.
func Schema() *models.FeatureSchema { return canonicalSchema }

// DomainRange returns the raw-unit range of a continuous feature.
func DomainRange(feature string) (Range, bool) {
	r, ok := domainRanges[feature]
	return r, ok
}

// Groups returns the categorical enumerations in indicator order.
func Groups() []Group {
	out := make([]Group, len(groups))
	copy(out, groups)
	return out
}

// GroupOf resolves an indicator feature name to its group and value.
func GroupOf(indicator string) (Group, string, bool) {
	for _, g := range groups {
		prefix := g.Column + "_"
		if strings.HasPrefix(indicator, prefix) {
			return g, strings.TrimPrefix(indicator, prefix), true
		}
	}
	return Group{}, "", false
}

// IsIndicator reports whether a column name carries an indicator prefix.
func IsIndicator(name string) bool {
	_, _, ok := GroupOf(name)
	return ok
}

// CheckSchema verifies that every feature of schema is known to the normalizer.
func CheckSchema(schema *models.FeatureSchema) error {
	for _, f := range schema.Continuous() {
		if _, ok := domainRanges[f]; !ok {
			return models.NewConfigurationError("check schema", fmt.Sprintf("unknown continuous feature %q", f))
		}
	}
	for _, f := range schema.Indicators() {
		g, v, ok := GroupOf(f)
		if !ok || !g.Has(v) {
			return models.NewConfigurationError("check schema", fmt.Sprintf("unknown indicator feature %q", f))
		}
	}
	return nil
}

// HardnessOrdinal maps a hardness code to its ordinal.
func HardnessOrdinal(code string) (float64, error) {
	v, ok := hardnessCodes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return 0, models.NewValidationError(Hardness, code, "unknown hardness code")
	}
	return v, nil
}

// WindOrdinal maps a wind code to its ordinal.
func WindOrdinal(code string) (float64, error) {
	v, ok := windCodes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return 0, models.NewValidationError(Wind, code, "unknown wind code")
	}
	return v, nil
}

// MoistureValue maps a snow moisture bucket code to its representative percentage.
func MoistureValue(code string) (float64, error) {
	v, ok := moistureCodes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return 0, models.NewValidationError(SnowMoisture, code, "unknown snow moisture code")
	}
	return v, nil
}

// CloudLabel maps a registry cloud code ("1".."4") to its label.
func CloudLabel(code string) (string, error) {
	v, ok := cloudCodes[strings.TrimSpace(code)]
	if !ok {
		return "", models.NewValidationError(Clouds, code, "unknown cloud code")
	}
	return v, nil
}
