package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

// CleanKey strips the trailing required-field marker ("*") and surrounding spaces.
func CleanKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimSuffix(key, "*")
	return strings.TrimSpace(key)
}

// Query prepares a prediction query for schema. Continuous values are given in raw
// units (or as codes for hardness, wind and snow moisture) and are scaled exactly
// as Record does. Categorical values may be given either as indicator features
// set to 1 or as a label under the column name (snow_type, clouds, track).
//
// Missing continuous features fall back to the default table; snow temperature is
// derived from air temperature. An indicator group with no member set receives its
// default member; snow type has no default and must be set.
func Query(q models.Query, schema *models.FeatureSchema) (models.FeatureVector, error) {
	vec := models.NewFeatureVector(schema)

	clean := make(map[string]any, len(q))
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := CleanKey(k)
		if _, dup := clean[name]; dup {
			return vec, models.NewValidationError(name, nil, "given more than once")
		}
		clean[name] = q[k]
	}

	for _, field := range requiredFields {
		if v, ok := clean[field]; !ok || v == nil {
			return vec, models.NewValidationError(field, nil, "required")
		}
	}

	raw := make(map[string]float64, len(continuousOrder))
	for _, feature := range continuousOrder {
		value, ok := clean[feature]
		if !ok || value == nil {
			continue
		}
		x, err := continuousValue(feature, value)
		if err != nil {
			return vec, err
		}
		raw[feature] = x
	}

	for _, feature := range schema.Continuous() {
		x, ok := raw[feature]
		if !ok {
			switch feature {
			case SnowTemp:
				x = domainRanges[SnowTemp].Clip(raw[AirTemp] - snowTempOffset)
			default:
				d, has := continuousDefaults[feature]
				if !has {
					return vec, models.NewValidationError(feature, nil, "required")
				}
				x = d
			}
		}
		if err := setScaled(vec, feature, x); err != nil {
			return vec, err
		}
	}

	hot, err := hotMembers(clean)
	if err != nil {
		return vec, err
	}
	for _, g := range groups {
		members := hot[g.Column]
		switch {
		case len(members) > 1:
			return vec, models.NewValidationError(g.Column, strings.Join(members, ","), "more than one value set")
		case len(members) == 0 && g.Default == "":
			return vec, models.NewValidationError(g.Column, nil, fmt.Sprintf("at least one %s indicator must be 1", g.Column))
		case len(members) == 0:
			members = []string{g.Default}
		}
		// Indicators missing from the schema contribute nothing to the utility.
		vec.Set(g.Indicator(members[0]), 1)
	}
	return vec, nil
}

func hotMembers(clean map[string]any) (map[string][]string, error) {
	hot := make(map[string][]string)
	add := func(column, value string) {
		for _, v := range hot[column] {
			if v == value {
				return
			}
		}
		hot[column] = append(hot[column], value)
	}

	for _, g := range groups {
		label, ok := clean[g.Column]
		if !ok || label == nil {
			continue
		}
		s, isString := label.(string)
		s = strings.TrimSpace(s)
		if !isString || !g.Has(s) {
			return nil, models.NewValidationError(g.Column, label, "not an enumerated value")
		}
		add(g.Column, s)
	}

	names := make([]string, 0, len(clean))
	for name := range clean {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g, value, ok := GroupOf(name)
		if !ok {
			continue
		}
		if !g.Has(value) {
			return nil, models.NewValidationError(name, clean[name], "not an enumerated indicator")
		}
		flag, err := indicatorValue(name, clean[name])
		if err != nil {
			return nil, err
		}
		if flag {
			add(g.Column, value)
		}
	}
	return hot, nil
}

func continuousValue(feature string, value any) (float64, error) {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		switch feature {
		case Hardness:
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return HardnessOrdinal(s)
			}
		case Wind:
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return WindOrdinal(s)
			}
		case SnowMoisture:
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return MoistureValue(s)
			}
		}
	}
	x, ok := toFloat(value)
	if !ok {
		return 0, models.NewValidationError(feature, value, "not a number")
	}
	return x, nil
}

func indicatorValue(name string, value any) (bool, error) {
	if b, ok := value.(bool); ok {
		return b, nil
	}
	x, ok := toFloat(value)
	if !ok || (x != 0 && x != 1) {
		return false, models.NewValidationError(name, value, "indicator must be 0 or 1")
	}
	return x == 1, nil
}

func toFloat(value any) (float64, bool) {
	var x float64
	switch v := value.(type) {
	case float64:
		x = v
	case float32:
		x = float64(v)
	case int:
		x = float64(v)
	case int32:
		x = float64(v)
	case int64:
		x = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		x = f
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		x = f
	default:
		return 0, false
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return x, true
}
