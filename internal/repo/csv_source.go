package repo

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/utils"
)

// Raw data file names inside a CSV source directory.
const (
	TestsFile    = "tests.csv"
	ResultsFile  = "results.csv"
	ProductsFile = "products.csv"
)

// CSVSource reads raw tests, results and products from a directory of CSV exports.
type CSVSource struct {
	dir string
}

// NewCSVSource reads from dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// Tests parses tests.csv. Empty cells are treated as not recorded; malformed
// numbers fail the whole file.
func (s *CSVSource) Tests(_ context.Context) ([]models.RawConditionRecord, error) {
	t, err := readCSVFile(filepath.Join(s.dir, TestsFile))
	if err != nil {
		return nil, err
	}
	if err := t.require("test_id", "air_temp", "hardness", "snow_type"); err != nil {
		return nil, err
	}
	location := "place"
	if !t.has(location) {
		location = "location"
	}

	out := make([]models.RawConditionRecord, 0, len(t.rows))
	for i, row := range t.rows {
		id, err := parseInt(t, row, "test_id", i)
		if err != nil {
			return nil, err
		}
		rec := models.RawConditionRecord{
			TestID:       id,
			Location:     t.value(row, location),
			Hardness:     t.value(row, "hardness"),
			Wind:         t.value(row, "wind"),
			SnowMoisture: t.value(row, "snow_moisture"),
			Clouds:       t.value(row, "clouds"),
			SnowType:     t.value(row, "snow_type"),
			Track:        t.value(row, "track"),
		}
		if rec.Date, err = utils.ParseDate(t.value(row, "date")); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", t.name, line(i), err)
		}
		if rec.AirTemp, err = parseOptionalFloat(t, row, "air_temp", i); err != nil {
			return nil, err
		}
		if rec.SnowTemp, err = parseOptionalFloat(t, row, "snow_temp", i); err != nil {
			return nil, err
		}
		if rec.AirHumidity, err = parseOptionalFloat(t, row, "air_humidity", i); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Results parses results.csv.
func (s *CSVSource) Results(_ context.Context) ([]models.TestResult, error) {
	t, err := readCSVFile(filepath.Join(s.dir, ResultsFile))
	if err != nil {
		return nil, err
	}
	if err := t.require("test_id", "product_id", "rank"); err != nil {
		return nil, err
	}
	out := make([]models.TestResult, 0, len(t.rows))
	for i, row := range t.rows {
		testID, err := parseInt(t, row, "test_id", i)
		if err != nil {
			return nil, err
		}
		productID, err := parseInt(t, row, "product_id", i)
		if err != nil {
			return nil, err
		}
		rank, err := parseInt(t, row, "rank", i)
		if err != nil {
			return nil, err
		}
		out = append(out, models.TestResult{TestID: testID, ProductID: models.ProductID(productID), Rank: int(rank)})
	}
	return out, nil
}

// Products parses products.csv.
func (s *CSVSource) Products(_ context.Context) ([]models.Product, error) {
	t, err := readCSVFile(filepath.Join(s.dir, ProductsFile))
	if err != nil {
		return nil, err
	}
	if err := t.require("product_id", "product_name"); err != nil {
		return nil, err
	}
	out := make([]models.Product, 0, len(t.rows))
	for i, row := range t.rows {
		id, err := parseInt(t, row, "product_id", i)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Product{ID: models.ProductID(id), Name: t.value(row, "product_name")})
	}
	return out, nil
}
