package models

import (
	"strconv"
	"time"
)

// ProductID identifies a product across tests and model documents.
type ProductID int64

func (id ProductID) String() string { return strconv.FormatInt(int64(id), 10) }

// RawConditionRecord is one test's conditions as recorded in the field.
// Pointer fields are nil when the value was not recorded.
type RawConditionRecord struct {
	TestID   int64
	Date     time.Time
	Location string

	AirTemp     *float64
	SnowTemp    *float64
	AirHumidity *float64

	// Hardness is a track hardness code (H1..H6).
	Hardness string
	// Wind is a wind code (S, L, M, ST).
	Wind string
	// SnowMoisture is a bucket code (DS, W1..W4) or a numeric percentage.
	SnowMoisture string

	Clouds   string
	SnowType string
	Track    string
}

// Product is a catalogue entry.
type Product struct {
	ID   ProductID `json:"id"`
	Name string    `json:"name"`
}

// TestResult is one product's placement in a test.
type TestResult struct {
	TestID    int64
	ProductID ProductID
	Rank      int
}

// Placement is a ranked member of an outcome group.
type Placement struct {
	ProductID ProductID
	Name      string
	Rank      int
}

// RankedOutcomeGroup holds the placements of one test under shared conditions.
type RankedOutcomeGroup struct {
	TestID     int64
	Date       time.Time
	Location   string
	Conditions FeatureVector
	Placements []Placement
}

// PairwiseObservation records that the winner beat the loser under Features.
type PairwiseObservation struct {
	TestID     int64
	WinnerID   ProductID
	WinnerName string
	LoserID    ProductID
	LoserName  string
	Date       time.Time
	Location   string
	Features   FeatureVector
}

// Dataset is a pairwise training set sharing one schema.
type Dataset struct {
	Schema *FeatureSchema
	Pairs  []PairwiseObservation
}
