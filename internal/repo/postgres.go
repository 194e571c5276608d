package repo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
)

const testsQuery = `SELECT t.id, t.test_date, t.location,
	ac.temperature AS air_temperature, ac.humidity AS air_humidity, ac.wind, ac.cloud,
	sc.temperature AS snow_temperature, sc.snow_type, sc.snow_humidity,
	tc.track_hardness, tc.track_type
FROM tests t
LEFT JOIN air_conditions ac ON ac.id = t.ac_id
LEFT JOIN snow_conditions sc ON sc.id = t.sc_id
LEFT JOIN track_conditions tc ON tc.id = t.tc_id
ORDER BY t.id`

const resultsQuery = `SELECT test_id, product_id, rank FROM test_ranks ORDER BY test_id, rank, product_id`

const productsQuery = `SELECT id, name FROM products ORDER BY id`

// ConnectPostgres opens and pings a GORM connection pool.
func ConnectPostgres(ctx context.Context, dsn string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresSource reads raw training data from the test registry database.
type PostgresSource struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewPostgresSource wraps an open connection.
func NewPostgresSource(logger *slog.Logger, db *gorm.DB) *PostgresSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSource{db: db, logger: logger}
}

type testRow struct {
	ID              int64
	TestDate        sql.NullTime
	Location        sql.NullString
	AirTemperature  sql.NullFloat64
	AirHumidity     sql.NullFloat64
	Wind            sql.NullString
	Cloud           sql.NullString
	SnowTemperature sql.NullFloat64
	SnowType        sql.NullString
	SnowHumidity    sql.NullString
	TrackHardness   sql.NullString
	TrackType       sql.NullString
}

type rankRow struct {
	TestID    int64
	ProductID int64
	Rank      int
}

type productRow struct {
	ID   int64
	Name string
}

// Tests joins every test with its air, snow and track conditions. Cloud cover is
// stored as a numeric code and translated to its label; unknown codes are passed
// through so the normalizer rejects the row.
func (s *PostgresSource) Tests(ctx context.Context) ([]models.RawConditionRecord, error) {
	var rows []testRow
	if err := s.db.WithContext(ctx).Raw(testsQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	out := make([]models.RawConditionRecord, 0, len(rows))
	for _, r := range rows {
		rec := models.RawConditionRecord{
			TestID:       r.ID,
			Location:     r.Location.String,
			AirTemp:      floatOrNil(r.AirTemperature),
			SnowTemp:     floatOrNil(r.SnowTemperature),
			AirHumidity:  floatOrNil(r.AirHumidity),
			Hardness:     strings.TrimSpace(r.TrackHardness.String),
			Wind:         strings.TrimSpace(r.Wind.String),
			SnowMoisture: strings.TrimSpace(r.SnowHumidity.String),
			SnowType:     strings.TrimSpace(r.SnowType.String),
			Track:        strings.TrimSpace(r.TrackType.String),
		}
		if r.TestDate.Valid {
			rec.Date = r.TestDate.Time
		}
		if code := strings.TrimSpace(r.Cloud.String); code != "" {
			label, err := normalize.CloudLabel(code)
			if err != nil {
				s.logger.Debug("unmapped cloud code", slog.Int64("test_id", r.ID), slog.String("code", code))
				label = code
			}
			rec.Clouds = label
		}
		out = append(out, rec)
	}
	return out, nil
}

// Results loads every product placement.
func (s *PostgresSource) Results(ctx context.Context) ([]models.TestResult, error) {
	var rows []rankRow
	if err := s.db.WithContext(ctx).Raw(resultsQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query test ranks: %w", err)
	}
	out := make([]models.TestResult, len(rows))
	for i, r := range rows {
		out[i] = models.TestResult{TestID: r.TestID, ProductID: models.ProductID(r.ProductID), Rank: r.Rank}
	}
	return out, nil
}

// Products loads the product catalogue.
func (s *PostgresSource) Products(ctx context.Context) ([]models.Product, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Raw(productsQuery).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	out := make([]models.Product, len(rows))
	for i, r := range rows {
		out[i] = models.Product{ID: models.ProductID(r.ID), Name: r.Name}
	}
	return out, nil
}

func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	x := v.Float64
	return &x
}
