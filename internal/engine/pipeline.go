package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/snowflowstack/snowflow-ranker/internal/metrics"
	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
	"github.com/snowflowstack/snowflow-ranker/internal/pairwise"
	"github.com/snowflowstack/snowflow-ranker/internal/trainer"
)

// Source supplies raw test data.
type Source interface {
	Tests(ctx context.Context) ([]models.RawConditionRecord, error)
	Results(ctx context.Context) ([]models.TestResult, error)
	Products(ctx context.Context) ([]models.Product, error)
}

// DatasetWriter persists a pairwise dataset.
type DatasetWriter interface {
	WriteDataset(ctx context.Context, ds models.Dataset) error
}

// ModelWriter persists a fitted model.
type ModelWriter interface {
	SaveModel(ctx context.Context, model *models.Model) error
}

// Fitter estimates a model from pairwise observations.
type Fitter interface {
	Fit(ctx context.Context, pairs []models.PairwiseObservation, continuous, indicators []string) (*models.Model, trainer.Report, error)
}

// RunSummary describes one preprocessing and training run.
type RunSummary struct {
	RunID    string
	Filter   normalize.FilterReport
	Pairs    int
	Training trainer.Report
	Duration time.Duration
}

// Pipeline orchestrates normalization, pairwise expansion, fitting and persistence.
type Pipeline struct {
	logger   *slog.Logger
	source   Source
	fitter   Fitter
	datasets DatasetWriter
	store    ModelWriter
}

// NewPipeline constructs a training pipeline. datasets and models may be nil to skip persistence.
func NewPipeline(logger *slog.Logger, source Source, fitter Fitter, datasets DatasetWriter, store ModelWriter) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:   logger,
		source:   source,
		fitter:   fitter,
		datasets: datasets,
		store:    store,
	}
}

// Preprocess loads raw data, normalizes it and expands every test into pairs.
func (p *Pipeline) Preprocess(ctx context.Context) (models.Dataset, normalize.FilterReport, error) {
	if p.source == nil {
		return models.Dataset{}, normalize.FilterReport{}, fmt.Errorf("data source not configured")
	}

	raws, err := p.source.Tests(ctx)
	if err != nil {
		return models.Dataset{}, normalize.FilterReport{}, fmt.Errorf("load tests: %w", err)
	}
	results, err := p.source.Results(ctx)
	if err != nil {
		return models.Dataset{}, normalize.FilterReport{}, fmt.Errorf("load results: %w", err)
	}
	products, err := p.source.Products(ctx)
	if err != nil {
		return models.Dataset{}, normalize.FilterReport{}, fmt.Errorf("load products: %w", err)
	}

	tests, report := normalize.Batch(raws)
	for field, count := range report.Dropped {
		metrics.ObserveFiltered(field, count)
		p.logger.Warn("dropped invalid test rows", slog.String("field", field), slog.Int("rows", count))
	}

	groups := pairwise.BuildGroups(tests, results, products)
	if tied := pairwise.TiedRanks(groups); len(tied) > 0 {
		p.logger.Warn("tests contain tied ranks, pair order follows input order", slog.Any("test_ids", tied))
	}
	ds := pairwise.Collect(normalize.Schema(), groups)
	metrics.ObservePairs(len(ds.Pairs))

	p.logger.Info("preprocessing finished",
		slog.Int("tests", report.Total),
		slog.Int("kept", report.Kept),
		slog.Int("groups", len(groups)),
		slog.Int("pairs", len(ds.Pairs)))

	if p.datasets != nil {
		if err := p.datasets.WriteDataset(ctx, ds); err != nil {
			return ds, report, fmt.Errorf("write dataset: %w", err)
		}
	}
	return ds, report, nil
}

// Train fits a model on ds and persists it when a model writer is configured.
func (p *Pipeline) Train(ctx context.Context, ds models.Dataset) (*models.Model, trainer.Report, error) {
	if p.fitter == nil {
		return nil, trainer.Report{}, fmt.Errorf("trainer not configured")
	}
	if ds.Schema == nil {
		return nil, trainer.Report{}, models.NewConfigurationError("train", "dataset has no feature schema")
	}

	start := time.Now()
	model, report, err := p.fitter.Fit(ctx, ds.Pairs, ds.Schema.Continuous(), ds.Schema.Indicators())
	if err != nil {
		metrics.ObserveTraining(time.Since(start), metrics.OutcomeError, report.Iterations, report.Objective)
		return nil, report, fmt.Errorf("fit: %w", err)
	}
	metrics.ObserveTraining(time.Since(start), metrics.OutcomeSuccess, report.Iterations, report.Objective)

	if p.store != nil {
		if err := p.store.SaveModel(ctx, model); err != nil {
			return model, report, fmt.Errorf("save model: %w", err)
		}
	}
	return model, report, nil
}

// Run executes preprocessing then training under a fresh run id.
func (p *Pipeline) Run(ctx context.Context) (*models.Model, RunSummary, error) {
	start := time.Now()
	summary := RunSummary{RunID: uuid.NewString()}
	logger := p.logger.With(slog.String("run_id", summary.RunID))
	logger.Info("training run started")

	run := &Pipeline{logger: logger, source: p.source, fitter: p.fitter, datasets: p.datasets, store: p.store}
	ds, report, err := run.Preprocess(ctx)
	summary.Filter = report
	summary.Pairs = len(ds.Pairs)
	if err != nil {
		return nil, summary, err
	}

	model, training, err := run.Train(ctx, ds)
	summary.Training = training
	summary.Duration = time.Since(start)
	if err != nil {
		logger.Error("training run failed", slog.Any("error", err))
		return nil, summary, err
	}
	logger.Info("training run finished",
		slog.Int("products", training.Products),
		slog.String("status", training.Status),
		slog.Duration("duration", summary.Duration))
	return model, summary, nil
}
