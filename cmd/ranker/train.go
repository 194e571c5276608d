package main

import (
	"context"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"github.com/snowflowstack/snowflow-ranker/internal/engine"
	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/repo"
	"github.com/snowflowstack/snowflow-ranker/internal/trainer"
)

func (a *app) preprocess(ctx context.Context, args []string) error {
	fs := a.flags("preprocess")
	out := fs.String("out", a.cfg.Training.DatasetPath, "Pairwise dataset CSV to write")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	source, closeSource, err := a.openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	pipeline := engine.NewPipeline(a.logger, source, nil, repo.NewDatasetFile(*out), nil)
	ds, report, err := pipeline.Preprocess(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(map[string]any{
		"dataset": *out,
		"tests":   report.Total,
		"kept":    report.Kept,
		"dropped": report.Dropped,
		"pairs":   len(ds.Pairs),
	})
}

func (a *app) train(ctx context.Context, args []string) error {
	fs := a.flags("train")
	dataset := fs.String("dataset", "", "Train from an existing pairwise dataset CSV instead of the raw source")
	out := fs.String("out", a.cfg.Prediction.ModelPath, "Model document to write")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	fitter := trainer.New(a.logger, trainer.Config{
		RegWeight:     a.cfg.Training.RegWeight,
		MaxIterations: a.cfg.Training.MaxIterations,
		Seed:          a.cfg.Training.Seed,
		Memory:        a.cfg.Training.Memory,
		FTol:          a.cfg.Training.FTol,
		PGTol:         a.cfg.Training.PGTol,
	})
	store := repo.NewModelFile(*out)

	var (
		model  *models.Model
		report trainer.Report
	)
	if *dataset != "" {
		ds, err := repo.NewDatasetFile(*dataset).ReadDataset(ctx)
		if err != nil {
			return err
		}
		model, report, err = engine.NewPipeline(a.logger, nil, fitter, nil, store).Train(ctx, ds)
		if err != nil {
			return err
		}
	} else {
		source, closeSource, err := a.openSource(ctx)
		if err != nil {
			return err
		}
		defer closeSource()
		pipeline := engine.NewPipeline(a.logger, source, fitter, repo.NewDatasetFile(a.cfg.Training.DatasetPath), store)
		var summary engine.RunSummary
		model, summary, err = pipeline.Run(ctx)
		if err != nil {
			return err
		}
		report = summary.Training
	}

	fingerprint, err := repo.Fingerprint(model)
	if err != nil {
		return err
	}
	a.logger.Info("model written", slog.String("path", *out), slog.String("fingerprint", fingerprint))
	return a.printJSON(map[string]any{
		"model":       *out,
		"fingerprint": fingerprint,
		"products":    report.Products,
		"pairs":       report.Pairs,
		"iterations":  report.Iterations,
		"objective":   report.Objective,
		"status":      report.Status,
		"converged":   report.Converged,
	})
}

// openSource connects the configured raw data source.
func (a *app) openSource(ctx context.Context) (engine.Source, func(), error) {
	switch a.cfg.Source.Kind {
	case "postgres":
		db, err := repo.ConnectPostgres(ctx, a.cfg.Source.DSN, a.cfg.Source.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repo.NewPostgresSource(a.logger, db), closeDB, nil
	case "csv":
		return repo.NewCSVSource(a.cfg.Source.Dir), func() {}, nil
	default:
		return nil, nil, models.NewConfigurationError("open source", fmt.Sprintf("unknown source kind %q", a.cfg.Source.Kind))
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
