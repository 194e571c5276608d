package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/snowflowstack/snowflow-ranker/internal/cache"
	"github.com/snowflowstack/snowflow-ranker/internal/engine"
	"github.com/snowflowstack/snowflow-ranker/internal/explain"
	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/repo"
)

func (a *app) predict(ctx context.Context, args []string) error {
	fs := a.flags("predict")
	modelPath := fs.String("model", a.cfg.Prediction.ModelPath, "Model document path or URL")
	query := fs.String("query", "", "Conditions as a JSON object; - or empty reads stdin")
	topN := fs.Int("top", a.cfg.Prediction.TopN, "Number of products to return, 0 for all")
	rescale := fs.Bool("rescale", a.cfg.Prediction.Rescale, "Rescale scores to [0,100]")
	scale := fs.Float64("importance-scale", a.cfg.Prediction.ImportanceScale, "Multiplier for winner attribution")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	q, err := readQuery(*query, os.Stdin)
	if err != nil {
		return err
	}
	model, err := a.loadModel(ctx, *modelPath)
	if err != nil {
		return err
	}
	predictor, err := engine.NewPredictor(a.logger, model)
	if err != nil {
		return err
	}
	opts := models.DefaultPredictOptions()
	opts.TopN, opts.Rescale, opts.ImportanceScale = *topN, *rescale, *scale
	pred, err := predictor.Predict(q, opts)
	if err != nil {
		return err
	}
	return a.printJSON(pred)
}

func (a *app) explain(ctx context.Context, args []string) error {
	fs := a.flags("explain")
	modelPath := fs.String("model", a.cfg.Prediction.ModelPath, "Model document path or URL")
	product := fs.Int64("product", 0, "Product id to explain")
	baseline := fs.Float64("baseline", explain.DefaultBaseline, "Normalized condition level to compare ideal points against")
	topK := fs.Int("top", 0, "Number of numeric features to report, 0 for all")
	text := fs.Bool("text", false, "Print a plain text summary instead of JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *product == 0 {
		fmt.Fprintln(a.stderr, "explain requires -product")
		return errUsage
	}

	model, err := a.loadModel(ctx, *modelPath)
	if err != nil {
		return err
	}
	explainer, err := explain.New(a.logger, model)
	if err != nil {
		return err
	}
	e, err := explainer.Explain(models.ProductID(*product), *baseline, *topK)
	if err != nil {
		return err
	}
	if *text {
		for _, line := range explain.Summary(e) {
			fmt.Fprintln(a.stdout, line)
		}
		return nil
	}
	return a.printJSON(e)
}

func (a *app) loadModel(ctx context.Context, location string) (*models.Model, error) {
	loader, err := repo.OpenModel(location, a.cfg.Prediction.FetchTimeout, cache.NoopProvider{}, a.cfg.Prediction.ModelCacheTTL)
	if err != nil {
		return nil, err
	}
	return loader.LoadModel(ctx)
}

// readQuery decodes a JSON condition object from raw, or from stdin when raw is
// empty or "-".
func readQuery(raw string, stdin io.Reader) (models.Query, error) {
	var data []byte
	if raw == "" || raw == "-" {
		b, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read query: %w", err)
		}
		data = b
	} else {
		data = []byte(raw)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, models.NewValidationError("query", "", "no conditions given")
	}
	var q models.Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, models.NewValidationError("query", string(data), "must be a JSON object")
	}
	return q, nil
}
