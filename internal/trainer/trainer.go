// Package trainer fits per-product quadratic utilities to pairwise outcomes by
// maximizing a regularized Bradley-Terry likelihood under box constraints.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/optimize"
)

// Config controls a training run.
type Config struct {
	RegWeight     float64
	MaxIterations int
	Seed          int64
	Memory        int
	FTol          float64
	PGTol         float64
}

// DefaultConfig returns the standard training settings.
func DefaultConfig() Config {
	return Config{
		RegWeight:     0.1,
		MaxIterations: optimize.DefaultMaxIterations,
		Seed:          17,
		Memory:        optimize.DefaultMemory,
		FTol:          optimize.DefaultFTol,
		PGTol:         optimize.DefaultPGTol,
	}
}

// Report summarises a training run.
type Report struct {
	Products   int
	Pairs      int
	Parameters int
	Iterations int
	FuncEvals  int
	Objective  float64
	Status     string
	Converged  bool
	Duration   time.Duration
}

// Trainer fits models.
type Trainer struct {
	logger *slog.Logger
	cfg    Config
}

// New constructs a Trainer.
func New(logger *slog.Logger, cfg Config) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{logger: logger, cfg: cfg}
}

// Fit estimates one parameter set per product appearing in pairs. Every pair must be
// laid out exactly over continuous then indicators. The result is deterministic for a
// given seed. Hitting the iteration cap is reported in the Report, not as an error.
func (t *Trainer) Fit(ctx context.Context, pairs []models.PairwiseObservation, continuous, indicators []string) (*models.Model, Report, error) {
	start := time.Now()
	report := Report{Pairs: len(pairs)}

	if len(pairs) == 0 {
		return nil, report, models.NewConfigurationError("fit", "pairwise dataset is empty")
	}
	if t.cfg.RegWeight < 0 {
		return nil, report, models.NewConfigurationError("fit", fmt.Sprintf("negative regularization weight %v", t.cfg.RegWeight))
	}
	schema, err := models.NewFeatureSchema(continuous, indicators)
	if err != nil {
		return nil, report, err
	}
	if err := checkPairs(pairs, schema); err != nil {
		return nil, report, err
	}

	layout, index, names := productIndex(pairs, schema)
	report.Products = len(layout.Products)
	report.Parameters = layout.Len()

	obj := newObjective(layout, pairs, index, t.cfg.RegWeight)
	t.logger.Debug("training started",
		slog.Int("products", report.Products),
		slog.Int("pairs", report.Pairs),
		slog.Int("parameters", report.Parameters),
		slog.Float64("reg_weight", t.cfg.RegWeight))

	res, err := optimize.Minimize(ctx, obj.Value, layout.Init(t.cfg.Seed), layout.Bounds(), optimize.Settings{
		MaxIterations: t.cfg.MaxIterations,
		Memory:        t.cfg.Memory,
		FTol:          t.cfg.FTol,
		PGTol:         t.cfg.PGTol,
	})
	report.Iterations = res.Iterations
	report.FuncEvals = res.FuncEvals
	report.Objective = res.F
	report.Status = res.Status.String()
	report.Converged = res.Status.Converged()
	report.Duration = time.Since(start)
	if err != nil {
		if errors.Is(err, optimize.ErrNotFinite) {
			return nil, report, fmt.Errorf("%w: %v", models.ErrNumericalGuard, err)
		}
		return nil, report, fmt.Errorf("optimize: %w", err)
	}

	if !report.Converged {
		t.logger.Warn("optimizer stopped before convergence, using best iterate",
			slog.String("status", report.Status),
			slog.Int("iterations", report.Iterations),
			slog.Float64("projected_gradient", res.ProjGradNorm))
	}
	t.logger.Info("training finished",
		slog.Int("products", report.Products),
		slog.Int("iterations", report.Iterations),
		slog.Float64("objective", report.Objective),
		slog.String("status", report.Status),
		slog.Duration("duration", report.Duration))

	return &models.Model{Schema: schema, Products: layout.Unpack(res.X, names)}, report, nil
}

// checkPairs verifies that every observation is laid out over the declared schema.
func checkPairs(pairs []models.PairwiseObservation, declared *models.FeatureSchema) error {
	var checked *models.FeatureSchema
	for i, pair := range pairs {
		s := pair.Features.Schema
		if s == nil || len(pair.Features.Values) != s.Len() {
			return models.NewConfigurationError("fit", fmt.Sprintf("pair %d has no feature layout", i))
		}
		if s == checked {
			continue
		}
		if !s.Equal(declared) {
			return models.NewConfigurationError("fit", describeMismatch(s, declared))
		}
		checked = s
	}
	return nil
}

func describeMismatch(data, declared *models.FeatureSchema) string {
	var undeclared, missing []string
	for _, name := range data.Names() {
		if _, ok := declared.Index(name); !ok {
			undeclared = append(undeclared, name)
		}
	}
	for _, name := range declared.Names() {
		if _, ok := data.Index(name); !ok {
			missing = append(missing, name)
		}
	}
	var parts []string
	if len(undeclared) > 0 {
		parts = append(parts, "dataset references undeclared features "+strings.Join(undeclared, ", "))
	}
	if len(missing) > 0 {
		parts = append(parts, "declared features missing from dataset "+strings.Join(missing, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, "feature order differs from declaration")
	}
	return strings.Join(parts, "; ")
}

// productIndex orders products by id and resolves display names from winning appearances.
func productIndex(pairs []models.PairwiseObservation, schema *models.FeatureSchema) (Layout, map[models.ProductID]int, map[models.ProductID]string) {
	seen := make(map[models.ProductID]struct{})
	names := make(map[models.ProductID]string)
	for _, pair := range pairs {
		seen[pair.WinnerID] = struct{}{}
		seen[pair.LoserID] = struct{}{}
		if _, ok := names[pair.WinnerID]; !ok && strings.TrimSpace(pair.WinnerName) != "" {
			names[pair.WinnerID] = pair.WinnerName
		}
	}
	ids := make([]models.ProductID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	index := make(map[models.ProductID]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	return Layout{Products: ids, NumContinuous: schema.NumContinuous(), NumIndicators: schema.NumIndicators()}, index, names
}
