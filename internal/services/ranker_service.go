package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/snowflowstack/snowflow-ranker/internal/api"
	"github.com/snowflowstack/snowflow-ranker/internal/cache"
	"github.com/snowflowstack/snowflow-ranker/internal/engine"
	"github.com/snowflowstack/snowflow-ranker/internal/explain"
	rankerv1 "github.com/snowflowstack/snowflow-ranker/internal/grpc/rankerv1"
	"github.com/snowflowstack/snowflow-ranker/internal/metrics"
	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
	"github.com/snowflowstack/snowflow-ranker/internal/utils"
)

// RankerService implements the gRPC Ranker service over one loaded model.
type RankerService struct {
	rankerv1.UnimplementedRankerServer

	logger      *slog.Logger
	predictor   *engine.Predictor
	explainer   *explain.Explainer
	fingerprint string
	loadedAt    time.Time
	cache       cache.Provider
	cacheTTL    time.Duration
	defaults    models.PredictOptions
	latencies   *utils.LatencyTracker
}

// NewRankerService validates model and builds the service facade. provider may
// be nil to disable prediction caching.
func NewRankerService(logger *slog.Logger, model *models.Model, fingerprint string, provider cache.Provider, cacheTTL time.Duration, defaults models.PredictOptions) (*RankerService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	predictor, err := engine.NewPredictor(logger, model)
	if err != nil {
		return nil, err
	}
	explainer, err := explain.New(logger, model)
	if err != nil {
		return nil, err
	}
	return &RankerService{
		logger:      logger,
		predictor:   predictor,
		explainer:   explainer,
		fingerprint: fingerprint,
		loadedAt:    time.Now().UTC(),
		cache:       provider,
		cacheTTL:    cacheTTL,
		defaults:    defaults,
		latencies:   utils.NewLatencyTracker(1024),
	}, nil
}

// Predict ranks every product for the request conditions.
func (s *RankerService) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	start := time.Now()

	domainReq, err := api.FromProtoPredictRequest(req)
	if err != nil {
		metrics.ObservePrediction(time.Since(start), metrics.OutcomeInvalid)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	opts := domainReq.Options(s.defaults)

	model := s.predictor.Model()
	vec, err := normalize.Query(domainReq.Conditions, model.Schema)
	if err != nil {
		metrics.ObservePrediction(time.Since(start), metrics.OutcomeInvalid)
		return nil, toStatus(err)
	}

	key := s.cacheKey(vec, opts)
	pred, hit := s.cached(ctx, key)
	if !hit {
		pred, err = s.predictor.PredictVector(vec, opts)
		if err != nil {
			metrics.ObservePrediction(time.Since(start), metrics.OutcomeError)
			s.logger.Error("prediction failed", slog.Any("error", err))
			return nil, toStatus(err)
		}
		s.store(ctx, key, pred)
	}

	duration := time.Since(start)
	s.latencies.Observe(duration)
	metrics.ObservePrediction(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("prediction latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	out, err := api.ToProtoPrediction(pred, s.fingerprint)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Explain reports a product's numeric importance and indicator sensitivity.
func (s *RankerService) Explain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	domainReq, err := api.FromProtoExplainRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if _, ok := s.predictor.Model().Product(domainReq.ProductID); !ok {
		return nil, status.Error(codes.NotFound, fmt.Sprintf("product %s not in model", domainReq.ProductID))
	}
	baseline := explain.DefaultBaseline
	if domainReq.Baseline != nil {
		baseline = *domainReq.Baseline
	}

	e, err := s.explainer.Explain(domainReq.ProductID, baseline, domainReq.TopK)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := api.ToProtoExplanation(e)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// ModelInfo describes the serving model.
func (s *RankerService) ModelInfo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := api.ToProtoModelSummary(s.Summary())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Summary returns the serving model description.
func (s *RankerService) Summary() models.ModelSummary {
	model := s.predictor.Model()
	products := make([]models.Product, len(model.Products))
	for i, p := range model.Products {
		products[i] = models.Product{ID: p.ID, Name: p.Name}
	}
	return models.ModelSummary{
		Fingerprint:     s.fingerprint,
		NumericFeatures: model.Schema.Continuous(),
		DummyFeatures:   model.Schema.Indicators(),
		Products:        products,
		LoadedAt:        s.loadedAt,
	}
}

// LatencyP95 returns the current p95 prediction latency.
func (s *RankerService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

// cacheKey identifies a prediction by model, canonical vector and options.
func (s *RankerService) cacheKey(vec models.FeatureVector, opts models.PredictOptions) string {
	h := sha256.New()
	h.Write([]byte(s.fingerprint))
	for _, v := range vec.Values {
		h.Write([]byte{'|'})
		h.Write(strconv.AppendFloat(nil, v, 'g', -1, 64))
	}
	fmt.Fprintf(h, "|top=%d|rescale=%t|scale=%g", opts.TopN, opts.Rescale, opts.ImportanceScale)
	return "prediction:" + hex.EncodeToString(h.Sum(nil))
}

func (s *RankerService) cached(ctx context.Context, key string) (models.Prediction, bool) {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("prediction cache read failed", slog.Any("error", err))
		}
		metrics.ObserveCache(false)
		return models.Prediction{}, false
	}
	var pred models.Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		s.logger.Warn("discarding undecodable cached prediction", slog.Any("error", err))
		metrics.ObserveCache(false)
		return models.Prediction{}, false
	}
	metrics.ObserveCache(true)
	return pred, true
}

func (s *RankerService) store(ctx context.Context, key string, pred models.Prediction) {
	data, err := json.Marshal(pred)
	if err != nil {
		s.logger.Warn("encode prediction for cache", slog.Any("error", err))
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("prediction cache write failed", slog.Any("error", err))
	}
}

func toStatus(err error) error {
	switch {
	case models.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case models.IsConfiguration(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
