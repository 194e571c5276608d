package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations.
	OutcomeError = "error"
	// OutcomeInvalid labels requests rejected by validation.
	OutcomeInvalid = "invalid"
)

var (
	trainingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snowflow",
			Name:      "training_runs_total",
			Help:      "Total number of training runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	trainingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "snowflow",
			Name:      "training_seconds",
			Help:      "Training run duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	optimizerIterations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "snowflow",
			Name:      "optimizer_iterations",
			Help:      "Iterations used by the most recent training run.",
		},
	)

	trainingObjective = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "snowflow",
			Name:      "training_objective",
			Help:      "Final regularized negative log-likelihood of the most recent training run.",
		},
	)

	rowsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snowflow",
			Name:      "rows_filtered_total",
			Help:      "Raw test rows dropped during normalization, partitioned by offending field.",
		},
		[]string{"field"},
	)

	pairsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "snowflow",
			Name:      "pairs_generated_total",
			Help:      "Pairwise observations produced by expansion.",
		},
	)

	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snowflow",
			Name:      "predictions_total",
			Help:      "Total number of predictions served, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	predictionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "snowflow",
			Name:      "prediction_seconds",
			Help:      "Prediction latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snowflow",
			Name:      "cache_requests_total",
			Help:      "Prediction cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)
)

// Register attaches snowflow collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		trainingRunsTotal,
		trainingDurationSeconds,
		optimizerIterations,
		trainingObjective,
		rowsFilteredTotal,
		pairsGeneratedTotal,
		predictionsTotal,
		predictionDurationSeconds,
		cacheRequestsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTraining records a training run.
func ObserveTraining(duration time.Duration, outcome string, iterations int, objective float64) {
	trainingRunsTotal.WithLabelValues(normalizeOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	trainingDurationSeconds.Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		optimizerIterations.Set(float64(iterations))
		trainingObjective.Set(objective)
	}
}

// ObserveFiltered records rows dropped for field.
func ObserveFiltered(field string, count int) {
	if count <= 0 {
		return
	}
	rowsFilteredTotal.WithLabelValues(field).Add(float64(count))
}

// ObservePairs records generated pairwise observations.
func ObservePairs(count int) {
	if count <= 0 {
		return
	}
	pairsGeneratedTotal.Add(float64(count))
}

// ObservePrediction records a prediction latency and outcome label.
func ObservePrediction(duration time.Duration, outcome string) {
	predictionsTotal.WithLabelValues(normalizeOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	predictionDurationSeconds.Observe(duration.Seconds())
}

// ObserveCache records a cache lookup.
func ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequestsTotal.WithLabelValues(result).Inc()
}

func normalizeOutcome(outcome string) string {
	switch outcome {
	case OutcomeError, OutcomeInvalid:
		return outcome
	default:
		return OutcomeSuccess
	}
}
