package main

import (
	"flag"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
	"github.com/snowflowstack/snowflow-ranker/internal/repo"
)

var waxes = []models.Product{
	{ID: 101, Name: "Blue Glide"},
	{ID: 102, Name: "Red Klister"},
	{ID: 103, Name: "Graphite Cold"},
	{ID: 104, Name: "Fluoro Free Warm"},
	{ID: 105, Name: "Violet Universal"},
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	seed := flag.Int64("seed", 17, "seed for the synthetic parameters")
	flag.Parse()

	logger := log.New(log.Writer(), "registry-mock ", log.LstdFlags|log.Lmicroseconds)

	document, err := repo.EncodeModel(syntheticModel(*seed))
	if err != nil {
		logger.Fatalf("encode model: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/models/product_model.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(document)
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// syntheticModel draws plausible parameters over the canonical feature schema.
func syntheticModel(seed int64) *models.Model {
	rng := rand.New(rand.NewSource(seed))
	schema := normalize.Schema()
	model := &models.Model{Schema: schema}
	for _, w := range waxes {
		p := models.ProductParams{
			ID:              w.ID,
			Name:            w.Name,
			IdealPoint:      make([]float64, schema.NumContinuous()),
			Sensitivity:     make([]float64, schema.NumContinuous()),
			IndicatorWeight: make([]float64, schema.NumIndicators()),
			Intercept:       rng.NormFloat64() * 0.5,
		}
		for i := range p.IdealPoint {
			p.IdealPoint[i] = rng.Float64()
			p.Sensitivity[i] = 0.1 + 2*rng.Float64()
		}
		for i := range p.IndicatorWeight {
			p.IndicatorWeight[i] = rng.NormFloat64() * 0.3
		}
		model.Products = append(model.Products, p)
	}
	return model
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
