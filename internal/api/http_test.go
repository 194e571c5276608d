package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	rankerv1 "github.com/snowflowstack/snowflow-ranker/internal/grpc/rankerv1"
)

type fakeRanker struct {
	rankerv1.UnimplementedRankerServer
	lastPredict *structpb.Struct
	lastExplain *structpb.Struct
	err         error
}

func (f *fakeRanker) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.lastPredict = req
	if f.err != nil {
		return nil, f.err
	}
	return structpb.NewStruct(map[string]any{"model": "f00d"})
}

func (f *fakeRanker) Explain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f.lastExplain = req
	if f.err != nil {
		return nil, f.err
	}
	return structpb.NewStruct(map[string]any{"id": 7})
}

func (f *fakeRanker) ModelInfo(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if f.err != nil {
		return nil, f.err
	}
	return structpb.NewStruct(map[string]any{"fingerprint": "f00d"})
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGatewayPredictWrapsBareConditions(t *testing.T) {
	ranker := &fakeRanker{}
	h := Router(nil, ranker, 0)

	rec := serve(t, h, http.MethodPost, "/api/v1/predict", `{"air_temp": -8, "snow_type": "NS"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	conditions := ranker.lastPredict.Fields["conditions"].GetStructValue()
	if conditions == nil || conditions.Fields["snow_type"].GetStringValue() != "NS" {
		t.Fatalf("expected bare body wrapped as conditions, got %v", ranker.lastPredict.AsMap())
	}

	rec = serve(t, h, http.MethodPost, "/api/v1/predict", `{"conditions": {"air_temp": -8}, "top_n": 2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ranker.lastPredict.Fields["top_n"].GetNumberValue() != 2 {
		t.Fatalf("expected options passed through, got %v", ranker.lastPredict.AsMap())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["model"] != "f00d" {
		t.Fatalf("unexpected response body %s", rec.Body.String())
	}
}

func TestGatewayPredictRejectsMalformedBody(t *testing.T) {
	h := Router(nil, &fakeRanker{}, 0)
	rec := serve(t, h, http.MethodPost, "/api/v1/predict", `[1,2]`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["code"] != codes.InvalidArgument.String() || body["error"] == "" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestGatewayImportance(t *testing.T) {
	ranker := &fakeRanker{}
	h := Router(nil, ranker, 0)

	rec := serve(t, h, http.MethodGet, "/api/v1/products/7/importance?baseline=0.3&top_k=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f := ranker.lastExplain.Fields
	if f["product_id"].GetStringValue() != "7" || f["baseline"].GetNumberValue() != 0.3 || f["top_k"].GetNumberValue() != 2 {
		t.Fatalf("unexpected explain request %v", ranker.lastExplain.AsMap())
	}

	rec = serve(t, h, http.MethodGet, "/api/v1/products/7/importance?baseline=high", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad baseline, got %d", rec.Code)
	}
}

func TestGatewayMapsStatusCodes(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.InvalidArgument, http.StatusBadRequest},
		{codes.NotFound, http.StatusNotFound},
		{codes.FailedPrecondition, http.StatusBadRequest},
		{codes.Unavailable, http.StatusServiceUnavailable},
		{codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			h := Router(nil, &fakeRanker{err: status.Error(tt.code, "boom")}, 0)
			rec := serve(t, h, http.MethodGet, "/api/v1/model", "")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestGatewayHealth(t *testing.T) {
	rec := serve(t, Router(nil, &fakeRanker{}, 0), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "f00d") {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, Router(nil, &fakeRanker{err: status.Error(codes.Unavailable, "down")}, 0), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGatewayRateLimit(t *testing.T) {
	h := Router(nil, &fakeRanker{}, 2)
	for i := 0; i < 2; i++ {
		if rec := serve(t, h, http.MethodGet, "/api/v1/model", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := serve(t, h, http.MethodGet, "/api/v1/model", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("health must bypass the limiter, got %d", rec.Code)
	}
}
