package repo

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestModelClientCachesDocument(t *testing.T) {
	doc, err := EncodeModel(sampleModel(t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hits := 0
	cacheStub := newStubCache()
	client, err := NewModelClientForURL("https://registry.example.com/models/latest.json", time.Second, cacheStub, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/models/latest.json" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(doc)),
			Header:     make(http.Header),
		}, nil
	}))

	ctx := context.Background()
	model, err := client.LoadModel(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 || len(model.Products) != 2 {
		t.Fatalf("unexpected first load: hits=%d products=%d", hits, len(model.Products))
	}

	cached, err := client.LoadModel(ctx)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if cacheStub.gets != 2 || cacheStub.hits != 1 {
		t.Fatalf("expected second load served from cache, gets=%d hits=%d", cacheStub.gets, cacheStub.hits)
	}
	if cached.Products[1].Name != "Blue Glide" {
		t.Fatalf("unexpected cached model: %+v", cached.Products)
	}
}

func TestModelClientRejectsErrorStatus(t *testing.T) {
	client := NewModelClient("http://registry", "/model.json", time.Second, nil, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	}))
	if _, err := client.LoadModel(context.Background()); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestOpenModel(t *testing.T) {
	loader, err := OpenModel("https://registry.example.com/model.json", time.Second, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := loader.(*ModelClient); !ok {
		t.Fatalf("expected model client for URL, got %T", loader)
	}
	loader, err = OpenModel("product_model.json", time.Second, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := loader.(*ModelFile); !ok {
		t.Fatalf("expected model file for path, got %T", loader)
	}
	if _, err := OpenModel(" ", time.Second, nil, 0); err == nil {
		t.Fatalf("expected error for empty location")
	}
	if _, err := NewModelClientForURL("ftp://registry/model.json", time.Second, nil, 0); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
