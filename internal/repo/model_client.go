package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/snowflowstack/snowflow-ranker/internal/cache"
	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

// maxModelBytes bounds the size of a fetched model document.
const maxModelBytes = 64 << 20

// ModelClient fetches model documents from a model registry over HTTP.
type ModelClient struct {
	baseURL    string
	modelPath  string
	httpClient *http.Client
	cache      cache.Provider
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewModelClient constructs a client for baseURL. modelPath is resolved against
// baseURL; provider may be nil to disable caching.
func NewModelClient(baseURL, modelPath string, timeout time.Duration, provider cache.Provider, cacheTTL time.Duration) *ModelClient {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ModelClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelPath: modelPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:    provider,
		cacheTTL: cacheTTL,
		logger:   slog.Default(),
	}
}

// NewModelClientForURL splits a full document URL into base and path.
func NewModelClientForURL(rawURL string, timeout time.Duration, provider cache.Provider, cacheTTL time.Duration) (*ModelClient, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, models.NewConfigurationError("model client", fmt.Sprintf("invalid model URL %q", rawURL))
	}
	docPath := u.Path
	u.Path = ""
	return NewModelClient(u.String(), docPath, timeout, provider, cacheTTL), nil
}

// WithLogger sets the client logger.
func (c *ModelClient) WithLogger(logger *slog.Logger) *ModelClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// LoadModel fetches, caches and validates the model document.
func (c *ModelClient) LoadModel(ctx context.Context) (*models.Model, error) {
	if c == nil {
		return nil, fmt.Errorf("model client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("model registry base URL not configured")
	}
	endpoint := c.modelURL()
	key := "model-document:" + endpoint

	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		return DecodeModel(data)
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn("model cache read failed", slog.Any("error", err))
	}

	data, err = c.getDocument(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("model registry request failed: %w", err)
	}
	model, err := DecodeModel(data)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		c.logger.Warn("model cache write failed", slog.Any("error", err))
	}
	return model, nil
}

func (c *ModelClient) modelURL() string { return c.resolvePath(c.modelPath) }

func (c *ModelClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *ModelClient) getDocument(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model registry returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModelBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// ModelLoader loads a model from wherever it is published.
type ModelLoader interface {
	LoadModel(ctx context.Context) (*models.Model, error)
}

// OpenModel returns a loader for location: an http(s) URL is fetched through a
// ModelClient, anything else is read as a local file.
func OpenModel(location string, timeout time.Duration, provider cache.Provider, cacheTTL time.Duration) (ModelLoader, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		client, err := NewModelClientForURL(location, timeout, provider, cacheTTL)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	if strings.TrimSpace(location) == "" {
		return nil, models.NewConfigurationError("open model", "model location is empty")
	}
	return NewModelFile(location), nil
}
