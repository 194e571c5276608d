package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/utils"
)

// metadataKey is reserved in the model document for the feature lists.
const metadataKey = "metadata"

type productDocument struct {
	ID        models.ProductID   `json:"id"`
	Name      string             `json:"name"`
	M         map[string]float64 `json:"m"`
	S         map[string]float64 `json:"s"`
	Beta      map[string]float64 `json:"beta"`
	Intercept float64            `json:"intercept"`
}

type metadataDocument struct {
	NumericFeatures []string `json:"numeric_features"`
	DummyFeatures   []string `json:"dummy_features"`
}

// EncodeModel renders model as the JSON model document: one entry per product
// id plus the reserved metadata entry.
func EncodeModel(model *models.Model) ([]byte, error) {
	if model == nil || model.Schema == nil {
		return nil, models.NewConfigurationError("encode model", "model has no feature metadata")
	}
	continuous, indicators := model.Schema.Continuous(), model.Schema.Indicators()
	doc := make(map[string]any, len(model.Products)+1)
	for _, p := range model.Products {
		entry := productDocument{
			ID:        p.ID,
			Name:      p.Name,
			M:         make(map[string]float64, len(continuous)),
			S:         make(map[string]float64, len(continuous)),
			Beta:      make(map[string]float64, len(indicators)),
			Intercept: p.Intercept,
		}
		for i, f := range continuous {
			entry.M[f] = p.IdealPoint[i]
			entry.S[f] = p.Sensitivity[i]
		}
		for i, f := range indicators {
			if i < len(p.IndicatorWeight) {
				entry.Beta[f] = p.IndicatorWeight[i]
			}
		}
		doc[p.ID.String()] = entry
	}
	doc[metadataKey] = metadataDocument{NumericFeatures: continuous, DummyFeatures: indicators}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeModel parses and validates a model document. Every product must carry
// exactly the declared numeric features in m and s; beta may omit indicators,
// which then weigh zero.
func DecodeModel(data []byte) (*models.Model, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, models.NewConfigurationError("decode model", fmt.Sprintf("invalid JSON: %v", err))
	}
	metaRaw, ok := raw[metadataKey]
	if !ok {
		return nil, models.NewConfigurationError("decode model", "missing metadata entry")
	}
	var meta metadataDocument
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, models.NewConfigurationError("decode model", fmt.Sprintf("invalid metadata: %v", err))
	}
	schema, err := models.NewFeatureSchema(meta.NumericFeatures, meta.DummyFeatures)
	if err != nil {
		return nil, err
	}

	model := &models.Model{Schema: schema}
	for key, value := range raw {
		if key == metadataKey {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, models.NewConfigurationError("decode model", fmt.Sprintf("product key %q is not an integer id", key))
		}
		var entry productDocument
		if err := json.Unmarshal(value, &entry); err != nil {
			return nil, models.NewConfigurationError("decode model", fmt.Sprintf("product %s: %v", key, err))
		}
		params, err := productFromDocument(models.ProductID(id), entry, schema)
		if err != nil {
			return nil, err
		}
		model.Products = append(model.Products, params)
	}
	if len(model.Products) == 0 {
		return nil, models.NewConfigurationError("decode model", "model has no products")
	}
	model.SortProducts()
	return model, nil
}

func productFromDocument(id models.ProductID, entry productDocument, schema *models.FeatureSchema) (models.ProductParams, error) {
	if entry.ID != 0 && entry.ID != id {
		return models.ProductParams{}, models.NewConfigurationError("decode model", fmt.Sprintf("product key %s holds id %s", id, entry.ID))
	}
	continuous, indicators := schema.Continuous(), schema.Indicators()
	if len(entry.M) != len(continuous) || len(entry.S) != len(continuous) {
		return models.ProductParams{}, models.NewConfigurationError("decode model", fmt.Sprintf("product %s: m and s must list exactly the numeric features", id))
	}

	p := models.ProductParams{
		ID:              id,
		Name:            entry.Name,
		IdealPoint:      make([]float64, len(continuous)),
		Sensitivity:     make([]float64, len(continuous)),
		IndicatorWeight: make([]float64, len(indicators)),
		Intercept:       entry.Intercept,
	}
	if p.Name == "" {
		p.Name = id.String()
	}
	for i, f := range continuous {
		m, okM := entry.M[f]
		s, okS := entry.S[f]
		if !okM || !okS {
			return models.ProductParams{}, models.NewConfigurationError("decode model", fmt.Sprintf("product %s: missing numeric feature %q", id, f))
		}
		p.IdealPoint[i], p.Sensitivity[i] = m, s
	}
	for f, w := range entry.Beta {
		i := slices.Index(indicators, f)
		if i < 0 {
			return models.ProductParams{}, models.NewConfigurationError("decode model", fmt.Sprintf("product %s: beta references undeclared feature %q", id, f))
		}
		p.IndicatorWeight[i] = w
	}
	return p, nil
}

// Fingerprint identifies a model by the hash of its document.
func Fingerprint(model *models.Model) (string, error) {
	data, err := EncodeModel(model)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// ModelFile stores the model document on local disk.
type ModelFile struct {
	path string
}

// NewModelFile targets path.
func NewModelFile(path string) *ModelFile {
	return &ModelFile{path: path}
}

// SaveModel writes the document atomically through a temporary sibling file.
func (f *ModelFile) SaveModel(_ context.Context, model *models.Model) error {
	data, err := EncodeModel(model)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.NewAppError("save model", "create directory", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return utils.NewAppError("save model", "write "+tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return utils.NewAppError("save model", "rename "+tmp, err)
	}
	return nil
}

// LoadModel reads and validates the document.
func (f *ModelFile) LoadModel(_ context.Context) (*models.Model, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, utils.NewAppError("load model", "read "+f.path, err)
	}
	return DecodeModel(bytes.TrimSpace(data))
}
