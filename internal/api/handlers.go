package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
)

// PredictRequest is a decoded Predict payload. Nil options fall back to the
// server defaults.
type PredictRequest struct {
	Conditions      models.Query
	TopN            *int
	Rescale         *bool
	ImportanceScale *float64
}

// Options merges the request options over defaults.
func (r PredictRequest) Options(defaults models.PredictOptions) models.PredictOptions {
	opts := defaults
	if r.TopN != nil {
		opts.TopN = *r.TopN
	}
	if r.Rescale != nil {
		opts.Rescale = *r.Rescale
	}
	if r.ImportanceScale != nil {
		opts.ImportanceScale = *r.ImportanceScale
	}
	return opts
}

// ExplainRequest is a decoded Explain payload.
type ExplainRequest struct {
	ProductID models.ProductID
	Baseline  *float64
	TopK      int
}

// FromProtoPredictRequest maps {"conditions": {...}, "top_n", "rescale",
// "importance_scale"} into a PredictRequest.
func FromProtoPredictRequest(req *structpb.Struct) (PredictRequest, error) {
	if req == nil {
		return PredictRequest{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	conditions := fields["conditions"].GetStructValue()
	if conditions == nil {
		return PredictRequest{}, fmt.Errorf("conditions object is required")
	}
	out := PredictRequest{Conditions: models.Query(conditions.AsMap())}

	if v, ok := fields["top_n"]; ok {
		n, err := nonNegativeInt("top_n", v)
		if err != nil {
			return PredictRequest{}, err
		}
		out.TopN = &n
	}
	if v, ok := fields["rescale"]; ok {
		b, isBool := v.GetKind().(*structpb.Value_BoolValue)
		if !isBool {
			return PredictRequest{}, fmt.Errorf("rescale must be a boolean")
		}
		out.Rescale = &b.BoolValue
	}
	if v, ok := fields["importance_scale"]; ok {
		x, err := number("importance_scale", v)
		if err != nil {
			return PredictRequest{}, err
		}
		if x < 0 {
			return PredictRequest{}, fmt.Errorf("importance_scale must not be negative")
		}
		out.ImportanceScale = &x
	}
	return out, nil
}

// FromProtoExplainRequest maps {"product_id", "baseline", "top_k"}.
func FromProtoExplainRequest(req *structpb.Struct) (ExplainRequest, error) {
	if req == nil {
		return ExplainRequest{}, fmt.Errorf("request is nil")
	}
	fields := req.GetFields()
	v, ok := fields["product_id"]
	if !ok {
		return ExplainRequest{}, fmt.Errorf("product_id is required")
	}
	id, err := ParseProductID(v)
	if err != nil {
		return ExplainRequest{}, err
	}
	out := ExplainRequest{ProductID: id}
	if v, ok := fields["baseline"]; ok {
		x, err := number("baseline", v)
		if err != nil {
			return ExplainRequest{}, err
		}
		out.Baseline = &x
	}
	if v, ok := fields["top_k"]; ok {
		if out.TopK, err = nonNegativeInt("top_k", v); err != nil {
			return ExplainRequest{}, err
		}
	}
	return out, nil
}

// ParseProductID accepts an integral number or a decimal string.
func ParseProductID(v *structpb.Value) (models.ProductID, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue != math.Trunc(k.NumberValue) {
			return 0, fmt.Errorf("product_id must be an integer")
		}
		return models.ProductID(k.NumberValue), nil
	case *structpb.Value_StringValue:
		id, err := strconv.ParseInt(strings.TrimSpace(k.StringValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("product_id must be an integer")
		}
		return models.ProductID(id), nil
	default:
		return 0, fmt.Errorf("product_id must be an integer")
	}
}

// ToProtoPrediction renders a prediction together with the serving model's fingerprint.
func ToProtoPrediction(pred models.Prediction, fingerprint string) (*structpb.Struct, error) {
	return ToStruct(struct {
		Model string `json:"model"`
		models.Prediction
	}{Model: fingerprint, Prediction: pred})
}

// ToProtoExplanation renders a product explanation.
func ToProtoExplanation(e models.ProductExplanation) (*structpb.Struct, error) {
	return ToStruct(e)
}

// ToProtoModelSummary renders the serving model description.
func ToProtoModelSummary(s models.ModelSummary) (*structpb.Struct, error) {
	return ToStruct(s)
}

// ToStruct converts any JSON-encodable value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert payload: %w", err)
	}
	return out, nil
}

// FromStruct decodes a Struct into out.
func FromStruct(s *structpb.Struct, out any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	return json.Unmarshal(data, out)
}

func number(field string, v *structpb.Value) (float64, error) {
	k, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", field)
	}
	return k.NumberValue, nil
}

func nonNegativeInt(field string, v *structpb.Value) (int, error) {
	x, err := number(field, v)
	if err != nil {
		return 0, err
	}
	if x < 0 || x != math.Trunc(x) {
		return 0, fmt.Errorf("%s must be a non-negative integer", field)
	}
	return int(x), nil
}
