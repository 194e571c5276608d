package repo

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/snowflowstack/snowflow-ranker/internal/models"
	"github.com/snowflowstack/snowflow-ranker/internal/normalize"
	"github.com/snowflowstack/snowflow-ranker/internal/utils"
)

// pairColumns precede the feature columns in a pairwise dataset file.
var pairColumns = []string{"test_id", "winner_id", "winner_name", "loser_id", "loser_name", "date", "place"}

// DatasetFile stores a pairwise dataset as CSV.
type DatasetFile struct {
	path string
}

// NewDatasetFile targets path.
func NewDatasetFile(path string) *DatasetFile {
	return &DatasetFile{path: path}
}

// WriteDataset writes ds, one row per pair.
func (f *DatasetFile) WriteDataset(_ context.Context, ds models.Dataset) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return utils.NewAppError("write dataset", "create directory", err)
		}
	}
	out, err := os.Create(f.path)
	if err != nil {
		return utils.NewAppError("write dataset", "create "+f.path, err)
	}
	if err := EncodeDataset(out, ds); err != nil {
		out.Close()
		return utils.NewAppError("write dataset", f.path, err)
	}
	if err := out.Close(); err != nil {
		return utils.NewAppError("write dataset", "close "+f.path, err)
	}
	return nil
}

// ReadDataset loads the dataset file.
func (f *DatasetFile) ReadDataset(_ context.Context) (models.Dataset, error) {
	in, err := os.Open(f.path)
	if err != nil {
		return models.Dataset{}, utils.NewAppError("read dataset", "open "+f.path, err)
	}
	defer in.Close()
	return DecodeDataset(f.path, in)
}

// EncodeDataset writes ds as CSV to w.
func EncodeDataset(w io.Writer, ds models.Dataset) error {
	if ds.Schema == nil {
		return models.NewConfigurationError("encode dataset", "dataset has no feature schema")
	}
	writer := csv.NewWriter(w)
	header := append(append([]string(nil), pairColumns...), ds.Schema.Names()...)
	if err := writer.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, p := range ds.Pairs {
		row[0] = strconv.FormatInt(p.TestID, 10)
		row[1] = p.WinnerID.String()
		row[2] = p.WinnerName
		row[3] = p.LoserID.String()
		row[4] = p.LoserName
		row[5] = utils.FormatDate(p.Date)
		row[6] = p.Location
		for i, v := range p.Features.Values {
			row[len(pairColumns)+i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// DecodeDataset parses a pairwise CSV. Columns other than the pair columns are
// features: indicator columns are recognised by prefix, the rest are continuous.
// Every row must be canonical.
func DecodeDataset(name string, r io.Reader) (models.Dataset, error) {
	t, err := readCSV(name, r)
	if err != nil {
		return models.Dataset{}, err
	}
	if err := t.require(pairColumns[:5]...); err != nil {
		return models.Dataset{}, models.NewConfigurationError("decode dataset", err.Error())
	}

	reserved := make(map[string]bool, len(pairColumns))
	for _, c := range pairColumns {
		reserved[c] = true
	}
	var continuous, indicators []string
	for _, h := range t.header {
		switch {
		case reserved[h]:
		case normalize.IsIndicator(h):
			indicators = append(indicators, h)
		default:
			continuous = append(continuous, h)
		}
	}
	schema, err := models.NewFeatureSchema(continuous, indicators)
	if err != nil {
		return models.Dataset{}, err
	}

	ds := models.Dataset{Schema: schema, Pairs: make([]models.PairwiseObservation, 0, len(t.rows))}
	for i, row := range t.rows {
		p := models.PairwiseObservation{
			WinnerName: t.value(row, "winner_name"),
			LoserName:  t.value(row, "loser_name"),
			Location:   t.value(row, "place"),
		}
		if p.TestID, err = parseInt(t, row, "test_id", i); err != nil {
			return models.Dataset{}, err
		}
		winner, err := parseInt(t, row, "winner_id", i)
		if err != nil {
			return models.Dataset{}, err
		}
		loser, err := parseInt(t, row, "loser_id", i)
		if err != nil {
			return models.Dataset{}, err
		}
		p.WinnerID, p.LoserID = models.ProductID(winner), models.ProductID(loser)
		if p.Date, err = utils.ParseDate(t.value(row, "date")); err != nil {
			return models.Dataset{}, fmt.Errorf("%s line %d: %w", t.name, line(i), err)
		}

		vec := models.NewFeatureVector(schema)
		for j, feature := range schema.Names() {
			raw := t.value(row, feature)
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return models.Dataset{}, fmt.Errorf("%s line %d: %s %q is not a number", t.name, line(i), feature, raw)
			}
			vec.Values[j] = v
		}
		if p.Features, err = normalize.Canonical(vec); err != nil {
			return models.Dataset{}, fmt.Errorf("%s line %d: %w", t.name, line(i), err)
		}
		ds.Pairs = append(ds.Pairs, p)
	}
	return ds, nil
}
