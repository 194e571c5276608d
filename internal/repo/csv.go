package repo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/snowflowstack/snowflow-ranker/internal/utils"
)

// csvTable is a CSV file indexed by header name.
type csvTable struct {
	name    string
	header  []string
	columns map[string]int
	rows    [][]string
}

func readCSVFile(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.NewAppError("read csv", "open "+path, err)
	}
	defer f.Close()
	return readCSV(path, f)
}

func readCSV(name string, r io.Reader) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, utils.NewAppError("read csv", name+" is empty", err)
	}
	if err != nil {
		return nil, utils.NewAppError("read csv", "header of "+name, err)
	}
	t := &csvTable{name: name, columns: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		t.header = append(t.header, h)
		t.columns[h] = i
	}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, utils.NewAppError("read csv", name, err)
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func (t *csvTable) require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if _, ok := t.columns[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing columns %s", t.name, strings.Join(missing, ", "))
	}
	return nil
}

func (t *csvTable) has(col string) bool {
	_, ok := t.columns[col]
	return ok
}

// value returns the trimmed cell or "" when the column or cell is absent.
func (t *csvTable) value(row []string, col string) string {
	i, ok := t.columns[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// line is the 1-based file line of row index i, counting the header.
func line(i int) int { return i + 2 }

func parseInt(t *csvTable, row []string, col string, i int) (int64, error) {
	v := t.value(row, col)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// Spreadsheet exports often write integer ids as floats.
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("%s line %d: %s %q is not an integer", t.name, line(i), col, v)
		}
		n = int64(f)
	}
	return n, nil
}

func parseOptionalFloat(t *csvTable, row []string, col string, i int) (*float64, error) {
	v := t.value(row, col)
	if v == "" || strings.EqualFold(v, "nan") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s line %d: %s %q is not a number", t.name, line(i), col, v)
	}
	return &f, nil
}
