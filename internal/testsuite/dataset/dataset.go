// Package dataset loads the tabular data uploaded into every project created during a run.
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/activetigger/atstress/internal/common/stresserrors"
	"github.com/activetigger/atstress/pkg/client"
)

// Dataset is immutable once loaded and safe for concurrent reads.
type Dataset struct {
	columns []string
	rows    [][]string
	csv     string
}

func New(columns []string, rows [][]string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, errors.WithStack(&stresserrors.ErrInvalidArgument{Name: "columns", Value: "", Message: "dataset has no columns"})
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, errors.WithStack(&stresserrors.ErrInvalidArgument{
				Name:    "rows",
				Value:   fmt.Sprintf("row %d", i+1),
				Message: fmt.Sprintf("expected %d values, got %d", len(columns), len(row)),
			})
		}
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Dataset{
		columns: append([]string(nil), columns...),
		rows:    rows,
		csv:     buf.String(),
	}, nil
}

// Load reads a dataset from a .csv file with a header row, or from a .json, .yaml or .yml file holding a list of
// records.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed opening dataset %s", path)
	}
	defer f.Close()

	var ds *Dataset
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		ds, err = ReadCsv(f)
	case ".json", ".yaml", ".yml":
		ds, err = ReadRecords(f)
	default:
		return nil, errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "dataset",
			Value:   path,
			Message: "supported formats are .csv, .json, .yaml and .yml",
		})
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to parse dataset %s", path)
	}
	return ds, nil
}

func ReadCsv(r io.Reader) (*Dataset, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(records) == 0 {
		return nil, errors.WithStack(&stresserrors.ErrInvalidArgument{Name: "dataset", Value: "", Message: "missing header row"})
	}
	return New(records[0], records[1:])
}

// ReadRecords decodes a JSON or YAML list of flat records. Columns are the union of all record keys, sorted.
func ReadRecords(r io.Reader) (*Dataset, error) {
	var records []map[string]interface{}
	if err := yaml.NewYAMLOrJSONDecoder(r, 4096).Decode(&records); err != nil {
		return nil, errors.WithStack(err)
	}
	keys := map[string]bool{}
	for _, record := range records {
		for key := range record {
			keys[key] = true
		}
	}
	columns := make([]string, 0, len(keys))
	for key := range keys {
		columns = append(columns, key)
	}
	sort.Strings(columns)

	rows := make([][]string, len(records))
	for i, record := range records {
		row := make([]string, len(columns))
		for j, column := range columns {
			if value, ok := record[column]; ok && value != nil {
				row[j] = fmt.Sprint(value)
			}
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// Synthetic builds n labelled rows with columns id, text and label, cycling through labels.
func Synthetic(n int, labels []string) (*Dataset, error) {
	if len(labels) == 0 {
		labels = []string{"positive", "negative"}
	}
	rows := make([][]string, n)
	for i := range rows {
		label := labels[i%len(labels)]
		rows[i] = []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("Synthetic sentence number %d, written to be annotated as %s.", i+1, label),
			label,
		}
	}
	return New([]string{"id", "text", "label"}, rows)
}

func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

func (d *Dataset) Len() int {
	return len(d.rows)
}

// Csv returns the dataset rendered as CSV with a header row.
func (d *Dataset) Csv() string {
	return d.csv
}

// Validate checks that every column referenced by columns exists.
func (d *Dataset) Validate(columns client.Columns) error {
	present := make(map[string]bool, len(d.columns))
	for _, c := range d.columns {
		present[c] = true
	}
	required := []string{columns.Id}
	required = append(required, columns.Text...)
	required = append(required, columns.Context...)
	if columns.Label != "" {
		required = append(required, columns.Label)
	}
	if columns.Id == "" || len(columns.Text) == 0 {
		return errors.WithStack(&stresserrors.ErrInvalidArgument{
			Name:    "columns",
			Value:   strings.Join(required, ","),
			Message: "an id column and at least one text column are required",
		})
	}
	for _, c := range required {
		if !present[c] {
			return errors.WithStack(&stresserrors.ErrNotFound{
				Type:    "column",
				Value:   c,
				Message: fmt.Sprintf("dataset columns are %s", strings.Join(d.columns, ", ")),
			})
		}
	}
	return nil
}
