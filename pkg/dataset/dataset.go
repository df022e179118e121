package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInput is returned when the dataset content can't be used for scoring.
	ErrInput = errors.New("invalid input")

	missingValues = []string{"", "na", "nan", "null", "none"}
)

// Dataset is a tabular set of transaction records kept as raw cells.
type Dataset struct {
	Columns []string   `json:"columns" yaml:"columns"`
	Rows    [][]string `json:"rows" yaml:"rows"`
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Index returns the position of the named column or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has checks if the dataset has the named column.
func (d *Dataset) Has(name string) bool {
	return d.Index(name) >= 0
}

// Head returns a dataset with up to the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	if n < 0 {
		n = 0
	}
	return &Dataset{
		Columns: d.Columns,
		Rows:    d.Rows[:n],
	}
}

// Column parses the named column into floats. Missing or non-finite values are an error.
func (d *Dataset) Column(name string) ([]float64, error) {
	idx := d.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: column %q not found", ErrInput, name)
	}

	vals := make([]float64, len(d.Rows))
	for i, row := range d.Rows {
		cell := row[idx]
		if isMissing(cell) {
			return nil, fmt.Errorf("%w: column %q has a missing value in row %d", ErrInput, name, i+1)
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q has non-numeric value %q in row %d", ErrInput, name, cell, i+1)
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: column %q has non-finite value in row %d", ErrInput, name, i+1)
		}
		vals[i] = v
	}
	return vals, nil
}

// NumericColumns returns the names of the columns whose values are all numbers,
// in dataset order, skipping the excluded names. A column is numeric when it has
// at least one value and every non-missing value parses as a float. Numeric
// columns with missing values are rejected rather than skipped.
func NumericColumns(d *Dataset, exclude ...string) ([]string, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: dataset required", ErrInput)
	}

	cols := make([]string, 0, len(d.Columns))
	for j, name := range d.Columns {
		if contains(exclude, name) {
			continue
		}

		values, missingRow, numeric := 0, -1, true
		for i, row := range d.Rows {
			cell := row[j]
			if isMissing(cell) {
				if missingRow < 0 {
					missingRow = i
				}
				continue
			}
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric = false
				break
			}
			values++
		}

		if !numeric || values == 0 {
			continue
		}

		if missingRow >= 0 {
			return nil, fmt.Errorf("%w: column %q has a missing value in row %d", ErrInput, name, missingRow+1)
		}
		cols = append(cols, name)
	}
	return cols, nil
}

// ReadCSV parses CSV content with a header row.
func ReadCSV(r io.Reader) (*Dataset, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: reader required", ErrInput)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Dataset{Columns: []string{}, Rows: [][]string{}}, nil
		}
		return nil, fmt.Errorf("%w: reading header: %v", ErrInput, err)
	}

	d := &Dataset{
		Columns: make([]string, len(header)),
		Rows:    make([][]string, 0),
	}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		if d.Has(h) {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInput, h)
		}
		d.Columns[i] = h
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading row %d: %v", ErrInput, len(d.Rows)+1, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		d.Rows = append(d.Rows, rec)
	}

	return d, nil
}

// WriteCSV writes the dataset, header first.
func WriteCSV(w io.Writer, d *Dataset) error {
	if d == nil {
		return fmt.Errorf("%w: dataset required", ErrInput)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(d.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := cw.WriteAll(d.Rows); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	return nil
}

func isMissing(v string) bool {
	return contains(missingValues, strings.ToLower(strings.TrimSpace(v)))
}

func contains[T comparable](list []T, val T) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
