package report

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/scorer"
)

const (
	// ScatterXDefault is the preferred horizontal axis of the scatter plot.
	ScatterXDefault = "Time"
	// ScatterYDefault is the preferred vertical axis of the scatter plot.
	ScatterYDefault = "Amount"
	// SampleSizeDefault is the default number of points in the scatter plot.
	SampleSizeDefault = 5000
	// SampleSeedDefault keeps the scatter sample stable between renders.
	SampleSeedDefault = 42
)

// Point is one transaction in the scatter plot.
type Point struct {
	Index   int     `json:"i" yaml:"i"`
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	Outlier bool    `json:"outlier" yaml:"outlier"`
}

// Scatter is a sampled set of points with the axes they were drawn on.
type Scatter struct {
	X      string   `json:"x" yaml:"x"`
	Y      string   `json:"y" yaml:"y"`
	Total  int      `json:"total" yaml:"total"`
	Points []*Point `json:"points" yaml:"points"`
}

// Sample draws up to n random points for the scatter plot. The same seed
// yields the same sample. Axes that are not in the dataset fall back to the
// first scored features.
func Sample(ds *dataset.Dataset, res *scorer.Result, x, y string, n int, seed uint64) (*Scatter, error) {
	if ds == nil || res == nil {
		return nil, fmt.Errorf("%w: dataset and result required", dataset.ErrInput)
	}

	idx := SampleIndexes(ds.Len(), n, seed)
	sub := &dataset.Dataset{
		Columns: ds.Columns,
		Rows:    make([][]string, len(idx)),
	}
	flags := make([]bool, len(idx))
	for k, i := range idx {
		sub.Rows[k] = ds.Rows[i]
		flags[k] = i < len(res.Outliers) && res.Outliers[i]
	}

	return Project(sub, idx, flags, res.Features, x, y, ds.Len())
}

// Project turns already sampled rows into scatter points. Rows, indexes and
// outliers are aligned; total is the size of the full dataset.
func Project(rows *dataset.Dataset, indexes []int, outliers []bool, features []string, x, y string, total int) (*Scatter, error) {
	if rows == nil {
		return nil, fmt.Errorf("%w: rows required", dataset.ErrInput)
	}
	if len(indexes) != rows.Len() || len(outliers) != rows.Len() {
		return nil, fmt.Errorf("%w: %d rows with %d indexes and %d flags", dataset.ErrInput, rows.Len(), len(indexes), len(outliers))
	}

	x, y = resolveAxes(rows, features, x, y)
	s := &Scatter{
		X:      x,
		Y:      y,
		Total:  total,
		Points: make([]*Point, 0, rows.Len()),
	}
	if x == "" {
		return s, nil
	}

	xi, yi := rows.Index(x), rows.Index(y)
	for k, row := range rows.Rows {
		i := indexes[k]
		xv, err := strconv.ParseFloat(row[xi], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q row %d: %v", dataset.ErrInput, x, i+1, err)
		}
		yv, err := strconv.ParseFloat(row[yi], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q row %d: %v", dataset.ErrInput, y, i+1, err)
		}
		s.Points = append(s.Points, &Point{
			Index:   i,
			X:       xv,
			Y:       yv,
			Outlier: outliers[k],
		})
	}

	return s, nil
}

func resolveAxes(ds *dataset.Dataset, features []string, x, y string) (string, string) {
	usable := func(name string) bool {
		return name != "" && ds.Has(name) && slices.Contains(features, name)
	}

	if usable(x) && usable(y) {
		return x, y
	}

	switch len(features) {
	case 0:
		return "", ""
	case 1:
		return features[0], features[0]
	}

	if usable(x) {
		for _, f := range features {
			if f != x {
				return x, f
			}
		}
	}
	if usable(y) {
		for _, f := range features {
			if f != y {
				return f, y
			}
		}
	}
	return features[0], features[1]
}

// SampleIndexes returns min(n, total) distinct row indexes in ascending order.
func SampleIndexes(total, n int, seed uint64) []int {
	if total <= 0 || n <= 0 {
		return []int{}
	}

	idx := make([]int, total)
	for i := range idx {
		idx[i] = i
	}
	if n >= total {
		return idx
	}

	r := rand.New(rand.NewPCG(seed, seed))
	for i := 0; i < n; i++ {
		j := i + r.IntN(total-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	picked := idx[:n]
	slices.Sort(picked)
	return picked
}
