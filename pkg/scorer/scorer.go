package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/mchmarny/outlier/pkg/dataset"
)

const (
	// EpsDefault is the default neighborhood radius.
	EpsDefault = 1.8
	// MinSamplesDefault is the default neighbor count, self included, for a core point.
	MinSamplesDefault = 5
	// LabelColumnDefault is the ground truth column of the Kaggle credit card dataset.
	LabelColumnDefault = "Class"

	// ClusterColumn holds the cluster assignment in the augmented dataset.
	ClusterColumn = "cluster"
	// OutlierColumn holds the outlier flag in the augmented dataset.
	OutlierColumn = "is_outlier"

	identifierMinRows = 10
)

// ErrInput is returned for unusable datasets and invalid options.
var ErrInput = dataset.ErrInput

// Options configures a scoring run.
type Options struct {
	Eps         float64 `json:"eps" yaml:"eps"`
	MinSamples  int     `json:"min_samples" yaml:"min_samples"`
	LabelColumn string  `json:"label_column,omitempty" yaml:"label_column,omitempty"`
	Workers     int     `json:"workers,omitempty" yaml:"workers,omitempty"`
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() *Options {
	return &Options{
		Eps:         EpsDefault,
		MinSamples:  MinSamplesDefault,
		LabelColumn: LabelColumnDefault,
		Workers:     runtime.NumCPU(),
	}
}

// Validate checks the options.
func (o *Options) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: options required", ErrInput)
	}
	if !(o.Eps > 0) {
		return fmt.Errorf("%w: eps must be greater than 0, got %v", ErrInput, o.Eps)
	}
	if o.MinSamples < 1 {
		return fmt.Errorf("%w: min samples must be at least 1, got %d", ErrInput, o.MinSamples)
	}
	if o.Workers < 0 {
		return fmt.Errorf("%w: workers can't be negative, got %d", ErrInput, o.Workers)
	}
	return nil
}

// Result is the outcome of a scoring run. Labels and Outliers are in dataset row order.
type Result struct {
	Features       []string `json:"features" yaml:"features"`
	IdentifierLike []string `json:"identifier_like,omitempty" yaml:"identifier_like,omitempty"`
	Labels         []int    `json:"-" yaml:"-"`
	Outliers       []bool   `json:"-" yaml:"-"`
	Clusters       int      `json:"clusters" yaml:"clusters"`
	NoiseCount     int      `json:"noise" yaml:"noise"`
	Duration       string   `json:"duration" yaml:"duration"`

	source *dataset.Dataset
}

// Score standardizes the numeric columns of the dataset and runs DBSCAN over
// them. Rows labeled as noise are flagged as outliers. The label column is
// never used as a feature.
func Score(ctx context.Context, ds *dataset.Dataset, opts *Options) (*Result, error) {
	start := time.Now()
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: dataset required", ErrInput)
	}

	res := &Result{
		Features: []string{},
		Labels:   []int{},
		Outliers: []bool{},
		source:   ds,
	}

	if ds.Len() == 0 {
		slog.Debug("empty dataset, nothing to score")
		res.Duration = time.Since(start).String()
		return res, nil
	}

	features, err := dataset.NumericColumns(ds, opts.LabelColumn, ClusterColumn, OutlierColumn)
	if err != nil {
		return nil, fmt.Errorf("selecting features: %w", err)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no numeric feature columns in %v", ErrInput, ds.Columns)
	}
	res.Features = features

	n := ds.Len()
	points := make([][]float64, n)
	for i := range points {
		points[i] = make([]float64, len(features))
	}

	for j, name := range features {
		vals, err := ds.Column(name)
		if err != nil {
			return nil, fmt.Errorf("reading feature: %w", err)
		}
		if identifierLike(vals) {
			res.IdentifierLike = append(res.IdentifierLike, name)
		}
		for i, v := range Standardize(vals) {
			points[i][j] = v
		}
	}

	workers := opts.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	slog.Debug("clustering",
		"rows", n,
		"features", len(features),
		"eps", opts.Eps,
		"min_samples", opts.MinSamples,
		"workers", workers,
	)

	labels, clusters, err := DBSCAN(ctx, points, opts.Eps, opts.MinSamples, workers)
	if err != nil {
		return nil, fmt.Errorf("clustering: %w", err)
	}

	res.Labels = labels
	res.Clusters = clusters
	res.Outliers = make([]bool, n)
	for i, l := range labels {
		res.Outliers[i] = l == Noise
		if res.Outliers[i] {
			res.NoiseCount++
		}
	}
	res.Duration = time.Since(start).String()

	return res, nil
}

// Augmented returns a copy of the scored dataset with the cluster and outlier
// columns. Existing columns with those names are overwritten in place.
func (r *Result) Augmented() *dataset.Dataset {
	src := r.source
	if src == nil {
		src = &dataset.Dataset{}
	}

	cols := append([]string{}, src.Columns...)
	clusterIdx := src.Index(ClusterColumn)
	if clusterIdx < 0 {
		clusterIdx = len(cols)
		cols = append(cols, ClusterColumn)
	}
	outlierIdx := src.Index(OutlierColumn)
	if outlierIdx < 0 {
		outlierIdx = len(cols)
		cols = append(cols, OutlierColumn)
	}

	out := &dataset.Dataset{
		Columns: cols,
		Rows:    make([][]string, len(src.Rows)),
	}
	for i, row := range src.Rows {
		r2 := make([]string, len(cols))
		copy(r2, row)
		r2[clusterIdx] = fmt.Sprintf("%d", r.Labels[i])
		r2[outlierIdx] = FormatFlag(r.Outliers[i])
		out.Rows[i] = r2
	}
	return out
}

// FormatFlag renders the outlier flag the way the exported CSV expects it.
func FormatFlag(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
