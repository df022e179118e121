package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/scorer"
)

const (
	classNormal = "Normal"
	classFraud  = "Fraud"
)

// ErrNoLabel is returned when the dataset has no ground truth column.
var ErrNoLabel = errors.New("ground truth column not found")

// Summary captures the headline numbers of a scoring run.
type Summary struct {
	Total       int      `json:"total" yaml:"total"`
	Outliers    int      `json:"outliers" yaml:"outliers"`
	Clusters    int      `json:"clusters" yaml:"clusters"`
	OutlierRate float64  `json:"outlier_rate" yaml:"outlier_rate"`
	Eps         float64  `json:"eps" yaml:"eps"`
	MinSamples  int      `json:"min_samples" yaml:"min_samples"`
	Features    []string `json:"features" yaml:"features"`
	Duration    string   `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Summarize builds the summary of the result.
func Summarize(res *scorer.Result, opts *scorer.Options) *Summary {
	s := &Summary{}
	if res == nil {
		return s
	}

	s.Total = len(res.Labels)
	s.Outliers = res.NoiseCount
	s.Clusters = res.Clusters
	s.Features = res.Features
	s.Duration = res.Duration
	if s.Total > 0 {
		s.OutlierRate = float64(s.Outliers) / float64(s.Total)
	}
	if opts != nil {
		s.Eps = opts.Eps
		s.MinSamples = opts.MinSamples
	}
	return s
}

// ClassMetrics holds the precision, recall and f1 for one class or average.
type ClassMetrics struct {
	Name      string  `json:"name" yaml:"name"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1        float64 `json:"f1_score" yaml:"f1_score"`
	Support   int     `json:"support" yaml:"support"`
}

// Confusion is the confusion matrix with fraud as the positive class.
type Confusion struct {
	TruePositive  int `json:"true_positive" yaml:"true_positive"`
	FalsePositive int `json:"false_positive" yaml:"false_positive"`
	TrueNegative  int `json:"true_negative" yaml:"true_negative"`
	FalseNegative int `json:"false_negative" yaml:"false_negative"`
}

// Evaluation compares the outlier flags against the ground truth labels.
type Evaluation struct {
	LabelColumn string       `json:"label_column" yaml:"label_column"`
	Normal      ClassMetrics `json:"normal" yaml:"normal"`
	Fraud       ClassMetrics `json:"fraud" yaml:"fraud"`
	Accuracy    float64      `json:"accuracy" yaml:"accuracy"`
	MacroAvg    ClassMetrics `json:"macro_avg" yaml:"macro_avg"`
	WeightedAvg ClassMetrics `json:"weighted_avg" yaml:"weighted_avg"`
	Confusion   Confusion    `json:"confusion" yaml:"confusion"`
}

// Rows returns the report lines in display order.
func (e *Evaluation) Rows() []ClassMetrics {
	return []ClassMetrics{e.Normal, e.Fraud, e.MacroAvg, e.WeightedAvg}
}

// Evaluate builds a classification report of the outlier flags against the
// label column. Undefined ratios are reported as 0.
func Evaluate(ds *dataset.Dataset, res *scorer.Result, labelColumn string) (*Evaluation, error) {
	if ds == nil || res == nil {
		return nil, errors.New("dataset and result required")
	}

	idx := ds.Index(labelColumn)
	if labelColumn == "" || idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoLabel, labelColumn)
	}
	if len(res.Outliers) != ds.Len() {
		return nil, fmt.Errorf("result has %d rows, dataset has %d", len(res.Outliers), ds.Len())
	}

	var c Confusion
	for i, row := range ds.Rows {
		fraud, err := ParseLabel(row[idx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		switch {
		case fraud && res.Outliers[i]:
			c.TruePositive++
		case fraud:
			c.FalseNegative++
		case res.Outliers[i]:
			c.FalsePositive++
		default:
			c.TrueNegative++
		}
	}

	e := &Evaluation{
		LabelColumn: labelColumn,
		Confusion:   c,
		Normal:      metrics(classNormal, c.TrueNegative, c.FalseNegative, c.FalsePositive),
		Fraud:       metrics(classFraud, c.TruePositive, c.FalsePositive, c.FalseNegative),
	}

	total := e.Normal.Support + e.Fraud.Support
	e.Accuracy = ratio(c.TruePositive+c.TrueNegative, total)

	e.MacroAvg = ClassMetrics{
		Name:      "macro avg",
		Precision: (e.Normal.Precision + e.Fraud.Precision) / 2,
		Recall:    (e.Normal.Recall + e.Fraud.Recall) / 2,
		F1:        (e.Normal.F1 + e.Fraud.F1) / 2,
		Support:   total,
	}

	e.WeightedAvg = ClassMetrics{Name: "weighted avg", Support: total}
	if total > 0 {
		wn := float64(e.Normal.Support) / float64(total)
		wf := float64(e.Fraud.Support) / float64(total)
		e.WeightedAvg.Precision = e.Normal.Precision*wn + e.Fraud.Precision*wf
		e.WeightedAvg.Recall = e.Normal.Recall*wn + e.Fraud.Recall*wf
		e.WeightedAvg.F1 = e.Normal.F1*wn + e.Fraud.F1*wf
	}

	return e, nil
}

// ParseLabel converts a ground truth cell into a fraud flag.
func ParseLabel(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || (f != 0 && f != 1) {
		return false, fmt.Errorf("%w: label %q is not binary", dataset.ErrInput, v)
	}
	return f == 1, nil
}

// metrics computes the per-class numbers from the class's own true positives,
// false positives (predicted as the class, wrong) and false negatives (missed).
func metrics(name string, tp, fp, fn int) ClassMetrics {
	m := ClassMetrics{
		Name:      name,
		Precision: ratio(tp, tp+fp),
		Recall:    ratio(tp, tp+fn),
		Support:   tp + fn,
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
