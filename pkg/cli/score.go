package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/net"
	"github.com/mchmarny/outlier/pkg/report"
	"github.com/mchmarny/outlier/pkg/scorer"
	urfave "github.com/urfave/cli/v3"
)

const stdinName = "-"

var (
	inputFlag = &urfave.StringFlag{
		Name:    "input",
		Aliases: []string{"i"},
		Usage:   "Path or http(s) URL of the transaction CSV file, - for stdin",
	}

	outputFlag = &urfave.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Path where the CSV with the cluster and is_outlier columns is written",
	}

	sourceFlag = &urfave.StringFlag{
		Name:  "source",
		Usage: fmt.Sprintf("Input source [%s] (default: %s)", joinSources(), dataset.SourceUploaded),
	}

	sampleFlag = &urfave.BoolFlag{
		Name:  "sample",
		Usage: "Score the bundled sample dataset (same as --source default-sample)",
	}

	scoreCmd = &urfave.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Score a transaction dataset and print the summary",
		UsageText: `outlier score --input creditcard.csv --output outlier_results.csv   # score a file
   outlier score --sample --eps 2.0 --min-samples 8                      # score the bundled sample
   cat creditcard.csv | outlier score -i - --format yaml                 # score stdin`,
		HideHelpCommand: true,
		Action:          cmdScore,
		Flags: []urfave.Flag{
			inputFlag,
			outputFlag,
			sourceFlag,
			sampleFlag,
			epsFlag,
			minSamplesFlag,
			labelFlag,
			workersFlag,
		},
	}
)

// ScoreResult is what the score command prints.
type ScoreResult struct {
	Source         string             `json:"source" yaml:"source"`
	Output         string             `json:"output,omitempty" yaml:"output,omitempty"`
	Summary        *report.Summary    `json:"summary" yaml:"summary"`
	Evaluation     *report.Evaluation `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
	IdentifierLike []string           `json:"identifier_like,omitempty" yaml:"identifier_like,omitempty"`
	Preview        *dataset.Dataset   `json:"preview,omitempty" yaml:"preview,omitempty"`
}

func cmdScore(ctx context.Context, cmd *urfave.Command) error {
	app := getConfig(cmd)
	cfg := *app.Config
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}
	if cmd.Bool(sampleFlag.Name) {
		cfg.Source = string(dataset.SourceDefaultSample)
	}

	var input io.Reader
	name := cmd.String(inputFlag.Name)
	switch name {
	case "":
	case stdinName:
		input = cmd.Root().Reader
		name = "stdin"
	default:
		if net.IsURL(name) {
			body, err := net.Fetch(ctx, nil, name)
			if err != nil {
				return fmt.Errorf("fetching input: %w", err)
			}
			defer body.Close()
			input = body
			name = path.Base(name)
			break
		}

		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("opening input file: %w", err)
		}
		defer f.Close()
		input = f
		name = filepath.Base(name)
	}

	ds, src, err := dataset.Load(cfg.InputSource(), input, name)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}
	slog.Debug("dataset loaded", "source", src, "rows", ds.Len(), "columns", len(ds.Columns))

	opts := cfg.ScorerOptions()
	res, err := scorer.Score(ctx, ds, opts)
	if err != nil {
		return fmt.Errorf("scoring %s: %w", src, err)
	}
	warnIdentifierLike(res)

	out := &ScoreResult{
		Source:         src,
		Summary:        report.Summarize(res, opts),
		IdentifierLike: res.IdentifierLike,
	}
	if cfg.PreviewRows > 0 {
		out.Preview = ds.Head(cfg.PreviewRows)
	}

	out.Evaluation, err = evaluate(ds, res, cfg.LabelColumn)
	if err != nil {
		return err
	}

	if outPath := cmd.String(outputFlag.Name); outPath != "" {
		if err := writeResults(outPath, res); err != nil {
			return err
		}
		out.Output = outPath
		slog.Debug("results written", "path", outPath)
	}

	if err := encode(cmd.Root().Writer, app.Format, out); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	return nil
}

// evaluate returns nil without an error when the dataset has no ground truth.
func evaluate(ds *dataset.Dataset, res *scorer.Result, label string) (*report.Evaluation, error) {
	if ds.Len() == 0 {
		return nil, nil
	}
	e, err := report.Evaluate(ds, res, label)
	if err != nil {
		if errors.Is(err, report.ErrNoLabel) {
			slog.Debug("no ground truth, skipping evaluation", "label", label)
			return nil, nil
		}
		return nil, fmt.Errorf("evaluating against %s: %w", label, err)
	}
	return e, nil
}

func warnIdentifierLike(res *scorer.Result) {
	for _, c := range res.IdentifierLike {
		slog.Warn("column looks like an identifier but is used as a feature", "column", c)
	}
}

func writeResults(outPath string, res *scorer.Result) (retErr error) {
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && retErr == nil {
			retErr = fmt.Errorf("closing file: %w", cerr)
		}
	}()

	if err := dataset.WriteCSV(f, res.Augmented()); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

func joinSources() string {
	list := make([]string, len(dataset.Sources))
	for i, s := range dataset.Sources {
		list[i] = string(s)
	}
	return strings.Join(list, ", ")
}
