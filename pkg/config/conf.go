package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/report"
	"github.com/mchmarny/outlier/pkg/scorer"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the default name of the config file.
	FileName = "config.yaml"

	PreviewRowsDefault = 5
	OutlierRowsDefault = 50

	dirMode  = 0700
	fileMode = 0600
)

// Config represents app config object.
type Config struct {
	Eps         float64 `yaml:"eps" json:"eps"`
	MinSamples  int     `yaml:"min_samples" json:"min_samples"`
	LabelColumn string  `yaml:"label_column" json:"label_column"`
	Source      string  `yaml:"source" json:"source"`
	Workers     int     `yaml:"workers" json:"workers"`
	SampleSize  int     `yaml:"sample_size" json:"sample_size"`
	ScatterX    string  `yaml:"scatter_x" json:"scatter_x"`
	ScatterY    string  `yaml:"scatter_y" json:"scatter_y"`
	PreviewRows int     `yaml:"preview_rows" json:"preview_rows"`
	OutlierRows int     `yaml:"outlier_rows" json:"outlier_rows"`
}

// Default returns the config used when no file is given.
func Default() *Config {
	return &Config{
		Eps:         scorer.EpsDefault,
		MinSamples:  scorer.MinSamplesDefault,
		LabelColumn: scorer.LabelColumnDefault,
		Source:      string(dataset.SourceUploaded),
		SampleSize:  report.SampleSizeDefault,
		ScatterX:    report.ScatterXDefault,
		ScatterY:    report.ScatterYDefault,
		PreviewRows: PreviewRowsDefault,
		OutlierRows: OutlierRowsDefault,
	}
}

// Load reads the config file at path over the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading config file: %s", path)
	}

	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling config file: %s", path)
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file: %s", path)
	}

	slog.Debug("config loaded", "path", path)
	return c, nil
}

// Save writes the config to path, creating the parent directory if needed.
func Save(path string, c *Config) error {
	if path == "" {
		return errors.New("config path required")
	}
	if c == nil {
		return errors.New("config required")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return errors.Wrapf(err, "failed to create dir: %s", dir)
		}
	}

	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "failed to write config file: %s", path)
	}
	return nil
}

// Validate checks the config values.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if err := c.ScorerOptions().Validate(); err != nil {
		return err
	}
	if _, err := dataset.ParseSource(c.Source); err != nil {
		return err
	}
	if c.SampleSize < 1 {
		return errors.Errorf("sample size must be at least 1, got %d", c.SampleSize)
	}
	if c.PreviewRows < 0 || c.OutlierRows < 0 {
		return errors.Errorf("preview (%d) and outlier (%d) rows can't be negative", c.PreviewRows, c.OutlierRows)
	}
	return nil
}

// ScorerOptions maps the config onto the scoring options.
func (c *Config) ScorerOptions() *scorer.Options {
	return &scorer.Options{
		Eps:         c.Eps,
		MinSamples:  c.MinSamples,
		LabelColumn: c.LabelColumn,
		Workers:     c.Workers,
	}
}

// InputSource returns the parsed input source.
func (c *Config) InputSource() dataset.Source {
	s, err := dataset.ParseSource(c.Source)
	if err != nil {
		return dataset.SourceUploaded
	}
	return s
}
