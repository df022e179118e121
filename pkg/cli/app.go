package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mchmarny/outlier/pkg/config"
	"github.com/mchmarny/outlier/pkg/dataset"
	"github.com/mchmarny/outlier/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "outlier"
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:    "debug",
		Usage:   "Prints verbose logs (optional, default: false)",
		Sources: urfave.EnvVars("OUTLIER_DEBUG"),
	}

	logLevelFlag = &urfave.StringFlag{
		Name:  "log-level",
		Usage: "Log level [debug, info, warn, error]",
		Value: "info",
	}

	configFlag = &urfave.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML config file (optional, defaults are used when not set)",
		Sources: urfave.EnvVars("OUTLIER_CONFIG"),
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	epsFlag = &urfave.FloatFlag{
		Name:  "eps",
		Usage: fmt.Sprintf("Neighborhood radius in standardized units (default: %v)", config.Default().Eps),
	}

	minSamplesFlag = &urfave.IntFlag{
		Name:  "min-samples",
		Usage: fmt.Sprintf("Neighbors, self included, required for a dense core point (default: %d)", config.Default().MinSamples),
	}

	labelFlag = &urfave.StringFlag{
		Name:  "label",
		Usage: fmt.Sprintf("Ground truth column excluded from features (default: %s)", config.Default().LabelColumn),
	}

	workersFlag = &urfave.IntFlag{
		Name:  "workers",
		Usage: "Number of parallel neighbor search workers (default: number of CPUs)",
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info", false)

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	Config *config.Config
	Format string
	Debug  bool
}

func getConfig(cmd *urfave.Command) *appConfig {
	if cfg, ok := cmd.Root().Metadata[appConfigKey].(*appConfig); ok {
		return cfg
	}
	return &appConfig{Config: config.Default(), Format: formatJSON}
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Flag outlier credit card transactions with DBSCAN",
		Metadata:              map[string]any{},
		Flags: []urfave.Flag{
			debugFlag,
			logLevelFlag,
			configFlag,
			formatFlag,
		},
		Commands: []*urfave.Command{
			scoreCmd,
			serverCmd,
			configCmd,
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			debug := cmd.Bool(debugFlag.Name)
			logging.SetDefaultCLILogger(cmd.String(logLevelFlag.Name), debug)

			cfg, err := config.Load(cmd.String(configFlag.Name))
			if err != nil {
				return ctx, fmt.Errorf("loading config: %w", err)
			}

			f := cmd.String(formatFlag.Name)
			format := formatJSON
			if f == formatYAML || f == "yml" {
				format = formatYAML
			}

			cmd.Root().Metadata[appConfigKey] = &appConfig{
				Config: cfg,
				Format: format,
				Debug:  debug,
			}
			return ctx, nil
		},
	}
}

// applyFlags overrides the loaded config with the scoring flags set on the command line.
func applyFlags(cmd *urfave.Command, cfg *config.Config) error {
	if cmd.IsSet(epsFlag.Name) {
		cfg.Eps = cmd.Float(epsFlag.Name)
	}
	if cmd.IsSet(minSamplesFlag.Name) {
		cfg.MinSamples = cmd.Int(minSamplesFlag.Name)
	}
	if cmd.IsSet(labelFlag.Name) {
		cfg.LabelColumn = cmd.String(labelFlag.Name)
	}
	if cmd.IsSet(workersFlag.Name) {
		cfg.Workers = cmd.Int(workersFlag.Name)
	}
	if cmd.IsSet(sourceFlag.Name) {
		cfg.Source = cmd.String(sourceFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// userError reports whether the error is caused by the input rather than the tool.
func userError(err error) bool {
	return errors.Is(err, dataset.ErrInput) || errors.Is(err, dataset.ErrNoInput)
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
