package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/outlier/pkg/config"
	urfave "github.com/urfave/cli/v3"
)

var (
	configPathFlag = &urfave.StringFlag{
		Name:     "path",
		Usage:    "Where to write the default config file",
		Value:    config.FileName,
		Required: false,
	}

	configCmd = &urfave.Command{
		Name:            "config",
		Usage:           "Print the effective configuration",
		HideHelpCommand: true,
		Action:          cmdPrintConfig,
		Commands: []*urfave.Command{
			{
				Name:   "init",
				Usage:  "Write a config file with the default values",
				Action: cmdInitConfig,
				Flags: []urfave.Flag{
					configPathFlag,
				},
			},
		},
	}
)

func cmdPrintConfig(_ context.Context, cmd *urfave.Command) error {
	app := getConfig(cmd)
	if err := encode(cmd.Root().Writer, app.Format, app.Config); err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	return nil
}

func cmdInitConfig(_ context.Context, cmd *urfave.Command) error {
	path := cmd.String(configPathFlag.Name)
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	slog.Info("config written", "path", path)
	return nil
}
