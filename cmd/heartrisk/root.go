package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/internal/config"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
)

// cli carries state shared by all subcommands.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "heartrisk",
		Short:         "Heart-disease risk classifier",
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.setup()
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (defaults to $"+config.ConfigFileEnv+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newTrainCmd(c),
		newEvaluateCmd(c),
		newServeCmd(c),
		newExplainCmd(c),
		newRunsCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if err := log.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}
