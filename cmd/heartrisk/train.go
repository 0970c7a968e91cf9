package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/internal/registry"
	"github.com/YuminosukeSato/heartrisk/internal/training"
)

type trainFlags struct {
	data      string
	modelPath string
	folds     int
	workers   int
}

func (f *trainFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.data, "data", "", "training CSV (overrides data.path)")
	cmd.Flags().IntVar(&f.folds, "folds", 0, "cross-validation folds (overrides training.folds)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "folds trained concurrently (overrides training.workers)")
}

func (f *trainFlags) apply(opts *training.Options) {
	if f.data != "" {
		opts.DatasetPath = f.data
	}
	if f.modelPath != "" {
		opts.ModelPath = f.modelPath
	}
	if f.folds > 0 {
		opts.Folds = f.folds
	}
	if f.workers > 0 {
		opts.Workers = f.workers
	}
}

func newTrainCmd(c *cli) *cobra.Command {
	var flags trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Cross-validate, fit the final model and write the artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := training.OptionsFromConfig(c.cfg)
			flags.apply(&opts)

			store, err := registry.Open(c.cfg.Registry.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := training.New(opts, store).Train(cmd.Context())
			if err != nil {
				return err
			}
			return training.WriteReport(cmd.OutOrStdout(), res)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.modelPath, "model", "", "artifact output path (overrides model.path)")
	return cmd
}

func newEvaluateCmd(c *cli) *cobra.Command {
	var (
		flags  trainFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run stratified cross-validation without writing a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := training.OptionsFromConfig(c.cfg)
			flags.apply(&opts)

			_, report, err := training.New(opts, nil).Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			_, err = cmd.OutOrStdout().Write([]byte(report.String()))
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full per-fold report as JSON")
	return cmd
}
