package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/heartrisk/internal/dataset"
	"github.com/YuminosukeSato/heartrisk/internal/plots"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/gbdt"
)

func newExplainCmd(c *cli) *cobra.Command {
	var data, modelPath, plotPath string
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print mean absolute SHAP value per feature over the training data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if data == "" {
				data = c.cfg.Data.Path
			}
			if modelPath == "" {
				modelPath = c.cfg.Model.Path
			}

			m, header, err := gbdt.LoadModel(modelPath)
			if err != nil {
				return err
			}
			ds, err := dataset.Load(data, c.cfg.DatasetOptions())
			if err != nil {
				return err
			}
			if err := sameFeatures(m.FeatureNames, ds.FeatureNames); err != nil {
				return err
			}

			explainer, err := gbdt.NewTreeSHAP(m)
			if err != nil {
				return err
			}
			importance, err := explainer.GlobalImportance(ds.X)
			if err != nil {
				return err
			}

			order := make([]int, len(importance))
			for i := range order {
				order[i] = i
			}
			sort.SliceStable(order, func(a, b int) bool { return importance[order[a]] > importance[order[b]] })

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model %s (sha256 %s), %d rows\n", modelPath, header.Checksum, ds.Rows())
			fmt.Fprintf(out, "Base value (log-odds): %.4f\n\n", explainer.BaseValue())
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FEATURE\tMEAN |SHAP|\tGAIN")
			for _, i := range order {
				fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", m.FeatureNames[i], importance[i], m.FeatureImportance[i])
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if plotPath != "" {
				if err := plots.Importance(m.FeatureNames, importance, "Global feature importance", plotPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "\nChart written to %s\n", plotPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "CSV to explain (overrides data.path)")
	cmd.Flags().StringVar(&modelPath, "model", "", "model artifact (overrides model.path)")
	cmd.Flags().StringVar(&plotPath, "plot", "", "also write a bar chart (.png, .svg or .pdf)")
	return cmd
}

func sameFeatures(model, data []string) error {
	if len(model) != len(data) {
		return errors.NewDimensionError("explain", len(model), len(data), 1)
	}
	for i := range model {
		if model[i] != data[i] {
			return errors.NewValidationError("data", "columns do not match the model features",
				fmt.Sprintf("column %d is %q, model expects %q", i, data[i], model[i]))
		}
	}
	return nil
}
