// Package plots renders attribution charts with gonum/plot. The output
// format follows the file extension (.png, .svg, .pdf, ...).
package plots

import (
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// Chart size.
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// Importance draws one bar per feature, largest first, and writes it to path.
func Importance(names []string, values []float64, title, path string) error {
	if len(names) == 0 {
		return errors.NewValueError("plots.Importance", "no features to plot")
	}
	if len(names) != len(values) {
		return errors.NewDimensionError("plots.Importance", len(names), len(values), 0)
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	bars := make(plotter.Values, len(order))
	labels := make([]string, len(order))
	for i, j := range order {
		bars[i] = values[j]
		labels[i] = names[j]
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "mean |SHAP| (log-odds)"

	chart, err := plotter.NewBarChart(bars, vg.Points(24))
	if err != nil {
		return errors.Wrap(err, "build bar chart")
	}
	p.Add(chart)
	p.NominalX(labels...)

	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "save chart to %s", path)
	}
	return nil
}
