// Package dataset loads the clinical training table into a numeric matrix.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/pkg/log"
	"github.com/YuminosukeSato/heartrisk/preprocessing"
)

// Options controls how a CSV table becomes a Dataset.
type Options struct {
	// Target is the label column.
	Target string `yaml:"target"`
	// DropColumns are removed before imputation when present (e.g. "id").
	DropColumns []string `yaml:"dropColumns"`
	// ExcludeColumns are imputed with the rest of the table but never used as features.
	ExcludeColumns []string `yaml:"excludeColumns"`
	// PositiveLabel, when set, binarizes the target: label == PositiveLabel is 1, else 0.
	// When nil the target must already be 0/1.
	PositiveLabel *float64 `yaml:"positiveLabel"`
}

// DefaultOptions returns the column layout of the heart-disease table.
func DefaultOptions() Options {
	return Options{
		Target:         "thal",
		DropColumns:    []string{"id"},
		ExcludeColumns: []string{"cp"},
	}
}

// Dataset is a fully numeric, imputed feature matrix with binary labels.
// Column order of X matches FeatureNames and is carried into the model.
type Dataset struct {
	FeatureNames []string
	X            *mat.Dense
	Y            []float64

	// Medians holds the value used to fill missing cells, per original column.
	Medians map[string]float64
}

// Rows returns the number of samples.
func (d *Dataset) Rows() int {
	r, _ := d.X.Dims()
	return r
}

// Positives returns how many rows are labeled 1.
func (d *Dataset) Positives() int {
	n := 0
	for _, v := range d.Y {
		if v == 1 {
			n++
		}
	}
	return n
}

// Labels returns Y as an n×1 matrix.
func (d *Dataset) Labels() *mat.Dense {
	return mat.NewDense(len(d.Y), 1, append([]float64(nil), d.Y...))
}

// Load reads a CSV file from path.
func Load(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %s", path)
	}
	defer f.Close()

	ds, err := Read(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "dataset %s", path)
	}

	log.GetLoggerWithName("dataset").Info("Dataset loaded",
		log.DatasetKey, path,
		log.SamplesKey, ds.Rows(),
		log.FeaturesKey, len(ds.FeatureNames),
		log.PositiveKey, ds.Positives(),
	)
	return ds, nil
}

// Read parses a CSV table with a header row. Empty, "NA" and "NaN" cells are
// missing and are filled with the column median before the feature/label split.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	if opts.Target == "" {
		return nil, errors.NewValidationError("target", "target column is not configured", nil)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.ErrEmptyData
		}
		return nil, errors.Wrap(err, "failed to read CSV header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var keep []int
	var columns []string
	for i, name := range header {
		if slices.Contains(opts.DropColumns, name) {
			continue
		}
		keep = append(keep, i)
		columns = append(columns, name)
	}
	targetCol := slices.Index(columns, opts.Target)
	if targetCol < 0 {
		return nil, errors.NewValidationError(opts.Target, "target column not found in header", header)
	}

	var data []float64
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read CSV row %d", rows+1)
		}
		for k, src := range keep {
			v, err := parseCell(record[src])
			if err != nil {
				return nil, errors.NewValidationError(columns[k], "not a number", errors.Newf("row %d: %q", rows+1, record[src]))
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.ErrEmptyData
	}

	table := mat.NewDense(rows, len(columns), data)
	imputer := preprocessing.NewMedianImputer()
	filled, err := imputer.FitTransform(table)
	if err != nil {
		return nil, errors.Wrap(err, "median imputation failed")
	}

	medians := make(map[string]float64, len(columns))
	for j, name := range columns {
		medians[name] = imputer.Medians[j]
	}

	return split(filled, columns, targetCol, medians, opts)
}

func split(table mat.Matrix, columns []string, targetCol int, medians map[string]float64, opts Options) (*Dataset, error) {
	rows, _ := table.Dims()

	var featureCols []int
	var names []string
	for j, name := range columns {
		if j == targetCol || slices.Contains(opts.ExcludeColumns, name) {
			continue
		}
		featureCols = append(featureCols, j)
		names = append(names, name)
	}
	if len(featureCols) == 0 {
		return nil, errors.NewValidationError("features", "no feature columns left after exclusions", columns)
	}

	X := mat.NewDense(rows, len(featureCols), nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		for k, j := range featureCols {
			X.Set(i, k, table.At(i, j))
		}
		label := table.At(i, targetCol)
		switch {
		case opts.PositiveLabel != nil:
			if label == *opts.PositiveLabel {
				y[i] = 1
			}
		case label == 0 || label == 1:
			y[i] = label
		default:
			return nil, errors.NewValidationError(opts.Target,
				"labels must be 0 or 1; configure positiveLabel to binarize", errors.Newf("row %d: %g", i+1, label))
		}
	}

	return &Dataset{FeatureNames: names, X: X, Y: y, Medians: medians}, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
