// Package pca turns a conformation set into a feature matrix of
// alpha-carbon coordinates and reduces it to 2 or 3 principal
// components.
package pca

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/chemlove/toolbx-pdb/pkg/conformation"
	"github.com/chemlove/toolbx-pdb/pkg/pdb"
)

var (
	ErrNoCoordinates = errors.New("no coordinates were passed to the PCA plotting function")
	ErrMetricUnknown = errors.New("metric is not in the loaded set")
	ErrMetricMissing = errors.New("conformation has no value for metric")
)

// VectorLength pairs a conformation name with its feature-vector length,
// for the ragged-matrix diagnostic.
type VectorLength struct {
	Name string
	Len  int
}

// RaggedError reports feature vectors of unequal length across the
// batch. It lists every conformation's length so the offending file can
// be spotted.
type RaggedError struct {
	Lengths []VectorLength
}

func (e *RaggedError) Error() string {
	parts := make([]string, len(e.Lengths))
	for i, l := range e.Lengths {
		parts[i] = fmt.Sprintf("%s=%d", l.Name, l.Len)
	}
	return "number of coordinates not identical amongst conformations: " + strings.Join(parts, " ")
}

// BuildMatrix extracts one feature vector per conformation (x,y,z
// triples of the filtered alpha-carbons, concatenated) and stacks them
// into a matrix, one row per conformation in lexicographic name order.
// With consensus set, only the residues shared by every conformation
// are used; otherwise the full sequence.
//
// Every vector must have the same length and at least one must be
// non-empty; both violations are configuration mistakes, not
// per-conformation faults, so they fail the whole batch.
func BuildMatrix(confs conformation.Set, consensus bool) (*mat.Dense, []string, error) {
	names := confs.SortedNames()
	if len(names) == 0 {
		return nil, nil, ErrNoCoordinates
	}

	vectors := make([][]float64, 0, len(names))
	for _, name := range names {
		conf := confs[name]

		var residues []string
		if consensus {
			residues = conf.Complex.ResiduesConsensus()
		} else {
			residues = conf.Complex.ResiduesFull()
		}
		numbers := conformation.ResidueNumbers(residues)

		coords, err := pdb.ExtractCA(conf.Path, numbers)
		if err != nil {
			return nil, nil, err
		}
		vectors = append(vectors, coords)
	}

	width := len(vectors[0])
	for _, v := range vectors {
		if len(v) != width {
			ragged := &RaggedError{Lengths: make([]VectorLength, len(names))}
			for i, name := range names {
				ragged.Lengths[i] = VectorLength{Name: name, Len: len(vectors[i])}
			}
			return nil, nil, ragged
		}
	}
	if width == 0 {
		return nil, nil, ErrNoCoordinates
	}

	flat := make([]float64, 0, len(names)*width)
	for _, v := range vectors {
		flat = append(flat, v...)
	}
	return mat.NewDense(len(names), width, flat), names, nil
}

// CollectMetric builds the metric table: metric name to values aligned
// with the sorted conformation order. The map shape leaves room for
// collecting several metrics at once later.
//
// A metric no conformation carries is ErrMetricUnknown, which callers
// may degrade to an uncolored plot. A metric that is known but missing
// from a particular non-template conformation is ErrMetricMissing: a
// half-colored plot would be misleading. Template conformations may
// lack the value, since their metric is never rendered; they get a NaN
// placeholder.
func CollectMetric(confs conformation.Set, metric string, templates map[string]bool) (map[string][]float64, error) {
	names := confs.SortedNames()

	known := false
	for _, name := range names {
		if _, ok := confs[name].Metrics[metric]; ok {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrMetricUnknown, metric)
	}

	values := make([]float64, len(names))
	for i, name := range names {
		v, ok := confs[name].Metrics[metric]
		if !ok {
			if !templates[name] {
				return nil, fmt.Errorf("%w: %s (conformation %s)", ErrMetricMissing, metric, name)
			}
			v = math.NaN()
		}
		values[i] = v
	}
	return map[string][]float64{metric: values}, nil
}

// MetricNames lists the metrics collected anywhere in the set, sorted.
func MetricNames(confs conformation.Set) []string {
	seen := make(map[string]bool)
	for _, conf := range confs {
		for name := range conf.Metrics {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reduce fits a principal-component decomposition to the feature matrix
// and projects it onto the first dim components. It returns the
// projected coordinates (rows follow the matrix rows) and the fraction
// of total variance explained by each retained component.
//
// Features are deliberately not rescaled beforehand; coordinates share
// a unit, so the covariance of the raw columns is what we want.
func Reduce(m *mat.Dense, dim int) (*mat.Dense, []float64, error) {
	if dim != 2 && dim != 3 {
		return nil, nil, fmt.Errorf("unsupported projection dimension %d (want 2 or 3)", dim)
	}
	n, d := m.Dims()
	if min(n, d) < dim {
		return nil, nil, fmt.Errorf("cannot extract %d components from a %dx%d matrix", dim, n, d)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(m, nil); !ok {
		return nil, nil, fmt.Errorf("principal component decomposition failed on %dx%d matrix", n, d)
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	vars := pc.VarsTo(nil)

	var projected mat.Dense
	projected.Mul(centered(m), vectors.Slice(0, d, 0, dim))

	total := floats.Sum(vars)
	ratios := make([]float64, dim)
	for i := range ratios {
		ratios[i] = vars[i] / total
	}
	return &projected, ratios, nil
}

// RoundedPercents converts variance ratios to percentages rounded to 2
// decimals, the form used in axis titles and console reporting.
func RoundedPercents(ratios []float64) []float64 {
	percents := make([]float64, len(ratios))
	for i, r := range ratios {
		percents[i] = math.Round(10000*r) / 100
	}
	return percents
}

// centered subtracts the column means, so projected scores are relative
// to the mean conformation.
func centered(m *mat.Dense) *mat.Dense {
	n, d := m.Dims()
	out := mat.NewDense(n, d, nil)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, m)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			out.Set(i, j, m.At(i, j)-mean)
		}
	}
	return out
}
