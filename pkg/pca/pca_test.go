package pca

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/chemlove/toolbx-pdb/pkg/conformation"
)

type fakeComplex struct {
	full      []string
	consensus []string
}

func (c *fakeComplex) ResiduesConsensus() []string { return c.consensus }
func (c *fakeComplex) ResiduesFull() []string      { return c.full }

func atomLine(serial int, atom, residue, chain string, resSeq int, x, y, z float64) string {
	prefix := fmt.Sprintf("%-6s%5d  %-4s%-4s%-2s%-4d", "ATOM", serial, atom, residue, chain, resSeq)
	for len(prefix) < 31 {
		prefix += " "
	}
	return prefix + fmt.Sprintf("%8.3f%8.3f%8.3f", x, y, z)
}

// writeConf writes a pdb file with one CA atom per listed residue, at
// coordinates derived from the residue number, and returns a
// conformation backed by it.
func writeConf(t *testing.T, dir, name string, residues []int) *conformation.Conformation {
	t.Helper()

	ids := make([]string, len(residues))
	lines := make([]string, len(residues))
	for i, r := range residues {
		ids[i] = fmt.Sprintf("%d_ALA", r)
		lines[i] = atomLine(i+1, "CA", "ALA", "A", r, float64(r), float64(r)+0.5, float64(r)-0.5)
	}

	path := filepath.Join(dir, name+".pdb")
	err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)
	require.NoError(t, err)

	return &conformation.Conformation{
		Name:    name,
		Path:    path,
		Complex: &fakeComplex{full: ids, consensus: ids},
		Metrics: map[string]float64{},
	}
}

func tenResidues() []int {
	r := make([]int, 10)
	for i := range r {
		r[i] = i + 1
	}
	return r
}

func TestBuildMatrixShape(t *testing.T) {
	dir := t.TempDir()
	confs := conformation.Set{
		"A": writeConf(t, dir, "A", tenResidues()),
		"B": writeConf(t, dir, "B", tenResidues()),
	}

	m, names, err := BuildMatrix(confs, false)
	require.NoError(t, err)

	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 30, cols)
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestBuildMatrixIdempotent(t *testing.T) {
	dir := t.TempDir()
	confs := conformation.Set{
		"A": writeConf(t, dir, "A", tenResidues()),
		"B": writeConf(t, dir, "B", []int{2, 4, 6, 8, 10, 12, 14, 16, 18, 20}),
	}

	first, _, err := BuildMatrix(confs, false)
	require.NoError(t, err)
	second, _, err := BuildMatrix(confs, false)
	require.NoError(t, err)

	assert.True(t, mat.Equal(first, second), "two builds over the same inputs must be bit-identical")
}

// Row order must follow the lexicographic sort of names, whatever order
// the set was populated in.
func TestBuildMatrixOrdering(t *testing.T) {
	dir := t.TempDir()
	confA := writeConf(t, dir, "A", []int{1, 2})
	confB := writeConf(t, dir, "B", []int{5, 6})

	forward := conformation.Set{"A": confA, "B": confB}
	backward := conformation.Set{"B": confB, "A": confA}

	m1, names1, err := BuildMatrix(forward, false)
	require.NoError(t, err)
	m2, names2, err := BuildMatrix(backward, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, names1)
	assert.Equal(t, names1, names2)
	assert.True(t, mat.Equal(m1, m2))

	// Row 0 is conformation A: residue 1 at (1, 1.5, 0.5).
	assert.Equal(t, 1.0, m1.At(0, 0))
	assert.Equal(t, 5.0, m1.At(1, 0))
}

func TestBuildMatrixRagged(t *testing.T) {
	dir := t.TempDir()
	confs := conformation.Set{
		"A": writeConf(t, dir, "A", []int{1, 2, 3}),
		"B": writeConf(t, dir, "B", []int{1, 2}),
	}

	_, _, err := BuildMatrix(confs, false)
	var ragged *RaggedError
	require.ErrorAs(t, err, &ragged)
	assert.Equal(t, []VectorLength{{"A", 9}, {"B", 6}}, ragged.Lengths)
}

func TestBuildMatrixAllEmpty(t *testing.T) {
	dir := t.TempDir()
	confA := writeConf(t, dir, "A", []int{1, 2})
	confB := writeConf(t, dir, "B", []int{1, 2})
	// Residue filters that match nothing in either file.
	confA.Complex = &fakeComplex{full: []string{"99_ALA"}}
	confB.Complex = &fakeComplex{full: []string{"99_ALA"}}

	_, _, err := BuildMatrix(conformation.Set{"A": confA, "B": confB}, false)
	assert.ErrorIs(t, err, ErrNoCoordinates)
}

func TestBuildMatrixConsensusFilter(t *testing.T) {
	dir := t.TempDir()
	conf := writeConf(t, dir, "A", []int{1, 2, 3})
	conf.Complex = &fakeComplex{
		full:      []string{"1_ALA", "2_ALA", "3_ALA"},
		consensus: []string{"2_ALA"},
	}
	confs := conformation.Set{"A": conf, "B": writeConf(t, dir, "B", []int{2})}

	m, _, err := BuildMatrix(confs, true)
	require.NoError(t, err)
	_, cols := m.Dims()
	assert.Equal(t, 3, cols)
	assert.Equal(t, 2.0, m.At(0, 0))
}

func TestCollectMetric(t *testing.T) {
	confs := conformation.Set{
		"A": {Name: "A", Metrics: map[string]float64{"tanimoto": 0.9}},
		"B": {Name: "B", Metrics: map[string]float64{"tanimoto": 0.4}},
	}

	table, err := CollectMetric(confs, "tanimoto", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]float64{"tanimoto": {0.9, 0.4}}, table)
}

func TestCollectMetricUnknown(t *testing.T) {
	confs := conformation.Set{
		"A": {Name: "A", Metrics: map[string]float64{}},
	}

	_, err := CollectMetric(confs, "tanimoto", nil)
	assert.ErrorIs(t, err, ErrMetricUnknown)
}

func TestCollectMetricMissingValue(t *testing.T) {
	confs := conformation.Set{
		"A": {Name: "A", Metrics: map[string]float64{"tanimoto": 0.9}},
		"B": {Name: "B", Metrics: map[string]float64{}},
	}

	_, err := CollectMetric(confs, "tanimoto", nil)
	assert.ErrorIs(t, err, ErrMetricMissing)
}

// A template conformation may lack the metric: its value is never
// rendered, so it gets a NaN placeholder instead of failing the run.
func TestCollectMetricTemplatePlaceholder(t *testing.T) {
	confs := conformation.Set{
		"A":    {Name: "A", Metrics: map[string]float64{"tanimoto": 0.9}},
		"tmpl": {Name: "tmpl", Metrics: map[string]float64{}},
	}

	table, err := CollectMetric(confs, "tanimoto", map[string]bool{"tmpl": true})
	require.NoError(t, err)
	values := table["tanimoto"]
	require.Len(t, values, 2)
	assert.Equal(t, 0.9, values[0])
	assert.True(t, math.IsNaN(values[1]))
}

func TestMetricNames(t *testing.T) {
	confs := conformation.Set{
		"A": {Name: "A", Metrics: map[string]float64{"tanimoto": 0.9}},
		"B": {Name: "B", Metrics: map[string]float64{"jaccard": 0.1}},
	}
	assert.Equal(t, []string{"jaccard", "tanimoto"}, MetricNames(confs))
}

func TestReduce(t *testing.T) {
	dir := t.TempDir()
	confs := conformation.Set{
		"A": writeConf(t, dir, "A", tenResidues()),
		"B": writeConf(t, dir, "B", []int{2, 4, 6, 8, 10, 12, 14, 16, 18, 20}),
	}

	m, _, err := BuildMatrix(confs, false)
	require.NoError(t, err)

	proj, ratios, err := Reduce(m, 2)
	require.NoError(t, err)

	rows, cols := proj.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)

	require.Len(t, ratios, 2)
	var sum float64
	for _, r := range ratios {
		assert.GreaterOrEqual(t, r, 0.0)
		sum += r
	}
	assert.LessOrEqual(t, sum, 1.0+1e-9)
}

func TestReduceBadDimension(t *testing.T) {
	m := mat.NewDense(4, 6, nil)
	_, _, err := Reduce(m, 4)
	assert.Error(t, err)
}

func TestReduceTooFewRows(t *testing.T) {
	// Two samples cannot support three components.
	m := mat.NewDense(2, 30, nil)
	_, _, err := Reduce(m, 3)
	assert.Error(t, err)
}

func TestRoundedPercents(t *testing.T) {
	assert.Equal(t, []float64{87.65, 12.34}, RoundedPercents([]float64{0.87654, 0.12344}))
}
