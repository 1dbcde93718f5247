// Package conformation models the set of docking poses under analysis:
// one Conformation per .pdb file, each backed by a structure complex
// that knows its residue lists.
package conformation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chemlove/toolbx-pdb/internal/util"
	"github.com/chemlove/toolbx-pdb/pkg/pdb"
)

var ErrNoConformations = errors.New("no .pdb conformations found")

// Complex is the structure-complex capability a conformation exposes.
// Residue identifiers are in "<number>_<suffix>" form; the number part,
// leading zeros stripped, is the match key against the pdb file.
type Complex interface {
	// ResiduesConsensus returns the residues shared by every
	// conformation in the set, e.g. a binding pocket.
	ResiduesConsensus() []string
	// ResiduesFull returns the complete residue sequence.
	ResiduesFull() []string
}

type Conformation struct {
	Name    string
	Path    string
	Complex Complex
	Metrics map[string]float64
}

// Set holds conformations keyed by name. Identity is the name; every
// operation over a Set walks it in lexicographic name order.
type Set map[string]*Conformation

func (s Set) SortedNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyMetric overwrites the named metric on every conformation that has
// a value in values. Conformations absent from values keep whatever
// their REMARK header carried.
func (s Set) ApplyMetric(metric string, values map[string]float64) {
	for name, v := range values {
		if c, ok := s[name]; ok {
			c.Metrics[metric] = v
		}
	}
}

// Discover scans dir for .pdb files and builds the conformation set.
// Conformations are named by file stem. The consensus residue list is
// the ordered intersection of all full residue lists, so it is only
// meaningful once every conformation has been loaded.
func Discover(dir string) (Set, error) {
	if !util.DirExists(dir) {
		return nil, fmt.Errorf("conformation directory does not exist: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	set := make(Set)
	var complexes []*residueComplex
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdb") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		full, err := pdb.Residues(path)
		if err != nil {
			return nil, err
		}
		metrics, err := pdb.Remarks(path)
		if err != nil {
			return nil, err
		}

		cmplx := &residueComplex{full: full}
		complexes = append(complexes, cmplx)
		name := util.BaseNoExt(entry.Name())
		set[name] = &Conformation{
			Name:    name,
			Path:    path,
			Complex: cmplx,
			Metrics: metrics,
		}
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoConformations, dir)
	}

	consensus := consensusResidues(complexes)
	for _, c := range complexes {
		c.consensus = consensus
	}
	return set, nil
}

// ResidueNumbers normalizes residue identifiers to the match-key form
// used by the pdb files: the "<number>" part with leading zeros
// stripped. An all-zero number normalizes to the empty string, which
// matches nothing.
func ResidueNumbers(ids []string) []string {
	numbers := make([]string, len(ids))
	for i, id := range ids {
		number, _, _ := strings.Cut(id, "_")
		numbers[i] = strings.TrimLeft(number, "0")
	}
	return numbers
}

type residueComplex struct {
	full      []string
	consensus []string
}

func (c *residueComplex) ResiduesConsensus() []string { return c.consensus }
func (c *residueComplex) ResiduesFull() []string      { return c.full }

// consensusResidues intersects the full residue lists of every complex,
// keeping the order of the first one.
func consensusResidues(complexes []*residueComplex) []string {
	if len(complexes) == 0 {
		return nil
	}

	var consensus []string
	for _, id := range complexes[0].full {
		inAll := true
		for _, other := range complexes[1:] {
			if !containsResidue(other.full, id) {
				inAll = false
				break
			}
		}
		if inAll {
			consensus = append(consensus, id)
		}
	}
	return consensus
}

func containsResidue(ids []string, id string) bool {
	for _, other := range ids {
		if other == id {
			return true
		}
	}
	return false
}
