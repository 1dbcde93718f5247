// Package pdb reads the fixed-width ATOM records of .pdb conformation
// files. Column positions are the single source of truth here: if the
// layout of an input file drifts, this package is where it is caught.
package pdb

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Character offsets of the coordinate columns within an ATOM record.
// These follow the files this toolbox consumes, which are shifted one
// column right of canonical PDB.
const (
	xStart, xEnd = 31, 39
	yStart, yEnd = 39, 47
	zStart, zEnd = 47, 55
)

// Whitespace-delimited field positions within an ATOM record.
const (
	fieldRecord   = 0 // record marker, "ATOM"
	fieldAtomName = 2 // atom designator, e.g. "CA"
	fieldResName  = 3 // residue name, e.g. "ALA"
	fieldChain    = 4 // chain identifier when present, else residue number
)

// alphaCarbon is the atom used as the per-residue position proxy.
const alphaCarbon = "CA"

var ErrBadFormat = errors.New("unrecognized pdb format, check number of columns")

// ExtractCA returns the concatenated x,y,z coordinates of every
// alpha-carbon whose residue number is in residues, in encounter order.
// Residue numbers are matched as strings with leading zeros stripped.
// A file with no matching atoms yields an empty, non-nil slice.
func ExtractCA(path string, residues []string) ([]float64, error) {
	wanted := make(map[string]bool, len(residues))
	for _, r := range residues {
		wanted[r] = true
	}

	coords := make([]float64, 0, 3*len(residues))
	err := eachAtom(path, func(line string, fields []string, resNum string) error {
		if fields[fieldAtomName] != alphaCarbon || !wanted[resNum] {
			return nil
		}
		x, y, z, err := coordColumns(line)
		if err != nil {
			return err
		}
		coords = append(coords, x, y, z)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return coords, nil
}

// Residues returns the ordered, de-duplicated residue identifiers of a
// file in "<number>_<name>" form, e.g. "42_ALA".
func Residues(path string) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)

	err := eachAtom(path, func(line string, fields []string, resNum string) error {
		id := fmt.Sprintf("%s_%s", resNum, fields[fieldResName])
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Remarks collects "REMARK <name> <value>" header lines into a metric
// map. Lines whose value does not parse as a float are ignored.
func Remarks(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	metrics := make(map[string]float64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[fieldRecord] != "REMARK" {
			continue
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		metrics[fields[1]] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return metrics, nil
}

// eachAtom walks the ATOM records of a file, handing each line, its
// whitespace-split fields, and its residue number to fn. The residue
// number lives in field 4 or 5 depending on whether the file carries a
// chain identifier; any other layout is ErrBadFormat and aborts the walk.
func eachAtom(path string, fn func(line string, fields []string, resNum string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) <= 1 || fields[fieldRecord] != "ATOM" {
			continue
		}
		if len(fields) <= fieldChain {
			return fmt.Errorf("%w: %s", ErrBadFormat, path)
		}

		// A chain identifier pushes the residue number one field right.
		var resCol int
		switch {
		case alphabetic(fields[fieldChain]):
			resCol = fieldChain + 1
		case numeric(fields[fieldChain]):
			resCol = fieldChain
		default:
			return fmt.Errorf("%w: %s", ErrBadFormat, path)
		}
		if len(fields) <= resCol {
			return fmt.Errorf("%w: %s", ErrBadFormat, path)
		}

		if err := fn(line, fields, fields[resCol]); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// coordColumns slices the three fixed-width coordinate fields out of an
// ATOM record. This is the one place the column offsets are applied.
func coordColumns(line string) (x, y, z float64, err error) {
	if len(line) < zEnd {
		return 0, 0, 0, fmt.Errorf("%w: atom record shorter than %d columns", ErrBadFormat, zEnd)
	}
	x, err = parseCoord(line[xStart:xEnd])
	if err != nil {
		return 0, 0, 0, err
	}
	y, err = parseCoord(line[yStart:yEnd])
	if err != nil {
		return 0, 0, 0, err
	}
	z, err = parseCoord(line[zStart:zEnd])
	if err != nil {
		return 0, 0, 0, err
	}
	return x, y, z, nil
}

func parseCoord(col string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(col), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad coordinate column %q", ErrBadFormat, col)
	}
	return v, nil
}

func alphabetic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
