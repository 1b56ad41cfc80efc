// Package dataset loads and partitions the Palmer Penguins observations
// used by the training pipeline.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

// Penguin is a single observation. Missing numeric measurements are kept
// as NaN so the feature transformer can impute them later.
type Penguin struct {
	Island          string
	CulmenLengthMM  float64
	CulmenDepthMM   float64
	FlipperLengthMM float64
	BodyMassG       float64
	Sex             string
	Species         string
}

// Dataset is an immutable collection of observations. Every derived view
// (Shuffle, Select) allocates a new Dataset and leaves the receiver intact.
type Dataset struct {
	rows []Penguin
}

// columns lists the header names the loader requires. Extra columns in the
// file are ignored.
var columns = []string{
	"island",
	"culmen_length_mm",
	"culmen_depth_mm",
	"flipper_length_mm",
	"body_mass_g",
	"sex",
	"species",
}

// Load reads a penguins CSV file from disk.
//
// Rows without a species or a sex are dropped entirely because they cannot
// be used for supervised training. The source data marks one bird's sex with
// a bare "." which is treated as missing. Missing numeric cells survive as
// NaN.
func Load(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, mlerrors.NewParseError(path, 0, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		line := 0
		if parseErr, ok := err.(*csv.ParseError); ok {
			line = parseErr.Line
		}
		return nil, mlerrors.NewParseError(path, line, err)
	}
	if len(records) == 0 {
		return nil, mlerrors.NewParseError(path, 0, errors.New("dataset file is empty"))
	}

	index, err := headerIndex(path, records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]Penguin, 0, len(records)-1)
	for i, record := range records[1:] {
		row, ok, err := parseRow(record, index)
		if err != nil {
			return nil, mlerrors.NewParseError(path, i+2, err)
		}
		if !ok {
			continue
		}
		rows = append(rows, row)
	}

	return &Dataset{rows: rows}, nil
}

// FromRows builds a dataset from in-memory observations.
func FromRows(rows []Penguin) *Dataset {
	copied := make([]Penguin, len(rows))
	copy(copied, rows)
	return &Dataset{rows: copied}
}

// Len returns the number of observations.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Rows returns a copy of the observations in their current order.
func (d *Dataset) Rows() []Penguin {
	if d == nil {
		return nil
	}
	copied := make([]Penguin, len(d.rows))
	copy(copied, d.rows)
	return copied
}

// Row returns the observation at position i.
func (d *Dataset) Row(i int) (Penguin, error) {
	if d == nil || i < 0 || i >= len(d.rows) {
		return Penguin{}, fmt.Errorf("row %d out of range for dataset of %d rows", i, d.Len())
	}
	return d.rows[i], nil
}

// Shuffle returns a new dataset with the rows permuted. The same seed always
// produces the same order.
func (d *Dataset) Shuffle(seed int64) *Dataset {
	shuffled := d.Rows()
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return &Dataset{rows: shuffled}
}

// Select returns a new dataset containing the rows at the given positions,
// in the given order.
func (d *Dataset) Select(indices []int) (*Dataset, error) {
	rows := make([]Penguin, 0, len(indices))
	for _, i := range indices {
		row, err := d.Row(i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return &Dataset{rows: rows}, nil
}

func headerIndex(path string, header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range columns {
		if _, ok := index[name]; !ok {
			return nil, mlerrors.NewParseError(path, 1, fmt.Errorf("missing column %q", name))
		}
	}
	return index, nil
}

// parseRow converts one CSV record. The second return value is false when
// the row must be dropped.
func parseRow(record []string, index map[string]int) (Penguin, bool, error) {
	cell := func(name string) string {
		i := index[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	species := cell("species")
	sex := cell("sex")
	if missingLabel(species) || missingLabel(sex) {
		return Penguin{}, false, nil
	}

	row := Penguin{
		Island:  cell("island"),
		Sex:     sex,
		Species: species,
	}

	var err error
	if row.CulmenLengthMM, err = parseMeasurement(cell("culmen_length_mm")); err != nil {
		return Penguin{}, false, err
	}
	if row.CulmenDepthMM, err = parseMeasurement(cell("culmen_depth_mm")); err != nil {
		return Penguin{}, false, err
	}
	if row.FlipperLengthMM, err = parseMeasurement(cell("flipper_length_mm")); err != nil {
		return Penguin{}, false, err
	}
	if row.BodyMassG, err = parseMeasurement(cell("body_mass_g")); err != nil {
		return Penguin{}, false, err
	}
	return row, true, nil
}

// missingLabel reports whether a categorical cell carries no usable value.
func missingLabel(value string) bool {
	return value == "" || value == "." || strings.EqualFold(value, "na")
}

// parseMeasurement converts a numeric cell, mapping empty and NA markers
// to NaN.
func parseMeasurement(value string) (float64, error) {
	if value == "" || strings.EqualFold(value, "na") || strings.EqualFold(value, "nan") {
		return math.NaN(), nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid measurement %q: %w", value, err)
	}
	return parsed, nil
}
