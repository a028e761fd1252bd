package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record is a row of a dataset, with its numeric values indexed by column name.
type Record struct {
	ID     string
	Values map[string]float64
}

// ReadRecords reads a CSV dataset with a header line. Each row becomes a
// record with id "record_%05d", numbered from 0 in file order. All cells must
// parse as floating point numbers.
func ReadRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("dataset has no header")
	}
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
		if header[i] == "" {
			return nil, fmt.Errorf("header: column %d has no name", i)
		}
		if seen[header[i]] {
			return nil, fmt.Errorf("header: duplicate column %q", header[i])
		}
		seen[header[i]] = true
	}

	var records []Record
	for row := 0; ; row++ {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		rec := Record{ID: fmt.Sprintf("record_%05d", row), Values: make(map[string]float64, len(header))}
		for i, cell := range cells {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: invalid value %q", row, header[i], cell)
			}
			rec.Values[header[i]] = v
		}
		records = append(records, rec)
	}
	return records, nil
}

// Column returns the values of the named column, in record order.
func Column(records []Record, name string) ([]float64, error) {
	values := make([]float64, len(records))
	for i, rec := range records {
		v, has := rec.Values[name]
		if !has {
			return nil, fmt.Errorf("record %s has no column %q", rec.ID, name)
		}
		values[i] = v
	}
	return values, nil
}
