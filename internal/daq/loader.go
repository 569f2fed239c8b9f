// Package daq loads data-acquisition exports into row-major floating tables.
// Supported formats are the text families the acquisition rigs produce:
// comma-separated, tab-separated and LabVIEW measurement files.
package daq

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// Loader reads DAQ files from disk. It satisfies the core's DaqSource.
type Loader struct{}

// Load parses the file at path into a dense row-major table. Every data row
// must have the same column count; header and comment lines are skipped.
func (Loader) Load(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tlc.Wrapf(tlc.KindDaqParseFailed, err, "open %s", path)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return parseDelimited(f, ',')
	case ".tsv", ".txt":
		return parseDelimited(f, '\t')
	case ".lvm":
		return parseLVM(f)
	default:
		return nil, tlc.Errf(tlc.KindDaqParseFailed, "unsupported daq format %q", filepath.Ext(path))
	}
}

// parseDelimited reads a delimiter-separated file. Leading lines that do not
// parse as numbers are treated as headers; a non-numeric cell after the first
// data row is an error.
func parseDelimited(r io.Reader, sep rune) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var table [][]float64
	rowIdx := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, tlc.Wrapf(tlc.KindDaqParseFailed, err, "row %d", rowIdx)
		}
		rowIdx++
		row, ok, err := parseRow(record, len(table) == 0)
		if err != nil {
			return nil, tlc.Wrapf(tlc.KindDaqParseFailed, err, "row %d", rowIdx-1)
		}
		if !ok {
			continue
		}
		if len(table) > 0 && len(row) != len(table[0]) {
			return nil, tlc.Errf(tlc.KindDaqParseFailed, "row %d has %d columns, want %d", rowIdx-1, len(row), len(table[0]))
		}
		table = append(table, row)
	}
	if len(table) == 0 {
		return nil, tlc.Errf(tlc.KindDaqParseFailed, "no data rows")
	}
	return table, nil
}

// parseRow converts one record. Before any data row has been seen, a
// non-numeric record is a skippable header; afterwards it is an error.
func parseRow(record []string, headerAllowed bool) ([]float64, bool, error) {
	if len(record) == 0 {
		return nil, false, nil
	}
	row := make([]float64, 0, len(record))
	for _, cell := range record {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			if headerAllowed {
				return nil, false, nil
			}
			return nil, false, err
		}
		row = append(row, v)
	}
	if len(row) == 0 {
		return nil, false, nil
	}
	return row, true, nil
}

// parseLVM reads a LabVIEW measurement file: a ***End_of_Header*** delimited
// preamble followed by tab-separated data.
func parseLVM(r io.Reader) ([][]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var body strings.Builder
	inHeader := true
	sawHeaderMark := false
	for sc.Scan() {
		line := sc.Text()
		if inHeader {
			if strings.HasPrefix(line, "***End_of_Header***") {
				sawHeaderMark = true
				inHeader = false
				continue
			}
			// Files without the marker fall through to numeric detection.
			fields := strings.Fields(line)
			if len(fields) > 0 {
				if _, err := strconv.ParseFloat(fields[0], 64); err == nil && !sawHeaderMark {
					inHeader = false
				}
			}
			if inHeader {
				continue
			}
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, tlc.Wrapf(tlc.KindDaqParseFailed, err, "scan lvm")
	}
	return parseDelimited(strings.NewReader(body.String()), '\t')
}
