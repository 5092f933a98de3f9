package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"tradeledger/internal/domain"
)

// RowSource yields parsed rows with named fields from one input file.
// Format sniffing and spreadsheet decoding live behind this interface; the
// pipeline only sees field bags.
type RowSource interface {
	// Next returns the next row's field bag, or io.EOF when exhausted.
	Next() (domain.FieldBag, error)

	// Close releases the underlying file.
	Close() error
}

// SourceOpener produces a RowSource for a file path.
type SourceOpener func(path string, headerRow int) (RowSource, error)

// CSVSource is a RowSource over a comma-separated file. The first row (or a
// configured later row) supplies field names; numeric-looking cells become
// numbers, everything else stays a string.
type CSVSource struct {
	f      *os.File
	r      *csv.Reader
	header []string
}

// OpenCSV opens path and positions the reader past the header row.
// headerRow is 0-based; pass 0 for the usual first-row header.
func OpenCSV(path string, headerRow int) (RowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var header []string
	for i := 0; i <= headerRow; i++ {
		header, err = r.Read()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read csv header: %w", err)
		}
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	return &CSVSource{f: f, r: r, header: header}, nil
}

// Next returns the next row as a field bag keyed by header names.
func (s *CSVSource) Next() (domain.FieldBag, error) {
	record, err := s.r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read csv row: %w", err)
	}

	bag := make(domain.FieldBag, len(s.header))
	for i, name := range s.header {
		if name == "" || i >= len(record) {
			continue
		}
		cell := strings.TrimSpace(record[i])
		if cell == "" {
			bag[name] = domain.NullValue()
			continue
		}
		if n, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64); err == nil {
			bag[name] = domain.NumberValue(n)
		} else {
			bag[name] = domain.StringValue(cell)
		}
	}
	return bag, nil
}

// Close releases the underlying file.
func (s *CSVSource) Close() error {
	return s.f.Close()
}
