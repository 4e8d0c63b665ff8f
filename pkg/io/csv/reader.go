// Package csv provides CSV file reading for tabular and series data.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrUnknownColumn is returned when the selected column is not in the header.
var ErrUnknownColumn = errors.New("unknown column")

// Reader reads data from CSV files.
type Reader struct {
	closer    io.Closer
	reader    *csv.Reader
	hasHeader bool
	headers   []string

	column      string
	columnIndex int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithHeader indicates the CSV has a header row.
func WithHeader(has bool) Option {
	return func(r *Reader) {
		r.hasHeader = has
	}
}

// WithColumn selects the series column by header name.
func WithColumn(name string) Option {
	return func(r *Reader) {
		r.column = name
	}
}

// WithColumnIndex selects the series column by position.
func WithColumnIndex(i int) Option {
	return func(r *Reader) {
		r.columnIndex = i
	}
}

// NewReader creates a new CSV reader for a file.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := newReader(file, file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewReaderFrom creates a CSV reader over an arbitrary stream.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, nil, opts...)
}

func newReader(src io.Reader, closer io.Closer, opts ...Option) (*Reader, error) {
	r := &Reader{
		closer:    closer,
		reader:    csv.NewReader(src),
		hasHeader: true,
	}
	// Rows may be ragged; short rows are skipped by the readers.
	r.reader.FieldsPerRecord = -1

	for _, opt := range opts {
		opt(r)
	}

	// Read header if present
	if r.hasHeader {
		headers, err := r.reader.Read()
		if err != nil {
			return nil, err
		}
		r.headers = headers
	}

	if r.column != "" {
		idx, err := r.lookupColumn(r.column)
		if err != nil {
			return nil, err
		}
		r.columnIndex = idx
	}
	if r.columnIndex < 0 {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownColumn, r.columnIndex)
	}

	return r, nil
}

func (r *Reader) lookupColumn(name string) (int, error) {
	for i, h := range r.headers {
		if strings.TrimSpace(h) == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns all data as a 2D float slice. Rows with a non-numeric or
// non-finite cell are skipped. It is a library entry point for
// multi-column data; the aedetect CLI uses ReadSeries.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row, err := parseRow(record)
		if err != nil {
			continue // Skip malformed rows
		}
		data = append(data, row)
	}

	return data, nil
}

// ReadSeries returns the selected column as a series. Rows where that
// column is missing, not numeric, NaN or infinite are skipped.
func (r *Reader) ReadSeries() ([]float64, error) {
	var series []float64

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if r.columnIndex >= len(record) {
			continue
		}
		v, err := parseFinite(record[r.columnIndex])
		if err != nil {
			continue
		}
		series = append(series, v)
	}

	return series, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// parseRow converts string slice to float slice.
func parseRow(record []string) ([]float64, error) {
	if len(record) == 0 {
		return nil, errors.New("empty row")
	}

	row := make([]float64, len(record))
	for i, val := range record {
		f, err := parseFinite(val)
		if err != nil {
			return nil, err
		}
		row[i] = f
	}
	return row, nil
}

func parseFinite(cell string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", cell)
	}
	return f, nil
}
