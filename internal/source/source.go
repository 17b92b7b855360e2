// Package source reads lookup identifiers from a delimited input table.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gtinlookup/lib/textutil"
)

// DefaultIdentifierColumns are the header names recognized as the identifier
// column, compared with textutil.NormalizeName.
var DefaultIdentifierColumns = []string{"gtin", "ean", "barcode"}

var ErrNoIdentifierColumn = errors.New("input has no identifier column")

type Options struct {
	Delimiter         rune
	IdentifierColumns []string
	// SourceTagColumn and SourceTag restrict rows to those whose tag column
	// equals SourceTag (case-insensitive), an empty SourceTag disables the filter.
	SourceTagColumn string
	SourceTag       string
}

type Record struct {
	// Line is the 1-based line of the row in the input, the header is line 1.
	Line       int
	Identifier string
	Columns    map[string]string
}

// Reader produces records lazily, rows that do not pass the filters are skipped.
type Reader struct {
	csv     *csv.Reader
	opts    Options
	header  []string
	idCol   int
	tagCol  int
	line    int
	skipped int
}

func NewReader(r io.Reader, opts Options) (*Reader, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if len(opts.IdentifierColumns) == 0 {
		opts.IdentifierColumns = DefaultIdentifierColumns
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: input is empty", ErrNoIdentifierColumn)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	out := &Reader{
		csv:    reader,
		opts:   opts,
		header: header,
		idCol:  -1,
		tagCol: -1,
		line:   1,
	}
	for i, name := range header {
		if out.idCol < 0 && textutil.MatchName(name, opts.IdentifierColumns) {
			out.idCol = i
		}
		if opts.SourceTagColumn != "" && out.tagCol < 0 &&
			textutil.NormalizeName(name) == textutil.NormalizeName(opts.SourceTagColumn) {
			out.tagCol = i
		}
	}
	if out.idCol < 0 {
		return nil, fmt.Errorf("%w: expected one of %v, got %v", ErrNoIdentifierColumn, opts.IdentifierColumns, header)
	}
	if opts.SourceTag != "" && out.tagCol < 0 {
		return nil, fmt.Errorf("input has no source tag column %q", opts.SourceTagColumn)
	}
	return out, nil
}

// Header returns the trimmed header row.
func (r *Reader) Header() []string {
	return r.header
}

// Skipped is the number of rows filtered out so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Next returns the next accepted record or io.EOF once the input is exhausted.
func (r *Reader) Next() (Record, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			return Record{}, err
		}
		line, _ := r.csv.FieldPos(0)
		r.line = line

		identifier := column(row, r.idCol)
		if identifier == "" {
			r.skipped++
			continue
		}
		if r.opts.SourceTag != "" && !strings.EqualFold(column(row, r.tagCol), r.opts.SourceTag) {
			r.skipped++
			continue
		}

		columns := make(map[string]string, len(r.header))
		for i, name := range r.header {
			columns[name] = column(row, i)
		}
		return Record{Line: line, Identifier: identifier, Columns: columns}, nil
	}
}

func column(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Load reads every accepted record into memory, in input order.
func Load(r io.Reader, opts Options) ([]Record, error) {
	reader, err := NewReader(r, opts)
	if err != nil {
		return nil, err
	}
	var records []Record
	for {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", reader.line+1, err)
		}
		records = append(records, record)
	}
}

func LoadFile(path string, opts Options) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Load(file, opts)
}
