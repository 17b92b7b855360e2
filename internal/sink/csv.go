package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CSVSink appends rows to a delimited file. The file and its header are only
// created once the first row is written, so a run without qualifying rows
// leaves no output behind.
type CSVSink struct {
	path      string
	header    []string
	delimiter rune

	file   *os.File
	writer *csv.Writer
	rows   int
}

func NewCSVSink(path string, header []string, delimiter rune) *CSVSink {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVSink{
		path:      path,
		header:    header,
		delimiter: delimiter,
	}
}

func (s *CSVSink) Path() string {
	return s.path
}

// Init checks that the output directory exists. Unless resuming it removes a
// stale output file so that a re-run over the same input produces the same file.
func (s *CSVSink) Init(resume bool) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory: %s is not a directory", dir)
	}
	if resume {
		return nil
	}
	err = os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale output: %w", err)
	}
	return nil
}

func (s *CSVSink) open() error {
	info, err := os.Stat(s.path)
	writeHeader := errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	s.file = file
	s.writer = csv.NewWriter(file)
	s.writer.Comma = s.delimiter

	if writeHeader {
		return s.flush(s.header)
	}
	return nil
}

func (s *CSVSink) flush(record []string) error {
	err := s.writer.Write(record)
	if err != nil {
		return err
	}
	s.writer.Flush()
	return s.writer.Error()
}

// Write appends one row and flushes it to disk.
func (s *CSVSink) Write(row Row) error {
	if s.file == nil {
		err := s.open()
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
	}
	err := s.flush(row.Record())
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	s.rows++
	return nil
}

// Rows is the number of rows written by this sink.
func (s *CSVSink) Rows() int {
	return s.rows
}

func (s *CSVSink) Close() error {
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	err := errors.Join(s.writer.Error(), s.file.Close())
	s.file = nil
	s.writer = nil
	return err
}
