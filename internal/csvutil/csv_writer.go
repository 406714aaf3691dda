// Package csvutil writes the completed-transaction event trace to a CSV
// file for offline latency analysis, generalizing the fixed
// columns-then-rows shape of common/csv_writer.cpp and go-ycsb's
// measurement/csv.go (buffer rows in memory, keyed by a label, flush to an
// io.Writer on demand) into one column-checked writer instead of two
// purpose-built ones.
package csvutil

import (
	"encoding/csv"
	"io"

	"github.com/pingcap/errors"
)

// Writer appends fixed-width rows to an underlying CSV stream, erroring if a
// row's column count doesn't match the header it was constructed with.
type Writer struct {
	columns int
	w       *csv.Writer
}

// NewWriter writes columns as the header row immediately.
func NewWriter(w io.Writer, columns []string) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return nil, errors.Trace(err)
	}
	return &Writer{columns: len(columns), w: cw}, nil
}

// WriteRow appends one row. len(fields) must equal the header's column
// count.
func (w *Writer) WriteRow(fields []string) error {
	if len(fields) != w.columns {
		return errors.Errorf("csvutil: row has %d fields, want %d", len(fields), w.columns)
	}
	return errors.Trace(w.w.Write(fields))
}

// Flush flushes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return errors.Trace(w.w.Error())
}
