// Package recorder persists measurement rows to a plain-text table.
//
// The file layout is one header line holding the column names, prefixed
// with '#' and separated by tabs, followed by one tab-separated line per
// row. The header is fixed by the first row written; every later row must
// carry exactly the same column set. Each row is flushed and synced before
// WriteRow returns, so a crash loses at most the row in flight.
package recorder

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrClosed is returned by WriteRow after Close.
var ErrClosed = errors.New("recorder: closed")

// Field is one named value of a row.
type Field struct {
	Name  string
	Value float64
}

// Row is an ordered mapping from column name to value.
type Row []Field

// RowOf zips names and values into a row. It panics if the lengths differ.
func RowOf(names []string, values []float64) Row {
	if len(names) != len(values) {
		panic(fmt.Sprintf("recorder: %d names for %d values", len(names), len(values)))
	}
	row := make(Row, len(names))
	for i := range names {
		row[i] = Field{Name: names[i], Value: values[i]}
	}
	return row
}

// Names returns the column names of the row in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Get returns the value stored under name.
func (r Row) Get(name string) (float64, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// SchemaViolationError reports a row whose column set differs from the
// header fixed by the first row.
type SchemaViolationError struct {
	Missing   []string
	Extra     []string
	Duplicate []string
}

func (e *SchemaViolationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Extra, ", "))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicate "+strings.Join(e.Duplicate, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, "empty row")
	}
	return "row does not match recorded columns: " + strings.Join(parts, "; ")
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithoutSync skips the fsync after each row. The buffer is still flushed
// to the operating system.
func WithoutSync() Option {
	return func(r *Recorder) { r.sync = false }
}

// Recorder appends rows to one data file. It is not safe for concurrent use
// by multiple writers; one run owns one recorder.
type Recorder struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	w       *bufio.Writer
	csv     *csv.Writer
	sync    bool
	columns []string
	index   map[string]int
	rows    int
	closed  bool
	traces  *traceDir
}

// Open creates the data file at path. It fails if the file already exists;
// the parent directory must exist.
func Open(path string, opts ...Option) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	w := bufio.NewWriter(f)
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	r := &Recorder{
		path: path,
		f:    f,
		w:    w,
		csv:  cw,
		sync: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.traces = newTraceDir(path)
	return r, nil
}

// Path returns the data file path.
func (r *Recorder) Path() string { return r.path }

// Columns returns the header, or nil before the first row.
func (r *Recorder) Columns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.columns)
}

// Rows returns the number of rows written.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// WriteRow appends row to the file and flushes it.
func (r *Recorder) WriteRow(row Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if len(row) == 0 {
		return &SchemaViolationError{Missing: slices.Clone(r.columns)}
	}

	if r.columns == nil {
		if dup := duplicates(row); len(dup) > 0 {
			return &SchemaViolationError{Duplicate: dup}
		}
		columns := row.Names()
		for _, c := range columns {
			if c == "" || strings.ContainsAny(c, "\t\n") {
				return fmt.Errorf("invalid column name %q", c)
			}
		}
		if _, err := r.w.WriteString("#" + strings.Join(columns, "\t") + "\n"); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		r.columns = columns
		r.index = make(map[string]int, len(columns))
		for i, c := range columns {
			r.index[c] = i
		}
	}

	values, err := r.arrange(row)
	if err != nil {
		return err
	}

	record := make([]string, len(values))
	for i, v := range values {
		record[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	if err := r.csv.Write(record); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	r.csv.Flush()
	if err := r.csv.Error(); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := r.flush(); err != nil {
		return err
	}
	r.rows++
	return nil
}

// arrange orders row values by the header, rejecting any mismatch.
func (r *Recorder) arrange(row Row) ([]float64, error) {
	values := make([]float64, len(r.columns))
	seen := make([]bool, len(r.columns))
	var violation SchemaViolationError
	for _, f := range row {
		i, ok := r.index[f.Name]
		if !ok {
			violation.Extra = append(violation.Extra, f.Name)
			continue
		}
		if seen[i] {
			violation.Duplicate = append(violation.Duplicate, f.Name)
			continue
		}
		seen[i] = true
		values[i] = f.Value
	}
	for i, ok := range seen {
		if !ok {
			violation.Missing = append(violation.Missing, r.columns[i])
		}
	}
	if len(violation.Missing)+len(violation.Extra)+len(violation.Duplicate) > 0 {
		sort.Strings(violation.Extra)
		return nil, &violation
	}
	return values, nil
}

func (r *Recorder) flush() error {
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("flush data file: %w", err)
	}
	if r.sync {
		if err := r.f.Sync(); err != nil {
			return fmt.Errorf("sync data file: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the file. It is safe to call more than once;
// only the first call does any work.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	flushErr := r.w.Flush()
	closeErr := r.f.Close()
	return errors.Join(flushErr, closeErr)
}

func duplicates(row Row) []string {
	seen := make(map[string]bool, len(row))
	var dup []string
	for _, f := range row {
		if seen[f.Name] {
			dup = append(dup, f.Name)
			continue
		}
		seen[f.Name] = true
	}
	return dup
}
