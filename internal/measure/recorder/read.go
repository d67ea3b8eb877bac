package recorder

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Table is a data file read back into memory.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]float64, error) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("no column %q (have %s)", name, strings.Join(t.Columns, ", "))
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// ReadFile parses a data file written by a Recorder. Empty cells and the
// literal "None" read as NaN, so files from older tools still load.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &Table{}
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scan.Scan() {
		line++
		text := strings.TrimRight(scan.Text(), "\r")
		if text == "" {
			continue
		}
		if t.Columns == nil {
			if !strings.HasPrefix(text, "#") {
				return nil, fmt.Errorf("%s:%d: missing '#' header line", path, line)
			}
			t.Columns = strings.Split(strings.TrimPrefix(text, "#"), "\t")
			continue
		}
		cells := strings.Split(text, "\t")
		if len(cells) != len(t.Columns) {
			return nil, fmt.Errorf("%s:%d: %d cells for %d columns", path, line, len(cells), len(t.Columns))
		}
		row := make([]float64, len(cells))
		for i, c := range cells {
			c = strings.TrimSpace(c)
			if c == "" || c == "None" {
				row[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: column %s: %w", path, line, t.Columns[i], err)
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if t.Columns == nil {
		return nil, fmt.Errorf("%s: empty data file", path)
	}
	return t, nil
}
