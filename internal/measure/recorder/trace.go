package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// traceDir is the sibling directory holding bulk waveform tables, named
// after the data file without its extension.
type traceDir struct {
	once sync.Once
	dir  string
	err  error
}

func newTraceDir(dataPath string) *traceDir {
	return &traceDir{dir: strings.TrimSuffix(dataPath, filepath.Ext(dataPath))}
}

func (t *traceDir) ensure() (string, error) {
	t.once.Do(func() {
		t.err = os.MkdirAll(t.dir, 0o755)
	})
	return t.dir, t.err
}

// TraceDir returns the directory WriteTrace writes into.
func (r *Recorder) TraceDir() string { return r.traces.dir }

// WriteTrace writes table verbatim into the trace directory under name and
// returns the full path. Rows are written one per line with space-separated
// values in %.18e format.
func (r *Recorder) WriteTrace(name string, table [][]float64) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid trace name %q", name)
	}
	dir, err := r.traces.ensure()
	if err != nil {
		return "", fmt.Errorf("create trace directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := WriteTable(path, table); err != nil {
		return "", err
	}
	return path, nil
}

// WriteTable writes a 2-D numeric table to path, replacing any existing file.
func WriteTable(path string, table [][]float64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	for _, row := range table {
		for j, v := range row {
			if j > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.FormatFloat(v, 'e', 18, 64))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write trace file: %w", err)
	}
	return nil
}
