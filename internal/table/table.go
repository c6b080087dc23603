// Package table reads and writes model tables as CSV files and provides the
// column transformations shared by the exporters.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/model"
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteCSV writes t to path, creating parent directories, and returns the
// number of bytes written. Containers are written as JSON and Null as an
// empty cell.
func WriteCSV(fs afero.Fs, path string, t *model.Table) (int64, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := &countingWriter{w: f}
	if err := Write(cw, t); err != nil {
		return cw.n, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return cw.n, fmt.Errorf("close %s: %w", path, err)
	}
	return cw.n, nil
}

// Write encodes t as CSV with a header row.
func Write(w io.Writer, t *model.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, c := range t.Columns {
			rec[i] = jsonval.CellText(row.Get(c))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV loads a CSV file written by WriteCSV or by another tool. Cells
// are decoded with jsonval.ParseCell.
func ReadCSV(fs afero.Fs, path string) (*model.Table, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// Read decodes CSV with a header row.
func Read(r io.Reader) (*model.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return model.NewTable(), nil
	}
	if err != nil {
		return nil, err
	}
	t := model.NewTable(hdr...)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) > len(hdr) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(hdr))
		}
		row := make(model.Row, len(hdr))
		for i, c := range hdr {
			if i < len(rec) {
				row[c] = jsonval.ParseCell(rec[i])
			} else {
				row[c] = model.Null()
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

var (
	camelWord  = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	separators = regexp.MustCompile(`[.:/]`)
	camelTail  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// ToSnakeCase converts camelCase and dotted names to snake_case, so
// "trialType" and "queries.click" become "trial_type" and "queries_click".
func ToSnakeCase(name string) string {
	name = camelWord.ReplaceAllString(name, "${1}_${2}")
	name = separators.ReplaceAllString(name, "_")
	return strings.ToLower(camelTail.ReplaceAllString(name, "${1}_${2}"))
}
