package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrColumnExists is returned when a new column would replace an existing one.
var ErrColumnExists = errors.New("column already exists")

// Row maps column names to cell values. Absent columns read as Null.
type Row map[string]Value

// Get returns the cell for col, or Null.
func (r Row) Get(col string) Value {
	return r[col]
}

// Clone copies the row. Cell values are shared, not deep-copied.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Table is an ordered set of columns and rows, the in-memory form of one
// output file.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

func (t *Table) Len() int { return len(t.Rows) }

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends name to the column list if not present.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// AppendMap adds a row from an ordered map, registering unseen columns in
// the map's key order.
func (t *Table) AppendMap(m *Map) {
	row := make(Row, m.Len())
	for _, k := range m.Keys() {
		t.AddColumn(k)
		row[k], _ = m.Get(k)
	}
	t.Rows = append(t.Rows, row)
}

// Append adds a row whose columns must already be registered or are
// registered in sorted order.
func (t *Table) Append(r Row) {
	var unseen []string
	for k := range r {
		if !t.HasColumn(k) {
			unseen = append(unseen, k)
		}
	}
	sort.Strings(unseen)
	t.Columns = append(t.Columns, unseen...)
	t.Rows = append(t.Rows, r)
}

// DropColumns removes columns and their cells.
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := t.Columns[:0:0]
	for _, c := range t.Columns {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	t.Columns = kept
	for _, r := range t.Rows {
		for n := range drop {
			delete(r, n)
		}
	}
}

// RenameColumns applies fn to every column name.
func (t *Table) RenameColumns(fn func(string) string) {
	for i, c := range t.Columns {
		nc := fn(c)
		if nc == c {
			continue
		}
		t.Columns[i] = nc
		for _, r := range t.Rows {
			if v, ok := r[c]; ok {
				delete(r, c)
				r[nc] = v
			}
		}
	}
}

// Filter returns a new table sharing rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Unique returns the sorted distinct non-null texts of a column.
func (t *Table) Unique(col string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Rows {
		v := r.Get(col)
		if v.IsNull() {
			continue
		}
		s := v.Text()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ExpandMap adds one column per key found in the map cells of col, in sorted
// key order. Rows whose cell lacks a key, or is not a map, get missing. The
// source column is kept. No column is added when any key is already a column.
func (t *Table) ExpandMap(col string, missing Value) error {
	seen := make(map[string]bool)
	var keys []string
	for _, r := range t.Rows {
		m := r.Get(col).Map()
		if m == nil {
			continue
		}
		for _, k := range m.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t.HasColumn(k) {
			return fmt.Errorf("expand %s: %w: %s", col, ErrColumnExists, k)
		}
	}
	for _, k := range keys {
		t.AddColumn(k)
	}
	for _, r := range t.Rows {
		m := r.Get(col).Map()
		for _, k := range keys {
			v, ok := m.Get(k)
			if !ok {
				v = missing
			}
			r[k] = v
		}
	}
	return nil
}
