// Package labeler replaces external participant identifiers with small
// sequential integers that stay stable across runs.
package labeler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/model"
)

var (
	ErrUnknownLabel = errors.New("unknown label")
	ErrCorruptFile  = errors.New("labels are not a sequence starting at 0")
)

// Labeler assigns 0, 1, 2... to identifiers in first-seen order. Labels are
// never reassigned or removed.
type Labeler struct {
	labels map[string]int
	keys   []string
}

// New returns a labeler seeded with ids, labeled in order.
func New(ids ...string) *Labeler {
	l := &Labeler{labels: make(map[string]int)}
	for _, id := range ids {
		l.Label(id)
	}
	return l
}

// Label returns the label for id, assigning the next integer on first use.
func (l *Labeler) Label(id string) int {
	if n, ok := l.labels[id]; ok {
		return n
	}
	n := len(l.keys)
	l.labels[id] = n
	l.keys = append(l.keys, id)
	return n
}

// Unlabel returns the identifier behind label n.
func (l *Labeler) Unlabel(n int) (string, error) {
	if n < 0 || n >= len(l.keys) {
		return "", fmt.Errorf("label %d: %w", n, ErrUnknownLabel)
	}
	return l.keys[n], nil
}

// Labels returns the identifiers in label order.
func (l *Labeler) Labels() []string {
	return append([]string(nil), l.keys...)
}

func (l *Labeler) Len() int { return len(l.keys) }

// Load reads a mapping saved by Save. A missing file yields an empty
// labeler.
func Load(fs afero.Fs, path string) (*Labeler, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	v, err := jsonval.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse labels %s: %w", path, err)
	}
	m := v.Map()
	if m == nil {
		return nil, fmt.Errorf("labels %s: top level must be an object: %w", path, ErrCorruptFile)
	}

	keys := make([]string, m.Len())
	seen := make([]bool, m.Len())
	for _, id := range m.Keys() {
		raw, _ := m.Get(id)
		f, ok := raw.Num()
		n := int(f)
		if !ok || float64(n) != f || n < 0 || n >= len(keys) || seen[n] {
			return nil, fmt.Errorf("labels %s: id %q has label %s: %w", path, id, raw.Text(), ErrCorruptFile)
		}
		seen[n] = true
		keys[n] = id
	}
	return New(keys...), nil
}

// Save writes the mapping as a JSON object in label order. The file is
// replaced atomically.
func (l *Labeler) Save(fs afero.Fs, path string) error {
	m := model.NewMap()
	for i, id := range l.keys {
		m.Set(id, model.Int(i))
	}
	data := []byte(jsonval.Encode(model.MapOf(m)))

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create labels dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, ".labels-*")
	if err != nil {
		return fmt.Errorf("create temp labels: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmp.Name())
		return fmt.Errorf("write labels: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmp.Name())
		return fmt.Errorf("close labels: %w", err)
	}
	if err := fs.Rename(tmp.Name(), path); err != nil {
		fs.Remove(tmp.Name())
		return fmt.Errorf("replace labels: %w", err)
	}
	return nil
}
