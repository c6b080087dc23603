package questionnaire

import (
	"fmt"
	"path"

	"github.com/pavelanni/surveyprep/internal/model"
)

// NamePattern assigns Name to rows whose internal node id matches Glob.
type NamePattern struct {
	Glob string
	Name string
}

// AssignQuizNames sets the name column from the first pattern matching each
// row's internal node id. Rows matching no pattern get a Null name.
func AssignQuizNames(t *model.Table, patterns []NamePattern) error {
	for _, p := range patterns {
		if _, err := path.Match(p.Glob, ""); err != nil {
			return fmt.Errorf("name pattern %q: %w", p.Glob, err)
		}
	}
	t.AddColumn(ColName)
	for _, row := range t.Rows {
		row[ColName] = model.Null()
		id := row.Get(ColNodeID).Text()
		for _, p := range patterns {
			if ok, _ := path.Match(p.Glob, id); ok {
				row[ColName] = model.String(p.Name)
				break
			}
		}
	}
	return nil
}
