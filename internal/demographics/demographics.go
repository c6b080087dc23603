// Package demographics turns the age and gender questions of a session into
// one row per participant and a one-line summary for reports.
package demographics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/model"
	"github.com/pavelanni/surveyprep/internal/questionnaire"
)

const (
	ColGender = "gender"
	ColAge    = "age"

	// Question ids of the free-text survey used before the html form.
	AgeQuestion    = "Q1"
	GenderQuestion = "Q2"
)

var (
	ErrUnknownGender = errors.New("gender response has no category")
	ErrBadAge        = errors.New("age response is not a number")
	ErrNoResponses   = errors.New("no demographic responses")
	ErrMissingColumn = errors.New("demographics missing column")
)

var genderCategories = map[string]string{
	"female":                             "female",
	"f":                                  "female",
	"woman":                              "female",
	"i was born and raised as a female.": "female",
	"femal":                              "female",
	"male":                               "male",
	"m":                                  "male",
	"man":                                "male",
	"non-binary":                         "nonbinary person",
	"genderfluid":                        "nonbinary person",
	"57":                                 "invalid response",
}

// Categorizer maps free-text gender responses to categories.
type Categorizer struct {
	fold  cases.Caser
	table map[string]string
}

// NewCategorizer returns the built-in categories with overrides applied on
// top. Override keys are matched case-insensitively.
func NewCategorizer(overrides map[string]string) *Categorizer {
	c := &Categorizer{fold: cases.Fold(), table: make(map[string]string, len(genderCategories)+len(overrides))}
	for k, v := range genderCategories {
		c.table[k] = v
	}
	for k, v := range overrides {
		c.table[c.key(k)] = v
	}
	return c
}

func (c *Categorizer) key(s string) string {
	return strings.TrimSpace(c.fold.String(s))
}

// Categorize returns the category of a response.
func (c *Categorizer) Categorize(response string) (string, error) {
	cat, ok := c.table[c.key(response)]
	if !ok {
		return "", fmt.Errorf("%q: %w", response, ErrUnknownGender)
	}
	return cat, nil
}

// SurveyTextOptions configures SurveyText.
type SurveyTextOptions struct {
	// ValidPIDs restricts the result to these participants when non-empty.
	ValidPIDs []string
	// GenderOverrides adds experiment-specific categories.
	GenderOverrides map[string]string
	// AgeMapping replaces unparseable age answers before conversion.
	AgeMapping map[string]string
}

// SurveyText processes the free-text age (Q1) and gender (Q2) questions.
// Gender answers are replaced by their category in the returned table.
func SurveyText(raw *model.Table, opts SurveyTextOptions) (*model.Table, string, error) {
	exploded, err := explode(raw)
	if err != nil {
		return nil, "", err
	}
	if len(opts.ValidPIDs) > 0 {
		valid := make(map[string]bool, len(opts.ValidPIDs))
		for _, p := range opts.ValidPIDs {
			valid[p] = true
		}
		exploded = exploded.Filter(func(r model.Row) bool {
			return valid[r.Get(questionnaire.ColPID).Text()]
		})
	}

	cat := NewCategorizer(opts.GenderOverrides)
	var ages []float64
	var genders []string
	for _, r := range exploded.Rows {
		resp := r.Get(questionnaire.ColResponses).Text()
		switch r.Get(questionnaire.ColQuestionID).Text() {
		case GenderQuestion:
			g, err := cat.Categorize(resp)
			if err != nil {
				return nil, "", fmt.Errorf("pid %s: %w", r.Get(questionnaire.ColPID).Text(), err)
			}
			r[questionnaire.ColResponses] = model.String(g)
			genders = append(genders, g)
		case AgeQuestion:
			if mapped, ok := opts.AgeMapping[resp]; ok {
				resp = mapped
				r[questionnaire.ColResponses] = model.String(mapped)
			}
			age, err := parseAge(resp)
			if err != nil {
				return nil, "", fmt.Errorf("pid %s: %w", r.Get(questionnaire.ColPID).Text(), err)
			}
			ages = append(ages, age)
		}
	}

	summary, err := Summary(ages, genders)
	if err != nil {
		return nil, "", err
	}
	return Pivot(exploded), summary, nil
}

// HTMLForm processes the gender and age fields of the html demographics
// form and adds a 0/1 column per gender answer.
func HTMLForm(raw *model.Table) (*model.Table, string, error) {
	exploded, err := explode(raw)
	if err != nil {
		return nil, "", err
	}
	demo := Pivot(exploded)
	for _, col := range []string{ColGender, ColAge} {
		if !demo.HasColumn(col) {
			return nil, "", fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	genders := make([]string, 0, demo.Len())
	ages := make([]float64, 0, demo.Len())
	for _, r := range demo.Rows {
		genders = append(genders, r.Get(ColGender).Text())
		age, err := parseAge(r.Get(ColAge).Text())
		if err != nil {
			return nil, "", fmt.Errorf("pid %s: %w", r.Get(questionnaire.ColPID).Text(), err)
		}
		ages = append(ages, age)
	}

	for _, g := range demo.Unique(ColGender) {
		demo.AddColumn(g)
		for _, r := range demo.Rows {
			if r.Get(ColGender).Text() == g {
				r[g] = model.Int(1)
			} else {
				r[g] = model.Int(0)
			}
		}
	}

	summary, err := Summary(ages, genders)
	if err != nil {
		return nil, "", err
	}
	return demo, summary, nil
}

func explode(raw *model.Table) (*model.Table, error) {
	t := &model.Table{Columns: append([]string(nil), raw.Columns...)}
	for _, r := range raw.Rows {
		nr := r.Clone()
		if s, ok := nr.Get(questionnaire.ColResponses).Str(); ok {
			nr[questionnaire.ColResponses] = jsonval.ParseCell(s)
		}
		t.Rows = append(t.Rows, nr)
	}
	out, err := questionnaire.Explode(t, questionnaire.ExplodeSpec{})
	if err != nil {
		return nil, fmt.Errorf("explode demographics: %w", err)
	}
	return out, nil
}

func parseAge(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("%q: %w", s, ErrBadAge)
	}
	return f, nil
}

// Pivot returns one row per pid with a column per question id. Several
// answers to one question are joined with a space; null answers are
// skipped. Rows are sorted by pid and question columns by name.
func Pivot(exploded *model.Table) *model.Table {
	type cell struct {
		pid  model.Value
		vals map[string][]string
	}
	byPID := make(map[string]*cell)
	var pids []*cell
	qids := make(map[string]bool)
	for _, r := range exploded.Rows {
		resp := r.Get(questionnaire.ColResponses)
		if resp.IsNull() {
			continue
		}
		pid := r.Get(questionnaire.ColPID)
		c, ok := byPID[pid.Text()]
		if !ok {
			c = &cell{pid: pid, vals: make(map[string][]string)}
			byPID[pid.Text()] = c
			pids = append(pids, c)
		}
		q := r.Get(questionnaire.ColQuestionID).Text()
		qids[q] = true
		c.vals[q] = append(c.vals[q], resp.Text())
	}

	sort.SliceStable(pids, func(i, j int) bool { return pidLess(pids[i].pid, pids[j].pid) })
	cols := make([]string, 0, len(qids))
	for q := range qids {
		cols = append(cols, q)
	}
	sort.Strings(cols)

	out := model.NewTable(append([]string{questionnaire.ColPID}, cols...)...)
	for _, c := range pids {
		row := model.Row{questionnaire.ColPID: c.pid}
		for _, q := range cols {
			if vs, ok := c.vals[q]; ok {
				row[q] = model.String(strings.Join(vs, " "))
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func pidLess(a, b model.Value) bool {
	fa, okA := a.Num()
	fb, okB := b.Num()
	if okA && okB {
		return fa < fb
	}
	return a.Text() < b.Text()
}

// Summary formats gender counts and age statistics as
// "<n> <gender>s, ...; median age X, age range A-B". The median is
// truncated to an integer.
func Summary(ages []float64, genders []string) (string, error) {
	if len(ages) == 0 {
		return "", ErrNoResponses
	}
	counts := make(map[string]int)
	for _, g := range genders {
		counts[g]++
	}
	values := make([]string, 0, len(counts))
	for g := range counts {
		values = append(values, g)
	}
	sort.Strings(values)

	parts := make([]string, len(values))
	for i, g := range values {
		parts[i] = fmt.Sprintf("%d %ss", counts[g], g)
	}

	sorted := append([]float64(nil), ages...)
	sort.Float64s(sorted)
	return fmt.Sprintf("%s; median age %.0f, age range %.0f-%.0f",
		strings.Join(parts, ", "), math.Trunc(median(sorted)), sorted[0], sorted[len(sorted)-1]), nil
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
