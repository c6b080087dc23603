// Package export turns participant records into de-identified tables, one
// per record category, and writes them as CSV files.
package export

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/labeler"
	"github.com/pavelanni/surveyprep/internal/model"
	"github.com/pavelanni/surveyprep/internal/table"
)

const (
	ColPID          = "pid"
	ColWorkerID     = "workerid"
	ColAssignmentID = "assignmentid"
	ColTrialType    = "trial_type"
	ColTrialIndex   = "trial_index"
	ColEventNum     = "event_num"
	ColScore        = "score"
	ColBonus        = "bonus"
	ColCond         = "cond"
	ColCalculated   = "calculated_bonus"

	MouselabTrialType = "mouselab-mdp"
)

// piiColumns are removed from the general info table.
var piiColumns = []string{"uniqueid", "assignmentid", "workerid", "hitid", "ipaddress", "datastring"}

var ErrBadDataString = errors.New("malformed datastring")

func datastring(p model.Participant) (string, error) {
	ds, ok := p.DataString()
	if !ok {
		return "", fmt.Errorf("worker %s: %w: missing", p.WorkerID(), ErrBadDataString)
	}
	if !gjson.Valid(ds) {
		return "", fmt.Errorf("worker %s: %w", p.WorkerID(), ErrBadDataString)
	}
	return ds, nil
}

// GeneralInfo returns one row per participant with the top-level database
// fields, identifying columns replaced by pid.
func GeneralInfo(ps []model.Participant, l *labeler.Labeler) *model.Table {
	t := model.NewTable()
	for _, p := range ps {
		f := p.Fields.Clone()
		f.Set(ColPID, model.Int(l.Label(p.WorkerID())))
		t.AppendMap(f)
	}
	t.AddColumn(ColPID)
	t.DropColumns(piiColumns...)
	return t
}

// QuestionData returns the questiondata object of each participant. A
// nested params object is flattened into the row.
func QuestionData(ps []model.Participant, l *labeler.Labeler) (*model.Table, error) {
	t := model.NewTable()
	for _, p := range ps {
		ds, err := datastring(p)
		if err != nil {
			return nil, err
		}
		m := jsonval.FromResult(gjson.Get(ds, "questiondata")).Map().Clone()
		m.Set(ColPID, model.Int(l.Label(p.WorkerID())))
		if params, ok := m.Get("params"); ok {
			pm := params.Map()
			for _, k := range pm.Keys() {
				v, _ := pm.Get(k)
				m.Set(k, v)
			}
			m.Delete("params")
		}
		t.AppendMap(m)
	}
	return t, nil
}

// EventData returns every browser event with its participant and position.
func EventData(ps []model.Participant, l *labeler.Labeler) (*model.Table, error) {
	t := model.NewTable()
	for _, p := range ps {
		ds, err := datastring(p)
		if err != nil {
			return nil, err
		}
		pid := l.Label(p.WorkerID())
		for i, ev := range jsonval.FromResult(gjson.Get(ds, "eventdata")).Seq() {
			m := ev.Map().Clone()
			m.Set(ColPID, model.Int(pid))
			m.Set(ColEventNum, model.Int(i))
			t.AppendMap(m)
		}
	}
	return t, nil
}

// TrialData returns the trialdata of every recorded trial. The worker and
// assignment ids are kept for bonus computation and removed by
// SplitByTrialType.
func TrialData(ps []model.Participant, l *labeler.Labeler) (*model.Table, error) {
	t := model.NewTable()
	for _, p := range ps {
		ds, err := datastring(p)
		if err != nil {
			return nil, err
		}
		pid := l.Label(p.WorkerID())
		gjson.Get(ds, "data.#.trialdata").ForEach(func(_, trial gjson.Result) bool {
			m := jsonval.FromResult(trial).Map().Clone()
			m.Set(ColPID, model.Int(pid))
			m.Set(ColWorkerID, model.String(p.WorkerID()))
			m.Set(ColAssignmentID, model.String(p.AssignmentID()))
			t.AppendMap(m)
			return true
		})
	}
	return t, nil
}

// SplitByTrialType removes identifying and redundant columns, converts
// column names to snake_case and returns one table per trial type.
func SplitByTrialType(trials *model.Table) map[string]*model.Table {
	clean := &model.Table{Columns: append([]string(nil), trials.Columns...)}
	for _, r := range trials.Rows {
		clean.Rows = append(clean.Rows, r.Clone())
	}
	clean.DropColumns(ColWorkerID, ColAssignmentID, ColTrialIndex)
	clean.RenameColumns(table.ToSnakeCase)

	out := make(map[string]*model.Table)
	for _, tt := range clean.Unique(ColTrialType) {
		out[tt] = clean.Filter(func(r model.Row) bool {
			return r.Get(ColTrialType).Text() == tt
		})
	}
	return out
}

// BonusFunc computes the payable bonus from a bonus table row.
type BonusFunc func(model.Row) float64

// ScoreBonus pays the summed task score.
func ScoreBonus(r model.Row) float64 {
	f, _ := r.Get(ColScore).Float()
	return f
}

// LinearBonus pays perPoint for each point of task score on top of base.
func LinearBonus(perPoint, base float64) BonusFunc {
	return func(r model.Row) float64 {
		return base + perPoint*ScoreBonus(r)
	}
}

// Bonuses sums the mouselab score per worker and assignment and joins the
// bonus fields of the question data and the general info. Missing values
// are written as 0 and pid is dropped.
func Bonuses(trials, questions, general *model.Table, l *labeler.Labeler, fn BonusFunc) *model.Table {
	if fn == nil {
		fn = ScoreBonus
	}

	type key struct{ worker, assignment string }
	sums := make(map[key]float64)
	for _, r := range trials.Rows {
		if r.Get(ColTrialType).Text() != MouselabTrialType {
			continue
		}
		k := key{r.Get(ColWorkerID).Text(), r.Get(ColAssignmentID).Text()}
		f, _ := r.Get(ColScore).Float()
		sums[k] += f
	}
	keys := make([]key, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].worker != keys[j].worker {
			return keys[i].worker < keys[j].worker
		}
		return keys[i].assignment < keys[j].assignment
	})

	var bonusCols []string
	for _, c := range questions.Columns {
		if strings.Contains(c, "_bonus") {
			bonusCols = append(bonusCols, c)
		}
	}
	byPID := func(t *model.Table) map[string]model.Row {
		m := make(map[string]model.Row, t.Len())
		for _, r := range t.Rows {
			m[r.Get(ColPID).Text()] = r
		}
		return m
	}
	qByPID, gByPID := byPID(questions), byPID(general)

	out := model.NewTable(ColWorkerID, ColAssignmentID, ColScore)
	for _, c := range bonusCols {
		out.AddColumn(c)
	}
	out.AddColumn(ColBonus)
	out.AddColumn(ColCond)
	out.AddColumn(ColCalculated)

	for _, k := range keys {
		pid := model.Int(l.Label(k.worker)).Text()
		row := model.Row{
			ColWorkerID:     model.String(k.worker),
			ColAssignmentID: model.String(k.assignment),
			ColScore:        model.Number(sums[k]),
		}
		q := qByPID[pid]
		for _, c := range bonusCols {
			row[c] = q.Get(c)
		}
		g := gByPID[pid]
		row[ColBonus] = g.Get(ColBonus)
		row[ColCond] = g.Get(ColCond)
		row[ColCalculated] = model.Number(fn(row))
		for _, c := range out.Columns {
			if row.Get(c).IsNull() {
				row[c] = model.Int(0)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
