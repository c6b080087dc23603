package questionnaire

import (
	"fmt"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/model"
)

// Flag is a tri-state override. FlagUnset defers to the per-row value.
type Flag uint8

const (
	FlagUnset Flag = iota
	FlagFalse
	FlagTrue
)

// ParseFlag maps "", "true" and "false" to a Flag.
func ParseFlag(s string) (Flag, error) {
	switch s {
	case "":
		return FlagUnset, nil
	case "true", "True", "1":
		return FlagTrue, nil
	case "false", "False", "0":
		return FlagFalse, nil
	}
	return FlagUnset, fmt.Errorf("invalid flag %q", s)
}

// Resolve returns the override if set, else row.
func (f Flag) Resolve(row bool) bool {
	switch f {
	case FlagTrue:
		return true
	case FlagFalse:
		return false
	default:
		return row
	}
}

func (f Flag) value() model.Value {
	return model.Bool(f == FlagTrue)
}

// GenericOptions configures ScoreGeneric.
type GenericOptions struct {
	// CorrectColumn holds correctness flags recorded by the task, default "correct".
	CorrectColumn string
	// GroupColumn selects the nested answer-key group, default "name".
	GroupColumn string
	// KeyColumn selects the answer key per row, default "run".
	KeyColumn string

	ReverseCoded Flag
	OpenEnded    Flag

	// DefaultOpenEnded is the score for unlisted open-ended answers per
	// questionnaire name. OpenEndedScore applies to names missing from it.
	DefaultOpenEnded map[string]float64
	OpenEndedScore   *float64
}

func (o GenericOptions) withDefaults() GenericOptions {
	if o.CorrectColumn == "" {
		o.CorrectColumn = ColCorrect
	}
	if o.GroupColumn == "" {
		o.GroupColumn = ColName
	}
	if o.KeyColumn == "" {
		o.KeyColumn = ColRun
	}
	return o
}

func (o GenericOptions) openEndedDefault(name string) float64 {
	if v, ok := o.DefaultOpenEnded[name]; ok {
		return v
	}
	if o.OpenEndedScore != nil {
		return *o.OpenEndedScore
	}
	return 0
}

// ScoreGeneric explodes serialized questionnaire rows and scores each item
// against the answer key selected by the row's KeyColumn value. When the key
// has no entry for that value the whole key is used, so flat and grouped
// keys work without a run layer.
func ScoreGeneric(t *model.Table, key AnswerKey, opts GenericOptions) (*model.Table, error) {
	opts = opts.withDefaults()

	aux := []string{opts.CorrectColumn, ColQuestions, ColReverse, ColOpenEnded}
	src := deserialize(t, append([]string{ColResponses, ColQuestionID}, aux...))

	exploded, err := Explode(src, ExplodeSpec{Extra: []ExtraColumn{
		{Name: opts.CorrectColumn, Default: model.Null()},
		{Name: ColQuestions, Default: model.Null()},
		{Name: ColReverse, Default: opts.ReverseCoded.value()},
		{Name: ColOpenEnded, Default: opts.OpenEnded.value()},
	}})
	if err != nil {
		return nil, fmt.Errorf("explode questionnaires: %w", err)
	}
	exploded.AddColumn(ColScore)

	for i, row := range exploded.Rows {
		sub, ok := key.Sub(row.Get(opts.KeyColumn).Text())
		if !ok {
			sub = key
		}
		name := row.Get(opts.GroupColumn).Text()
		score, err := sub.Score(Item{
			Response:         row.Get(ColResponses),
			QuestionID:       row.Get(ColQuestionID).Text(),
			Group:            name,
			Correct:          row.Get(opts.CorrectColumn),
			ReverseCoded:     opts.ReverseCoded.Resolve(truthy(row.Get(ColReverse))),
			OpenEnded:        opts.OpenEnded.Resolve(truthy(row.Get(ColOpenEnded))),
			OpenEndedDefault: opts.openEndedDefault(name),
		})
		if err != nil {
			return nil, fmt.Errorf("score row %d: %w", i, err)
		}
		row[ColScore] = score
	}
	return exploded, nil
}

// TaskOptions configures ScoreTask.
type TaskOptions struct {
	CorrectColumn string
	GroupColumn   string
}

// ScoreTask scores quiz rows recorded by task plugins against a flat or
// grouped answer key, then prefixes each question id with the
// questionnaire name so ids stay unique across quizzes.
func ScoreTask(t *model.Table, key AnswerKey, opts TaskOptions) (*model.Table, error) {
	if opts.CorrectColumn == "" {
		opts.CorrectColumn = ColCorrect
	}
	if opts.GroupColumn == "" {
		opts.GroupColumn = ColName
	}

	src := deserialize(t, []string{ColResponses, opts.CorrectColumn})
	exploded, err := Explode(src, ExplodeSpec{Extra: []ExtraColumn{
		{Name: opts.CorrectColumn, Default: model.Null()},
	}})
	if err != nil {
		return nil, fmt.Errorf("explode task questionnaires: %w", err)
	}
	exploded.AddColumn(ColScore)

	for i, row := range exploded.Rows {
		qid := row.Get(ColQuestionID).Text()
		name := row.Get(opts.GroupColumn).Text()
		score, err := key.Score(Item{
			Response:   row.Get(ColResponses),
			QuestionID: qid,
			Group:      name,
			Correct:    row.Get(opts.CorrectColumn),
		})
		if err != nil {
			return nil, fmt.Errorf("score row %d: %w", i, err)
		}
		row[ColScore] = score
		row[ColQuestionID] = model.String(name + "_" + qid)
	}
	return exploded, nil
}

// deserialize returns a copy of t whose string cells in cols are decoded
// from their serialized form. Missing columns are added as Null.
func deserialize(t *model.Table, cols []string) *model.Table {
	out := &model.Table{Columns: append([]string(nil), t.Columns...)}
	for _, c := range cols {
		out.AddColumn(c)
	}
	for _, row := range t.Rows {
		nr := row.Clone()
		for _, c := range cols {
			if s, ok := nr.Get(c).Str(); ok {
				nr[c] = jsonval.ParseCell(s)
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

func truthy(v model.Value) bool {
	if b, ok := v.Truth(); ok {
		return b
	}
	f, ok := v.Float()
	return ok && f != 0
}
