package questionnaire

import (
	"errors"
	"fmt"

	"github.com/pavelanni/surveyprep/internal/model"
)

const (
	ColQuestionID = "question_id"
	ColResponses  = "responses"
	ColName       = "name"
	ColRun        = "run"
	ColPID        = "pid"
	ColNodeID     = "internal_node_id"
	ColScore      = "score"
	ColCorrect    = "correct"
	ColQuestions  = "questions"
	ColReverse    = "reverse_coded"
	ColOpenEnded  = "open_ended"
)

var (
	// ErrLengthMismatch is returned when the columns exploded together
	// have different lengths for one source row.
	ErrLengthMismatch = errors.New("exploded columns differ in length")
	// ErrMissingAuxiliary is returned when a keyed auxiliary column lacks
	// an entry for one of the row's question ids.
	ErrMissingAuxiliary = errors.New("auxiliary column missing question id")
)

// ExtraColumn is a per-question column exploded in lockstep with the
// responses. Default fills every position when the row's cell is a scalar.
type ExtraColumn struct {
	Name    string
	Default model.Value
}

// ExplodeSpec names the columns exploded together.
type ExplodeSpec struct {
	QuestionColumn string
	ResponseColumn string
	Extra          []ExtraColumn
}

func (s ExplodeSpec) withDefaults() ExplodeSpec {
	if s.QuestionColumn == "" {
		s.QuestionColumn = ColQuestionID
	}
	if s.ResponseColumn == "" {
		s.ResponseColumn = ColResponses
	}
	return s
}

type explodedRow struct {
	ids    []string
	resp   []model.Value
	extras [][]model.Value
}

// Explode returns a table with one row per (source row, question) pair.
// All lengths are validated before any output row is built; non-exploded
// cells are shared with the source row.
func Explode(t *model.Table, spec ExplodeSpec) (*model.Table, error) {
	spec = spec.withDefaults()

	prepared := make([]explodedRow, len(t.Rows))
	for i, row := range t.Rows {
		ids, resp, err := Normalize(row.Get(spec.ResponseColumn), row.Get(spec.QuestionColumn))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if len(ids) != len(resp) {
			return nil, fmt.Errorf("row %d: %d question ids vs %d responses: %w", i, len(ids), len(resp), ErrLengthMismatch)
		}
		er := explodedRow{ids: ids, resp: resp, extras: make([][]model.Value, len(spec.Extra))}
		for j, col := range spec.Extra {
			vals, err := alignExtra(row.Get(col.Name), col.Default, ids)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, col.Name, err)
			}
			if len(vals) != len(ids) {
				return nil, fmt.Errorf("row %d column %q: %d values vs %d question ids: %w", i, col.Name, len(vals), len(ids), ErrLengthMismatch)
			}
			er.extras[j] = vals
		}
		prepared[i] = er
	}

	out := &model.Table{Columns: append([]string(nil), t.Columns...)}
	out.AddColumn(spec.QuestionColumn)
	out.AddColumn(spec.ResponseColumn)
	for _, col := range spec.Extra {
		out.AddColumn(col.Name)
	}

	for i, row := range t.Rows {
		er := prepared[i]
		for k, id := range er.ids {
			nr := row.Clone()
			nr[spec.QuestionColumn] = model.String(id)
			nr[spec.ResponseColumn] = er.resp[k]
			for j, col := range spec.Extra {
				nr[col.Name] = er.extras[j][k]
			}
			out.Rows = append(out.Rows, nr)
		}
	}
	return out, nil
}

func alignExtra(cell, def model.Value, ids []string) ([]model.Value, error) {
	switch cell.Shape() {
	case model.ShapeSequence:
		return cell.Seq(), nil
	case model.ShapeMap:
		m := cell.Map()
		out := make([]model.Value, len(ids))
		for i, id := range ids {
			v, ok := m.Get(id)
			if !ok {
				return nil, fmt.Errorf("question %q: %w", id, ErrMissingAuxiliary)
			}
			out[i] = v
		}
		return out, nil
	default:
		out := make([]model.Value, len(ids))
		for i := range out {
			out[i] = def
		}
		return out, nil
	}
}
