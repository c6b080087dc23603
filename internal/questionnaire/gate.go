package questionnaire

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/surveyprep/internal/model"
)

const (
	DefaultMaxAttempts  = 4
	DefaultPassingScore = 4
)

var (
	// ErrNoLimit is returned when a quiz has neither a per-quiz nor a
	// default limit.
	ErrNoLimit = errors.New("no limit configured for quiz")
	// ErrBadNodeID is returned for an internal node id whose trailing
	// segment is not an integer.
	ErrBadNodeID = errors.New("malformed internal node id")
)

// Tuple is the values of the identifying columns of one attempt series.
type Tuple []string

func (t Tuple) String() string { return strings.Join(t, "/") }

func (t Tuple) less(o Tuple) bool {
	for i := range t {
		if i >= len(o) {
			return false
		}
		if t[i] != o[i] {
			return t[i] < o[i]
		}
	}
	return len(t) < len(o)
}

// Limit is a per-quiz threshold with an optional value broadcast to quizzes
// missing from PerQuiz.
type Limit struct {
	Default *float64
	PerQuiz map[string]float64
}

// Uniform returns a limit applying v to every quiz.
func Uniform(v float64) Limit {
	return Limit{Default: &v}
}

func (l Limit) isZero() bool { return l.Default == nil && len(l.PerQuiz) == 0 }

// For returns the limit for quiz.
func (l Limit) For(quiz string) (float64, error) {
	if v, ok := l.PerQuiz[quiz]; ok {
		return v, nil
	}
	if l.Default != nil {
		return *l.Default, nil
	}
	return 0, fmt.Errorf("quiz %q: %w", quiz, ErrNoLimit)
}

// GateOptions configures QuizPassers. Zero limits fall back to
// DefaultPassingScore and DefaultMaxAttempts; empty IdentifyingColumns
// means pid and run.
type GateOptions struct {
	PassingScore       Limit
	MaxAttempts        Limit
	IdentifyingColumns []string
}

// AttemptNumber derives the 1-indexed attempt from the trailing segment of
// an internal node id such as "0.0-7.0-1.2".
func AttemptNumber(nodeID string) (int, error) {
	seg := nodeID[strings.LastIndex(nodeID, ".")+1:]
	n, err := strconv.Atoi(strings.TrimSpace(seg))
	if err != nil {
		return 0, fmt.Errorf("node id %q: %w", nodeID, ErrBadNodeID)
	}
	return n + 1, nil
}

type gateRow struct {
	tuple   Tuple
	quiz    string
	score   float64
	scored  bool
	attempt int
}

// QuizPassers returns, per quiz name, the identifying tuples that reached
// the passing score within the allowed attempts. Only the latest attempt at
// each question counts. Rows without a quiz name or with a null identifying
// column are ignored.
func QuizPassers(t *model.Table, opts GateOptions) (map[string][]Tuple, error) {
	idCols := opts.identifyingColumns()
	passing := opts.PassingScore
	if passing.isZero() {
		passing = Uniform(DefaultPassingScore)
	}
	attempts := opts.MaxAttempts
	if attempts.isZero() {
		attempts = Uniform(DefaultMaxAttempts)
	}

	latest := make(map[string]gateRow)
	var order []string
	for i, row := range t.Rows {
		tuple, ok := identify(row, idCols)
		if !ok {
			continue
		}
		if row.Get(ColName).IsNull() {
			continue
		}
		attempt, err := AttemptNumber(row.Get(ColNodeID).Text())
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		score, scored := row.Get(ColScore).Float()
		gr := gateRow{
			tuple:   tuple,
			quiz:    row.Get(ColName).Text(),
			score:   score,
			scored:  scored,
			attempt: attempt,
		}
		key := tuple.String() + "\x00" + row.Get(ColQuestionID).Text()
		prev, seen := latest[key]
		if !seen {
			order = append(order, key)
		}
		if !seen || gr.attempt >= prev.attempt {
			latest[key] = gr
		}
	}

	type agg struct {
		tuple      Tuple
		total      float64
		maxAttempt int
	}
	byQuiz := make(map[string]map[string]*agg)
	for _, key := range order {
		gr := latest[key]
		groups, ok := byQuiz[gr.quiz]
		if !ok {
			groups = make(map[string]*agg)
			byQuiz[gr.quiz] = groups
		}
		a, ok := groups[gr.tuple.String()]
		if !ok {
			a = &agg{tuple: gr.tuple}
			groups[gr.tuple.String()] = a
		}
		if gr.scored {
			a.total += gr.score
		}
		if gr.attempt > a.maxAttempt {
			a.maxAttempt = gr.attempt
		}
	}

	out := make(map[string][]Tuple, len(byQuiz))
	for quiz, groups := range byQuiz {
		threshold, err := passing.For(quiz)
		if err != nil {
			return nil, fmt.Errorf("passing score: %w", err)
		}
		ceiling, err := attempts.For(quiz)
		if err != nil {
			return nil, fmt.Errorf("max attempts: %w", err)
		}
		passers := []Tuple{}
		for _, a := range groups {
			if a.total >= threshold && float64(a.maxAttempt) <= ceiling {
				passers = append(passers, a.tuple)
			}
		}
		sort.Slice(passers, func(i, j int) bool { return passers[i].less(passers[j]) })
		out[quiz] = passers
	}
	return out, nil
}

func (o GateOptions) identifyingColumns() []string {
	if len(o.IdentifyingColumns) == 0 {
		return []string{ColPID, ColRun}
	}
	return o.IdentifyingColumns
}

// PassersTable lays out a QuizPassers result as rows of quiz name and
// identifying columns, sorted by quiz.
func PassersTable(passers map[string][]Tuple, opts GateOptions) *model.Table {
	idCols := opts.identifyingColumns()
	out := model.NewTable(append([]string{ColName}, idCols...)...)
	quizzes := make([]string, 0, len(passers))
	for q := range passers {
		quizzes = append(quizzes, q)
	}
	sort.Strings(quizzes)
	for _, q := range quizzes {
		for _, tuple := range passers[q] {
			row := model.Row{ColName: model.String(q)}
			for i, c := range idCols {
				row[c] = model.String(tuple[i])
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func identify(row model.Row, cols []string) (Tuple, bool) {
	tuple := make(Tuple, len(cols))
	for i, c := range cols {
		v := row.Get(c)
		if v.IsNull() {
			return nil, false
		}
		tuple[i] = v.Text()
	}
	return tuple, true
}
