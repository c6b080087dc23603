package questionnaire

import (
	"errors"
	"fmt"

	"github.com/pavelanni/surveyprep/internal/model"
)

var (
	// ErrResponseNotInKey signals a mismatch between recorded response text
	// and a keyed answer key: the configuration must be fixed.
	ErrResponseNotInKey = errors.New("response not found in answer key")
	// ErrInvalidKey is returned for keyed answer-key entries whose values
	// are not numeric.
	ErrInvalidKey = errors.New("answer key values must be numeric")
)

// AnswerKey scores responses. The key is either a flat mapping from
// question id to an expected value, or a mapping from a group (such as the
// questionnaire name) to such a flat mapping. An expected value is a
// literal, a list of accepted literals, or a mapping from response text to
// points.
type AnswerKey struct {
	root model.Value
}

// NewAnswerKey wraps a decoded answer key. Anything but a keyed map yields
// a key that scores nothing.
func NewAnswerKey(v model.Value) AnswerKey {
	return AnswerKey{root: v}
}

// Sub returns the nested key stored under name, used when answer keys are
// partitioned by run.
func (k AnswerKey) Sub(name string) (AnswerKey, bool) {
	v, ok := k.root.Map().Get(name)
	if !ok || v.Shape() != model.ShapeMap {
		return AnswerKey{}, false
	}
	return AnswerKey{root: v}, true
}

// Resolve finds the expected value for a question, first under the
// group then at the top level.
func (k AnswerKey) Resolve(group, questionID string) (model.Value, bool) {
	top := k.root.Map()
	if top == nil {
		return model.Null(), false
	}
	if g, ok := top.Get(group); ok && group != "" {
		if want, ok := g.Map().Get(questionID); ok {
			return want, true
		}
	}
	if want, ok := top.Get(questionID); ok {
		return want, true
	}
	return model.Null(), false
}

// Item is one exploded row as seen by the scorer.
type Item struct {
	Response   model.Value
	QuestionID string
	Group      string
	// Correct is a correctness flag recorded by the task itself; Null when
	// absent.
	Correct          model.Value
	ReverseCoded     bool
	OpenEnded        bool
	OpenEndedDefault float64
}

// Score returns the item's score as a Number, or Null when the answer key
// has no entry for the question.
func (k AnswerKey) Score(it Item) (model.Value, error) {
	switch it.Correct.Kind() {
	case model.KindString:
		return boolScore(matches(it.Response, it.Correct)), nil
	case model.KindBool:
		b, _ := it.Correct.Truth()
		return boolScore(b), nil
	}

	want, ok := k.Resolve(it.Group, it.QuestionID)
	if !ok {
		return model.Null(), nil
	}

	switch want.Shape() {
	case model.ShapeMap:
		return scoreKeyed(want.Map(), it)
	case model.ShapeSequence:
		for _, accepted := range want.Seq() {
			if matches(it.Response, accepted) {
				return boolScore(true), nil
			}
		}
		return boolScore(false), nil
	default:
		return boolScore(matches(it.Response, want)), nil
	}
}

func scoreKeyed(points *model.Map, it Item) (model.Value, error) {
	key, isKey := it.Response.KeyText()
	var raw model.Value
	if isKey {
		raw, isKey = points.Get(key)
	}
	if !isKey {
		if it.OpenEnded {
			return model.Number(it.OpenEndedDefault), nil
		}
		return model.Null(), fmt.Errorf("question %q response %q: %w", it.QuestionID, it.Response.Text(), ErrResponseNotInKey)
	}
	v, ok := raw.Float()
	if !ok {
		return model.Null(), fmt.Errorf("question %q option %q: %w", it.QuestionID, key, ErrInvalidKey)
	}
	if !it.ReverseCoded {
		return model.Number(v), nil
	}
	lo, hi, err := valueRange(points)
	if err != nil {
		return model.Null(), fmt.Errorf("question %q: %w", it.QuestionID, err)
	}
	return model.Number(ReverseScore(lo, hi, v)), nil
}

// ReverseScore reflects v about the midpoint of [lo, hi].
func ReverseScore(lo, hi, v float64) float64 {
	return hi + lo - v
}

func valueRange(points *model.Map) (lo, hi float64, err error) {
	for i, raw := range points.Values() {
		v, ok := raw.Float()
		if !ok {
			return 0, 0, ErrInvalidKey
		}
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi, nil
}

// matches compares a response with an expected literal. Values of the same
// kind must be equal; a string and a number or bool match when their text
// forms agree, so unquoted numbers in answer-key files still match
// recorded text.
func matches(response, expected model.Value) bool {
	if response.Equal(expected) {
		return true
	}
	rs, rk := response.Kind(), expected.Kind()
	if rs != model.KindString && rk != model.KindString {
		return false
	}
	a, ok1 := response.KeyText()
	b, ok2 := expected.KeyText()
	return ok1 && ok2 && a == b
}

func boolScore(b bool) model.Value {
	if b {
		return model.Number(1)
	}
	return model.Number(0)
}
