// Package questionnaire reshapes multi-question survey rows into one row per
// question and scores the answers against answer keys.
package questionnaire

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pavelanni/surveyprep/internal/model"
)

var (
	// ErrUnsupportedResponses is returned for a responses cell that is a
	// non-null scalar.
	ErrUnsupportedResponses = errors.New("responses must be a sequence or a keyed map")
	// ErrMissingResponse is returned when an explicit question id has no
	// entry in a keyed responses map.
	ErrMissingResponse = errors.New("question id missing from responses")
)

// PlaceholderID is the positional question id used when a row carries none.
func PlaceholderID(i int) string {
	return fmt.Sprintf("Q%d", i)
}

// Normalize aligns a row's responses with its question ids. The two
// returned slices always have the same length.
//
// A sequence of responses keeps its order and takes the supplied question
// ids if they form a sequence, otherwise Q0..Qn-1. A keyed map is read in
// the order of the supplied question ids when the first id is one of its
// keys, in sorted key order when ids were supplied but do not match, and
// in insertion order when no ids were supplied.
func Normalize(responses, questionIDs model.Value) ([]string, []model.Value, error) {
	switch responses.Shape() {
	case model.ShapeSequence:
		resp := responses.Seq()
		if questionIDs.Shape() == model.ShapeSequence {
			ids, err := idTexts(questionIDs.Seq())
			if err != nil {
				return nil, nil, err
			}
			return ids, resp, nil
		}
		ids := make([]string, len(resp))
		for i := range resp {
			ids[i] = PlaceholderID(i)
		}
		return ids, resp, nil

	case model.ShapeMap:
		m := responses.Map()
		if questionIDs.Shape() == model.ShapeSequence {
			supplied := questionIDs.Seq()
			if len(supplied) > 0 {
				first, ok := supplied[0].KeyText()
				if ok && m.Has(first) {
					ids, err := idTexts(supplied)
					if err != nil {
						return nil, nil, err
					}
					resp := make([]model.Value, len(ids))
					for i, id := range ids {
						v, ok := m.Get(id)
						if !ok {
							return nil, nil, fmt.Errorf("question %q: %w", id, ErrMissingResponse)
						}
						resp[i] = v
					}
					return ids, resp, nil
				}
			}
			ids := m.Keys()
			sort.Strings(ids)
			return ids, lookupAll(m, ids), nil
		}
		ids := m.Keys()
		return ids, lookupAll(m, ids), nil

	default:
		if responses.IsNull() {
			return []string{}, []model.Value{}, nil
		}
		return nil, nil, fmt.Errorf("responses of kind %s: %w", responses.Kind(), ErrUnsupportedResponses)
	}
}

func lookupAll(m *model.Map, keys []string) []model.Value {
	out := make([]model.Value, len(keys))
	for i, k := range keys {
		out[i], _ = m.Get(k)
	}
	return out
}

func idTexts(vs []model.Value) ([]string, error) {
	out := make([]string, len(vs))
	for i, v := range vs {
		s, ok := v.KeyText()
		if !ok {
			return nil, fmt.Errorf("question id %d has kind %s, want a scalar", i, v.Kind())
		}
		out[i] = s
	}
	return out, nil
}
