package questionnaire

import (
	"errors"
	"testing"

	"github.com/pavelanni/surveyprep/internal/model"
)

func TestScore(t *testing.T) {
	key := NewAnswerKey(kv(
		"capital", model.Strings("Paris", "paris"),
		"sum", model.Int(4),
		"likert", kv("a", 1, "b", 2, "c", 3),
		"cogref", kv("bat", "ball"),
		"crt", kv("q1", "5 cents", "q9", "nested only"),
	))

	tests := []struct {
		name string
		item Item
		want model.Value
	}{
		{"list accepts alternate spelling", Item{Response: model.String("paris"), QuestionID: "capital"}, model.Int(1)},
		{"list rejects other case", Item{Response: model.String("PARIS"), QuestionID: "capital"}, model.Int(0)},
		{"literal number matches text", Item{Response: model.String("4"), QuestionID: "sum"}, model.Int(1)},
		{"literal mismatch", Item{Response: model.String("5"), QuestionID: "sum"}, model.Int(0)},
		{"keyed", Item{Response: model.String("b"), QuestionID: "likert"}, model.Int(2)},
		{"keyed reverse a", Item{Response: model.String("a"), QuestionID: "likert", ReverseCoded: true}, model.Int(3)},
		{"keyed reverse b", Item{Response: model.String("b"), QuestionID: "likert", ReverseCoded: true}, model.Int(2)},
		{"keyed reverse c", Item{Response: model.String("c"), QuestionID: "likert", ReverseCoded: true}, model.Int(1)},
		{"open ended miss uses default", Item{Response: model.String("d"), QuestionID: "likert", OpenEnded: true, OpenEndedDefault: 0.5}, model.Number(0.5)},
		{"group entry", Item{Response: model.String("5 cents"), QuestionID: "q1", Group: "crt"}, model.Int(1)},
		{"unknown question", Item{Response: model.String("x"), QuestionID: "nope"}, model.Null()},
		{"bool flag overrides key", Item{Response: model.String("wrong"), QuestionID: "capital", Correct: model.Bool(true)}, model.Int(1)},
		{"false flag overrides key", Item{Response: model.String("Paris"), QuestionID: "capital", Correct: model.Bool(false)}, model.Int(0)},
		{"string flag compared to response", Item{Response: model.String("b"), QuestionID: "nope", Correct: model.String("b")}, model.Int(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := key.Score(tt.item)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Score = %q, want %q", got.Text(), tt.want.Text())
			}
		})
	}
}

func TestScoreGroupFallsBackToTopLevel(t *testing.T) {
	key := NewAnswerKey(kv(
		"quiz", kv("q1", "x"),
		"q2", "y",
	))
	got, err := key.Score(Item{Response: model.String("y"), QuestionID: "q2", Group: "quiz"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !got.Equal(model.Int(1)) {
		t.Errorf("expected top-level entry to score 1, got %q", got.Text())
	}
}

func TestScoreErrors(t *testing.T) {
	key := NewAnswerKey(kv(
		"likert", kv("a", 1, "b", 2),
		"broken", kv("low", "one"),
	))

	_, err := key.Score(Item{Response: model.String("z"), QuestionID: "likert"})
	if !errors.Is(err, ErrResponseNotInKey) {
		t.Errorf("expected ErrResponseNotInKey, got %v", err)
	}

	_, err = key.Score(Item{Response: model.String("low"), QuestionID: "broken"})
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestReverseScore(t *testing.T) {
	for v, want := range map[float64]float64{1: 5, 2: 4, 3: 3, 4: 2, 5: 1} {
		if got := ReverseScore(1, 5, v); got != want {
			t.Errorf("ReverseScore(1, 5, %v) = %v, want %v", v, got, want)
		}
	}
}

func TestAnswerKeySub(t *testing.T) {
	key := NewAnswerKey(kv("run-a", kv("q1", "x"), "run-b", "scalar"))
	if _, ok := key.Sub("run-a"); !ok {
		t.Error("expected run-a key")
	}
	if _, ok := key.Sub("run-b"); ok {
		t.Error("scalar entry must not be a key")
	}
	if _, ok := key.Sub("run-c"); ok {
		t.Error("missing entry must not be a key")
	}
}
