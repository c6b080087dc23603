package questionnaire

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pavelanni/surveyprep/internal/model"
)

func personalityKey() AnswerKey {
	agree := func() model.Value { return kv("disagree", 1, "neutral", 2, "agree", 3) }
	return NewAnswerKey(kv(
		"r1", kv("personality", kv("Q0", agree(), "Q1", agree())),
	))
}

func personalityTable() *model.Table {
	tbl := model.NewTable(ColPID, ColRun, ColName, ColResponses, ColReverse)
	tbl.Append(model.Row{
		ColPID:       model.Int(0),
		ColRun:       model.String("r1"),
		ColName:      model.String("personality"),
		ColResponses: model.String(`{"Q0":"agree","Q1":"disagree"}`),
		ColReverse:   model.String(`[false, true]`),
	})
	tbl.Append(model.Row{
		ColPID:       model.Int(1),
		ColRun:       model.String("r2"),
		ColName:      model.String("personality"),
		ColResponses: model.String(`["agree"]`),
	})
	return tbl
}

func scores(t *testing.T, tbl *model.Table) []string {
	t.Helper()
	out := make([]string, 0, tbl.Len())
	for _, r := range tbl.Rows {
		out = append(out, r.Get(ColQuestionID).Text()+"="+r.Get(ColScore).Text())
	}
	return out
}

func TestScoreGeneric(t *testing.T) {
	tests := []struct {
		name string
		opts GenericOptions
		want []string
	}{
		{
			name: "row reverse flags",
			want: []string{"Q0=3", "Q1=3", "Q0="},
		},
		{
			name: "reverse override off",
			opts: GenericOptions{ReverseCoded: FlagFalse},
			want: []string{"Q0=3", "Q1=1", "Q0="},
		},
		{
			name: "reverse override on",
			opts: GenericOptions{ReverseCoded: FlagTrue},
			want: []string{"Q0=1", "Q1=3", "Q0="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ScoreGeneric(personalityTable(), personalityKey(), tt.opts)
			if err != nil {
				t.Fatalf("ScoreGeneric: %v", err)
			}
			if diff := cmp.Diff(tt.want, scores(t, out)); diff != "" {
				t.Errorf("scores mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScoreGenericOpenEnded(t *testing.T) {
	tbl := model.NewTable(ColPID, ColRun, ColName, ColResponses, ColOpenEnded)
	tbl.Append(model.Row{
		ColPID:       model.Int(0),
		ColRun:       model.String("r1"),
		ColName:      model.String("personality"),
		ColResponses: model.String(`["somewhat", "agree"]`),
		ColOpenEnded: model.String(`[true, false]`),
	})

	global := 0.25
	tests := []struct {
		name string
		opts GenericOptions
		want []string
	}{
		{"zero default", GenericOptions{}, []string{"Q0=0", "Q1=3"}},
		{"global default", GenericOptions{OpenEndedScore: &global}, []string{"Q0=0.25", "Q1=3"}},
		{
			name: "per name default wins",
			opts: GenericOptions{OpenEndedScore: &global, DefaultOpenEnded: map[string]float64{"personality": 2}},
			want: []string{"Q0=2", "Q1=3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ScoreGeneric(tbl, personalityKey(), tt.opts)
			if err != nil {
				t.Fatalf("ScoreGeneric: %v", err)
			}
			if diff := cmp.Diff(tt.want, scores(t, out)); diff != "" {
				t.Errorf("scores mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScoreGenericWithoutRunLayer(t *testing.T) {
	tbl := model.NewTable(ColPID, ColName, ColResponses)
	tbl.Append(model.Row{
		ColPID:       model.Int(0),
		ColName:      model.String("geo"),
		ColResponses: model.String(`{"capital":"Paris","river":"Rhine"}`),
	})

	tests := []struct {
		name string
		key  AnswerKey
		want []string
	}{
		{
			name: "flat key",
			key:  NewAnswerKey(kv("capital", model.Strings("Paris", "paris"), "river", "Seine")),
			want: []string{"capital=1", "river=0"},
		},
		{
			name: "grouped key",
			key:  NewAnswerKey(kv("geo", kv("capital", "Paris", "river", "Rhine"))),
			want: []string{"capital=1", "river=1"},
		},
		{
			name: "run key without the row's run",
			key:  NewAnswerKey(kv("r1", kv("capital", "Paris"))),
			want: []string{"capital=", "river="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ScoreGeneric(tbl, tt.key, GenericOptions{})
			if err != nil {
				t.Fatalf("ScoreGeneric: %v", err)
			}
			if diff := cmp.Diff(tt.want, scores(t, out)); diff != "" {
				t.Errorf("scores mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScoreTask(t *testing.T) {
	tbl := model.NewTable(ColPID, ColName, ColResponses, ColCorrect)
	tbl.Append(model.Row{
		ColPID:       model.Int(0),
		ColName:      model.String("quiz1"),
		ColResponses: model.String(`{"Q0":"3","Q1":"no"}`),
	})
	tbl.Append(model.Row{
		ColPID:       model.Int(1),
		ColName:      model.String("quiz2"),
		ColResponses: model.String(`["left", "right"]`),
		ColCorrect:   model.String(`[true, false]`),
	})
	key := NewAnswerKey(kv("quiz1", kv("Q0", 3, "Q1", model.Strings("yes"))))

	out, err := ScoreTask(tbl, key, TaskOptions{})
	if err != nil {
		t.Fatalf("ScoreTask: %v", err)
	}
	want := []string{"quiz1_Q0=1", "quiz1_Q1=0", "quiz2_Q0=1", "quiz2_Q1=0"}
	if diff := cmp.Diff(want, scores(t, out)); diff != "" {
		t.Errorf("scores mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    Flag
		wantErr bool
	}{
		{"", FlagUnset, false},
		{"true", FlagTrue, false},
		{"False", FlagFalse, false},
		{"maybe", FlagUnset, true},
	}
	for _, tt := range tests {
		got, err := ParseFlag(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFlag(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestAssignQuizNames(t *testing.T) {
	tbl := model.NewTable(ColNodeID)
	for _, id := range []string{"0.0-2.0-1.0", "0.0-2.1-1.3", "0.0-9.0"} {
		tbl.Append(model.Row{ColNodeID: model.String(id)})
	}
	err := AssignQuizNames(tbl, []NamePattern{
		{Glob: "0.0-2.*-1.*", Name: "mouselab-quiz"},
		{Glob: "0.0-2.0*", Name: "shadowed"},
	})
	if err != nil {
		t.Fatalf("AssignQuizNames: %v", err)
	}
	var got []string
	for _, r := range tbl.Rows {
		got = append(got, r.Get(ColName).Text())
	}
	if diff := cmp.Diff([]string{"mouselab-quiz", "mouselab-quiz", ""}, got); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}

	if err := AssignQuizNames(tbl, []NamePattern{{Glob: "[", Name: "bad"}}); err == nil {
		t.Error("expected error for malformed pattern")
	}
}
