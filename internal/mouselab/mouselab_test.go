package mouselab

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/model"
)

func trialRow(pid, block string, trialIndex int, score model.Value, stateRewards string) model.Row {
	return model.Row{
		ColPID:          model.String(pid),
		ColRun:          model.String("r1"),
		ColBlock:        model.String(block),
		ColTrialIndex:   model.Int(trialIndex),
		ColScore:        score,
		ColStateRewards: model.String(stateRewards),
	}
}

func trialTable(rows ...model.Row) *model.Table {
	t := model.NewTable(ColPID, ColRun, ColBlock, ColTrialIndex, ColScore, ColStateRewards)
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

const sr1 = `["", 4, -4, 8]`
const sr2 = `["", -8, 4, 4]`

func TestCompleteParticipants(t *testing.T) {
	tbl := trialTable(
		// p1 completes both blocks.
		trialRow("p1", "train", 1, model.Int(3), sr1),
		trialRow("p1", "test", 2, model.Int(4), sr1),
		trialRow("p1", "test", 3, model.Int(1), sr2),
		// p2 misses one test trial.
		trialRow("p2", "train", 1, model.Int(3), sr1),
		trialRow("p2", "test", 2, model.Int(2), sr1),
		// p3 has a test row without a score.
		trialRow("p3", "train", 1, model.Int(3), sr1),
		trialRow("p3", "test", 2, model.Int(2), sr1),
		trialRow("p3", "test", 3, model.Null(), sr2),
	)
	got := CompleteParticipants(tbl, map[string]int{"train": 1, "test": 2})
	if diff := cmp.Diff([]string{"p1"}, got); diff != "" {
		t.Errorf("complete mismatch (-want +got):\n%s", diff)
	}

	if got := CompleteParticipants(tbl, map[string]int{"practice": 1}); len(got) != 0 {
		t.Errorf("no participant has a practice block, got %v", got)
	}
}

func TestCompleteParticipantsByRun(t *testing.T) {
	a := trialRow("p1", "test", 1, model.Int(1), sr1)
	b := trialRow("p2", "test", 1, model.Int(1), sr1)
	b[ColRun] = model.String("r2")
	c := trialRow("p2", "test", 2, model.Int(1), sr1)
	c[ColRun] = model.String("r2")

	got := CompleteParticipantsByRun(trialTable(a, b, c), map[string]map[string]int{
		"r1": {"test": 1},
		"r2": {"test": 2},
	})
	if diff := cmp.Diff([]string{"p1", "p2"}, got); diff != "" {
		t.Errorf("complete mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTrialCounts(t *testing.T) {
	flat, err := jsonval.Parse(`{"train": 2, "test": 10}`)
	if err != nil {
		t.Fatal(err)
	}
	tc, err := ParseTrialCounts(flat)
	if err != nil {
		t.Fatalf("ParseTrialCounts: %v", err)
	}
	if tc.PerBlock["test"] != 10 || tc.PerRun != nil {
		t.Errorf("unexpected counts %+v", tc)
	}

	nested, _ := jsonval.Parse(`{"r1": {"test": 3}, "r2": {"test": 4}}`)
	tc, err = ParseTrialCounts(nested)
	if err != nil {
		t.Fatalf("ParseTrialCounts: %v", err)
	}
	if tc.PerRun["r2"]["test"] != 4 {
		t.Errorf("unexpected counts %+v", tc)
	}

	for _, bad := range []string{`{"r1": {"test": 3}, "test": 4}`, `{"test": 2.5}`, `[1]`} {
		v, _ := jsonval.Parse(bad)
		if _, err := ParseTrialCounts(v); !errors.Is(err, ErrBadTrialCounts) {
			t.Errorf("%s: expected ErrBadTrialCounts, got %v", bad, err)
		}
	}
}

func TestRewardKey(t *testing.T) {
	if got := RewardKey([]float64{7, 4, -4.5}); got != "0.004.00-4.50" {
		t.Errorf("RewardKey = %q", got)
	}
}

func testRewards(t *testing.T) []Reward {
	t.Helper()
	fs := afero.NewMemMapFs()
	body := `[{"trial_id": 11, "stateRewards": [0, 4, -4, 8]}, {"trial_id": 12, "stateRewards": [0, -8, 4, 4]}]`
	if err := afero.WriteFile(fs, "rewards.json", []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	rewards, err := LoadRewards(fs, "rewards.json")
	if err != nil {
		t.Fatalf("LoadRewards: %v", err)
	}
	return rewards
}

func TestPreprocess(t *testing.T) {
	tbl := trialTable(
		trialRow("p1", "test", 1, model.Int(4), sr1),
		trialRow("p1", "test", 2, model.Int(1), sr2),
		trialRow("p2", "test", 1, model.Int(2), sr1),
	)
	out, err := Preprocess(tbl, TrialCounts{PerBlock: map[string]int{"test": 2}}, testRewards(t))
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("expected 2 rows for p1, got %d", out.Len())
	}
	if id := out.Rows[1].Get(ColTrialID).Text(); id != "12" {
		t.Errorf("trial_id = %q, want 12", id)
	}
	if out.Rows[0].Get(ColStateRewards).Shape() != model.ShapeSequence {
		t.Error("state rewards should be decoded")
	}
	if _, ok := tbl.Rows[0].Get(ColStateRewards).Str(); !ok {
		t.Error("source table must not be modified")
	}
}

func TestPreprocessDuplicateProfile(t *testing.T) {
	tbl := trialTable(
		trialRow("p1", "test", 1, model.Int(4), sr1),
		trialRow("p1", "test", 1, model.Int(4), sr1),
		trialRow("p2", "test", 1, model.Int(2), sr1),
		trialRow("p2", "test", 2, model.Int(2), sr2),
	)
	_, err := Preprocess(tbl, TrialCounts{PerBlock: map[string]int{"test": 2}}, testRewards(t))
	if !errors.Is(err, ErrDuplicateProfile) {
		t.Fatalf("expected ErrDuplicateProfile, got %v", err)
	}
}

func TestFixTrialIDsUnknown(t *testing.T) {
	tbl := trialTable(trialRow("p1", "test", 1, model.Int(1), `["", 1, 1, 1]`))
	for _, r := range tbl.Rows {
		r[ColStateRewards] = jsonval.ParseCell(r.Get(ColStateRewards).Text())
	}
	if err := FixTrialIDs(tbl, testRewards(t)); !errors.Is(err, ErrUnknownRewards) {
		t.Errorf("expected ErrUnknownRewards, got %v", err)
	}
}

func TestAddClickCounts(t *testing.T) {
	q1, _ := jsonval.Parse(`{"click": {"state": {"target": ["1", "2", "2", "5"]}}}`)
	q2, _ := jsonval.Parse(`{"click": {"state": {"target": []}}}`)
	tbl := model.NewTable(ColQueries)
	tbl.Append(model.Row{ColQueries: q1})
	tbl.Append(model.Row{ColQueries: q2})

	AddClickCounts(tbl, []ClickType{
		{Name: "early", Nodes: []string{"1", "5", "9"}},
		{Name: "late", Nodes: []string{"3", "4"}},
	})

	tests := []struct {
		row               int
		nodes, early, late int
	}{
		{0, 4, 2, 0},
		{1, 0, 0, 0},
	}
	for _, tt := range tests {
		r := tbl.Rows[tt.row]
		for col, want := range map[string]int{ColNumNodes: tt.nodes, "num_early": tt.early, "num_late": tt.late} {
			if !r.Get(col).Equal(model.Int(want)) {
				t.Errorf("row %d %s = %s, want %d", tt.row, col, r.Get(col).Text(), want)
			}
		}
	}
	if diff := cmp.Diff([]string{ColQueries, ColNumNodes, "num_early", "num_late"}, tbl.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
}
