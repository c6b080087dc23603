// Package mouselab prepares trial data recorded by the mouselab-mdp task:
// completeness filtering, trial id repair and click counts.
package mouselab

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/model"
)

const (
	ColPID          = "pid"
	ColRun          = "run"
	ColBlock        = "block"
	ColScore        = "score"
	ColTrialIndex   = "trial_index"
	ColTrialID      = "trial_id"
	ColStateRewards = "state_rewards"
	ColQueries      = "queries"
	ColRewards      = "rewards"
	ColNumNodes     = "num_nodes"
)

var (
	// ErrDuplicateProfile is returned when participants differ in how many
	// rows they have per trial index, which happens when a task was
	// restarted or submitted twice.
	ErrDuplicateProfile = errors.New("participants have differing row counts per trial")
	ErrUnknownRewards   = errors.New("state rewards match no known trial")
	ErrBadTrialCounts   = errors.New("trial counts must map blocks, or runs to blocks, to integers")
)

// TrialCounts is the expected number of scored trials per block, either for
// every run or separately per run.
type TrialCounts struct {
	PerBlock map[string]int
	PerRun   map[string]map[string]int
}

// ParseTrialCounts reads {block: n} or {run: {block: n}}.
func ParseTrialCounts(v model.Value) (TrialCounts, error) {
	m := v.Map()
	if m == nil || m.Len() == 0 {
		return TrialCounts{}, ErrBadTrialCounts
	}
	nested := 0
	for _, e := range m.Values() {
		if e.Shape() == model.ShapeMap {
			nested++
		}
	}
	switch nested {
	case 0:
		per, err := blockCounts(m)
		return TrialCounts{PerBlock: per}, err
	case m.Len():
		runs := make(map[string]map[string]int, m.Len())
		for _, run := range m.Keys() {
			e, _ := m.Get(run)
			per, err := blockCounts(e.Map())
			if err != nil {
				return TrialCounts{}, fmt.Errorf("run %s: %w", run, err)
			}
			runs[run] = per
		}
		return TrialCounts{PerRun: runs}, nil
	}
	return TrialCounts{}, ErrBadTrialCounts
}

func blockCounts(m *model.Map) (map[string]int, error) {
	out := make(map[string]int, m.Len())
	for _, b := range m.Keys() {
		e, _ := m.Get(b)
		f, ok := e.Num()
		if !ok || f != float64(int(f)) {
			return nil, fmt.Errorf("block %s: %w", b, ErrBadTrialCounts)
		}
		out[b] = int(f)
	}
	return out, nil
}

// CompleteParticipants returns the sorted pids that have exactly the
// expected number of scored trials in every block.
func CompleteParticipants(t *model.Table, perBlock map[string]int) []string {
	var complete map[string]bool
	for block, want := range perBlock {
		counts := make(map[string]int)
		for _, r := range t.Rows {
			if r.Get(ColBlock).Text() != block {
				continue
			}
			pid := r.Get(ColPID).Text()
			if !r.Get(ColScore).IsNull() {
				counts[pid]++
			} else if _, ok := counts[pid]; !ok {
				counts[pid] = 0
			}
		}
		inBlock := make(map[string]bool)
		for pid, n := range counts {
			if n == want && (complete == nil || complete[pid]) {
				inBlock[pid] = true
			}
		}
		complete = inBlock
	}
	return sortedKeys(complete)
}

// CompleteParticipantsByRun applies CompleteParticipants to each run's rows
// and returns the union.
func CompleteParticipantsByRun(t *model.Table, perRun map[string]map[string]int) []string {
	all := make(map[string]bool)
	for run, perBlock := range perRun {
		rows := t.Filter(func(r model.Row) bool { return r.Get(ColRun).Text() == run })
		for _, pid := range CompleteParticipants(rows, perBlock) {
			all[pid] = true
		}
	}
	return sortedKeys(all)
}

func (c TrialCounts) complete(t *model.Table) []string {
	if c.PerRun != nil {
		return CompleteParticipantsByRun(t, c.PerRun)
	}
	return CompleteParticipants(t, c.PerBlock)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reward is one trial of the task's ground-truth reward file.
type Reward struct {
	TrialID      model.Value
	StateRewards []float64
}

// LoadRewards reads a JSON list of {"trial_id": ..., "stateRewards": [...]}.
func LoadRewards(fs afero.Fs, path string) ([]Reward, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read rewards: %w", err)
	}
	v, err := jsonval.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse rewards %s: %w", path, err)
	}
	var out []Reward
	for i, e := range v.Seq() {
		id, ok := e.Map().Get("trial_id")
		if !ok {
			return nil, fmt.Errorf("rewards %s entry %d: missing trial_id", path, i)
		}
		sr, _ := e.Map().Get("stateRewards")
		vals, err := floats(sr.Seq(), false)
		if err != nil {
			return nil, fmt.Errorf("rewards %s entry %d: %w", path, i, err)
		}
		out = append(out, Reward{TrialID: id, StateRewards: vals})
	}
	return out, nil
}

func floats(vs []model.Value, blankFirst bool) ([]float64, error) {
	out := make([]float64, len(vs))
	for i, v := range vs {
		if i == 0 && blankFirst {
			continue
		}
		f, ok := v.Float()
		if !ok {
			return nil, fmt.Errorf("state reward %d is %q, want a number", i, v.Text())
		}
		out[i] = f
	}
	return out, nil
}

// RewardKey formats state rewards the way trials are matched: two decimals,
// concatenated, with the start state forced to 0.
func RewardKey(rewards []float64) string {
	var b strings.Builder
	for i, r := range rewards {
		if i == 0 {
			r = 0
		}
		fmt.Fprintf(&b, "%.2f", r)
	}
	if len(rewards) == 0 {
		b.WriteString("0.00")
	}
	return b.String()
}

// FixTrialIDs sets trial_id from the ground-truth reward file by matching
// each row's state rewards.
func FixTrialIDs(t *model.Table, rewards []Reward) error {
	ids := make(map[string]model.Value, len(rewards))
	for _, r := range rewards {
		ids[RewardKey(r.StateRewards)] = r.TrialID
	}
	t.AddColumn(ColTrialID)
	for i, row := range t.Rows {
		vals, err := floats(row.Get(ColStateRewards).Seq(), true)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		key := RewardKey(vals)
		id, ok := ids[key]
		if !ok {
			return fmt.Errorf("row %d: %s: %w", i, key, ErrUnknownRewards)
		}
		row[ColTrialID] = id
	}
	return nil
}

// Preprocess decodes serialized columns, repairs trial ids, keeps only
// participants with complete data and checks that every kept participant
// has the same number of rows per trial index.
func Preprocess(raw *model.Table, counts TrialCounts, rewards []Reward) (*model.Table, error) {
	t := &model.Table{Columns: append([]string(nil), raw.Columns...)}
	for _, r := range raw.Rows {
		nr := r.Clone()
		for _, c := range []string{ColStateRewards, ColQueries, ColRewards} {
			if s, ok := nr.Get(c).Str(); ok {
				nr[c] = jsonval.ParseCell(s)
			}
		}
		t.Rows = append(t.Rows, nr)
	}

	if err := FixTrialIDs(t, rewards); err != nil {
		return nil, fmt.Errorf("fix trial ids: %w", err)
	}

	keep := make(map[string]bool)
	for _, pid := range counts.complete(t) {
		keep[pid] = true
	}
	out := t.Filter(func(r model.Row) bool { return keep[r.Get(ColPID).Text()] })

	if err := checkProfiles(out); err != nil {
		return nil, err
	}
	return out, nil
}

func checkProfiles(t *model.Table) error {
	type key struct{ pid, trial string }
	counts := make(map[key]int)
	for _, r := range t.Rows {
		counts[key{r.Get(ColPID).Text(), r.Get(ColTrialIndex).Text()}]++
	}
	seen := -1
	for k, n := range counts {
		if seen == -1 {
			seen = n
			continue
		}
		if n != seen {
			return fmt.Errorf("pid %s trial %s has %d rows, others %d: %w", k.pid, k.trial, n, seen, ErrDuplicateProfile)
		}
	}
	return nil
}

// ClickType names a set of nodes whose clicks are counted together.
type ClickType struct {
	Name  string
	Nodes []string
}

// AddClickCounts adds num_nodes, the number of clicks per trial, and a
// num_<type> column per click type counting distinct clicked nodes of
// that type.
func AddClickCounts(t *model.Table, types []ClickType) {
	t.AddColumn(ColNumNodes)
	for _, ct := range types {
		t.AddColumn("num_" + ct.Name)
	}
	for _, row := range t.Rows {
		targets := clickTargets(row.Get(ColQueries))
		row[ColNumNodes] = model.Int(len(targets))

		clicked := make(map[string]bool, len(targets))
		for _, v := range targets {
			if s, ok := v.KeyText(); ok {
				clicked[s] = true
			}
		}
		for _, ct := range types {
			n := 0
			seen := make(map[string]bool, len(ct.Nodes))
			for _, node := range ct.Nodes {
				if clicked[node] && !seen[node] {
					seen[node] = true
					n++
				}
			}
			row["num_"+ct.Name] = model.Int(n)
		}
	}
}

func clickTargets(queries model.Value) []model.Value {
	click, _ := queries.Map().Get("click")
	state, _ := click.Map().Get("state")
	target, _ := state.Map().Get("target")
	return target.Seq()
}
