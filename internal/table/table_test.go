package table

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/surveyprep/internal/model"
)

func TestCSVRoundTrip(t *testing.T) {
	resp := model.NewMap()
	resp.Set("Q1", model.String("b, with comma"))
	resp.Set("Q0", model.String("a"))

	tbl := model.NewTable("pid", "responses", "rt", "correct", "note")
	tbl.Append(model.Row{
		"pid":       model.Int(0),
		"responses": model.MapOf(resp),
		"rt":        model.Number(1234.5),
		"correct":   model.Bool(true),
		"note":      model.Null(),
	})

	fs := afero.NewMemMapFs()
	n, err := WriteCSV(fs, "data/human/exp1/survey-multi-choice.csv", tbl)
	require.NoError(t, err)
	assert.Positive(t, n)

	info, err := fs.Stat("data/human/exp1/survey-multi-choice.csv")
	require.NoError(t, err)
	assert.Equal(t, info.Size(), n)

	got, err := ReadCSV(fs, "data/human/exp1/survey-multi-choice.csv")
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, got.Columns)
	require.Equal(t, 1, got.Len())

	row := got.Rows[0]
	assert.True(t, row.Get("pid").Equal(model.Int(0)))
	assert.True(t, row.Get("responses").Equal(model.MapOf(resp)))
	assert.Equal(t, []string{"Q1", "Q0"}, row.Get("responses").Map().Keys())
	assert.True(t, row.Get("rt").Equal(model.Number(1234.5)))
	assert.True(t, row.Get("correct").Equal(model.Bool(true)))
	assert.True(t, row.Get("note").IsNull())
}

func TestWriteNullAsEmpty(t *testing.T) {
	tbl := model.NewTable("pid", "score")
	tbl.Append(model.Row{"pid": model.Int(3), "score": model.Null()})
	var sb strings.Builder
	require.NoError(t, Write(&sb, tbl))
	assert.Equal(t, "pid,score\n3,\n", sb.String())
}

func TestReadShortRows(t *testing.T) {
	got, err := Read(strings.NewReader("a,b,c\n1,2\n"))
	require.NoError(t, err)
	assert.True(t, got.Rows[0].Get("c").IsNull())

	_, err = Read(strings.NewReader("a\n1,2\n"))
	assert.Error(t, err)

	empty, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"trialType", "trial_type"},
		{"trial_type", "trial_type"},
		{"queries.click.state.target", "queries_click_state_target"},
		{"rt", "rt"},
		{"stateRewards", "state_rewards"},
		{"HTTPStatus", "http_status"},
		{"time_elapsed", "time_elapsed"},
		{"a:b/c", "a_b_c"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSnakeCase(tt.in))
		})
	}
}

func TestCSVRoundTripKeepsStringCells(t *testing.T) {
	tbl := model.NewTable("pid", "responses")
	for i, s := range []string{"1.50", "null", "None", "True", "", "free text"} {
		tbl.Append(model.Row{"pid": model.Int(i), "responses": model.String(s)})
	}

	var sb strings.Builder
	require.NoError(t, Write(&sb, tbl))
	got, err := Read(strings.NewReader(sb.String()))
	require.NoError(t, err)
	require.Equal(t, tbl.Len(), got.Len())

	for i, r := range got.Rows {
		want := tbl.Rows[i].Get("responses")
		assert.True(t, r.Get("responses").Equal(want), "row %d: got %q (%s), want %q", i, r.Get("responses").Text(), r.Get("responses").Kind(), want.Text())
	}
	assert.True(t, got.Rows[0].Get("pid").Equal(model.Int(0)), "numbers still read back as numbers")
}
