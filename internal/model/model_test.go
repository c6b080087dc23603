package model

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestShape(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want Shape
	}{
		{"null", Null(), ShapeScalar},
		{"string", String("a"), ShapeScalar},
		{"number", Number(1), ShapeScalar},
		{"bool", Bool(true), ShapeScalar},
		{"sequence", Strings("a"), ShapeSequence},
		{"empty sequence", Sequence(), ShapeSequence},
		{"map", MapOf(nil), ShapeMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.Shape(); got != tt.want {
				t.Errorf("Shape() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMapOrder(t *testing.T) {
	m := NewMap()
	m.Set("b", Int(1))
	m.Set("a", Int(2))
	m.Set("c", Int(3))
	m.Set("b", Int(4))
	m.Delete("a")

	if diff := cmp.Diff([]string{"b", "c"}, m.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	v, _ := m.Get("b")
	if n, _ := v.Num(); n != 4 {
		t.Errorf("expected replaced value 4, got %v", n)
	}
}

func TestEqual(t *testing.T) {
	a := NewMap()
	a.Set("x", Int(1))
	a.Set("y", Strings("p", "q"))
	b := NewMap()
	b.Set("y", Strings("p", "q"))
	b.Set("x", Number(1.0))

	if !MapOf(a).Equal(MapOf(b)) {
		t.Error("maps with same content in different order should be equal")
	}
	if String("1").Equal(Int(1)) {
		t.Error("string and number must not be equal")
	}
	if !Null().Equal(Null()) {
		t.Error("null should equal null")
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		v      Value
		want   float64
		wantOK bool
	}{
		{Number(2.5), 2.5, true},
		{Bool(true), 1, true},
		{String(" 3 "), 3, true},
		{String("three"), 0, false},
		{Null(), 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.v.Float()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Float(%v) = (%v, %v), want (%v, %v)", tt.v.Text(), got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestTableColumns(t *testing.T) {
	tbl := NewTable("pid")
	m := NewMap()
	m.Set("pid", Int(0))
	m.Set("trial_type", String("survey-text"))
	m.Set("rt", Int(1200))
	tbl.AppendMap(m)

	tbl.DropColumns("rt")
	tbl.RenameColumns(func(c string) string {
		if c == "trial_type" {
			return "type"
		}
		return c
	})

	if diff := cmp.Diff([]string{"pid", "type"}, tbl.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if _, ok := tbl.Rows[0]["rt"]; ok {
		t.Error("dropped column still present in row")
	}
	if s, _ := tbl.Rows[0].Get("type").Str(); s != "survey-text" {
		t.Errorf("renamed cell lost, got %q", s)
	}
}

func TestTableUnique(t *testing.T) {
	tbl := NewTable("name")
	for _, n := range []string{"quiz-b", "quiz-a", "quiz-b"} {
		tbl.Append(Row{"name": String(n)})
	}
	tbl.Append(Row{"name": Null()})

	if diff := cmp.Diff([]string{"quiz-a", "quiz-b"}, tbl.Unique("name")); diff != "" {
		t.Errorf("unique mismatch (-want +got):\n%s", diff)
	}
}

func TestParticipantDataString(t *testing.T) {
	f := NewMap()
	f.Set("workerid", String("W1"))
	f.Set("datastring", Null())
	p := Participant{Fields: f}
	if _, ok := p.DataString(); ok {
		t.Error("null datastring should be reported missing")
	}
	if p.WorkerID() != "W1" {
		t.Errorf("WorkerID = %q", p.WorkerID())
	}
}

func TestZeroMapSet(t *testing.T) {
	var m Map
	m.Set("b", Int(1))
	m.Set("a", Int(2))
	m.Set("b", Int(3))

	if diff := cmp.Diff([]string{"b", "a"}, m.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, _ := m.Get("b"); !v.Equal(Int(3)) {
		t.Errorf("b = %v, want 3", v)
	}
}

func TestTableExpandMap(t *testing.T) {
	params := func(pairs ...any) Value {
		m := NewMap()
		for i := 0; i < len(pairs); i += 2 {
			m.Set(pairs[i].(string), pairs[i+1].(Value))
		}
		return MapOf(m)
	}
	tbl := NewTable("pid", "params")
	tbl.Append(Row{"pid": Int(0), "params": params("stim", String("a.png"), "block", Int(1))})
	tbl.Append(Row{"pid": Int(1), "params": params("block", Int(2))})
	tbl.Append(Row{"pid": Int(2), "params": String("none")})

	if err := tbl.ExpandMap("params", Null()); err != nil {
		t.Fatalf("ExpandMap: %v", err)
	}
	if diff := cmp.Diff([]string{"pid", "params", "block", "stim"}, tbl.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	var got [][]string
	for _, r := range tbl.Rows {
		got = append(got, []string{r.Get("block").Text(), r.Get("stim").Text()})
	}
	want := [][]string{{"1", "a.png"}, {"2", ""}, {"", ""}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
	if !tbl.Rows[1].Get("stim").IsNull() {
		t.Error("missing key should be filled with Null")
	}
}

func TestTableExpandMapCollision(t *testing.T) {
	m := NewMap()
	m.Set("pid", Int(7))
	m.Set("extra", Int(1))
	tbl := NewTable("pid", "params")
	tbl.Append(Row{"pid": Int(0), "params": MapOf(m)})

	err := tbl.ExpandMap("params", Null())
	if !errors.Is(err, ErrColumnExists) {
		t.Fatalf("expected ErrColumnExists, got %v", err)
	}
	if diff := cmp.Diff([]string{"pid", "params"}, tbl.Columns); diff != "" {
		t.Errorf("columns changed on error (-want +got):\n%s", diff)
	}
	if !tbl.Rows[0].Get("pid").Equal(Int(0)) {
		t.Error("existing cell overwritten")
	}
}
