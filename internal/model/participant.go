package model

// Participant is one row of the experiment server's participants table,
// columns in table order.
type Participant struct {
	Fields *Map
}

func (p Participant) field(name string) string {
	v, _ := p.Fields.Get(name)
	return v.Text()
}

func (p Participant) WorkerID() string     { return p.field("workerid") }
func (p Participant) AssignmentID() string { return p.field("assignmentid") }

// DataString returns the serialized experiment payload and whether one was
// recorded.
func (p Participant) DataString() (string, bool) {
	v, ok := p.Fields.Get("datastring")
	if !ok || v.IsNull() {
		return "", false
	}
	s := v.Text()
	return s, s != ""
}
