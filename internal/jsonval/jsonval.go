// Package jsonval converts between serialized JSON text and model.Value
// without losing object key order.
package jsonval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pavelanni/surveyprep/internal/model"
)

// ErrInvalidJSON is returned when text is not a JSON document.
var ErrInvalidJSON = errors.New("invalid JSON")

// Parse decodes a JSON document.
func Parse(text string) (model.Value, error) {
	if !gjson.Valid(text) {
		return model.Null(), fmt.Errorf("parse %q: %w", abbreviate(text), ErrInvalidJSON)
	}
	return FromResult(gjson.Parse(text)), nil
}

// FromResult converts a gjson result, keeping object keys in document order.
func FromResult(r gjson.Result) model.Value {
	switch r.Type {
	case gjson.Null:
		return model.Null()
	case gjson.False:
		return model.Bool(false)
	case gjson.True:
		return model.Bool(true)
	case gjson.Number:
		return model.Number(r.Float())
	case gjson.String:
		return model.String(r.Str)
	}
	if r.IsArray() {
		var items []model.Value
		r.ForEach(func(_, v gjson.Result) bool {
			items = append(items, FromResult(v))
			return true
		})
		return model.Sequence(items...)
	}
	if r.IsObject() {
		m := model.NewMap()
		r.ForEach(func(k, v gjson.Result) bool {
			m.Set(k.String(), FromResult(v))
			return true
		})
		return model.MapOf(m)
	}
	return model.Null()
}

// ParseCell interprets one delimited-file cell. Empty cells are Null,
// JSON documents are decoded and the capitalized True/False/None literals
// written by dataframe exports are accepted. Anything else is plain text.
func ParseCell(text string) model.Value {
	trimmed := strings.TrimSpace(text)
	switch trimmed {
	case "":
		return model.Null()
	case "True":
		return model.Bool(true)
	case "False":
		return model.Bool(false)
	case "None", "nan", "NaN":
		return model.Null()
	}
	if gjson.Valid(trimmed) {
		return FromResult(gjson.Parse(trimmed))
	}
	return model.String(text)
}

// Encode renders v as compact JSON. Map keys keep insertion order.
func Encode(v model.Value) string {
	var buf bytes.Buffer
	encode(&buf, v)
	return buf.String()
}

func encode(buf *bytes.Buffer, v model.Value) {
	switch v.Kind() {
	case model.KindNull:
		buf.WriteString("null")
	case model.KindString:
		s, _ := v.Str()
		writeString(buf, s)
	case model.KindNumber, model.KindBool:
		buf.WriteString(v.Text())
	case model.KindSequence:
		buf.WriteByte('[')
		for i, e := range v.Seq() {
			if i > 0 {
				buf.WriteByte(',')
			}
			encode(buf, e)
		}
		buf.WriteByte(']')
	case model.KindMap:
		m := v.Map()
		buf.WriteByte('{')
		for i, k := range m.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			e, _ := m.Get(k)
			encode(buf, e)
		}
		buf.WriteByte('}')
	}
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// CellText renders a value for a delimited file: scalars as text,
// containers as JSON so they can be read back with ParseCell. A string that
// ParseCell would read back as another scalar, such as "1.50", "null" or
// the empty string, is written as a quoted JSON string.
func CellText(v model.Value) string {
	switch v.Shape() {
	case model.ShapeSequence, model.ShapeMap:
		return Encode(v)
	}
	s, ok := v.Str()
	if !ok {
		return v.Text()
	}
	back := ParseCell(s)
	if text, isStr := back.Str(); (isStr && text == s) || back.Shape() != model.ShapeScalar {
		return s
	}
	return Encode(v)
}

func abbreviate(s string) string {
	const max = 40
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
