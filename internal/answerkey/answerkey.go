// Package answerkey loads answer keys and scoring settings from YAML or JSON
// files. Mapping order in the file is preserved.
package answerkey

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/surveyprep/internal/jsonval"
	"github.com/pavelanni/surveyprep/internal/model"
	"github.com/pavelanni/surveyprep/internal/questionnaire"
)

// ErrUnsupportedNode is returned for YAML constructs with no Value form.
var ErrUnsupportedNode = errors.New("unsupported yaml node")

// Load reads an answer key file. Files ending in .json are decoded as JSON,
// everything else as YAML.
func Load(fs afero.Fs, path string) (questionnaire.AnswerKey, error) {
	v, err := LoadValue(fs, path)
	if err != nil {
		return questionnaire.AnswerKey{}, err
	}
	if v.Shape() != model.ShapeMap {
		return questionnaire.AnswerKey{}, fmt.Errorf("answer key %s: top level is a %s, want a mapping", path, v.Kind())
	}
	return questionnaire.NewAnswerKey(v), nil
}

// LoadValue reads a YAML or JSON file into a Value.
func LoadValue(fs afero.Fs, path string) (model.Value, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return model.Null(), fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		v, err := jsonval.Parse(string(data))
		if err != nil {
			return model.Null(), fmt.Errorf("decode %s: %w", path, err)
		}
		return v, nil
	}
	v, err := Decode(data)
	if err != nil {
		return model.Null(), fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

// Decode parses a YAML document into a Value.
func Decode(data []byte) (model.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.Null(), err
	}
	if doc.Kind == 0 {
		return model.Null(), nil
	}
	return FromNode(&doc)
}

// FromNode converts a YAML node, keeping mapping keys in document order.
func FromNode(n *yaml.Node) (model.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return model.Null(), nil
		}
		return FromNode(n.Content[0])
	case yaml.AliasNode:
		return FromNode(n.Alias)
	case yaml.SequenceNode:
		items := make([]model.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromNode(c)
			if err != nil {
				return model.Null(), err
			}
			items = append(items, v)
		}
		return model.Sequence(items...), nil
	case yaml.MappingNode:
		m := model.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return model.Null(), fmt.Errorf("line %d: non-scalar key: %w", k.Line, ErrUnsupportedNode)
			}
			val, err := FromNode(v)
			if err != nil {
				return model.Null(), err
			}
			m.Set(k.Value, val)
		}
		return model.MapOf(m), nil
	case yaml.ScalarNode:
		return scalar(n)
	}
	return model.Null(), fmt.Errorf("line %d: kind %d: %w", n.Line, n.Kind, ErrUnsupportedNode)
}

func scalar(n *yaml.Node) (model.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return model.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return model.Null(), err
		}
		return model.Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			// Ints such as 0x1F decode only into integer targets.
			i, ierr := strconv.ParseInt(n.Value, 0, 64)
			if ierr != nil {
				return model.Null(), err
			}
			f = float64(i)
		}
		return model.Number(f), nil
	default:
		return model.String(n.Value), nil
	}
}
