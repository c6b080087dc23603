package answerkey

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/surveyprep/internal/questionnaire"
)

// Settings configures one scoring run.
type Settings struct {
	Family           string             `yaml:"family"`
	KeyColumn        string             `yaml:"key_column"`
	GroupColumn      string             `yaml:"group_column"`
	CorrectColumn    string             `yaml:"correct_column"`
	ReverseCoded     *bool              `yaml:"reverse_coded"`
	OpenEnded        *bool              `yaml:"open_ended"`
	DefaultOpenEnded map[string]float64 `yaml:"default_open_ended"`
	OpenEndedScore   *float64           `yaml:"open_ended_score"`
	QuizNames        []QuizName         `yaml:"quiz_names"`
	PassingScore     LimitSpec          `yaml:"passing_score"`
	MaxAttempts      LimitSpec          `yaml:"max_attempts"`
	Identifying      []string           `yaml:"identifying_columns"`
}

// QuizName maps an internal node id glob to a quiz name.
type QuizName struct {
	Pattern string `yaml:"pattern"`
	Name    string `yaml:"name"`
}

// LimitSpec is a quiz limit written either as a number or as a mapping
// from quiz name to number.
type LimitSpec struct {
	questionnaire.Limit
}

func (l *LimitSpec) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := n.Decode(&v); err != nil {
			return fmt.Errorf("line %d: limit: %w", n.Line, err)
		}
		l.Limit = questionnaire.Uniform(v)
		return nil
	case yaml.MappingNode:
		per := make(map[string]float64)
		if err := n.Decode(&per); err != nil {
			return fmt.Errorf("line %d: per-quiz limit: %w", n.Line, err)
		}
		l.Limit = questionnaire.Limit{PerQuiz: per}
		return nil
	}
	return fmt.Errorf("line %d: limit must be a number or a mapping", n.Line)
}

// LoadSettings reads a YAML settings file.
func LoadSettings(fs afero.Fs, path string) (Settings, error) {
	var s Settings
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return s, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

func flag(b *bool) questionnaire.Flag {
	switch {
	case b == nil:
		return questionnaire.FlagUnset
	case *b:
		return questionnaire.FlagTrue
	default:
		return questionnaire.FlagFalse
	}
}

func (s Settings) GenericOptions() questionnaire.GenericOptions {
	return questionnaire.GenericOptions{
		CorrectColumn:    s.CorrectColumn,
		GroupColumn:      s.GroupColumn,
		KeyColumn:        s.KeyColumn,
		ReverseCoded:     flag(s.ReverseCoded),
		OpenEnded:        flag(s.OpenEnded),
		DefaultOpenEnded: s.DefaultOpenEnded,
		OpenEndedScore:   s.OpenEndedScore,
	}
}

func (s Settings) TaskOptions() questionnaire.TaskOptions {
	return questionnaire.TaskOptions{
		CorrectColumn: s.CorrectColumn,
		GroupColumn:   s.GroupColumn,
	}
}

func (s Settings) GateOptions() questionnaire.GateOptions {
	return questionnaire.GateOptions{
		PassingScore:       s.PassingScore.Limit,
		MaxAttempts:        s.MaxAttempts.Limit,
		IdentifyingColumns: s.Identifying,
	}
}

// NamePatterns returns the quiz-name globs in file order.
func (s Settings) NamePatterns() []questionnaire.NamePattern {
	out := make([]questionnaire.NamePattern, len(s.QuizNames))
	for i, q := range s.QuizNames {
		out[i] = questionnaire.NamePattern{Glob: q.Pattern, Name: q.Name}
	}
	return out
}
