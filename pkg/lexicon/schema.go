package lexicon

import (
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/athapong/litgraph/pkg/graph"
)

// Schema describes the layout of a delimited lexicon file by column name.
// ValueSeparator splits one cell into several lexical forms and defaults to "|".
type Schema struct {
	Source            string   `yaml:"source"`
	Delimiter         string   `yaml:"delimiter"`
	SkipHeader        bool     `yaml:"skip_header"`
	Columns           []string `yaml:"columns"`
	UIDField          string   `yaml:"uid_field"`
	LexicalFormFields []string `yaml:"lexical_form_fields"`
	SecondaryLabel    string   `yaml:"secondary_label"`
	ValueSeparator    string   `yaml:"value_separator"`

	comma   rune
	uidIdx  int
	formIdx []int
}

// LoadSchema reads and validates a schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes and validates a YAML schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the schema and resolves field names to column positions.
// Rows are never checked against names again after this.
func (s *Schema) Validate() error {
	if s.Source == "" {
		return fmt.Errorf("schema must name a source")
	}
	if s.Delimiter == "" {
		s.Delimiter = "\t"
	}
	if utf8.RuneCountInString(s.Delimiter) != 1 {
		return fmt.Errorf("delimiter %q must be a single character", s.Delimiter)
	}
	s.comma, _ = utf8.DecodeRuneInString(s.Delimiter)
	if s.ValueSeparator == "" {
		s.ValueSeparator = "|"
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema must list its columns")
	}

	index := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		if c == "" {
			return fmt.Errorf("column %d has no name", i+1)
		}
		if _, dup := index[c]; dup {
			return fmt.Errorf("column %q listed twice", c)
		}
		index[c] = i
	}

	idx, ok := index[s.UIDField]
	if !ok {
		return fmt.Errorf("uid_field %q is not a column", s.UIDField)
	}
	s.uidIdx = idx

	if len(s.LexicalFormFields) == 0 {
		return fmt.Errorf("schema must name at least one lexical form field")
	}
	s.formIdx = s.formIdx[:0]
	for _, f := range s.LexicalFormFields {
		idx, ok := index[f]
		if !ok {
			return fmt.Errorf("lexical form field %q is not a column", f)
		}
		s.formIdx = append(s.formIdx, idx)
	}

	if s.SecondaryLabel != "" && !graph.ValidName(s.SecondaryLabel) {
		return fmt.Errorf("secondary_label %q is not a valid label", s.SecondaryLabel)
	}
	return nil
}
