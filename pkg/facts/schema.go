package facts

import (
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Schema names the columns of a delimited file of extracted facts.
// Subject, relation and object are required; the other fields are optional.
type Schema struct {
	Source           string   `yaml:"source"`
	Delimiter        string   `yaml:"delimiter"`
	SkipHeader       bool     `yaml:"skip_header"`
	Columns          []string `yaml:"columns"`
	SubjectField     string   `yaml:"subject_field"`
	RelationField    string   `yaml:"relation_field"`
	ObjectField      string   `yaml:"object_field"`
	PolarityField    string   `yaml:"polarity_field"`
	ModalityField    string   `yaml:"modality_field"`
	AttributionField string   `yaml:"attribution_field"`
	SentenceField    string   `yaml:"sentence_field"`

	comma          rune
	subjectIdx     int
	relationIdx    int
	objectIdx      int
	polarityIdx    int
	modalityIdx    int
	attributionIdx int
	sentenceIdx    int
}

// DefaultSchema is the layout written by the open information extraction
// step: subject,relation,object,polarity,modality,attribution,sentence,sentence_uid.
func DefaultSchema() *Schema {
	s := &Schema{
		Source:           "openie",
		Delimiter:        ",",
		SkipHeader:       true,
		Columns:          []string{"subject", "relation", "object", "polarity", "modality", "attribution", "sentence", "sentence_uid"},
		SubjectField:     "subject",
		RelationField:    "relation",
		ObjectField:      "object",
		PolarityField:    "polarity",
		ModalityField:    "modality",
		AttributionField: "attribution",
		SentenceField:    "sentence_uid",
	}
	if err := s.Validate(); err != nil {
		panic(err)
	}
	return s
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
// An optional field left empty resolves to -1.
func (s *Schema) Validate() error {
	if s.Source == "" {
		return fmt.Errorf("schema must name a source")
	}
	if s.Delimiter == "" {
		s.Delimiter = ","
	}
	if utf8.RuneCountInString(s.Delimiter) != 1 {
		return fmt.Errorf("delimiter %q must be a single character", s.Delimiter)
	}
	s.comma, _ = utf8.DecodeRuneInString(s.Delimiter)
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

	resolve := func(key, field string, required bool) (int, error) {
		if field == "" {
			if required {
				return -1, fmt.Errorf("%s is required", key)
			}
			return -1, nil
		}
		idx, ok := index[field]
		if !ok {
			return -1, fmt.Errorf("%s %q is not a column", key, field)
		}
		return idx, nil
	}

	var err error
	if s.subjectIdx, err = resolve("subject_field", s.SubjectField, true); err != nil {
		return err
	}
	if s.relationIdx, err = resolve("relation_field", s.RelationField, true); err != nil {
		return err
	}
	if s.objectIdx, err = resolve("object_field", s.ObjectField, true); err != nil {
		return err
	}
	if s.polarityIdx, err = resolve("polarity_field", s.PolarityField, false); err != nil {
		return err
	}
	if s.modalityIdx, err = resolve("modality_field", s.ModalityField, false); err != nil {
		return err
	}
	if s.attributionIdx, err = resolve("attribution_field", s.AttributionField, false); err != nil {
		return err
	}
	if s.sentenceIdx, err = resolve("sentence_field", s.SentenceField, false); err != nil {
		return err
	}
	return nil
}
