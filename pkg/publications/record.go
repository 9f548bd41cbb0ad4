package publications

import (
	"bytes"
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/athapong/litgraph/pkg/columnar"
	"github.com/athapong/litgraph/pkg/graph/processors"
)

// Provenance records why an identifier entered the frontier.
type Provenance int

const (
	Seed             Provenance = 1
	RandomlySampled  Provenance = 2
	ReferenceDerived Provenance = 3
	CitationDerived  Provenance = 4
)

func (p Provenance) String() string {
	switch p {
	case Seed:
		return "seed"
	case RandomlySampled:
		return "randomly_sampled"
	case ReferenceDerived:
		return "reference"
	case CitationDerived:
		return "citation"
	default:
		return "unknown"
	}
}

// Record is one row of the publication table.
type Record struct {
	ID       int64
	Part     int
	DOI      string
	Source   Provenance
	Title    string
	Year     string
	Authors  string
	Abstract string
}

// Columns is the table layout; partition objects carry fields in this order.
var Columns = []columnar.Column{
	{Name: "id", Type: "INTEGER"},
	{Name: "part", Type: "INTEGER"},
	{Name: "doi", Type: "TEXT"},
	{Name: "source", Type: "INTEGER"},
	{Name: "title", Type: "TEXT"},
	{Name: "year", Type: "INTEGER"},
	{Name: "authors", Type: "TEXT"},
	{Name: "abstract", Type: "TEXT"},
}

const selectColumns = "id, part, doi, source, title, year, authors, abstract"

var unsafeChars = regexp.MustCompile(`["\t\r\n]+`)

// SanitizeText replaces characters that would break a partition row.
func SanitizeText(s string) string {
	return strings.TrimSpace(unsafeChars.ReplaceAllString(s, " "))
}

func (r *Record) sanitize() {
	r.Title = SanitizeText(r.Title)
	r.Year = SanitizeText(r.Year)
	r.Authors = SanitizeText(r.Authors)
	r.Abstract = SanitizeText(processors.StripMarkup(r.Abstract))
}

func (r *Record) fields() []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		strconv.Itoa(r.Part),
		r.DOI,
		strconv.Itoa(int(r.Source)),
		r.Title,
		r.Year,
		r.Authors,
		r.Abstract,
	}
}

// encodePartition renders records as a tab-separated object body.
func encodePartition(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	for i := range records {
		if err := w.Write(records[i].fields()); err != nil {
			return nil, errors.Wrapf(err, "encode record %d", records[i].ID)
		}
	}
	w.Flush()
	return buf.Bytes(), errors.Wrap(w.Error(), "encode partition")
}

func recordFromRow(row columnar.Row) (Record, error) {
	if len(row) != len(Columns) {
		return Record{}, errors.Errorf("expected %d columns, got %d", len(Columns), len(row))
	}
	id, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Record{}, errors.Wrapf(err, "parse id %q", row[0])
	}
	part, err := strconv.Atoi(row[1])
	if err != nil {
		return Record{}, errors.Wrapf(err, "parse part %q", row[1])
	}
	source, _ := strconv.Atoi(row[3])
	return Record{
		ID:       id,
		Part:     part,
		DOI:      row[2],
		Source:   Provenance(source),
		Title:    row[4],
		Year:     row[5],
		Authors:  row[6],
		Abstract: row[7],
	}, nil
}
