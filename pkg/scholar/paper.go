package scholar

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Paper is the metadata subset kept for a publication.
type Paper struct {
	DOI      string
	Title    string
	Year     string
	Authors  []string
	Abstract string
}

// AuthorList joins author names the way they are stored in partitions.
func (p *Paper) AuthorList() string {
	return strings.Join(p.Authors, ", ")
}

// ParsePaper reads a paper lookup response. Missing fields stay empty.
func ParsePaper(doi string, body []byte) *Paper {
	parsed := gjson.ParseBytes(body)
	p := &Paper{
		DOI:      NormalizeDOI(doi),
		Title:    parsed.Get("title").String(),
		Abstract: parsed.Get("abstract").String(),
	}
	if y := parsed.Get("year"); y.Exists() && y.Type == gjson.Number {
		p.Year = strconv.FormatInt(y.Int(), 10)
	}
	for _, name := range parsed.Get("authors.#.name").Array() {
		if n := strings.TrimSpace(name.String()); n != "" {
			p.Authors = append(p.Authors, n)
		}
	}
	if d := NormalizeDOI(parsed.Get("externalIds.DOI").String()); d != "" {
		p.DOI = d
	}
	return p
}

// NormalizeDOI trims resolver prefixes and lowercases a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			lower = lower[len(prefix):]
			break
		}
	}
	return strings.TrimSpace(lower)
}
