package processors

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jdkato/prose/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	processingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nlp_processing_duration_seconds",
			Help: "Time spent segmenting text and extracting candidates",
		},
		[]string{"operation"},
	)

	candidateCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nlp_candidates_extracted_total",
			Help: "Number of entity candidates extracted from sentences",
		},
	)
)

func init() {
	prometheus.MustRegister(processingDuration)
	prometheus.MustRegister(candidateCount)
}

// Sentence is one segmented unit of a text. Index starts at 1.
type Sentence struct {
	Index  int
	Text   string
	Tokens []string
}

// NLPProcessor segments text and extracts entity candidates using prose.
type NLPProcessor struct {
	logger    logrus.FieldLogger
	stopWords mapset.Set[string]
}

// NewNLPProcessor creates a new NLP processor
func NewNLPProcessor(logger logrus.FieldLogger) *NLPProcessor {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	return &NLPProcessor{
		logger: logger,
		stopWords: mapset.NewSet[string](
			"a", "an", "the", "this", "that", "these", "those", "it", "its",
			"we", "our", "they", "their", "study", "result", "results", "effect", "effects",
		),
	}
}

// Segment splits text into sentences with their tokens.
func (p *NLPProcessor) Segment(text string) ([]Sentence, error) {
	timer := prometheus.NewTimer(processingDuration.WithLabelValues("segment"))
	defer timer.ObserveDuration()

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		p.logger.WithError(err).Error("Failed to create prose document")
		return nil, err
	}

	var out []Sentence
	for _, sent := range doc.Sentences() {
		st := strings.TrimSpace(sent.Text)
		if st == "" {
			continue
		}
		tokDoc, err := prose.NewDocument(st,
			prose.WithSegmentation(false),
			prose.WithTagging(false),
			prose.WithExtraction(false))
		if err != nil {
			return nil, err
		}
		tokens := make([]string, 0, len(tokDoc.Tokens()))
		for _, tok := range tokDoc.Tokens() {
			tokens = append(tokens, tok.Text)
		}
		out = append(out, Sentence{Index: len(out) + 1, Text: st, Tokens: tokens})
	}
	return out, nil
}

// ExtractCandidates returns nouns, their singular forms, adjective/noun
// compounds and the trailing sub-phrases of those compounds.
func (p *NLPProcessor) ExtractCandidates(sentence string) mapset.Set[string] {
	timer := prometheus.NewTimer(processingDuration.WithLabelValues("extract"))
	defer timer.ObserveDuration()

	candidates := mapset.NewThreadUnsafeSet[string]()
	doc, err := prose.NewDocument(sentence, prose.WithSegmentation(false))
	if err != nil {
		p.logger.WithError(err).Warn("Candidate extraction failed")
		return candidates
	}

	tokens := doc.Tokens()
	var chain []prose.Token
	flush := func() {
		// a compound always ends in a noun
		for len(chain) > 0 && !isNoun(chain[len(chain)-1].Tag) {
			chain = chain[:len(chain)-1]
		}
		if len(chain) > 1 {
			for start := 0; start < len(chain)-1; start++ {
				words := make([]string, 0, len(chain)-start)
				for _, t := range chain[start:] {
					words = append(words, t.Text)
				}
				candidates.Add(strings.Join(words, " "))
				words[len(words)-1] = singular(chain[len(chain)-1])
				candidates.Add(strings.Join(words, " "))
			}
		}
		chain = chain[:0]
	}

	for _, tok := range tokens {
		switch {
		case isNoun(tok.Tag):
			if !p.stopWords.Contains(strings.ToLower(tok.Text)) {
				candidates.Add(tok.Text)
				candidates.Add(singular(tok))
			}
			chain = append(chain, tok)
		case tok.Tag == "JJ" || tok.Tag == "VBN" && len(chain) == 0:
			chain = append(chain, tok)
		default:
			flush()
		}
	}
	flush()

	for _, ent := range doc.Entities() {
		candidates.Add(ent.Text)
	}

	candidates.Remove("")
	candidateCount.Add(float64(candidates.Cardinality()))
	return candidates
}

func isNoun(tag string) bool {
	return strings.HasPrefix(tag, "NN")
}

// singular is a cheap lemma for plural nouns.
func singular(tok prose.Token) string {
	w := tok.Text
	if tok.Tag != "NNS" && tok.Tag != "NNPS" {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}
