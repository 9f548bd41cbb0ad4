package linker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/graph"
	"github.com/athapong/litgraph/pkg/graph/metrics"
)

// Scope selects which lexical forms BuildIndex reads.
type Scope int

const (
	// ScopeFull reads every lexical form.
	ScopeFull Scope = iota
	// ScopeIncremental reads only forms not yet initialized.
	ScopeIncremental
)

func (s Scope) String() string {
	if s == ScopeIncremental {
		return "incremental"
	}
	return "full"
}

// State of a linking pass.
type State int

const (
	Uninitialized State = iota
	IndexBuilt
	Linked
)

// CandidateExtractor yields surface strings worth matching in a sentence.
type CandidateExtractor interface {
	ExtractCandidates(sentence string) mapset.Set[string]
}

// PropText is the sentence property candidates are extracted from.
const PropText = "text"

// Linker attaches sentences to known lexical forms.
type Linker struct {
	upserter  *graph.Upserter
	extractor CandidateExtractor
	logger    logrus.FieldLogger

	mu         sync.RWMutex
	exact      map[string]*graph.Node
	caseFolded map[string]*graph.Node
	state      atomic.Int32
}

// New creates a Linker with an empty index.
func New(upserter *graph.Upserter, extractor CandidateExtractor, logger logrus.FieldLogger) *Linker {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	return &Linker{
		upserter:   upserter,
		extractor:  extractor,
		logger:     logger,
		exact:      make(map[string]*graph.Node),
		caseFolded: make(map[string]*graph.Node),
	}
}

// State reports where the linker is in its pass.
func (l *Linker) State() State {
	return State(l.state.Load())
}

// IndexSize returns the number of exact entries.
func (l *Linker) IndexSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.exact)
}

// BuildIndex loads lexical forms into the index, marking them initialized
// in the same store call. An index that already holds entries is kept as
// is, so a second call in one process does nothing until Reset.
func (l *Linker) BuildIndex(ctx context.Context, scope Scope) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.exact) > 0 || len(l.caseFolded) > 0 {
		l.logger.WithFields(logrus.Fields{"scope": scope.String(), "entries": len(l.exact)}).
			Warn("Lexical index already built, skipping")
		return 0
	}

	nodes := l.upserter.ClaimNodes(ctx, graph.LabelLexicalForm, scope == ScopeIncremental)
	for _, n := range nodes {
		if n.UID == "" {
			continue
		}
		if _, ok := l.exact[n.UID]; !ok {
			l.exact[n.UID] = n
		}
		folded := strings.ToLower(n.UID)
		if _, ok := l.caseFolded[folded]; !ok {
			l.caseFolded[folded] = n
		}
	}
	l.state.Store(int32(IndexBuilt))
	metrics.LexicalIndexSize.Set(float64(len(l.exact)))

	l.logger.WithFields(logrus.Fields{
		"scope":       scope.String(),
		"exact":       len(l.exact),
		"case_folded": len(l.caseFolded),
	}).Info("Lexical index built")
	return len(nodes)
}

// Reset empties the index.
func (l *Linker) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exact = make(map[string]*graph.Node)
	l.caseFolded = make(map[string]*graph.Node)
	l.state.Store(int32(Uninitialized))
	metrics.LexicalIndexSize.Set(0)
}

// match resolves one candidate to a lexical form and the relationship type
// that should link it. It returns nil when nothing matches.
func (l *Linker) match(candidate string) (*graph.Node, string) {
	if n, ok := l.exact[uncapitalize(candidate)]; ok {
		return n, graph.RelAppearsIn
	}
	if startsUpper(candidate) {
		if n, ok := l.exact[candidate]; ok {
			return n, graph.RelAppearsIn
		}
	}
	if utf8.RuneCountInString(candidate) > 3 {
		if n, ok := l.caseFolded[strings.ToLower(candidate)]; ok {
			return n, graph.RelAppearsInLowercase
		}
	}
	return nil, ""
}

// LinkSentence links the sentence to every lexical form one of its
// candidates resolves to and returns the number of links it created.
func (l *Linker) LinkSentence(ctx context.Context, sentence *graph.Node) int {
	if sentence == nil {
		return 0
	}
	text := sentence.StringProp(PropText)
	if text == "" {
		return 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	linked := 0
	for c := range l.extractor.ExtractCandidates(text).Iter() {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		form, relType := l.match(c)
		if form == nil {
			continue
		}
		if _, created := l.upserter.EnsureRelationship(ctx, form, sentence, relType); created {
			linked++
			metrics.SentenceLinks.WithLabelValues(relType).Inc()
		}
	}
	if linked > 0 {
		l.state.CompareAndSwap(int32(IndexBuilt), int32(Linked))
	}
	return linked
}

// RelinkSentence drops the sentence's lexical links and links it again.
func (l *Linker) RelinkSentence(ctx context.Context, sentence *graph.Node) int {
	if sentence == nil {
		return 0
	}
	removed := l.upserter.DeleteRelationships(ctx, sentence, graph.Incoming, graph.RelAppearsIn, graph.RelAppearsInLowercase)
	l.logger.WithFields(logrus.Fields{"sentence": sentence.UID, "removed": removed}).Debug("Sentence links cleared")
	return l.LinkSentence(ctx, sentence)
}

// MaterializeCooccurrence rewrites COOCCURS_WITH between forms sharing a sentence.
func (l *Linker) MaterializeCooccurrence(ctx context.Context) int64 {
	n := l.upserter.Derive(ctx, graph.CooccurrenceRule)
	l.logger.WithField("created", n).Info("Cooccurrence materialized")
	return n
}

// MaterializeSynonymy rewrites SYNONYM_WITH between forms of one non-trait entity.
func (l *Linker) MaterializeSynonymy(ctx context.Context) int64 {
	n := l.upserter.Derive(ctx, graph.SynonymyRule)
	l.logger.WithField("created", n).Info("Synonymy materialized")
	return n
}

func uncapitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}
