package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/athapong/litgraph/pkg/frontier"
	"github.com/athapong/litgraph/pkg/graph"
	"github.com/athapong/litgraph/pkg/graph/metrics"
	"github.com/athapong/litgraph/pkg/graph/processors"
	"github.com/athapong/litgraph/pkg/linker"
	"github.com/athapong/litgraph/pkg/publications"
	"github.com/athapong/litgraph/pkg/scholar"
)

var unitDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "ingest_unit_duration_seconds",
		Help: "Time spent on one unit of ingestion work",
	},
	[]string{"phase"},
)

func init() {
	prometheus.MustRegister(unitDuration)
}

// Publication node properties.
const (
	PropSQLID    = "sqlId"
	PropDOI      = "doi"
	PropTitle    = "title"
	PropYear     = "year"
	PropAuthors  = "authors"
	PropAbstract = "paperAbstract"
)

// Sentence node properties.
const (
	PropIndex  = "index"
	PropTokens = "tokens"
)

// MetadataSource looks up one publication. *scholar.Client satisfies it.
type MetadataSource interface {
	Paper(ctx context.Context, doi string) (*scholar.Paper, error)
}

// Segmenter splits an abstract into sentences. *processors.NLPProcessor satisfies it.
type Segmenter interface {
	Segment(text string) ([]processors.Sentence, error)
}

// Options selects what one run does.
type Options struct {
	Seeds         []string
	MaxRefsPerPub int
	MaxCitsPerPub int
	Scope         linker.Scope

	// IntegrateOnly skips discovery and pushes partitions From..To into the graph.
	IntegrateOnly bool
	From, To      int
}

// Summary is reported at the end of every run, including runs with nothing to commit.
type Summary struct {
	RunID         string
	Candidates    int
	Fetched       int
	FetchFailed   int
	Buffered      int
	Partitions    []int
	Publications  int
	Sentences     int
	Links         int
	Cooccurrences int64
	Synonyms      int64
	NodeDelta     map[string]int64
	EdgeDelta     map[string]int64
}

// Orchestrator sequences discovery, partition commit and graph integration.
type Orchestrator struct {
	store     *publications.Store
	expander  *frontier.Expander
	papers    MetadataSource
	upserter  *graph.Upserter
	linker    *linker.Linker
	segmenter Segmenter
	workers   int
	logger    logrus.FieldLogger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds how many units run at once. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		o.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New wires an Orchestrator from its collaborators.
func New(store *publications.Store, expander *frontier.Expander, papers MetadataSource,
	upserter *graph.Upserter, lk *linker.Linker, segmenter Segmenter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		expander:  expander,
		papers:    papers,
		upserter:  upserter,
		linker:    lk,
		segmenter: segmenter,
		workers:   1,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		o.logger = l
	}
	return o
}

var countedLabels = []string{graph.LabelPublication, graph.LabelSentence, graph.LabelLexicalForm, graph.LabelNamedEntity}

var countedTypes = []string{
	graph.RelPartOfSentence, graph.RelAppearsIn, graph.RelAppearsInLowercase,
	graph.RelHasLexicalForm, graph.RelCooccursWith, graph.RelSynonymWith,
}

type counts struct {
	nodes map[string]int64
	edges map[string]int64
}

func (o *Orchestrator) count(ctx context.Context) counts {
	c := counts{nodes: make(map[string]int64), edges: make(map[string]int64)}
	for _, l := range countedLabels {
		c.nodes[l] = o.upserter.CountByLabel(ctx, l)
	}
	for _, t := range countedTypes {
		c.edges[t] = o.upserter.CountByType(ctx, t)
	}
	return c
}

// pool runs units with bounded concurrency. Units log their own failures
// and always return nil so one failure never cancels its siblings.
type pool struct {
	g     errgroup.Group
	phase string
}

func (o *Orchestrator) newPool(phase string) *pool {
	p := &pool{phase: phase}
	p.g.SetLimit(o.workers)
	return p
}

func (p *pool) submit(unit func() bool) {
	metrics.PipelineQueueLength.Inc()
	p.g.Go(func() error {
		defer metrics.PipelineQueueLength.Dec()
		timer := prometheus.NewTimer(unitDuration.WithLabelValues(p.phase))
		ok := unit()
		timer.ObserveDuration()

		outcome := "success"
		if !ok {
			outcome = "skipped"
		}
		metrics.PipelineUnits.WithLabelValues(p.phase, outcome).Inc()
		return nil
	})
}

func (p *pool) wait() {
	_ = p.g.Wait()
}

// Run executes one pipeline run. Only setup failures are returned; the
// summary is valid whenever it is non-nil.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	log := o.logger.WithField("run_id", sum.RunID)
	before := o.count(ctx)
	defer func() {
		o.finish(ctx, log, sum, before)
	}()

	if err := o.store.LoadState(ctx); err != nil {
		return sum, fmt.Errorf("loading publication state: %w", err)
	}

	if opts.IntegrateOnly {
		if opts.To < opts.From {
			return sum, fmt.Errorf("invalid partition range %d..%d", opts.From, opts.To)
		}
		last := o.store.State().LastPartition
		for part := opts.From; part <= opts.To; part++ {
			if part > last {
				log.WithField("partition", part).Warn("Partition not committed, stopping")
				break
			}
			if err := o.integrate(ctx, log, part, opts.Scope, sum); err != nil {
				return sum, err
			}
		}
		return sum, nil
	}

	seeds := make([]string, 0, len(opts.Seeds))
	for _, s := range opts.Seeds {
		if d := scholar.NormalizeDOI(s); d != "" {
			seeds = append(seeds, d)
		}
	}
	candidates := o.expander.Expand(ctx, seeds, o.store.Known(), opts.MaxRefsPerPub, opts.MaxCitsPerPub)
	sum.Candidates = len(candidates)
	log.WithField("candidates", len(candidates)).Info("Frontier expanded")

	o.fetch(ctx, log, candidates, sum)

	part, err := o.store.CommitPartition(ctx)
	if err != nil {
		return sum, fmt.Errorf("committing partition: %w", err)
	}
	if part == publications.NoPartition {
		log.Info("No new publications, nothing to integrate")
		return sum, nil
	}
	metrics.PartitionsCommitted.Inc()
	return sum, o.integrate(ctx, log, part, opts.Scope, sum)
}

// IntegratePartition pushes one committed partition into the graph.
func (o *Orchestrator) IntegratePartition(ctx context.Context, part int, scope linker.Scope) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	log := o.logger.WithField("run_id", sum.RunID)
	before := o.count(ctx)
	err := o.integrate(ctx, log, part, scope, sum)
	o.finish(ctx, log, sum, before)
	return sum, err
}

// Materialize rederives cooccurrence and synonymy over the whole graph.
func (o *Orchestrator) Materialize(ctx context.Context) *Summary {
	sum := &Summary{RunID: uuid.NewString()}
	log := o.logger.WithField("run_id", sum.RunID)
	before := o.count(ctx)
	sum.Cooccurrences = o.linker.MaterializeCooccurrence(ctx)
	sum.Synonyms = o.linker.MaterializeSynonymy(ctx)
	o.finish(ctx, log, sum, before)
	return sum
}

// Relink rebuilds the lexical index from every LEXICAL_FORM node and relinks
// the sentences of partitions from..to, then rederives the graph.
func (o *Orchestrator) Relink(ctx context.Context, from, to int) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	log := o.logger.WithField("run_id", sum.RunID)
	before := o.count(ctx)
	defer func() {
		o.finish(ctx, log, sum, before)
	}()

	if to < from {
		return sum, fmt.Errorf("invalid partition range %d..%d", from, to)
	}
	if err := o.store.LoadState(ctx); err != nil {
		return sum, fmt.Errorf("loading publication state: %w", err)
	}

	o.linker.Reset()
	o.linker.BuildIndex(ctx, linker.ScopeFull)

	last := o.store.State().LastPartition
	if err := o.walkSentences(ctx, log, "relink", from, min(to, last), sum, o.linker.RelinkSentence); err != nil {
		return sum, err
	}

	sum.Cooccurrences = o.linker.MaterializeCooccurrence(ctx)
	sum.Synonyms = o.linker.MaterializeSynonymy(ctx)
	return sum, nil
}

// LinkNewForms indexes only the lexical forms not yet initialized and links
// them to every sentence already in the graph. Existing links are kept.
func (o *Orchestrator) LinkNewForms(ctx context.Context) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString()}
	log := o.logger.WithField("run_id", sum.RunID)
	before := o.count(ctx)
	defer func() {
		o.finish(ctx, log, sum, before)
	}()

	if err := o.store.LoadState(ctx); err != nil {
		return sum, fmt.Errorf("loading publication state: %w", err)
	}

	o.linker.Reset()
	forms := o.linker.BuildIndex(ctx, linker.ScopeIncremental)
	log.WithField("forms", forms).Info("New lexical forms indexed")
	if forms == 0 {
		return sum, nil
	}

	if err := o.walkSentences(ctx, log, "link_new_forms", 0, o.store.State().LastPartition, sum, o.linker.LinkSentence); err != nil {
		return sum, err
	}

	sum.Cooccurrences = o.linker.MaterializeCooccurrence(ctx)
	sum.Synonyms = o.linker.MaterializeSynonymy(ctx)
	return sum, nil
}

// walkSentences applies link to every sentence of the publications in
// partitions from..to. Sentence indexes start at 1 and have no gaps.
func (o *Orchestrator) walkSentences(ctx context.Context, log logrus.FieldLogger, phase string, from, to int,
	sum *Summary, link func(context.Context, *graph.Node) int) error {
	var mu sync.Mutex
	for part := from; part <= to; part++ {
		records, err := o.store.QueryByPartition(ctx, part)
		if err != nil {
			return fmt.Errorf("reading partition %d: %w", part, err)
		}
		sum.Partitions = append(sum.Partitions, part)

		p := o.newPool(phase)
		for _, rec := range records {
			p.submit(func() bool {
				sentences, links := 0, 0
				for i := 1; ; i++ {
					s := o.upserter.FindNode(ctx, graph.LabelSentence, sentenceUID(rec.DOI, i))
					if s == nil {
						break
					}
					sentences++
					links += link(ctx, s)
				}
				mu.Lock()
				sum.Sentences += sentences
				sum.Links += links
				mu.Unlock()
				return sentences > 0
			})
		}
		p.wait()
		log.WithFields(logrus.Fields{"partition": part, "phase": phase}).Info("Partition sentences linked")
	}
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, log logrus.FieldLogger, candidates []frontier.Candidate, sum *Summary) {
	var mu sync.Mutex
	p := o.newPool("fetch")
	for _, c := range candidates {
		p.submit(func() bool {
			paper, err := o.papers.Paper(ctx, c.DOI)
			if err != nil {
				log.WithError(err).WithField("doi", c.DOI).Warn("Failed to fetch metadata, skipping")
				mu.Lock()
				sum.FetchFailed++
				mu.Unlock()
				return false
			}
			buffered := o.store.Buffer(publications.Record{
				DOI:      c.DOI,
				Source:   c.Source,
				Title:    paper.Title,
				Year:     paper.Year,
				Authors:  paper.AuthorList(),
				Abstract: paper.Abstract,
			})
			mu.Lock()
			sum.Fetched++
			if buffered {
				sum.Buffered++
			}
			mu.Unlock()
			return buffered
		})
	}
	p.wait()
	log.WithFields(logrus.Fields{"fetched": sum.Fetched, "failed": sum.FetchFailed, "buffered": sum.Buffered}).
		Info("Metadata fetched")
}

type pubUnit struct {
	rec  publications.Record
	node *graph.Node
}

func (o *Orchestrator) integrate(ctx context.Context, log logrus.FieldLogger, part int, scope linker.Scope, sum *Summary) error {
	log = log.WithField("partition", part)
	records, err := o.store.QueryByPartition(ctx, part)
	if err != nil {
		return fmt.Errorf("reading partition %d: %w", part, err)
	}
	sum.Partitions = append(sum.Partitions, part)

	var (
		mu   sync.Mutex
		pubs []pubUnit
	)
	p := o.newPool("publication")
	for _, rec := range records {
		if strings.TrimSpace(rec.Abstract) == "" {
			log.WithField("doi", rec.DOI).Debug("Publication has no abstract, skipping")
			continue
		}
		p.submit(func() bool {
			n := o.publicationNode(ctx, rec)
			if n == nil {
				return false
			}
			mu.Lock()
			pubs = append(pubs, pubUnit{rec: rec, node: n})
			mu.Unlock()
			return true
		})
	}
	p.wait()
	sum.Publications += len(pubs)

	o.linker.BuildIndex(ctx, scope)

	var sentences []*graph.Node
	p = o.newPool("segment")
	for _, pub := range pubs {
		p.submit(func() bool {
			created := o.sentenceNodes(ctx, log, pub)
			if created == nil {
				return false
			}
			mu.Lock()
			sentences = append(sentences, created...)
			mu.Unlock()
			return true
		})
	}
	p.wait()
	sum.Sentences += len(sentences)

	links := 0
	p = o.newPool("link")
	for _, s := range sentences {
		p.submit(func() bool {
			n := o.linker.LinkSentence(ctx, s)
			mu.Lock()
			links += n
			mu.Unlock()
			return n > 0
		})
	}
	p.wait()
	sum.Links += links

	sum.Cooccurrences = o.linker.MaterializeCooccurrence(ctx)
	sum.Synonyms = o.linker.MaterializeSynonymy(ctx)

	log.WithFields(logrus.Fields{
		"publications": len(pubs),
		"sentences":    len(sentences),
		"links":        links,
	}).Info("Partition integrated")
	return nil
}

func (o *Orchestrator) publicationNode(ctx context.Context, rec publications.Record) *graph.Node {
	n := o.upserter.UpsertNode(ctx, graph.LabelPublication, rec.DOI)
	if n == nil {
		return nil
	}
	props := []struct {
		key   string
		value any
	}{
		{PropSQLID, rec.ID},
		{PropDOI, rec.DOI},
		{PropTitle, rec.Title},
		{PropYear, rec.Year},
		{PropAuthors, rec.Authors},
		{PropAbstract, rec.Abstract},
	}
	for _, p := range props {
		o.upserter.SetProperty(ctx, n, p.key, p.value)
	}
	return n
}

func sentenceUID(doi string, index int) string {
	return doi + "/" + strconv.Itoa(index)
}

// sentenceNodes creates the sentence nodes of one publication. A publication
// whose first sentence already exists was integrated before and is skipped.
func (o *Orchestrator) sentenceNodes(ctx context.Context, log logrus.FieldLogger, pub pubUnit) []*graph.Node {
	sents, err := o.segmenter.Segment(pub.rec.Abstract)
	if err != nil {
		log.WithError(err).WithField("doi", pub.rec.DOI).Warn("Failed to segment abstract, skipping")
		return nil
	}
	if len(sents) == 0 {
		return nil
	}
	if o.upserter.FindNode(ctx, graph.LabelSentence, sentenceUID(pub.rec.DOI, sents[0].Index)) != nil {
		log.WithField("doi", pub.rec.DOI).Debug("Sentences already present, skipping")
		return nil
	}

	out := make([]*graph.Node, 0, len(sents))
	for _, s := range sents {
		n := o.upserter.UpsertNode(ctx, graph.LabelSentence, sentenceUID(pub.rec.DOI, s.Index))
		if n == nil {
			continue
		}
		o.upserter.SetProperty(ctx, n, PropIndex, s.Index)
		o.upserter.SetProperty(ctx, n, linker.PropText, s.Text)
		o.upserter.SetProperty(ctx, n, PropTokens, strings.Join(s.Tokens, ";"))
		o.upserter.UpsertRelationship(ctx, n, pub.node, graph.RelPartOfSentence)
		out = append(out, n)
	}
	return out
}

func (o *Orchestrator) finish(ctx context.Context, log logrus.FieldLogger, sum *Summary, before counts) {
	after := o.count(ctx)
	sum.NodeDelta = make(map[string]int64, len(after.nodes))
	sum.EdgeDelta = make(map[string]int64, len(after.edges))
	fields := logrus.Fields{
		"candidates":   sum.Candidates,
		"buffered":     sum.Buffered,
		"partitions":   sum.Partitions,
		"publications": sum.Publications,
		"sentences":    sum.Sentences,
		"links":        sum.Links,
	}
	for k, v := range after.nodes {
		sum.NodeDelta[k] = v - before.nodes[k]
		fields["nodes_"+strings.ToLower(k)] = sum.NodeDelta[k]
	}
	for k, v := range after.edges {
		sum.EdgeDelta[k] = v - before.edges[k]
		fields["edges_"+strings.ToLower(k)] = sum.EdgeDelta[k]
	}
	metrics.UpdateSystemMetrics()
	log.WithFields(fields).Info("Run summary")
}
