package frontier

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/publications"
)

// LinkSource lists the DOIs a publication cites and the DOIs citing it.
// *scholar.Client satisfies it.
type LinkSource interface {
	References(ctx context.Context, doi string, limit int) ([]string, error)
	Citations(ctx context.Context, doi string, limit int) ([]string, error)
}

// Candidate is a newly discovered identifier together with why it was discovered.
type Candidate struct {
	DOI    string
	Source publications.Provenance
}

// Expander grows a seed set by one hop along reference and citation edges.
type Expander struct {
	links  LinkSource
	logger logrus.FieldLogger
}

// NewExpander creates an Expander over links.
func NewExpander(links LinkSource, logger logrus.FieldLogger) *Expander {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	return &Expander{links: links, logger: logger}
}

// Expand returns seeds and their direct neighbours that are not in known.
// maxRefs and maxCits cap each seed's lists; -1 means unbounded.
func (e *Expander) Expand(ctx context.Context, seeds []string, known mapset.Set[string], maxRefs, maxCits int) []Candidate {
	if known == nil {
		known = mapset.NewThreadUnsafeSet[string]()
	}
	discovered := mapset.NewThreadUnsafeSet[string]()
	var out []Candidate

	add := func(doi string, source publications.Provenance) {
		if doi == "" || known.Contains(doi) || discovered.Contains(doi) {
			return
		}
		discovered.Add(doi)
		out = append(out, Candidate{DOI: doi, Source: source})
	}

	for _, seed := range seeds {
		add(seed, publications.Seed)
	}

	for i, seed := range seeds {
		if ctx.Err() != nil {
			e.logger.WithError(ctx.Err()).Warn("Frontier expansion interrupted")
			break
		}
		log := e.logger.WithFields(logrus.Fields{"doi": seed, "seed": i + 1, "seeds": len(seeds)})

		if maxRefs != 0 {
			refs, err := e.links.References(ctx, seed, maxRefs)
			if err != nil {
				log.WithError(err).Warn("Skipping references of seed")
			} else {
				for _, doi := range truncate(refs, maxRefs) {
					add(doi, publications.ReferenceDerived)
				}
			}
		}

		if maxCits != 0 {
			cits, err := e.links.Citations(ctx, seed, maxCits)
			if err != nil {
				log.WithError(err).Warn("Skipping citations of seed")
			} else {
				for _, doi := range truncate(cits, maxCits) {
					add(doi, publications.CitationDerived)
				}
			}
		}
	}

	e.logger.WithFields(logrus.Fields{"seeds": len(seeds), "candidates": len(out)}).Info("Frontier expanded")
	return out
}

func truncate(dois []string, limit int) []string {
	if limit >= 0 && len(dois) > limit {
		return dois[:limit]
	}
	return dois
}
