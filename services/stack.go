package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/columnar"
	"github.com/athapong/litgraph/pkg/config"
	"github.com/athapong/litgraph/pkg/frontier"
	"github.com/athapong/litgraph/pkg/graph"
	"github.com/athapong/litgraph/pkg/graph/processors"
	"github.com/athapong/litgraph/pkg/graph/storage"
	"github.com/athapong/litgraph/pkg/ingest"
	"github.com/athapong/litgraph/pkg/linker"
	"github.com/athapong/litgraph/pkg/objectstore"
	"github.com/athapong/litgraph/pkg/publications"
	"github.com/athapong/litgraph/pkg/scholar"
	"github.com/athapong/litgraph/pkg/worklist"
)

// Stack holds every collaborator a binary needs, built once from a Config.
type Stack struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Objects      objectstore.Store
	Engine       *columnar.SQLiteEngine
	Publications *publications.Store
	Graph        graph.Store
	Upserter     *graph.Upserter
	Scholar      *scholar.Client
	NLP          *processors.NLPProcessor
	Linker       *linker.Linker

	redis    *redis.Client
	snapshot *storage.JSONSnapshotStore
	closers  []func() error
}

// Open builds the stack. Connectivity failures are returned before anything is written.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Stack, error) {
	s := &Stack{Config: cfg, Logger: logger}
	if err := s.open(ctx); err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Stack) open(ctx context.Context) error {
	cfg := s.Config

	switch cfg.ObjectStore {
	case "gcs":
		gcs, err := objectstore.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentials, s.Logger)
		if err != nil {
			return err
		}
		s.Objects = gcs
		s.closers = append(s.closers, gcs.Close)
	default:
		dir, err := objectstore.NewDirStore(cfg.ObjectStoreDir)
		if err != nil {
			return err
		}
		s.Objects = dir
	}

	if err := os.MkdirAll(filepath.Dir(cfg.ColumnarDSN), 0755); err != nil {
		return fmt.Errorf("failed to create columnar dir: %w", err)
	}
	engine, err := columnar.OpenSQLite(cfg.ColumnarDSN, s.Objects, s.Logger)
	if err != nil {
		return err
	}
	s.Engine = engine
	s.closers = append(s.closers, engine.Close)
	s.Publications = publications.NewStore(s.Objects, engine, cfg.TableName, cfg.TablePrefix, s.Logger)

	if err := s.openGraph(ctx); err != nil {
		return err
	}

	opts := []graph.UpserterOption{graph.WithLogger(s.Logger)}
	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		s.closers = append(s.closers, s.redis.Close)
		opts = append(opts, graph.WithLocker(graph.NewRedisLocker(s.redis, "litgraph:lock:", 30*time.Second)))
	}
	s.Upserter = graph.NewUpserter(s.Graph, opts...)

	s.Scholar = scholar.NewClient(
		scholar.WithBaseURL(cfg.S2BaseURL),
		scholar.WithAPIKey(cfg.S2APIKey),
		scholar.WithHTTPClient(DefaultHttpClient()),
		scholar.WithPacing(cfg.PacingFloor, cfg.PacingStep, cfg.PacingDecrease),
		scholar.WithLogger(s.Logger),
	)
	s.NLP = processors.NewNLPProcessor(s.Logger)
	s.Linker = linker.New(s.Upserter, s.NLP, s.Logger)
	return nil
}

func (s *Stack) openGraph(ctx context.Context) error {
	cfg := s.Config
	if cfg.GraphBackend == "memory" {
		mem := graph.NewMemoryStore()
		s.snapshot = storage.NewJSONSnapshotStore(cfg.GraphSnapshot)
		if err := s.snapshot.Load(ctx, mem); err != nil {
			return err
		}
		s.Graph = mem
		return nil
	}

	neo, err := storage.NewNeo4jStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, s.Logger)
	if err != nil {
		return err
	}
	s.Graph = neo
	return neo.EnsureConstraints(ctx,
		graph.LabelPublication, graph.LabelSentence, graph.LabelLexicalForm, graph.LabelNamedEntity)
}

// Orchestrator wires the ingestion pipeline over the stack.
func (s *Stack) Orchestrator() *ingest.Orchestrator {
	return ingest.New(
		s.Publications,
		frontier.NewExpander(s.Scholar, s.Logger),
		s.Scholar,
		s.Upserter,
		s.Linker,
		s.NLP,
		ingest.WithWorkers(s.Config.MaxPoolSize),
		ingest.WithLogger(s.Logger),
	)
}

// Worklist opens the DOI worklist. The caller closes it.
func (s *Stack) Worklist() (*worklist.Worklist, error) {
	return OpenWorklist(s.Config)
}

// OpenWorklist opens the DOI worklist without the rest of the stack.
func OpenWorklist(cfg *config.Config) (*worklist.Worklist, error) {
	if cfg.WorklistDriver == "sqlite" && !strings.HasPrefix(cfg.WorklistDSN, "file:") && cfg.WorklistDSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.WorklistDSN), 0755); err != nil {
			return nil, fmt.Errorf("failed to create worklist dir: %w", err)
		}
	}
	return worklist.Open(cfg.WorklistDriver, cfg.WorklistDSN)
}

// Close saves the in-memory graph, if any, and releases every connection.
func (s *Stack) Close(ctx context.Context) {
	if mem, ok := s.Graph.(*graph.MemoryStore); ok && s.snapshot != nil {
		if err := s.snapshot.Save(ctx, mem); err != nil {
			s.Logger.WithError(err).Error("Failed to save graph snapshot")
		}
	}
	if s.Graph != nil {
		if err := s.Graph.Close(ctx); err != nil {
			s.Logger.WithError(err).Warn("Failed to close graph store")
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.WithError(err).Warn("Failed to close resource")
		}
	}
}
