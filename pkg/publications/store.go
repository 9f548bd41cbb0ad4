package publications

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/columnar"
	"github.com/athapong/litgraph/pkg/objectstore"
)

// NoPartition is returned by CommitPartition when there was nothing to commit.
const NoPartition = -1

// State is the resumable position of the store.
type State struct {
	TableExists   bool
	LastPartition int
	MaxRowID      int64
	KnownCount    int
}

// Store is an append-only, partitioned publication table.
// Every partition is one immutable object; the table is queried through a columnar engine.
type Store struct {
	objects objectstore.Store
	engine  columnar.Engine
	table   string
	prefix  string
	logger  logrus.FieldLogger

	mu            sync.Mutex
	tableExists   bool
	lastPartition int
	maxRowID      int64
	known         mapset.Set[string]
	buffer        []Record
	buffered      mapset.Set[string]
}

// NewStore creates a store for table whose objects live under prefix (e.g. "litgraph/").
func NewStore(objects objectstore.Store, engine columnar.Engine, table, prefix string, logger logrus.FieldLogger) *Store {
	if logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}
	return &Store{
		objects:       objects,
		engine:        engine,
		table:         table,
		prefix:        prefix,
		logger:        logger.WithField("table", table),
		lastPartition: NoPartition,
		maxRowID:      -1,
		known:         mapset.NewSet[string](),
		buffered:      mapset.NewThreadUnsafeSet[string](),
	}
}

// Location is the object prefix holding every partition of the table.
func (s *Store) Location() string {
	return s.prefix + "publications/"
}

// PartitionKey is the object key of partition n.
func (s *Store) PartitionKey(n int) string {
	return fmt.Sprintf("%s%d/publications_part-%d.csv", s.Location(), n, n)
}

func (s *Store) spec() columnar.TableSpec {
	return columnar.TableSpec{Name: s.table, Location: s.Location(), Columns: Columns}
}

var partitionDir = regexp.MustCompile(`publications/(\d+)/`)

// LoadState reads counters and the known identifier set from durable state.
// The last partition is the larger of the table maximum and the object listing.
func (s *Store) LoadState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.engine.TableExists(ctx, s.table)
	if err != nil {
		return errors.Wrap(err, "load state")
	}

	s.tableExists = exists
	s.lastPartition = NoPartition
	s.maxRowID = -1
	s.known = mapset.NewSet[string]()
	s.buffer = nil
	s.buffered.Clear()

	if !exists {
		listed, err := s.maxListedPartition(ctx)
		if err != nil {
			return err
		}
		if listed < 0 {
			s.logger.Info("Publication table does not exist yet, starting empty")
			return nil
		}
		// partitions survived a drop; never reuse their numbers
		if err := s.engine.CreateTable(ctx, s.spec()); err != nil {
			return errors.Wrap(err, "recreate publication table")
		}
		s.tableExists = true
		s.logger.WithField("listed_partition", listed).Info("Publication table recreated from partition objects")
	}

	if s.maxRowID, err = s.queryInt(ctx, "SELECT max(id) FROM "+s.table); err != nil {
		return err
	}
	tablePart, err := s.queryInt(ctx, "SELECT max(part) FROM "+s.table)
	if err != nil {
		return err
	}
	listedPart, err := s.maxListedPartition(ctx)
	if err != nil {
		return err
	}
	s.lastPartition = int(max(tablePart, listedPart))

	err = s.engine.QueryPages(ctx, "SELECT DISTINCT doi FROM "+s.table, 5000, func(page []columnar.Row) error {
		for _, row := range page {
			if row[0] != "" {
				s.known.Add(row[0])
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "load known identifiers")
	}

	s.logger.WithFields(logrus.Fields{
		"last_partition":   s.lastPartition,
		"table_partition":  tablePart,
		"listed_partition": listedPart,
		"max_row_id":       s.maxRowID,
		"known":            s.known.Cardinality(),
	}).Info("Publication store state loaded")
	return nil
}

// queryInt reads a single integer aggregate; NULL reads as -1.
func (s *Store) queryInt(ctx context.Context, query string) (int64, error) {
	rows, err := s.engine.Query(ctx, query)
	if err != nil {
		return 0, errors.Wrapf(err, "query %q", query)
	}
	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] == "" {
		return -1, nil
	}
	n, err := strconv.ParseInt(rows[0][0], 10, 64)
	return n, errors.Wrapf(err, "parse result of %q", query)
}

func (s *Store) maxListedPartition(ctx context.Context) (int64, error) {
	keys, err := s.objects.List(ctx, s.Location())
	if err != nil {
		return 0, errors.Wrap(err, "list partitions")
	}
	maxPart := int64(-1)
	for _, key := range keys {
		m := partitionDir.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > maxPart {
			maxPart = n
		}
	}
	return maxPart, nil
}

// Buffer queues rec for the next partition. It returns false, and drops the
// record, when its identifier is already committed or buffered.
func (s *Store) Buffer(rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.DOI == "" || s.known.Contains(rec.DOI) || s.buffered.Contains(rec.DOI) {
		return false
	}
	rec.ID = s.maxRowID + 1 + int64(len(s.buffer))
	rec.Part = s.lastPartition + 1
	rec.sanitize()

	s.buffer = append(s.buffer, rec)
	s.buffered.Add(rec.DOI)
	return true
}

// Buffered returns the number of records waiting for commit.
func (s *Store) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// CommitPartition writes the buffer as the next partition and returns its number,
// or NoPartition when the buffer is empty.
func (s *Store) CommitPartition(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) == 0 {
		s.logger.Info("No new publications, nothing to commit")
		return NoPartition, nil
	}

	part := s.lastPartition + 1
	body, err := encodePartition(s.buffer)
	if err != nil {
		return NoPartition, err
	}
	key := s.PartitionKey(part)
	if err := s.objects.Put(ctx, key, body); err != nil {
		return NoPartition, errors.Wrapf(err, "write partition %d", part)
	}

	if !s.tableExists {
		if err := s.engine.CreateTable(ctx, s.spec()); err != nil {
			return NoPartition, errors.Wrap(err, "create publication table")
		}
		s.tableExists = true
	}

	s.lastPartition = part
	s.maxRowID += int64(len(s.buffer))
	for _, rec := range s.buffer {
		s.known.Add(rec.DOI)
	}
	count := len(s.buffer)
	s.buffer = nil
	s.buffered.Clear()

	s.logger.WithFields(logrus.Fields{"partition": part, "records": count, "key": key}).Info("Partition committed")
	return part, nil
}

// State returns a snapshot of the store counters.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		TableExists:   s.tableExists,
		LastPartition: s.lastPartition,
		MaxRowID:      s.maxRowID,
		KnownCount:    s.known.Cardinality(),
	}
}

// Known returns a copy of the committed identifier set.
func (s *Store) Known() mapset.Set[string] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.known.Clone()
}

// QueryByPartition returns every record of partition n ordered by row id.
func (s *Store) QueryByPartition(ctx context.Context, n int) ([]Record, error) {
	return s.queryRecords(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE part = ? ORDER BY id", selectColumns, s.table), n)
}

// QueryByID returns the record for doi, or nil when absent.
func (s *Store) QueryByID(ctx context.Context, doi string) (*Record, error) {
	recs, err := s.queryRecords(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE doi = ? ORDER BY id LIMIT 1", selectColumns, s.table), doi)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

// QueryAbstract returns the abstract of row rowID; empty when absent.
func (s *Store) QueryAbstract(ctx context.Context, rowID int64) (string, error) {
	rows, err := s.engine.Query(ctx, fmt.Sprintf("SELECT abstract FROM %s WHERE id = ?", s.table), rowID)
	if err != nil {
		return "", errors.Wrapf(err, "query abstract of %d", rowID)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0][0], nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	var out []Record
	err := s.engine.QueryPages(ctx, query, 500, func(page []columnar.Row) error {
		for _, row := range page {
			rec, err := recordFromRow(row)
			if err != nil {
				s.logger.WithError(err).Warn("Skipping unreadable publication row")
				continue
			}
			out = append(out, rec)
		}
		return nil
	}, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query publications")
	}
	return out, nil
}

// Drop removes the table definition. With purge it also deletes every partition object.
func (s *Store) Drop(ctx context.Context, purge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.DropTable(ctx, s.table); err != nil {
		return errors.Wrap(err, "drop publication table")
	}
	if purge {
		keys, err := s.objects.List(ctx, s.Location())
		if err != nil {
			return errors.Wrap(err, "list partitions")
		}
		if err := s.objects.Delete(ctx, keys...); err != nil {
			return errors.Wrap(err, "delete partitions")
		}
		s.logger.WithField("objects", len(keys)).Info("Partition objects deleted")
	}

	s.tableExists = false
	s.lastPartition = NoPartition
	s.maxRowID = -1
	s.known = mapset.NewSet[string]()
	s.buffer = nil
	s.buffered.Clear()
	return nil
}
