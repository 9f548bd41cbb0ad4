package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/graph"
)

// Neo4jStore implements graph.Store on a Neo4j server. Labels and
// relationship types are interpolated into Cypher, so every identifier is
// validated first; values always travel as parameters.
type Neo4jStore struct {
	driver   neo4j.Driver
	database string
	logger   logrus.FieldLogger
}

var _ graph.Store = (*Neo4jStore)(nil)

// NewNeo4jStore connects to uri and verifies the connection.
func NewNeo4jStore(uri, username, password, database string, logger logrus.FieldLogger) (*Neo4jStore, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %v", err)
	}
	if err := driver.VerifyConnectivity(); err != nil {
		driver.Close()
		return nil, errors.Wrapf(err, "connect to %s", uri)
	}
	return &Neo4jStore{driver: driver, database: database, logger: logger}, nil
}

// EnsureConstraints creates a uid uniqueness constraint per label.
func (s *Neo4jStore) EnsureConstraints(ctx context.Context, labels ...string) error {
	if err := graph.CheckNames(labels...); err != nil {
		return err
	}
	for _, label := range labels {
		q := fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS ON (n:%s) ASSERT n.uid IS UNIQUE", label)
		if _, err := s.write(q, nil); err != nil {
			return errors.Wrapf(err, "constraint on %s", label)
		}
		s.logger.WithField("label", label).Debug("Uid constraint ensured")
	}
	return nil
}

func (s *Neo4jStore) session(mode neo4j.AccessMode) neo4j.Session {
	return s.driver.NewSession(neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// collect runs q and returns its records plus the summary counters.
func (s *Neo4jStore) collect(mode neo4j.AccessMode, q string, params map[string]interface{}) ([]*neo4j.Record, neo4j.Counters, error) {
	session := s.session(mode)
	defer session.Close()

	result, err := session.Run(q, params)
	if err != nil {
		return nil, nil, err
	}
	var records []*neo4j.Record
	for result.Next() {
		records = append(records, result.Record())
	}
	if err := result.Err(); err != nil {
		return nil, nil, err
	}
	summary, err := result.Consume()
	if err != nil {
		return nil, nil, err
	}
	return records, summary.Counters(), nil
}

func (s *Neo4jStore) read(q string, params map[string]interface{}) ([]*neo4j.Record, error) {
	records, _, err := s.collect(neo4j.AccessModeRead, q, params)
	return records, err
}

func (s *Neo4jStore) write(q string, params map[string]interface{}) ([]*neo4j.Record, error) {
	records, _, err := s.collect(neo4j.AccessModeWrite, q, params)
	return records, err
}

func toNode(label string, v interface{}) (*graph.Node, error) {
	n, ok := v.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected value %T, want node", v)
	}
	uid, _ := n.Props[graph.PropUID].(string)
	return &graph.Node{Label: label, UID: uid, Labels: n.Labels, Props: n.Props}, nil
}

func toNodes(label string, records []*neo4j.Record) ([]*graph.Node, error) {
	out := make([]*graph.Node, 0, len(records))
	for _, rec := range records {
		n, err := toNode(label, rec.Values[0])
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func singleCount(records []*neo4j.Record) int64 {
	if len(records) == 0 || len(records[0].Values) == 0 {
		return 0
	}
	n, _ := records[0].Values[0].(int64)
	return n
}

func (s *Neo4jStore) FindNodes(_ context.Context, ref graph.NodeRef) ([]*graph.Node, error) {
	if err := graph.CheckNames(ref.Label); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("MATCH (n:%s {uid: $uid}) RETURN n ORDER BY id(n)", ref.Label)
	records, err := s.read(q, map[string]interface{}{"uid": ref.UID})
	if err != nil {
		return nil, errors.Wrapf(err, "find %s", ref)
	}
	return toNodes(ref.Label, records)
}

func (s *Neo4jStore) FindNodesFold(_ context.Context, ref graph.NodeRef) ([]*graph.Node, error) {
	if err := graph.CheckNames(ref.Label); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("MATCH (n:%s) WHERE toLower(n.uid) = toLower($uid) RETURN n ORDER BY id(n)", ref.Label)
	records, err := s.read(q, map[string]interface{}{"uid": ref.UID})
	if err != nil {
		return nil, errors.Wrapf(err, "find %s ignoring case", ref)
	}
	return toNodes(ref.Label, records)
}

func (s *Neo4jStore) CreateNode(_ context.Context, ref graph.NodeRef) (*graph.Node, error) {
	if err := graph.CheckNames(ref.Label); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("MERGE (n:%s {uid: $uid}) RETURN n", ref.Label)
	records, err := s.write(q, map[string]interface{}{"uid": ref.UID})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", ref)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("create %s returned no node", ref)
	}
	return toNode(ref.Label, records[0].Values[0])
}

func (s *Neo4jStore) SetProperty(_ context.Context, ref graph.NodeRef, key string, value any) error {
	if err := graph.CheckNames(ref.Label, key); err != nil {
		return err
	}
	q := fmt.Sprintf("MATCH (n:%s {uid: $uid}) SET n.%s = $value RETURN count(n)", ref.Label, key)
	records, err := s.write(q, map[string]interface{}{"uid": ref.UID, "value": value})
	if err != nil {
		return errors.Wrapf(err, "set %s on %s", key, ref)
	}
	if singleCount(records) == 0 {
		return fmt.Errorf("node %s not found", ref)
	}
	return nil
}

func (s *Neo4jStore) AddLabel(_ context.Context, ref graph.NodeRef, label string) error {
	if err := graph.CheckNames(ref.Label, label); err != nil {
		return err
	}
	q := fmt.Sprintf("MATCH (n:%s {uid: $uid}) SET n:%s RETURN count(n)", ref.Label, label)
	records, err := s.write(q, map[string]interface{}{"uid": ref.UID})
	if err != nil {
		return errors.Wrapf(err, "label %s as %s", ref, label)
	}
	if singleCount(records) == 0 {
		return fmt.Errorf("node %s not found", ref)
	}
	return nil
}

func (s *Neo4jStore) FindRelationships(_ context.Context, from, to graph.NodeRef, relType string) ([]*graph.Relationship, error) {
	if err := graph.CheckNames(from.Label, to.Label, relType); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("MATCH (a:%s {uid: $from})-[r:%s]->(b:%s {uid: $to}) RETURN id(r) ORDER BY id(r)",
		from.Label, relType, to.Label)
	records, err := s.read(q, map[string]interface{}{"from": from.UID, "to": to.UID})
	if err != nil {
		return nil, errors.Wrapf(err, "find %s %s -> %s", relType, from, to)
	}
	out := make([]*graph.Relationship, 0, len(records))
	for range records {
		out = append(out, &graph.Relationship{Type: relType, From: from, To: to})
	}
	return out, nil
}

func (s *Neo4jStore) CreateRelationship(_ context.Context, from, to graph.NodeRef, relType string) (*graph.Relationship, error) {
	if err := graph.CheckNames(from.Label, to.Label, relType); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("MATCH (a:%s {uid: $from}) MATCH (b:%s {uid: $to}) WITH a, b LIMIT 1 CREATE (a)-[r:%s]->(b) RETURN count(r)",
		from.Label, to.Label, relType)
	records, err := s.write(q, map[string]interface{}{"from": from.UID, "to": to.UID})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s %s -> %s", relType, from, to)
	}
	if singleCount(records) == 0 {
		return nil, fmt.Errorf("cannot link %s to %s: node not found", from, to)
	}
	return &graph.Relationship{Type: relType, From: from, To: to}, nil
}

func deleteQuery(ref graph.NodeRef, dir graph.Direction, relTypes []string) (string, error) {
	if err := graph.CheckNames(append([]string{ref.Label}, relTypes...)...); err != nil {
		return "", err
	}
	rel := "r"
	if len(relTypes) > 0 {
		rel += ":" + strings.Join(relTypes, "|")
	}
	var pattern string
	switch dir {
	case graph.Outgoing:
		pattern = fmt.Sprintf("(n)-[%s]->()", rel)
	case graph.Incoming:
		pattern = fmt.Sprintf("(n)<-[%s]-()", rel)
	default:
		pattern = fmt.Sprintf("(n)-[%s]-()", rel)
	}
	return fmt.Sprintf("MATCH (n:%s {uid: $uid}) MATCH %s DELETE r", ref.Label, pattern), nil
}

func (s *Neo4jStore) DeleteRelationships(_ context.Context, ref graph.NodeRef, dir graph.Direction, relTypes ...string) (int64, error) {
	q, err := deleteQuery(ref, dir, relTypes)
	if err != nil {
		return 0, err
	}
	_, counters, err := s.collect(neo4j.AccessModeWrite, q, map[string]interface{}{"uid": ref.UID})
	if err != nil {
		return 0, errors.Wrapf(err, "delete relationships of %s", ref)
	}
	return int64(counters.RelationshipsDeleted()), nil
}

func (s *Neo4jStore) CountByLabel(_ context.Context, label string) (int64, error) {
	if err := graph.CheckNames(label); err != nil {
		return 0, err
	}
	records, err := s.read(fmt.Sprintf("MATCH (n:%s) RETURN count(n)", label), nil)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", label)
	}
	return singleCount(records), nil
}

func (s *Neo4jStore) CountByType(_ context.Context, relType string) (int64, error) {
	if err := graph.CheckNames(relType); err != nil {
		return 0, err
	}
	records, err := s.read(fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", relType), nil)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", relType)
	}
	return singleCount(records), nil
}

func claimQuery(label string, onlyUninitialized bool) string {
	q := fmt.Sprintf("MATCH (n:%s)", label)
	if onlyUninitialized {
		q += " WHERE n.initialized IS NULL OR n.initialized = false"
	}
	return q + " SET n.initialized = true RETURN n ORDER BY id(n)"
}

func (s *Neo4jStore) ClaimNodes(_ context.Context, label string, onlyUninitialized bool) ([]*graph.Node, error) {
	if err := graph.CheckNames(label); err != nil {
		return nil, err
	}
	records, err := s.write(claimQuery(label, onlyUninitialized), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "claim %s", label)
	}
	return toNodes(label, records)
}

func deriveQuery(rule graph.DerivationRule) string {
	pattern := fmt.Sprintf("(a:%[1]s)-[:%[2]s]->(h:%[3]s)<-[:%[2]s]-(b:%[1]s)", rule.Label, rule.Via, rule.HubLabel)
	if rule.HubOutgoing {
		pattern = fmt.Sprintf("(a:%[1]s)<-[:%[2]s]-(h:%[3]s)-[:%[2]s]->(b:%[1]s)", rule.Label, rule.Via, rule.HubLabel)
	}
	where := "a <> b"
	if rule.ExcludeHubLabel != "" {
		where += fmt.Sprintf(" AND NOT h:%s", rule.ExcludeHubLabel)
	}
	return fmt.Sprintf("MATCH %s WHERE %s WITH DISTINCT a, b MERGE (a)-[:%s]->(b)", pattern, where, rule.Derived)
}

func (s *Neo4jStore) Derive(_ context.Context, rule graph.DerivationRule) (int64, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}
	_, cleared, err := s.collect(neo4j.AccessModeWrite, fmt.Sprintf("MATCH ()-[r:%s]->() DELETE r", rule.Derived), nil)
	if err != nil {
		return 0, errors.Wrapf(err, "clear %s", rule.Derived)
	}
	_, created, err := s.collect(neo4j.AccessModeWrite, deriveQuery(rule), nil)
	if err != nil {
		return 0, errors.Wrapf(err, "derive %s", rule.Derived)
	}
	s.logger.WithFields(logrus.Fields{
		"type":    rule.Derived,
		"deleted": cleared.RelationshipsDeleted(),
		"created": created.RelationshipsCreated(),
	}).Info("Derived relationships rewritten")
	return int64(created.RelationshipsCreated()), nil
}

// Close implements graph.Store
func (s *Neo4jStore) Close(context.Context) error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}
