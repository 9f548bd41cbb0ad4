package graph

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/athapong/litgraph/pkg/graph/metrics"
)

// Upserter offers idempotent create-or-get primitives over a Store.
// Store failures are logged with the failing operation and surface as
// nil, false or zero; callers treat those as "not confirmed".
type Upserter struct {
	store  Store
	locks  KeyLocker
	logger logrus.FieldLogger
}

// UpserterOption configures an Upserter.
type UpserterOption func(*Upserter)

// WithLocker replaces the default in-process locker.
func WithLocker(l KeyLocker) UpserterOption {
	return func(u *Upserter) {
		u.locks = l
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) UpserterOption {
	return func(u *Upserter) {
		u.logger = l
	}
}

// NewUpserter creates an Upserter over store.
func NewUpserter(store Store, opts ...UpserterOption) *Upserter {
	u := &Upserter{store: store}
	for _, opt := range opts {
		opt(u)
	}
	if u.locks == nil {
		u.locks = NewLocalLocker()
	}
	if u.logger == nil {
		l := logrus.New()
		l.SetFormatter(&logrus.JSONFormatter{})
		u.logger = l
	}
	return u
}

// Store returns the underlying store.
func (u *Upserter) Store() Store {
	return u.store
}

func (u *Upserter) fail(err error, op string, fields logrus.Fields) {
	metrics.GraphOperationErrors.WithLabelValues(op).Inc()
	u.logger.WithError(err).WithFields(fields).WithField("operation", op).Error("Graph operation failed")
}

// UpsertNode returns the node addressed by (label, uid), creating it when absent.
// Calls for the same address are serialized.
func (u *Upserter) UpsertNode(ctx context.Context, label, uid string) *Node {
	ref := NodeRef{Label: label, UID: uid}
	fields := logrus.Fields{"label": label, "uid": uid}

	unlock, err := u.locks.Lock(ctx, ref.String())
	if err != nil {
		u.fail(err, "lock_node", fields)
		return nil
	}
	defer unlock()

	found, err := u.store.FindNodes(ctx, ref)
	if err != nil {
		u.fail(err, "find_node", fields)
		return nil
	}
	if len(found) > 0 {
		if len(found) > 1 {
			u.logger.WithFields(fields).WithField("count", len(found)).Warn("Several nodes share one uid, using the first")
		}
		return found[0]
	}

	n, err := u.store.CreateNode(ctx, ref)
	if err != nil {
		u.fail(err, "create_node", fields)
		return nil
	}
	metrics.GraphNodesCreated.WithLabelValues(label).Inc()
	return n
}

// FindNode returns the node addressed by (label, uid) or nil.
func (u *Upserter) FindNode(ctx context.Context, label, uid string) *Node {
	found, err := u.store.FindNodes(ctx, NodeRef{Label: label, UID: uid})
	if err != nil {
		u.fail(err, "find_node", logrus.Fields{"label": label, "uid": uid})
		return nil
	}
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// FindNodeFold returns the node with an exact uid match, falling back to a
// case-insensitive match. Nil when neither exists.
func (u *Upserter) FindNodeFold(ctx context.Context, label, uid string) *Node {
	if n := u.FindNode(ctx, label, uid); n != nil {
		return n
	}
	found, err := u.store.FindNodesFold(ctx, NodeRef{Label: label, UID: uid})
	if err != nil {
		u.fail(err, "find_node_fold", logrus.Fields{"label": label, "uid": uid})
		return nil
	}
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// SetProperty overwrites one property of n.
func (u *Upserter) SetProperty(ctx context.Context, n *Node, key string, value any) bool {
	if n == nil {
		return false
	}
	if !ValidName(key) {
		u.fail(CheckNames(key), "set_property", logrus.Fields{"node": n.Ref().String(), "key": key})
		return false
	}
	if err := u.store.SetProperty(ctx, n.Ref(), key, value); err != nil {
		u.fail(err, "set_property", logrus.Fields{"node": n.Ref().String(), "key": key})
		return false
	}
	if n.Props == nil {
		n.Props = make(map[string]any)
	}
	n.Props[key] = value
	return true
}

// AddLabel adds a secondary label to n.
func (u *Upserter) AddLabel(ctx context.Context, n *Node, label string) bool {
	if n == nil {
		return false
	}
	if err := u.store.AddLabel(ctx, n.Ref(), label); err != nil {
		u.fail(err, "add_label", logrus.Fields{"node": n.Ref().String(), "new_label": label})
		return false
	}
	n.Labels = append(n.Labels, label)
	return true
}

// UpsertRelationship returns the relType relationship from -> to, creating it when absent.
// When several exist it warns and returns the first.
func (u *Upserter) UpsertRelationship(ctx context.Context, from, to *Node, relType string) *Relationship {
	rel, _ := u.EnsureRelationship(ctx, from, to, relType)
	return rel
}

// EnsureRelationship is UpsertRelationship that also reports whether the
// relationship was created by this call.
func (u *Upserter) EnsureRelationship(ctx context.Context, from, to *Node, relType string) (*Relationship, bool) {
	if from == nil || to == nil {
		return nil, false
	}
	fields := logrus.Fields{"from": from.Ref().String(), "to": to.Ref().String(), "type": relType}

	found, err := u.store.FindRelationships(ctx, from.Ref(), to.Ref(), relType)
	if err != nil {
		u.fail(err, "find_relationship", fields)
		return nil, false
	}
	switch {
	case len(found) == 1:
		return found[0], false
	case len(found) > 1:
		u.logger.WithFields(fields).WithField("count", len(found)).Warn("Duplicate relationships found, using the first")
		return found[0], false
	}

	rel, err := u.store.CreateRelationship(ctx, from.Ref(), to.Ref(), relType)
	if err != nil {
		u.fail(err, "create_relationship", fields)
		return nil, false
	}
	metrics.GraphRelationshipsCreated.WithLabelValues(relType).Inc()
	return rel, true
}

// DeleteRelationships removes relationships of the given types touching n.
func (u *Upserter) DeleteRelationships(ctx context.Context, n *Node, dir Direction, relTypes ...string) int64 {
	if n == nil {
		return 0
	}
	deleted, err := u.store.DeleteRelationships(ctx, n.Ref(), dir, relTypes...)
	if err != nil {
		u.fail(err, "delete_relationships", logrus.Fields{"node": n.Ref().String(), "types": relTypes})
		return 0
	}
	return deleted
}

// CountByLabel returns the number of nodes carrying label.
func (u *Upserter) CountByLabel(ctx context.Context, label string) int64 {
	n, err := u.store.CountByLabel(ctx, label)
	if err != nil {
		u.fail(err, "count_label", logrus.Fields{"label": label})
		return 0
	}
	metrics.GraphNodeCount.WithLabelValues(label).Set(float64(n))
	return n
}

// CountByType returns the number of relationships of relType.
func (u *Upserter) CountByType(ctx context.Context, relType string) int64 {
	n, err := u.store.CountByType(ctx, relType)
	if err != nil {
		u.fail(err, "count_type", logrus.Fields{"type": relType})
		return 0
	}
	metrics.GraphEdgeCount.WithLabelValues(relType).Set(float64(n))
	return n
}

// ClaimNodes returns nodes of label and marks them initialized in the same store call.
func (u *Upserter) ClaimNodes(ctx context.Context, label string, onlyUninitialized bool) []*Node {
	nodes, err := u.store.ClaimNodes(ctx, label, onlyUninitialized)
	if err != nil {
		u.fail(err, "claim_nodes", logrus.Fields{"label": label, "only_uninitialized": onlyUninitialized})
		return nil
	}
	return nodes
}

// Derive rewrites the relationships produced by rule and returns how many were created.
func (u *Upserter) Derive(ctx context.Context, rule DerivationRule) int64 {
	n, err := u.store.Derive(ctx, rule)
	if err != nil {
		u.fail(err, "derive", logrus.Fields{"type": rule.Derived, "via": rule.Via})
		return 0
	}
	return n
}
