package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type memNode struct {
	labels []string
	uid    string
	props  map[string]any
}

func (n *memNode) hasLabel(label string) bool {
	return slices.Contains(n.labels, label)
}

func (n *memNode) matches(ref NodeRef) bool {
	return n.uid == ref.UID && n.hasLabel(ref.Label)
}

func (n *memNode) toNode(label string) *Node {
	props := make(map[string]any, len(n.props))
	for k, v := range n.props {
		props[k] = v
	}
	return &Node{Label: label, UID: n.uid, Labels: slices.Clone(n.labels), Props: props}
}

type memRel struct {
	relType string
	from    *memNode
	to      *memNode
}

// MemoryStore is an in-process Store. Like a graph database without
// constraints it lets two nodes share a uid if callers race; Upserter
// prevents that.
type MemoryStore struct {
	nodes  []*memNode
	rels   []*memRel
	mutex  sync.RWMutex
	logger logrus.FieldLogger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory graph
func NewMemoryStore() *MemoryStore {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &MemoryStore{logger: logger}
}

func (g *MemoryStore) find(ref NodeRef) []*memNode {
	var out []*memNode
	for _, n := range g.nodes {
		if n.matches(ref) {
			out = append(out, n)
		}
	}
	return out
}

func (g *MemoryStore) FindNodes(_ context.Context, ref NodeRef) ([]*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var out []*Node
	for _, n := range g.find(ref) {
		out = append(out, n.toNode(ref.Label))
	}
	return out, nil
}

func (g *MemoryStore) FindNodesFold(_ context.Context, ref NodeRef) ([]*Node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var out []*Node
	for _, n := range g.nodes {
		if n.hasLabel(ref.Label) && strings.EqualFold(n.uid, ref.UID) {
			out = append(out, n.toNode(ref.Label))
		}
	}
	return out, nil
}

func (g *MemoryStore) CreateNode(_ context.Context, ref NodeRef) (*Node, error) {
	if err := CheckNames(ref.Label); err != nil {
		return nil, err
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()

	n := &memNode{labels: []string{ref.Label}, uid: ref.UID, props: map[string]any{PropUID: ref.UID}}
	g.nodes = append(g.nodes, n)
	return n.toNode(ref.Label), nil
}

func (g *MemoryStore) SetProperty(_ context.Context, ref NodeRef, key string, value any) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	matched := g.find(ref)
	if len(matched) == 0 {
		return fmt.Errorf("node %s not found", ref)
	}
	for _, n := range matched {
		n.props[key] = value
	}
	return nil
}

func (g *MemoryStore) AddLabel(_ context.Context, ref NodeRef, label string) error {
	if err := CheckNames(label); err != nil {
		return err
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()

	matched := g.find(ref)
	if len(matched) == 0 {
		return fmt.Errorf("node %s not found", ref)
	}
	for _, n := range matched {
		if !n.hasLabel(label) {
			n.labels = append(n.labels, label)
		}
	}
	return nil
}

func (g *MemoryStore) FindRelationships(_ context.Context, from, to NodeRef, relType string) ([]*Relationship, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var out []*Relationship
	for _, r := range g.rels {
		if r.relType == relType && r.from.matches(from) && r.to.matches(to) {
			out = append(out, &Relationship{Type: relType, From: from, To: to})
		}
	}
	return out, nil
}

func (g *MemoryStore) CreateRelationship(_ context.Context, from, to NodeRef, relType string) (*Relationship, error) {
	if err := CheckNames(relType); err != nil {
		return nil, err
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()

	src, dst := g.find(from), g.find(to)
	if len(src) == 0 || len(dst) == 0 {
		return nil, fmt.Errorf("cannot link %s to %s: node not found", from, to)
	}
	g.rels = append(g.rels, &memRel{relType: relType, from: src[0], to: dst[0]})
	return &Relationship{Type: relType, From: from, To: to}, nil
}

func (g *MemoryStore) DeleteRelationships(_ context.Context, ref NodeRef, dir Direction, relTypes ...string) (int64, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	var deleted int64
	kept := g.rels[:0]
	for _, r := range g.rels {
		touches := (dir != Incoming && r.from.matches(ref)) || (dir != Outgoing && r.to.matches(ref))
		if touches && (len(relTypes) == 0 || slices.Contains(relTypes, r.relType)) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	g.rels = kept
	return deleted, nil
}

func (g *MemoryStore) CountByLabel(_ context.Context, label string) (int64, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var n int64
	for _, node := range g.nodes {
		if node.hasLabel(label) {
			n++
		}
	}
	return n, nil
}

func (g *MemoryStore) CountByType(_ context.Context, relType string) (int64, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var n int64
	for _, r := range g.rels {
		if r.relType == relType {
			n++
		}
	}
	return n, nil
}

func (g *MemoryStore) ClaimNodes(_ context.Context, label string, onlyUninitialized bool) ([]*Node, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	var out []*Node
	for _, n := range g.nodes {
		if !n.hasLabel(label) {
			continue
		}
		if done, _ := n.props[PropInitialized].(bool); onlyUninitialized && done {
			continue
		}
		n.props[PropInitialized] = true
		out = append(out, n.toNode(label))
	}
	return out, nil
}

func (g *MemoryStore) Derive(_ context.Context, rule DerivationRule) (int64, error) {
	if err := rule.Validate(); err != nil {
		return 0, err
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()

	kept := g.rels[:0]
	for _, r := range g.rels {
		if r.relType != rule.Derived {
			kept = append(kept, r)
		}
	}
	g.rels = kept

	// members per hub, in relationship order
	members := make(map[*memNode][]*memNode)
	var hubs []*memNode
	for _, r := range g.rels {
		if r.relType != rule.Via {
			continue
		}
		hub, member := r.to, r.from
		if rule.HubOutgoing {
			hub, member = r.from, r.to
		}
		if !hub.hasLabel(rule.HubLabel) || !member.hasLabel(rule.Label) {
			continue
		}
		if rule.ExcludeHubLabel != "" && hub.hasLabel(rule.ExcludeHubLabel) {
			continue
		}
		if _, ok := members[hub]; !ok {
			hubs = append(hubs, hub)
		}
		members[hub] = append(members[hub], member)
	}

	type pair struct{ a, b *memNode }
	seen := make(map[pair]bool)
	var created int64
	for _, hub := range hubs {
		for _, a := range members[hub] {
			for _, b := range members[hub] {
				if a == b || seen[pair{a, b}] {
					continue
				}
				seen[pair{a, b}] = true
				g.rels = append(g.rels, &memRel{relType: rule.Derived, from: a, to: b})
				created++
			}
		}
	}

	g.logger.WithFields(logrus.Fields{"type": rule.Derived, "created": created}).Debug("Derived relationships rewritten")
	return created, nil
}

func (g *MemoryStore) Close(context.Context) error {
	return nil
}

// SnapshotNode is the persisted form of a node.
type SnapshotNode struct {
	Labels []string       `json:"labels"`
	UID    string         `json:"uid"`
	Props  map[string]any `json:"properties,omitempty"`
}

// SnapshotEdge is the persisted form of a relationship; endpoints index Snapshot.Nodes.
type SnapshotEdge struct {
	Type   string `json:"type"`
	Source int    `json:"source"`
	Target int    `json:"target"`
}

// Snapshot is a serializable copy of a MemoryStore.
type Snapshot struct {
	Nodes   []SnapshotNode `json:"nodes"`
	Edges   []SnapshotEdge `json:"edges"`
	SavedAt time.Time      `json:"saved_at"`
}

// Snapshot copies the whole graph.
func (g *MemoryStore) Snapshot() *Snapshot {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	index := make(map[*memNode]int, len(g.nodes))
	s := &Snapshot{
		Nodes:   make([]SnapshotNode, 0, len(g.nodes)),
		Edges:   make([]SnapshotEdge, 0, len(g.rels)),
		SavedAt: time.Now(),
	}
	for i, n := range g.nodes {
		index[n] = i
		cp := n.toNode("")
		s.Nodes = append(s.Nodes, SnapshotNode{Labels: cp.Labels, UID: n.uid, Props: cp.Props})
	}
	for _, r := range g.rels {
		s.Edges = append(s.Edges, SnapshotEdge{Type: r.relType, Source: index[r.from], Target: index[r.to]})
	}
	return s
}

// Restore replaces the graph with the content of s.
func (g *MemoryStore) Restore(s *Snapshot) error {
	nodes := make([]*memNode, len(s.Nodes))
	for i, sn := range s.Nodes {
		if len(sn.Labels) == 0 {
			return fmt.Errorf("snapshot node %d has no label", i)
		}
		props := make(map[string]any, len(sn.Props)+1)
		for k, v := range sn.Props {
			props[k] = v
		}
		props[PropUID] = sn.UID
		nodes[i] = &memNode{labels: slices.Clone(sn.Labels), uid: sn.UID, props: props}
	}
	rels := make([]*memRel, 0, len(s.Edges))
	for i, se := range s.Edges {
		if se.Source < 0 || se.Source >= len(nodes) || se.Target < 0 || se.Target >= len(nodes) {
			return fmt.Errorf("snapshot edge %d points outside the node list", i)
		}
		rels = append(rels, &memRel{relType: se.Type, from: nodes[se.Source], to: nodes[se.Target]})
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.nodes = nodes
	g.rels = rels
	return nil
}
