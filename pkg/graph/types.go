package graph

import (
	"context"
	"fmt"
	"regexp"
)

// Node labels used by the pipeline.
const (
	LabelPublication = "PUBLICATION"
	LabelSentence    = "SENTENCE"
	LabelLexicalForm = "LEXICAL_FORM"
	LabelNamedEntity = "NAMED_ENTITY"
	LabelTrait       = "TRAIT"

	LabelFact        = "FACT"
	LabelPolarity    = "POLARITY"
	LabelModality    = "MODALITY"
	LabelAttribution = "ATTRIBUTION"
)

// Relationship types used by the pipeline.
const (
	RelPartOfSentence     = "IS_PART_OF_SENTENCE"
	RelAppearsIn          = "APPEARS_IN"
	RelAppearsInLowercase = "APPEARS_IN_LOWERCASE"
	RelHasLexicalForm     = "HAS_LF"
	RelCooccursWith       = "COOCCURS_WITH"
	RelSynonymWith        = "SYNONYM_WITH"

	RelHasFact         = "HAS_FACT"
	RelFactAppearsIn   = "FACT_APPEARS_IN"
	RelHasPolarity     = "HAS_POLARITY"
	RelHasModality     = "HAS_MODALITY"
	RelHasAttribution  = "HAS_ATTRIBUTION"
	RelOpenRelatedWith = "OIE_RELATED_WITH"
)

// Property names with a fixed meaning.
const (
	PropUID         = "uid"
	PropInitialized = "initialized"
)

// NodeRef addresses a node by its primary label and uid. Nodes are never
// addressed by storage-engine ids.
type NodeRef struct {
	Label string
	UID   string
}

func (r NodeRef) String() string {
	return r.Label + "/" + r.UID
}

// Node is a graph node as seen by the pipeline.
type Node struct {
	Label  string
	UID    string
	Labels []string
	Props  map[string]any
}

// Ref returns the address of n.
func (n *Node) Ref() NodeRef {
	return NodeRef{Label: n.Label, UID: n.UID}
}

// StringProp returns a string property or "".
func (n *Node) StringProp(key string) string {
	if n == nil || n.Props == nil {
		return ""
	}
	if v, ok := n.Props[key].(string); ok {
		return v
	}
	return ""
}

// Relationship is a typed edge between two nodes.
type Relationship struct {
	Type string
	From NodeRef
	To   NodeRef
}

// Direction selects which relationships of a node an operation touches.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// DerivationRule links every pair of distinct Label nodes that share a hub
// node through a Via relationship. Rewriting first removes every existing
// relationship of type Derived.
//
// With HubOutgoing false the pattern is (a)-[:Via]->(hub)<-[:Via]-(b);
// with HubOutgoing true it is (a)<-[:Via]-(hub)-[:Via]->(b).
// Hubs carrying ExcludeHubLabel are ignored.
type DerivationRule struct {
	Derived         string
	Label           string
	Via             string
	HubLabel        string
	HubOutgoing     bool
	ExcludeHubLabel string
}

// CooccurrenceRule links lexical forms appearing in the same sentence.
var CooccurrenceRule = DerivationRule{
	Derived:  RelCooccursWith,
	Label:    LabelLexicalForm,
	Via:      RelAppearsIn,
	HubLabel: LabelSentence,
}

// SynonymyRule links lexical forms of the same non-trait named entity.
var SynonymyRule = DerivationRule{
	Derived:         RelSynonymWith,
	Label:           LabelLexicalForm,
	Via:             RelHasLexicalForm,
	HubLabel:        LabelNamedEntity,
	HubOutgoing:     true,
	ExcludeHubLabel: LabelTrait,
}

// Store is the graph database seen through uid addressing.
// CreateNode is not required to be idempotent; Upserter provides that.
type Store interface {
	FindNodes(ctx context.Context, ref NodeRef) ([]*Node, error)
	// FindNodesFold is FindNodes with the uid compared case-insensitively.
	FindNodesFold(ctx context.Context, ref NodeRef) ([]*Node, error)
	CreateNode(ctx context.Context, ref NodeRef) (*Node, error)
	SetProperty(ctx context.Context, ref NodeRef, key string, value any) error
	AddLabel(ctx context.Context, ref NodeRef, label string) error
	FindRelationships(ctx context.Context, from, to NodeRef, relType string) ([]*Relationship, error)
	CreateRelationship(ctx context.Context, from, to NodeRef, relType string) (*Relationship, error)
	DeleteRelationships(ctx context.Context, ref NodeRef, dir Direction, relTypes ...string) (int64, error)
	CountByLabel(ctx context.Context, label string) (int64, error)
	CountByType(ctx context.Context, relType string) (int64, error)
	// ClaimNodes returns nodes of label and sets initialized=true on them in
	// the same operation. With onlyUninitialized it skips nodes already set.
	ClaimNodes(ctx context.Context, label string, onlyUninitialized bool) ([]*Node, error)
	Derive(ctx context.Context, rule DerivationRule) (int64, error)
	Close(ctx context.Context) error
}

var name = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether s can be used as a label, type or property key.
func ValidName(s string) bool {
	return name.MatchString(s)
}

// CheckNames returns an error for the first name that is not a valid identifier.
func CheckNames(names ...string) error {
	for _, n := range names {
		if !ValidName(n) {
			return fmt.Errorf("invalid graph identifier %q", n)
		}
	}
	return nil
}

// Validate checks every identifier in the rule.
func (r DerivationRule) Validate() error {
	names := []string{r.Derived, r.Label, r.Via, r.HubLabel}
	if r.ExcludeHubLabel != "" {
		names = append(names, r.ExcludeHubLabel)
	}
	return CheckNames(names...)
}
