package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/athapong/litgraph/pkg/graph"
)

// SnapshotStore persists an in-memory graph between runs
type SnapshotStore interface {
	// Save writes the current content of g
	Save(ctx context.Context, g *graph.MemoryStore) error

	// Load restores g from storage; a missing snapshot leaves g untouched
	Load(ctx context.Context, g *graph.MemoryStore) error
}

// JSONSnapshotStore implements SnapshotStore using a JSON file
type JSONSnapshotStore struct {
	filePath string
}

// NewJSONSnapshotStore creates a new JSON snapshot store
func NewJSONSnapshotStore(filePath string) *JSONSnapshotStore {
	return &JSONSnapshotStore{
		filePath: filePath,
	}
}

// Save stores the graph as JSON
func (s *JSONSnapshotStore) Save(ctx context.Context, g *graph.MemoryStore) error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create snapshot dir")
	}

	data, err := json.MarshalIndent(g.Snapshot(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	return errors.Wrap(os.Rename(tmp, s.filePath), "replace snapshot")
}

// Load reads the graph from the JSON file
func (s *JSONSnapshotStore) Load(ctx context.Context, g *graph.MemoryStore) error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read snapshot")
	}

	var snap graph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	return g.Restore(&snap)
}
