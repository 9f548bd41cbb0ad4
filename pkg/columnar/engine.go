package columnar

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Column is one typed column of an external table.
type Column struct {
	Name string
	Type string
}

// TableSpec describes a table whose rows live in delimited objects under Location.
type TableSpec struct {
	Name     string
	Location string
	Columns  []Column
}

// Row is one result row; SQL NULL reads as the empty string.
type Row []string

// Engine is the query service used by the publication store.
type Engine interface {
	TableExists(ctx context.Context, name string) (bool, error)
	CreateTable(ctx context.Context, spec TableSpec) error
	DropTable(ctx context.Context, name string) error
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	QueryPages(ctx context.Context, query string, pageSize int, fn func(page []Row) error, args ...any) error
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks names and types before they are interpolated into DDL.
func (s TableSpec) Validate() error {
	if !identifier.MatchString(s.Name) {
		return fmt.Errorf("invalid table name %q", s.Name)
	}
	if s.Location == "" {
		return fmt.Errorf("table %s: empty location", s.Name)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", s.Name)
	}
	for _, c := range s.Columns {
		if !identifier.MatchString(c.Name) {
			return fmt.Errorf("table %s: invalid column name %q", s.Name, c.Name)
		}
		switch strings.ToUpper(c.Type) {
		case "INTEGER", "TEXT", "REAL":
		default:
			return fmt.Errorf("table %s: unsupported type %q for column %s", s.Name, c.Type, c.Name)
		}
	}
	return nil
}

func (s TableSpec) columnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
