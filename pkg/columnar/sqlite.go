package columnar

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/athapong/litgraph/pkg/objectstore"
)

const metaSchema = `
	CREATE TABLE IF NOT EXISTS external_tables (
		name TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		columns_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS external_objects (
		table_name TEXT NOT NULL,
		object_key TEXT NOT NULL,
		rows INTEGER NOT NULL,
		PRIMARY KEY (table_name, object_key)
	);
`

// SQLiteEngine serves external tables from a local SQLite database.
// Before every query it imports tab-separated objects under each table's
// location that it has not imported yet, so committed objects become
// visible the way they would in an external-table query service.
type SQLiteEngine struct {
	db      *sql.DB
	objects objectstore.Store
	logger  logrus.FieldLogger

	syncMu sync.Mutex
}

var _ Engine = (*SQLiteEngine)(nil)

// OpenSQLite opens or creates the engine database at path.
func OpenSQLite(path string, objects objectstore.Store, logger logrus.FieldLogger) (*SQLiteEngine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open columnar database")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(metaSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create columnar metadata")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SQLiteEngine{db: db, objects: objects, logger: logger.WithField("engine", "sqlite")}, nil
}

// Close closes the database.
func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}

func (e *SQLiteEngine) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx, `SELECT count(*) FROM external_tables WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "check table %s", name)
	}
	return n > 0, nil
}

// CreateTable registers spec; creating an existing table is a no-op.
func (e *SQLiteEngine) CreateTable(ctx context.Context, spec TableSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	cols, err := json.Marshal(spec.Columns)
	if err != nil {
		return errors.Wrap(err, "encode columns")
	}

	defs := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		defs[i] = c.Name + " " + strings.ToUpper(c.Type)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin create table")
	}
	defer tx.Rollback()

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", spec.Name, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "create table %s", spec.Name)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO external_tables (name, location, columns_json) VALUES (?, ?, ?)`,
		spec.Name, spec.Location, string(cols)); err != nil {
		return errors.Wrapf(err, "register table %s", spec.Name)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit create table %s", spec.Name)
	}

	e.logger.WithFields(logrus.Fields{"table": spec.Name, "location": spec.Location}).Info("External table created")
	return nil
}

// DropTable removes the table definition and its imported rows; objects are untouched.
func (e *SQLiteEngine) DropTable(ctx context.Context, name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin drop table")
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{"DROP TABLE IF EXISTS " + name, nil},
		{`DELETE FROM external_tables WHERE name = ?`, []any{name}},
		{`DELETE FROM external_objects WHERE table_name = ?`, []any{name}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return errors.Wrapf(err, "drop table %s", name)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit drop table %s", name)
	}
	e.logger.WithField("table", name).Info("External table dropped")
	return nil
}

// Query runs query and collects every page.
func (e *SQLiteEngine) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var all []Row
	err := e.QueryPages(ctx, query, 1000, func(page []Row) error {
		all = append(all, page...)
		return nil
	}, args...)
	return all, err
}

// QueryPages runs query and hands rows to fn in pages of at most pageSize.
func (e *SQLiteEngine) QueryPages(ctx context.Context, query string, pageSize int, fn func(page []Row) error, args ...any) error {
	if pageSize <= 0 {
		pageSize = 1000
	}
	if err := e.sync(ctx); err != nil {
		return err
	}

	paged := fmt.Sprintf("SELECT * FROM (%s) LIMIT ? OFFSET ?", strings.TrimRight(strings.TrimSpace(query), ";"))
	for offset := 0; ; offset += pageSize {
		page, err := e.page(ctx, paged, append(append([]any{}, args...), pageSize, offset))
		if err != nil {
			return errors.Wrapf(err, "query %q", query)
		}
		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
	}
}

func (e *SQLiteEngine) page(ctx context.Context, query string, args []any) ([]Row, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type externalTable struct {
	name     string
	location string
	columns  []Column
}

// sync imports objects that appeared under table locations since the last query.
func (e *SQLiteEngine) sync(ctx context.Context) error {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	rows, err := e.db.QueryContext(ctx, `SELECT name, location, columns_json FROM external_tables`)
	if err != nil {
		return errors.Wrap(err, "list external tables")
	}
	var tables []externalTable
	for rows.Next() {
		var t externalTable
		var cols string
		if err := rows.Scan(&t.name, &t.location, &cols); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan external table")
		}
		if err := json.Unmarshal([]byte(cols), &t.columns); err != nil {
			rows.Close()
			return errors.Wrapf(err, "decode columns of %s", t.name)
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "list external tables")
	}

	for _, t := range tables {
		if err := e.syncTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *SQLiteEngine) syncTable(ctx context.Context, t externalTable) error {
	keys, err := e.objects.List(ctx, t.location)
	if err != nil {
		return errors.Wrapf(err, "list objects of %s", t.name)
	}

	loaded := make(map[string]bool)
	rows, err := e.db.QueryContext(ctx, `SELECT object_key FROM external_objects WHERE table_name = ?`, t.name)
	if err != nil {
		return errors.Wrapf(err, "list imported objects of %s", t.name)
	}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return err
		}
		loaded[k] = true
	}
	rows.Close()

	for _, key := range keys {
		if loaded[key] {
			continue
		}
		data, err := e.objects.Get(ctx, key)
		if err != nil {
			return errors.Wrapf(err, "fetch object %s", key)
		}
		n, err := e.importObject(ctx, t, key, data)
		if err != nil {
			return err
		}
		e.logger.WithFields(logrus.Fields{"table": t.name, "key": key, "rows": n}).Debug("Object imported")
	}
	return nil
}

func (e *SQLiteEngine) importObject(ctx context.Context, t externalTable, key string, data []byte) (int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	spec := TableSpec{Name: t.name, Columns: t.columns}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(spec.columnNames(), ", "), placeholders)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin import")
	}
	defer tx.Rollback()

	n := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrapf(err, "parse object %s", key)
		}
		if len(rec) != len(t.columns) {
			e.logger.WithFields(logrus.Fields{"key": key, "fields": len(rec), "expected": len(t.columns)}).Warn("Skipping malformed row")
			continue
		}
		args := make([]any, len(rec))
		for i, v := range rec {
			if v == "" {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return 0, errors.Wrapf(err, "import row of %s", key)
		}
		n++
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO external_objects (table_name, object_key, rows) VALUES (?, ?, ?)`, t.name, key, n); err != nil {
		return 0, errors.Wrapf(err, "record object %s", key)
	}
	return n, errors.Wrapf(tx.Commit(), "commit import of %s", key)
}
