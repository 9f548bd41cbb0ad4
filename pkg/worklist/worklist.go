package worklist

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/athapong/litgraph/pkg/scholar"
)

// Source records how a DOI entered the worklist.
type Source int

const (
	ManuallyAdded   Source = 1
	RandomlySampled Source = 2
)

// DOIEntry is one row of the worklist.
type DOIEntry struct {
	DOI       string `gorm:"primaryKey;size:255"`
	Source    Source `gorm:"not null;index"`
	CreatedAt time.Time
}

func (DOIEntry) TableName() string {
	return "doi_worklist"
}

// Worklist is the relational list of DOIs the pipeline seeds from.
type Worklist struct {
	db *gorm.DB
}

// Open connects with the named driver ("postgres" or "sqlite") and migrates the table.
func Open(driver, dsn string) (*Worklist, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown worklist driver %q", driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to open worklist: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the table.
func New(db *gorm.DB) (*Worklist, error) {
	if err := db.AutoMigrate(&DOIEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate worklist: %w", err)
	}
	return &Worklist{db: db}, nil
}

// Add inserts the DOIs, ignoring those already listed, and returns how many were new.
func (w *Worklist) Add(ctx context.Context, source Source, dois ...string) (int64, error) {
	entries := make([]DOIEntry, 0, len(dois))
	seen := make(map[string]bool, len(dois))
	for _, d := range dois {
		d = scholar.NormalizeDOI(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		entries = append(entries, DOIEntry{DOI: d, Source: source})
	}
	if len(entries) == 0 {
		return 0, nil
	}
	res := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entries)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to add DOIs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// All returns every listed DOI in insertion order.
func (w *Worklist) All(ctx context.Context) ([]string, error) {
	var dois []string
	err := w.db.WithContext(ctx).Model(&DOIEntry{}).
		Order("created_at, doi").
		Pluck("doi", &dois).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list DOIs: %w", err)
	}
	return dois, nil
}

// BySource returns the DOIs added with source.
func (w *Worklist) BySource(ctx context.Context, source Source) ([]string, error) {
	var dois []string
	err := w.db.WithContext(ctx).Model(&DOIEntry{}).
		Where("source = ?", source).
		Order("created_at, doi").
		Pluck("doi", &dois).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list DOIs for source %d: %w", source, err)
	}
	return dois, nil
}

// Close releases the underlying connection pool.
func (w *Worklist) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
