// Package journal persists upload run reports in a database so past
// runs can be inspected after the CI logs are gone. It is a host-side
// recorder fed by reports; the upload pipeline itself never depends on
// it.
package journal

import (
	"context"
	"fmt"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal provides persistence for upload run records.
type Journal interface {
	Start(ctx context.Context) error
	Stop() error

	// RecordRun stores a finished run with its file records.
	RecordRun(ctx context.Context, run *Run) error

	// RecentRuns returns up to limit runs, newest first, optionally
	// with their per-file records.
	RecentRuns(ctx context.Context, limit int, withFiles bool) ([]Run, error)
}

// Compile-time interface check.
var _ Journal = (*journal)(nil)

type journal struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewJournal creates a Journal backed by the configured database driver.
func NewJournal(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Journal {
	return &journal{
		log: log.WithField("component", "journal"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (j *journal) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch j.cfg.Driver {
	case config.DatabaseDriverSQLite:
		dialector = sqlite.Open(j.cfg.SQLite.Path)
	case config.DatabaseDriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			j.cfg.Postgres.Host,
			j.cfg.Postgres.Port,
			j.cfg.Postgres.User,
			j.cfg.Postgres.Password,
			j.cfg.Postgres.Database,
			j.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", j.cfg.Driver)
	}

	j.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := j.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&FileRecord{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	j.log.WithField("driver", j.cfg.Driver).Debug("Journal database connected")

	return nil
}

// Stop closes the underlying database connection.
func (j *journal) Stop() error {
	if j.db == nil {
		return nil
	}

	sqlDB, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (j *journal) RecordRun(ctx context.Context, run *Run) error {
	if err := j.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("recording run: %w", err)
	}

	return nil
}

func (j *journal) RecentRuns(
	ctx context.Context, limit int, withFiles bool,
) ([]Run, error) {
	q := j.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit)

	if withFiles {
		q = q.Preload("Files")
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}
