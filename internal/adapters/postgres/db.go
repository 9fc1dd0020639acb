package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const sqliteScheme = "sqlite://"

func dbLogger() *slog.Logger {
	return slog.Default().With("module", "postgres", "layer", "adapter")
}

// Connect opens a pooled connection and pings it. A sqlite:// URL selects the embedded SQLite
// driver for local runs and tests. Anything else goes to Postgres.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if file, ok := strings.CutPrefix(databaseURL, sqliteScheme); ok {
		dialector = sqlite.Open(file)
	} else {
		dialector = postgres.Open(databaseURL)
	}
	db, err := gorm.Open(dialector, &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	if maxConns > 0 {
		pool.SetMaxOpenConns(int(maxConns))
		pool.SetMaxIdleConns(max(1, int(maxConns)/2))
	}
	pool.SetConnMaxIdleTime(15 * time.Minute)
	pool.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	dbLogger().InfoContext(ctx, "database connected",
		"operation", "connect", "outcome", "success", "dialect", db.Dialector.Name())
	return db, nil
}

// schemaMigration records applied migration files.
type schemaMigration struct {
	Name      string    `gorm:"column:name;primaryKey"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (schemaMigration) TableName() string { return "schema_migrations" }

// RunMigrations brings the schema up to date. Postgres applies each embedded SQL file once, in
// name order, recording it in schema_migrations. SQLite is built from the models.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)
	if db.Dialector.Name() == "sqlite" {
		if err := db.AutoMigrate(allModels()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	if err := db.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("migration ledger: %w", err)
	}
	var applied []string
	if err := db.Model(&schemaMigration{}).Pluck("name", &applied).Error; err != nil {
		return fmt.Errorf("read migration ledger: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	ran := 0
	for _, file := range files {
		name := path.Base(file)
		if done[name] {
			continue
		}
		raw, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := applyMigration(ctx, db, name, string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		ran++
		dbLogger().InfoContext(ctx, "migration applied",
			"operation", "apply_migration", "outcome", "success", "migration", name)
	}
	dbLogger().InfoContext(ctx, "schema up to date",
		"operation", "run_migrations", "outcome", "success", "applied_count", ran, "known_count", len(files))
	return nil
}

// applyMigration runs one file and its ledger row in a single transaction. It goes through
// database/sql because files hold several statements, which a prepared statement cannot take.
func applyMigration(ctx context.Context, db *gorm.DB, name, script string) error {
	pool, err := db.DB()
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)", name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
