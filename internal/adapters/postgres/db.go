package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const pingTimeout = 5 * time.Second

// Connect opens the GORM connection pool against Postgres and verifies it
// with a bounded ping before handing it out. TranslateError is on so the
// repositories can match gorm.ErrDuplicatedKey instead of driver errors.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql pool: %w", err)
	}
	if maxConns > 0 {
		pool.SetMaxOpenConns(int(maxConns))
		pool.SetMaxIdleConns(int(maxConns) / 2)
	}
	pool.SetConnMaxIdleTime(15 * time.Minute)
	pool.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.InfoContext(ctx, "postgres connected",
		slog.Int("max_conns", int(maxConns)))
	return db, nil
}

// RunMigrations applies the embedded schema files in lexical order. The
// files are idempotent (CREATE TABLE IF NOT EXISTS and friends), so running
// the full set on every boot is safe and keeps binary and schema in step.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	names, err := migrationNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		slog.InfoContext(ctx, "migration applied", slog.String("migration", name))
	}
	slog.InfoContext(ctx, "schema up to date", slog.Int("migrations", len(names)))
	return nil
}

func migrationNames() ([]string, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
