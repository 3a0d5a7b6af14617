package database

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// upSuffix marks forward migrations. Down files are kept beside them for
// manual rollback and are never run here.
const upSuffix = ".up.sql"

// Migration is one forward schema step, loaded from a file named
// YYYYMMDD_HHMMSS_name.up.sql.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	UpSQL   string
}

// Migrate runs every *.up.sql at the root of fsys that schema_migrations
// does not list yet, oldest first. Each migration commits on its own, so a
// failure leaves the earlier ones applied and the next run resumes at the
// one that failed.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	pending, err := loadMigrations(fsys)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	done, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if _, ok := done[m.Version]; ok {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// AppliedCount returns the number of rows in schema_migrations.
func (db *DB) AppliedCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting migrations: %w", err)
	}
	return n, nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("reading applied migrations: %w", err)
		}
		versions[v] = struct{}{}
	}
	return versions, rows.Err()
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// loadMigrations returns the up migrations at the root of fsys sorted by
// version. A nil fsys has none.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	var out []Migration
	for _, e := range entries {
		version, ok := parseMigrationFilename(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: extractMigrationName(e.Name()), UpSQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return out, nil
}

// splitMigrationFilename cuts "20260118_120000_presence_history.up.sql"
// into date, time and name. name is empty when the file has none.
func splitMigrationFilename(filename string) (date, clock, name string, ok bool) {
	base, isUp := strings.CutSuffix(filename, upSuffix)
	if !isUp {
		return "", "", "", false
	}
	date, rest, ok := strings.Cut(base, "_")
	if !ok {
		return "", "", "", false
	}
	clock, name, _ = strings.Cut(rest, "_")
	return date, clock, name, true
}

// parseMigrationFilename returns the YYYYMMDD_HHMMSS version of an up
// migration; down migrations and other files are rejected.
func parseMigrationFilename(filename string) (string, bool) {
	date, clock, _, ok := splitMigrationFilename(filename)
	if !ok {
		return "", false
	}
	return date + "_" + clock, true
}

// extractMigrationName returns the part after the version, falling back to
// the whole base name.
func extractMigrationName(filename string) string {
	if _, _, name, ok := splitMigrationFilename(filename); ok && name != "" {
		return name
	}
	return strings.TrimSuffix(filename, upSuffix)
}
