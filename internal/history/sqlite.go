package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ErrMACRequired is returned when an operation is missing the device MAC.
var ErrMACRequired = errors.New("history: mac is required")

// SQLiteRepository implements Repository on the presence_history table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a transition row.
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.MAC == "" {
		return ErrMACRequired
	}
	if e.ObservedAt.IsZero() {
		e.ObservedAt = time.Now()
	}

	connected := 0
	if e.Connected {
		connected = 1
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO presence_history (router_id, mac, name, ip_address, connected, event, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RouterID,
		e.MAC,
		e.Name,
		e.IP,
		connected,
		e.Event,
		e.ObservedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting presence history: %w", err)
	}
	return nil
}

// GetHistory returns recent transitions for mac, ordered newest first.
func (r *SQLiteRepository) GetHistory(ctx context.Context, mac string, limit int) ([]Entry, error) {
	if mac == "" {
		return nil, ErrMACRequired
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, router_id, mac, name, ip_address, connected, event, observed_at
		 FROM presence_history
		 WHERE mac = ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		mac,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying presence history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var connected int
		var observedAt string

		if err := rows.Scan(&e.ID, &e.RouterID, &e.MAC, &e.Name, &e.IP, &connected, &e.Event, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning presence history: %w", err)
		}
		e.Connected = connected == 1

		ts, err := time.Parse(time.RFC3339, observedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing observed_at: %w", err)
		}
		e.ObservedAt = ts

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presence history: %w", err)
	}

	return entries, nil
}

// Prune deletes transitions older than olderThan and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, "DELETE FROM presence_history WHERE observed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting presence history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
