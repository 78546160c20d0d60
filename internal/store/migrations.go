package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/catalogmigrate/internal/schema"
)

// AppliedMigration is a row of the migrations table.
type AppliedMigration struct {
	ID        string    `json:"id" yaml:"id"`
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`
	Batch     string    `json:"batch" yaml:"batch"`
}

type migrationRow struct {
	ID        string `db:"id"`
	AppliedAt string `db:"applied_at"`
	Batch     string `db:"batch"`
}

// AppliedMigrations returns every applied migration in ascending id order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	return appliedMigrations(ctx, s.db)
}

// AppliedMigrationIDs returns the set of applied migration ids.
func (s *Store) AppliedMigrationIDs(ctx context.Context) (map[string]bool, error) {
	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(applied))
	for _, m := range applied {
		ids[m.ID] = true
	}
	return ids, nil
}

func appliedMigrations(ctx context.Context, q sqlx.QueryerContext) ([]AppliedMigration, error) {
	var rows []migrationRow
	if err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, applied_at, batch FROM migrations
		ORDER BY id COLLATE BINARY ASC
	`); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	out := make([]AppliedMigration, 0, len(rows))
	for _, row := range rows {
		at, err := schema.ParseDate(row.AppliedAt)
		if err != nil {
			return nil, fmt.Errorf("migration %q: applied_at: %w", row.ID, err)
		}
		out = append(out, AppliedMigration{ID: row.ID, AppliedAt: at, Batch: row.Batch})
	}
	return out, nil
}

// IsApplied reports whether a migration id is recorded as applied.
func (tx *Tx) IsApplied(ctx context.Context, id string) (bool, error) {
	var count int
	if err := sqlx.GetContext(ctx, tx.q, &count, `SELECT COUNT(*) FROM migrations WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check migration %q: %w", id, err)
	}
	return count > 0, nil
}

// MarkApplied records a migration as applied in batch.
func (tx *Tx) MarkApplied(ctx context.Context, id, batch string) error {
	_, err := tx.q.ExecContext(ctx, `
		INSERT INTO migrations (id, applied_at, batch) VALUES (?, ?, ?)
	`, id, schema.FormatDate(tx.now().UTC()), batch)
	if err != nil {
		return fmt.Errorf("mark migration %q applied: %w", id, err)
	}
	return nil
}

// MarkReverted removes a migration's applied record.
// Returns *NotFoundError if it was not applied.
func (tx *Tx) MarkReverted(ctx context.Context, id string) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM migrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark migration %q reverted: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark migration %q reverted: rows affected: %w", id, err)
	}
	if n == 0 {
		return &NotFoundError{Kind: "migration", Key: id}
	}
	return nil
}
