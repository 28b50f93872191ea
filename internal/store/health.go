package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ComponentStatus is the last reported state of one daemon component.
type ComponentStatus struct {
	Component string
	Status    string
	Detail    string
	UpdatedAt time.Time
}

// UpsertComponentHealth records the latest state for a component,
// overwriting any previous report.
func (s *Store) UpsertComponentHealth(ctx context.Context, component, status, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_health (component, status, detail, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(component) DO UPDATE SET
            status = excluded.status,
            detail = excluded.detail,
            updated_at = excluded.updated_at`,
		component, status, nullableString(detail), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert component health: %w", err)
	}
	return nil
}

// ComponentHealth returns the latest state of every component.
func (s *Store) ComponentHealth(ctx context.Context) ([]ComponentStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT component, status, detail, updated_at FROM system_health ORDER BY component ASC`)
	if err != nil {
		return nil, fmt.Errorf("query component health: %w", err)
	}
	defer rows.Close()

	var statuses []ComponentStatus
	for rows.Next() {
		var (
			cs        ComponentStatus
			detail    sql.NullString
			updatedAt sql.NullString
		)
		if err := rows.Scan(&cs.Component, &cs.Status, &detail, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan component health: %w", err)
		}
		cs.Detail = detail.String
		cs.UpdatedAt = parseTime(updatedAt)
		statuses = append(statuses, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate component health: %w", err)
	}
	return statuses, nil
}
