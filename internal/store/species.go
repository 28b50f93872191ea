package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SpeciesStat is one row of the species roll-up.
type SpeciesStat struct {
	Species    string
	VisitCount int
	FirstSeen  time.Time
	LastSeen   time.Time
}

// RecordSpecies bumps the visit count for a classified species and tracks
// the first and last sighting times.
func (s *Store) RecordSpecies(ctx context.Context, species string, seenAt time.Time) error {
	if species == "" {
		return nil
	}
	ts := formatTime(seenAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO species_stats (species, visit_count, first_seen, last_seen)
         VALUES (?, 1, ?, ?)
         ON CONFLICT(species) DO UPDATE SET
            visit_count = visit_count + 1,
            last_seen = excluded.last_seen`,
		species, ts, ts)
	if err != nil {
		return fmt.Errorf("record species: %w", err)
	}
	return nil
}

// SpeciesStats returns the roll-up ordered by visit count descending.
func (s *Store) SpeciesStats(ctx context.Context) ([]SpeciesStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT species, visit_count, first_seen, last_seen
         FROM species_stats ORDER BY visit_count DESC, species ASC`)
	if err != nil {
		return nil, fmt.Errorf("query species stats: %w", err)
	}
	defer rows.Close()

	var stats []SpeciesStat
	for rows.Next() {
		var (
			stat      SpeciesStat
			firstSeen sql.NullString
			lastSeen  sql.NullString
		)
		if err := rows.Scan(&stat.Species, &stat.VisitCount, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan species stat: %w", err)
		}
		stat.FirstSeen = parseTime(firstSeen)
		stat.LastSeen = parseTime(lastSeen)
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate species stats: %w", err)
	}
	return stats, nil
}
