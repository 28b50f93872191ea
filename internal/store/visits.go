package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"perch/internal/detection"
	"perch/internal/visit"
)

const visitColumns = "id, session_id, started_at, ended_at, status, species, species_confidence, summary, bird_count, best_capture_id"

// CreateVisit records a new visit. Retrying with the same visit ID is a
// no-op, so an engine retry after a partial failure cannot duplicate rows.
func (s *Store) CreateVisit(ctx context.Context, v *visit.Visit) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO visits (
            id, session_id, started_at, ended_at, status, species,
            species_confidence, summary, bird_count, best_capture_id,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.SessionID,
		formatTime(v.StartedAt),
		nullableTime(v.EndedAt),
		string(v.Status),
		nullableString(v.Species),
		nullableString(v.Confidence),
		nullableString(v.Summary),
		v.BirdCount,
		nullableString(v.BestCaptureID),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// AppendCapture records one capture. The primary key and the per-visit index
// constraint make retries idempotent.
func (s *Store) AppendCapture(ctx context.Context, c visit.Capture) error {
	detections, err := json.Marshal(c.Detections)
	if err != nil {
		return fmt.Errorf("encode detections: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO captures (
            id, visit_id, capture_index, captured_at, image_path, detections_json
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.VisitID,
		c.Index,
		formatTime(c.Timestamp),
		c.ImagePath,
		string(detections),
	)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// CloseVisit marks a visit as ended and awaiting analysis.
func (s *Store) CloseVisit(ctx context.Context, visitID string, endedAt time.Time) error {
	return s.updateVisit(ctx,
		`UPDATE visits SET ended_at = ?, status = ?, updated_at = ? WHERE id = ?`,
		formatTime(endedAt), string(visit.StatusAnalyzing), formatTime(time.Now()), visitID)
}

// SetVisitStatus updates only the lifecycle status.
func (s *Store) SetVisitStatus(ctx context.Context, visitID string, status visit.Status) error {
	return s.updateVisit(ctx,
		`UPDATE visits SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), visitID)
}

// SaveAnalysis writes the classification outcome and terminal status for a
// visit. Re-running with identical values leaves the row unchanged.
func (s *Store) SaveAnalysis(ctx context.Context, visitID string, status visit.Status, species, confidence, summary string, birdCount int, bestCaptureID string) error {
	return s.updateVisit(ctx,
		`UPDATE visits SET status = ?, species = ?, species_confidence = ?,
            summary = ?, bird_count = ?, best_capture_id = ?, updated_at = ?
         WHERE id = ?`,
		string(status),
		nullableString(species),
		nullableString(confidence),
		nullableString(summary),
		birdCount,
		nullableString(bestCaptureID),
		formatTime(time.Now()),
		visitID,
	)
}

func (s *Store) updateVisit(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update visit rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update visit: no such visit")
	}
	return nil
}

// VisitByID loads one visit with its captures.
func (s *Store) VisitByID(ctx context.Context, visitID string) (*visit.Visit, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+visitColumns+" FROM visits WHERE id = ?", visitID)
	v, err := scanVisit(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachCaptures(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// VisitsByStatus returns visits in the given status, oldest first, captures
// included. The daemon uses it at startup to requeue interrupted analyses.
func (s *Store) VisitsByStatus(ctx context.Context, status visit.Status) ([]*visit.Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+visitColumns+" FROM visits WHERE status = ? ORDER BY started_at ASC",
		string(status))
	if err != nil {
		return nil, fmt.Errorf("query visits by status: %w", err)
	}
	defer rows.Close()

	visits, err := collectVisits(rows)
	if err != nil {
		return nil, err
	}
	for _, v := range visits {
		if err := s.attachCaptures(ctx, v); err != nil {
			return nil, err
		}
	}
	return visits, nil
}

// RecentVisits returns the newest visits first, without captures.
func (s *Store) RecentVisits(ctx context.Context, limit int) ([]*visit.Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+visitColumns+" FROM visits ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent visits: %w", err)
	}
	defer rows.Close()
	return collectVisits(rows)
}

// CapturesForVisit returns a visit's captures ordered by index.
func (s *Store) CapturesForVisit(ctx context.Context, visitID string) ([]visit.Capture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, visit_id, capture_index, captured_at, image_path, detections_json
         FROM captures WHERE visit_id = ? ORDER BY capture_index ASC`, visitID)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var captures []visit.Capture
	for rows.Next() {
		var (
			c          visit.Capture
			capturedAt sql.NullString
			detections sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.VisitID, &c.Index, &capturedAt, &c.ImagePath, &detections); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		c.Timestamp = parseTime(capturedAt)
		if detections.Valid && detections.String != "" {
			var decoded []detection.Detection
			if err := json.Unmarshal([]byte(detections.String), &decoded); err != nil {
				return nil, fmt.Errorf("decode detections for capture %s: %w", c.ID, err)
			}
			c.Detections = decoded
		}
		captures = append(captures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captures: %w", err)
	}
	return captures, nil
}

func (s *Store) attachCaptures(ctx context.Context, v *visit.Visit) error {
	captures, err := s.CapturesForVisit(ctx, v.ID)
	if err != nil {
		return err
	}
	v.Captures = captures
	return nil
}

func scanVisit(scanner interface{ Scan(dest ...any) error }) (*visit.Visit, error) {
	var (
		v          visit.Visit
		endedAt    sql.NullString
		startedAt  sql.NullString
		status     string
		species    sql.NullString
		confidence sql.NullString
		summary    sql.NullString
		bestID     sql.NullString
	)
	if err := scanner.Scan(
		&v.ID,
		&v.SessionID,
		&startedAt,
		&endedAt,
		&status,
		&species,
		&confidence,
		&summary,
		&v.BirdCount,
		&bestID,
	); err != nil {
		return nil, fmt.Errorf("scan visit: %w", err)
	}
	v.StartedAt = parseTime(startedAt)
	v.EndedAt = parseTime(endedAt)
	v.Status = visit.Status(status)
	v.Species = species.String
	v.Confidence = confidence.String
	v.Summary = summary.String
	v.BestCaptureID = bestID.String
	return &v, nil
}

func collectVisits(rows *sql.Rows) ([]*visit.Visit, error) {
	var visits []*visit.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return visits, nil
}
