package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sandevgo/recall/internal/core"
)

const healthColumns = `id, session_id, retention_score, consistency_score, learning_velocity, context_relevance, computed_at`

func (s *Store) AppendHealth(ctx context.Context, rec core.HealthRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO health_records (`+healthColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.RetentionScore, rec.ConsistencyScore, rec.LearningVelocity, rec.ContextRelevance,
		toUnix(rec.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert health record: %w", err)
	}
	return nil
}

func (s *Store) LatestHealth(ctx context.Context, sessionID string) (*core.HealthRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+healthColumns+` FROM health_records WHERE session_id = ? ORDER BY seq DESC LIMIT 1`, sessionID)
	rec, err := scanHealth(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load health record: %w", err)
	}
	return &rec, nil
}

// HealthHistory returns the newest records first. limit <= 0 returns everything.
func (s *Store) HealthHistory(ctx context.Context, sessionID string, limit int) ([]core.HealthRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+healthColumns+` FROM health_records WHERE session_id = ? ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query health records: %w", err)
	}
	defer rows.Close()

	records := make([]core.HealthRecord, 0)
	for rows.Next() {
		rec, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanHealth(row scanner) (core.HealthRecord, error) {
	var (
		rec      core.HealthRecord
		computed int64
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.RetentionScore, &rec.ConsistencyScore,
		&rec.LearningVelocity, &rec.ContextRelevance, &computed); err != nil {
		return core.HealthRecord{}, err
	}
	rec.ComputedAt = fromUnix(computed)
	return rec, nil
}
