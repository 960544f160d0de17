package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

const factColumns = `session_id, fact_type, category, value, confidence, priority,
	confirmation_count, contradiction_log, created_at, updated_at`

// Upsert merges a candidate into the stored fact inside a single transaction.
func (s *Store) Upsert(ctx context.Context, sessionID string, cand core.Candidate, now time.Time) (core.FactUpdateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.FactUpdateResult{}, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FactUpdateResult{}, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}
	if err != nil {
		return core.FactUpdateResult{}, fmt.Errorf("failed to check session: %w", err)
	}

	existing, err := getFact(ctx, tx, sessionID, cand.FactType)
	if err != nil {
		return core.FactUpdateResult{}, err
	}

	next, res, err := s.policy.Merge(existing, sessionID, cand, now)
	if err != nil {
		return core.FactUpdateResult{}, err
	}

	logJSON, err := json.Marshal(nonNil(next.ContradictionLog))
	if err != nil {
		return core.FactUpdateResult{}, fmt.Errorf("failed to marshal contradiction log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO facts (`+factColumns+`, priority_rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, fact_type) DO UPDATE SET
			category = excluded.category,
			value = excluded.value,
			confidence = excluded.confidence,
			priority = excluded.priority,
			priority_rank = excluded.priority_rank,
			confirmation_count = excluded.confirmation_count,
			contradiction_log = excluded.contradiction_log,
			updated_at = excluded.updated_at`,
		next.SessionID, next.FactType, next.Category, next.Value, next.Confidence, next.Priority,
		next.ConfirmationCount, string(logJSON), toUnix(next.CreatedAt), toUnix(next.UpdatedAt),
		next.Priority.Rank(),
	)
	if err != nil {
		return core.FactUpdateResult{}, fmt.Errorf("failed to store fact: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.FactUpdateResult{}, fmt.Errorf("failed to commit fact: %w", err)
	}

	log.FromCtx(ctx).Debug().
		Str("fact_type", next.FactType).
		Str("outcome", string(res.Outcome)).
		Float64("confidence", next.Confidence).
		Msg("fact stored")
	return res, nil
}

func (s *Store) Get(ctx context.Context, sessionID, factType string) (*core.Fact, error) {
	return getFact(ctx, s.db, sessionID, factType)
}

func (s *Store) List(ctx context.Context, sessionID string, categories ...core.Category) ([]core.Fact, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownSession, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check session: %w", err)
	}

	query := `SELECT ` + factColumns + ` FROM facts WHERE session_id = ?`
	args := []any{sessionID}
	if len(categories) > 0 {
		query += ` AND category IN (?` + strings.Repeat(", ?", len(categories)-1) + `)`
		for _, c := range categories {
			args = append(args, string(c))
		}
	}
	query += ` ORDER BY priority_rank DESC, confidence DESC, fact_type ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	facts := make([]core.Fact, 0)
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *Store) Maintain(ctx context.Context, sessionID string, rules core.MaintenanceRules, now time.Time) (core.MaintenanceResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.MaintenanceResult{}, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+factColumns+` FROM facts WHERE session_id = ?`, sessionID)
	if err != nil {
		return core.MaintenanceResult{}, fmt.Errorf("failed to query facts: %w", err)
	}
	var facts []core.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			rows.Close()
			return core.MaintenanceResult{}, fmt.Errorf("failed to scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return core.MaintenanceResult{}, err
	}

	var result core.MaintenanceResult
	for i := range facts {
		f := &facts[i]
		prune, boosted := rules.Apply(f, now)
		switch {
		case prune:
			if _, err := tx.ExecContext(ctx, `DELETE FROM facts WHERE session_id = ? AND fact_type = ?`, sessionID, f.FactType); err != nil {
				return core.MaintenanceResult{}, fmt.Errorf("failed to prune fact: %w", err)
			}
			result.Pruned++
		case boosted:
			if _, err := tx.ExecContext(ctx, `UPDATE facts SET confidence = ?, updated_at = ? WHERE session_id = ? AND fact_type = ?`,
				f.Confidence, toUnix(f.UpdatedAt), sessionID, f.FactType); err != nil {
				return core.MaintenanceResult{}, fmt.Errorf("failed to boost fact: %w", err)
			}
			result.Boosted++
		}
	}

	if err := tx.Commit(); err != nil {
		return core.MaintenanceResult{}, fmt.Errorf("failed to commit maintenance: %w", err)
	}
	return result, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getFact(ctx context.Context, q querier, sessionID, factType string) (*core.Fact, error) {
	row := q.QueryRowContext(ctx, `SELECT `+factColumns+` FROM facts WHERE session_id = ? AND fact_type = ?`, sessionID, factType)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fact: %w", err)
	}
	return &f, nil
}

func scanFact(row scanner) (core.Fact, error) {
	var (
		f                          core.Fact
		category, priority, logStr string
		created, updated           int64
	)
	err := row.Scan(&f.SessionID, &f.FactType, &category, &f.Value, &f.Confidence, &priority,
		&f.ConfirmationCount, &logStr, &created, &updated)
	if err != nil {
		return core.Fact{}, err
	}

	f.Category = core.Category(category)
	f.Priority = core.Priority(priority)
	f.CreatedAt = fromUnix(created)
	f.UpdatedAt = fromUnix(updated)

	if logStr != "" && logStr != "[]" {
		if err := json.Unmarshal([]byte(logStr), &f.ContradictionLog); err != nil {
			return core.Fact{}, fmt.Errorf("failed to unmarshal contradiction log: %w", err)
		}
	}
	return f, nil
}

func nonNil(log []core.Contradiction) []core.Contradiction {
	if log == nil {
		return []core.Contradiction{}
	}
	return log
}
