package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sandevgo/recall/internal/core"
)

const sessionColumns = `id, stage, trust_level, message_count_since_reset, total_messages,
	reset_count, context_handle, context_state, created_at, updated_at, last_reset_at`

func (s *Store) CreateSession(ctx context.Context, sess core.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Stage, sess.TrustLevel, sess.MessageCountSinceReset, sess.TotalMessages,
		sess.ResetCount, sess.ContextHandle, sess.ContextState,
		toUnix(sess.CreatedAt), toUnix(sess.UpdatedAt), nullableTime(sess),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (core.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Session{}, fmt.Errorf("%w: %s", core.ErrUnknownSession, id)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

func (s *Store) SaveSession(ctx context.Context, sess core.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			stage = ?, trust_level = ?, message_count_since_reset = ?, total_messages = ?,
			reset_count = ?, context_handle = ?, context_state = ?, updated_at = ?, last_reset_at = ?
		WHERE id = ?`,
		sess.Stage, sess.TrustLevel, sess.MessageCountSinceReset, sess.TotalMessages,
		sess.ResetCount, sess.ContextHandle, sess.ContextState, toUnix(sess.UpdatedAt), nullableTime(sess),
		sess.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrUnknownSession, sess.ID)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]core.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []core.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (core.Session, error) {
	var (
		sess             core.Session
		created, updated int64
		lastReset        sql.NullInt64
		stage, state     string
	)
	err := row.Scan(&sess.ID, &stage, &sess.TrustLevel, &sess.MessageCountSinceReset, &sess.TotalMessages,
		&sess.ResetCount, &sess.ContextHandle, &state, &created, &updated, &lastReset)
	if err != nil {
		return core.Session{}, err
	}

	sess.Stage = core.Stage(stage)
	sess.ContextState = core.ContextState(state)
	sess.CreatedAt = fromUnix(created)
	sess.UpdatedAt = fromUnix(updated)
	if lastReset.Valid {
		t := fromUnix(lastReset.Int64)
		sess.LastResetAt = &t
	}
	return sess, nil
}

func nullableTime(sess core.Session) sql.NullInt64 {
	if sess.LastResetAt == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*sess.LastResetAt), Valid: true}
}
