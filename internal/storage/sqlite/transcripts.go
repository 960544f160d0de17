package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

func (s *Store) AddMessage(ctx context.Context, handle string, msg core.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (handle, role, content, created_at) VALUES (?, ?, ?, ?)`,
		handle, msg.Role, msg.Content, toUnix(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessages returns the system messages of a context followed by its last limit messages.
func (s *Store) GetMessages(ctx context.Context, handle string, limit int) ([]core.Message, error) {
	if limit <= 0 {
		limit = -1
	}

	// Fetch the LAST 'limit' messages by ordering DESC
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT id, role, content FROM transcripts WHERE handle = ? AND role = ?
			UNION ALL
			SELECT id, role, content FROM (
				SELECT id, role, content FROM transcripts WHERE handle = ? AND role != ?
				ORDER BY id DESC LIMIT ?
			)
		) ORDER BY id ASC`,
		handle, core.RoleSystem, handle, core.RoleSystem, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]core.Message, 0)
	for rows.Next() {
		var msg core.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Debug().Int("count", len(messages)).Msg("loaded transcript messages")
	return messages, nil
}

func (s *Store) DeleteTranscript(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE handle = ?`, handle); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}
	return nil
}
