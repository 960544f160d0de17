package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sandevgo/recall/internal/core"
)

func (s *Store) AppendSignal(ctx context.Context, sig core.MessageSignal) error {
	topics, err := json.Marshal(nonNilTopics(sig.Topics))
	if err != nil {
		return fmt.Errorf("failed to encode topics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO message_signals (session_id, topics, sentiment, emotion, intensity, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sig.SessionID, string(topics), string(sig.Sentiment), sig.Emotion, sig.Intensity, toUnix(sig.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message signal: %w", err)
	}
	return nil
}

// RecentSignals returns the newest signals first. limit <= 0 returns everything.
func (s *Store) RecentSignals(ctx context.Context, sessionID string, limit int) ([]core.MessageSignal, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, topics, sentiment, emotion, intensity, recorded_at
		   FROM message_signals WHERE session_id = ? ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query message signals: %w", err)
	}
	defer rows.Close()

	signals := make([]core.MessageSignal, 0)
	for rows.Next() {
		var (
			sig       core.MessageSignal
			topics    string
			sentiment string
			recorded  int64
		)
		if err := rows.Scan(&sig.SessionID, &topics, &sentiment, &sig.Emotion, &sig.Intensity, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan message signal: %w", err)
		}
		if err := json.Unmarshal([]byte(topics), &sig.Topics); err != nil {
			return nil, fmt.Errorf("failed to decode topics: %w", err)
		}
		if len(sig.Topics) == 0 {
			sig.Topics = nil
		}
		sig.Sentiment = core.Sentiment(sentiment)
		sig.RecordedAt = fromUnix(recorded)
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func nonNilTopics(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}
