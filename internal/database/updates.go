package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classboard/pkg/types"
)

// AppendUpdates writes one ledger line per recipient in a single
// transaction, creating missing (session, user) records with a zero
// last_seen_at.
func (m *Manager) AppendUpdates(ctx context.Context, sessionID string, userIDs []string, entry *types.UpdateEntry) error {
	if len(userIDs) == 0 {
		return nil
	}

	return m.withTx(ctx, func(tx *sql.Tx) error {
		ensure, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO update_records (session_id, user_id, last_seen_at) VALUES (?, ?, 0)`)
		if err != nil {
			return fmt.Errorf("failed to prepare record upsert: %w", err)
		}
		defer func() { _ = ensure.Close() }()

		insert, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO update_entries (id, session_id, user_id, question_id, update_type, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare entry insert: %w", err)
		}
		defer func() { _ = insert.Close() }()

		for _, userID := range userIDs {
			if _, err := ensure.ExecContext(ctx, sessionID, userID); err != nil {
				return fmt.Errorf("failed to ensure update record for %s: %w", userID, err)
			}
			if _, err := insert.ExecContext(ctx, entry.ID, sessionID, userID, entry.QuestionID,
				entry.UpdateType, toNanos(entry.UpdatedAt)); err != nil {
				return fmt.Errorf("failed to append update for %s: %w", userID, err)
			}
		}
		return nil
	})
}

// MarkSeen moves last_seen_at forward, creating the record when absent.
func (m *Manager) MarkSeen(ctx context.Context, sessionID, userID string, at time.Time) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO update_records (session_id, user_id, last_seen_at) VALUES (?, ?, ?)
			ON CONFLICT (session_id, user_id) DO UPDATE
			SET last_seen_at = MAX(last_seen_at, excluded.last_seen_at)`,
			sessionID, userID, toNanos(at))
		if err != nil {
			return fmt.Errorf("failed to mark seen: %w", err)
		}
		return nil
	})
}

// GetUnseenUpdates returns the record with entries strictly newer than
// last_seen_at, oldest first.
func (m *Manager) GetUnseenUpdates(ctx context.Context, sessionID, userID string) (*types.UpdateRecord, error) {
	record := &types.UpdateRecord{
		SessionID: sessionID,
		UserID:    userID,
		Updates:   []*types.UpdateEntry{},
	}

	var lastSeen int64
	err := m.db.QueryRowContext(ctx,
		`SELECT last_seen_at FROM update_records WHERE session_id = ? AND user_id = ?`,
		sessionID, userID).Scan(&lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record, nil
		}
		return nil, fmt.Errorf("failed to query update record: %w", err)
	}
	if lastSeen > 0 {
		record.LastSeenAt = fromNanos(lastSeen)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, question_id, update_type, updated_at
		FROM update_entries
		WHERE session_id = ? AND user_id = ? AND updated_at > ?
		ORDER BY updated_at ASC, id ASC`,
		sessionID, userID, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("failed to query update entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e types.UpdateEntry
		var updatedAt int64
		if err := rows.Scan(&e.ID, &e.QuestionID, &e.UpdateType, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan update entry: %w", err)
		}
		e.UpdatedAt = fromNanos(updatedAt)
		record.Updates = append(record.Updates, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating update entries: %w", err)
	}
	return record, nil
}
