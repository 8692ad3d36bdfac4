package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classboard/pkg/types"
)

// UpsertParticipant replaces the cached identity snapshot and memberships.
func (m *Manager) UpsertParticipant(ctx context.Context, p *types.Participant) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO participants (id, name, role, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE
			SET name = excluded.name, role = excluded.role, updated_at = excluded.updated_at`,
			p.ID, p.Name, p.Role, toNanos(time.Now()))
		if err != nil {
			return fmt.Errorf("failed to upsert participant: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM course_memberships WHERE participant_id = ?`, p.ID); err != nil {
			return fmt.Errorf("failed to clear memberships: %w", err)
		}

		for _, mb := range p.CourseMemberships {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO course_memberships (participant_id, course_name, enrolled, is_ta, is_instructor)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (participant_id, course_name) DO UPDATE
				SET enrolled = excluded.enrolled, is_ta = excluded.is_ta, is_instructor = excluded.is_instructor`,
				p.ID, mb.CourseName, boolToInt(mb.Enrolled), boolToInt(mb.IsTA), boolToInt(mb.IsInstructor))
			if err != nil {
				return fmt.Errorf("failed to insert membership %s: %w", mb.CourseName, err)
			}
		}
		return nil
	})
}

// ListCourseParticipants returns everyone who is enrolled in, assists or
// teaches the course.
func (m *Manager) ListCourseParticipants(ctx context.Context, courseName string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT participant_id FROM course_memberships
		WHERE course_name = ? AND (enrolled = 1 OR is_ta = 1 OR is_instructor = 1)
		ORDER BY participant_id`, courseName)
	if err != nil {
		return nil, fmt.Errorf("failed to query course participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}
	return ids, nil
}
