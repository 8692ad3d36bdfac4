package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

const sessionColumns = `s.id, s.course_name, s.created_by_id, s.created_by_name, s.status, s.start_at, s.end_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner, extra ...any) (*types.Session, error) {
	var session types.Session
	var startAt int64
	var endAt sql.NullInt64

	dest := append([]any{
		&session.ID,
		&session.CourseName,
		&session.CreatedBy.ID,
		&session.CreatedBy.Name,
		&session.Status,
		&startAt,
		&endAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	session.StartAt = fromNanos(startAt)
	if endAt.Valid {
		t := fromNanos(endAt.Int64)
		session.EndAt = &t
	}
	return &session, nil
}

// CreateSession inserts a live session. The partial unique index on
// course_name turns a concurrent second create into ErrLiveSessionExists.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sessions (id, course_name, created_by_id, created_by_name, status, start_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			session.ID,
			session.CourseName,
			session.CreatedBy.ID,
			session.CreatedBy.Name,
			session.Status,
			toNanos(session.StartAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return interfaces.ErrLiveSessionExists
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

func (m *Manager) GetLiveSessionByCourse(ctx context.Context, courseName string) (*types.Session, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.course_name = ? AND s.status = ?`,
		courseName, types.SessionStatusLive)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query live session: %w", err)
	}
	return session, nil
}

// EndSession completes a live session. The status guard in the UPDATE makes
// a second end observable as ErrSessionNotLive.
func (m *Manager) EndSession(ctx context.Context, sessionID string, endAt time.Time) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE sessions SET status = ?, end_at = ?
			WHERE id = ? AND status = ?`,
			types.SessionStatusCompleted, toNanos(endAt), sessionID, types.SessionStatusLive)
		if err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n > 0 {
			return nil
		}

		var exists int
		err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrSessionNotFound
		}
		return interfaces.ErrSessionNotLive
	})
}

// ListSessionsByCourses returns every session of the given courses, newest
// first, each with its question count.
func (m *Manager) ListSessionsByCourses(ctx context.Context, courseNames []string) ([]*types.Session, error) {
	if len(courseNames) == 0 {
		return []*types.Session{}, nil
	}

	args := make([]any, len(courseNames))
	for i, name := range courseNames {
		args[i] = name
	}

	query := `
		SELECT ` + sessionColumns + `, COUNT(q.id)
		FROM sessions s
		LEFT JOIN questions q ON q.session_id = s.id
		WHERE s.course_name IN (` + placeholders(len(courseNames)) + `)
		GROUP BY s.id
		ORDER BY s.start_at DESC`

	return m.querySessions(ctx, query, true, args...)
}

// ListLiveSessions is used to warm the registry cache at startup.
func (m *Manager) ListLiveSessions(ctx context.Context) ([]*types.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions s WHERE s.status = ? ORDER BY s.start_at DESC`
	return m.querySessions(ctx, query, false, types.SessionStatusLive)
}

func (m *Manager) querySessions(ctx context.Context, query string, withCount bool, args ...any) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*types.Session{}
	for rows.Next() {
		var count int
		var extra []any
		if withCount {
			extra = append(extra, &count)
		}

		session, err := scanSession(rows, extra...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		session.QuestionCount = count
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

func (m *Manager) CountQuestions(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return n, nil
}
