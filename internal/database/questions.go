package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// CreateQuestion inserts a question only while its session is live. The
// insert and the live check are one statement on the writer goroutine, so a
// question can never land after EndSession commits.
func (m *Manager) CreateQuestion(ctx context.Context, q *types.Question) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			INSERT INTO questions (id, session_id, text, dedupe_key, author_id, author_name,
				status, important, created_at, updated_at)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ? AND status = ?)`,
			q.ID,
			q.SessionID,
			q.Text,
			q.DedupeKey,
			q.Author.ID,
			q.Author.Name,
			q.Status,
			boolToInt(q.Important),
			toNanos(q.CreatedAt),
			toNanos(q.UpdatedAt),
			q.SessionID,
			types.SessionStatusLive,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return interfaces.ErrDuplicateQuestion
			}
			return fmt.Errorf("failed to insert question: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return interfaces.ErrSessionNotLive
		}
		return nil
	})
}

// GetQuestion loads the question and its full reply list.
func (m *Manager) GetQuestion(ctx context.Context, questionID string) (*types.Question, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, text, dedupe_key, author_id, author_name, status, important, created_at, updated_at
		FROM questions WHERE id = ?`, questionID)

	var q types.Question
	var important int
	var createdAt, updatedAt int64
	err := row.Scan(&q.ID, &q.SessionID, &q.Text, &q.DedupeKey, &q.Author.ID, &q.Author.Name,
		&q.Status, &important, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to query question: %w", err)
	}
	q.Important = important != 0
	q.CreatedAt = fromNanos(createdAt)
	q.UpdatedAt = fromNanos(updatedAt)

	replies, err := m.listReplies(ctx, questionID)
	if err != nil {
		return nil, err
	}
	q.Replies = replies

	return &q, nil
}

func (m *Manager) listReplies(ctx context.Context, questionID string) ([]*types.Reply, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, question_id, parent_reply_id, author_id, author_name, text, created_at
		FROM replies WHERE question_id = ?
		ORDER BY created_at ASC, id ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	replies := []*types.Reply{}
	for rows.Next() {
		var r types.Reply
		var parent sql.NullString
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.QuestionID, &parent, &r.Author.ID, &r.Author.Name, &r.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan reply row: %w", err)
		}
		if parent.Valid {
			p := parent.String
			r.ParentReplyID = &p
		}
		r.CreatedAt = fromNanos(createdAt)
		replies = append(replies, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reply rows: %w", err)
	}
	return replies, nil
}

// ListQuestionsWithAuthors is the only query that joins the participant
// directory; the stored author name is the fallback when the author never
// registered there.
func (m *Manager) ListQuestionsWithAuthors(ctx context.Context, sessionID string, filter types.QuestionFilter) ([]*types.Question, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT q.id, q.session_id, q.text, q.author_id, COALESCE(p.name, q.author_name),
			q.status, q.important, q.created_at, q.updated_at
		FROM questions q
		LEFT JOIN participants p ON p.id = q.author_id
		WHERE q.session_id = ?`)
	args := []any{sessionID}

	if filter.Status == types.QuestionStatusAnswered || filter.Status == types.QuestionStatusUnanswered {
		sb.WriteString(` AND q.status = ?`)
		args = append(args, filter.Status)
	}
	if filter.ImportantOnly {
		sb.WriteString(` AND q.important = 1`)
	}
	sb.WriteString(` ORDER BY q.important DESC, q.created_at DESC, q.id DESC`)
	if filter.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows, err := m.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	questions := []*types.Question{}
	for rows.Next() {
		var q types.Question
		var important int
		var createdAt, updatedAt int64
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Text, &q.Author.ID, &q.Author.Name,
			&q.Status, &important, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		q.Important = important != 0
		q.CreatedAt = fromNanos(createdAt)
		q.UpdatedAt = fromNanos(updatedAt)
		questions = append(questions, &q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}
	return questions, nil
}

func (m *Manager) UpdateQuestionStatus(ctx context.Context, questionID, status string, at time.Time) error {
	return m.updateQuestion(ctx, questionID,
		`UPDATE questions SET status = ?, updated_at = ? WHERE id = ?`,
		status, toNanos(at), questionID)
}

func (m *Manager) SetImportant(ctx context.Context, questionID string, important bool, at time.Time) error {
	return m.updateQuestion(ctx, questionID,
		`UPDATE questions SET important = ?, updated_at = ? WHERE id = ?`,
		boolToInt(important), toNanos(at), questionID)
}

func (m *Manager) updateQuestion(ctx context.Context, questionID, query string, args ...any) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update question %s: %w", questionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return interfaces.ErrQuestionNotFound
		}
		return nil
	})
}

// DeleteQuestion hard-deletes the question; replies go with it through the
// ON DELETE CASCADE foreign key. Ledger entries are kept.
func (m *Manager) DeleteQuestion(ctx context.Context, questionID string) error {
	return m.updateQuestion(ctx, questionID, `DELETE FROM questions WHERE id = ?`, questionID)
}

// CreateReply appends a reply and bumps the question's updated_at.
func (m *Manager) CreateReply(ctx context.Context, reply *types.Reply, at time.Time) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE id = ?`, reply.QuestionID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check question: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrQuestionNotFound
		}

		var parent sql.NullString
		if reply.ParentReplyID != nil {
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM replies WHERE id = ? AND question_id = ?`,
				*reply.ParentReplyID, reply.QuestionID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check parent reply: %w", err)
			}
			if exists == 0 {
				return interfaces.ErrReplyNotFound
			}
			parent = sql.NullString{String: *reply.ParentReplyID, Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO replies (id, question_id, parent_reply_id, author_id, author_name, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			reply.ID, reply.QuestionID, parent, reply.Author.ID, reply.Author.Name, reply.Text, toNanos(reply.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert reply: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE questions SET updated_at = ? WHERE id = ?`, toNanos(at), reply.QuestionID)
		if err != nil {
			return fmt.Errorf("failed to touch question: %w", err)
		}
		return nil
	})
}
