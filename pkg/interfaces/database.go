package interfaces

import (
	"context"
	"time"

	"classboard/pkg/types"
)

// SessionStore persists sessions.
type SessionStore interface {
	// CreateSession returns ErrLiveSessionExists when the course already has
	// a live session.
	CreateSession(ctx context.Context, session *types.Session) error

	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// GetLiveSessionByCourse returns ErrSessionNotFound when the course has
	// no live session.
	GetLiveSessionByCourse(ctx context.Context, courseName string) (*types.Session, error)

	// EndSession flips a live session to completed. Ending an already
	// completed session returns ErrSessionNotLive.
	EndSession(ctx context.Context, sessionID string, endAt time.Time) error

	// ListSessionsByCourses returns sessions newest first, with question counts.
	ListSessionsByCourses(ctx context.Context, courseNames []string) ([]*types.Session, error)

	ListLiveSessions(ctx context.Context) ([]*types.Session, error)

	CountQuestions(ctx context.Context, sessionID string) (int, error)
}

// QuestionStore persists questions and their reply trees.
type QuestionStore interface {
	// CreateQuestion returns ErrDuplicateQuestion when the dedupe key is
	// already taken in the session.
	CreateQuestion(ctx context.Context, question *types.Question) error

	// GetQuestion loads the question with its replies ordered by creation.
	GetQuestion(ctx context.Context, questionID string) (*types.Question, error)

	// ListQuestionsWithAuthors returns the session's questions, important
	// first then newest, with author names refreshed from the participant
	// directory. Replies are not loaded.
	ListQuestionsWithAuthors(ctx context.Context, sessionID string, filter types.QuestionFilter) ([]*types.Question, error)

	// UpdateQuestionStatus sets the status and bumps updated_at.
	UpdateQuestionStatus(ctx context.Context, questionID, status string, at time.Time) error

	SetImportant(ctx context.Context, questionID string, important bool, at time.Time) error

	// DeleteQuestion removes the question and its replies.
	DeleteQuestion(ctx context.Context, questionID string) error

	// CreateReply returns ErrReplyNotFound when the parent reply does not
	// belong to the same question.
	CreateReply(ctx context.Context, reply *types.Reply, at time.Time) error
}

// UpdateStore persists the per-(session, user) update ledger.
type UpdateStore interface {
	// AppendUpdates adds one entry per recipient in a single write.
	AppendUpdates(ctx context.Context, sessionID string, userIDs []string, entry *types.UpdateEntry) error

	// MarkSeen sets last_seen_at, creating the record when missing.
	MarkSeen(ctx context.Context, sessionID, userID string, at time.Time) error

	// GetUnseenUpdates returns the record with only the entries newer than
	// last_seen_at. A missing record yields a zero LastSeenAt and no entries.
	GetUnseenUpdates(ctx context.Context, sessionID, userID string) (*types.UpdateRecord, error)
}

// ParticipantDirectory caches identity snapshots so that recipients of a
// session's updates can be enumerated.
type ParticipantDirectory interface {
	UpsertParticipant(ctx context.Context, participant *types.Participant) error

	// ListCourseParticipants returns ids of enrolled students, TAs and
	// instructors of a course.
	ListCourseParticipants(ctx context.Context, courseName string) ([]string, error)
}

// DatabaseManager is the full persistence surface of the service.
type DatabaseManager interface {
	SessionStore
	QuestionStore
	UpdateStore
	ParticipantDirectory

	HealthCheck(ctx context.Context) error
	Close() error
}
