// Package board implements the question board of a session: posting,
// moderation and replies. Every operation authorizes through the permission
// engine, writes through the store, then fans out ledger entries and push
// events on a best-effort basis.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"classboard/internal/id"
	"classboard/internal/logger"
	"classboard/internal/permission"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

// SessionLookup resolves a session id into a session or a not-found
// *types.Error.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)
}

type Options struct {
	DuplicateScope    string
	MaxQuestionLength int
	MaxReplyLength    int
}

func DefaultOptions() Options {
	return Options{
		DuplicateScope:    types.DuplicateScopeSession,
		MaxQuestionLength: types.MaxQuestionLength,
		MaxReplyLength:    types.MaxReplyLength,
	}
}

type Board struct {
	questions interfaces.QuestionStore
	sessions  SessionLookup
	directory interfaces.ParticipantDirectory
	recorder  interfaces.UpdateRecorder
	publisher interfaces.Publisher
	opts      Options
	now       func() time.Time
}

func NewBoard(
	questions interfaces.QuestionStore,
	sessions SessionLookup,
	directory interfaces.ParticipantDirectory,
	recorder interfaces.UpdateRecorder,
	publisher interfaces.Publisher,
	opts Options,
) *Board {
	return &Board{
		questions: questions,
		sessions:  sessions,
		directory: directory,
		recorder:  recorder,
		publisher: publisher,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// authorize loads the session and asks the permission engine.
func (b *Board) authorize(ctx context.Context, action permission.Action, sessionID string, actor *types.Participant) (*types.Session, error) {
	session, err := b.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := permission.Check(action, actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// loadQuestion fetches a question and makes sure it belongs to session.
func (b *Board) loadQuestion(ctx context.Context, session *types.Session, questionID string) (*types.Question, error) {
	q, err := b.questions.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrQuestionNotFound) {
			return nil, types.NotFoundf(err, "question %s not found", questionID)
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if q.SessionID != session.ID {
		return nil, types.NotFoundf(interfaces.ErrQuestionNotFound, "question %s not found in session %s", questionID, session.ID)
	}
	return q, nil
}

// PostQuestion appends a new unanswered question. A question whose
// normalized text is already on the board is a conflict.
func (b *Board) PostQuestion(ctx context.Context, sessionID string, actor *types.Participant, text string) (*types.Question, error) {
	session, err := b.authorize(ctx, permission.ActionPostQuestion, sessionID, actor)
	if err != nil {
		return nil, err
	}
	if err := types.ValidatePostText(text, b.opts.MaxQuestionLength); err != nil {
		return nil, err
	}

	now := b.now()
	q := &types.Question{
		ID:        id.New(),
		SessionID: session.ID,
		Text:      strings.TrimSpace(text),
		Author:    actor.Identity(),
		Status:    types.QuestionStatusUnanswered,
		Replies:   []*types.Reply{},
		CreatedAt: now,
		UpdatedAt: now,
		DedupeKey: types.DedupeKey(b.opts.DuplicateScope, actor.ID, text),
	}

	if err := b.questions.CreateQuestion(ctx, q); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrDuplicateQuestion):
			return nil, types.Conflictf(types.CodeDuplicateQuestion, "this question has already been asked")
		case errors.Is(err, interfaces.ErrSessionNotLive):
			return nil, types.Unauthorizedf("session %s is no longer accepting questions", session.ID)
		default:
			return nil, fmt.Errorf("failed to create question: %w", err)
		}
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: session.ID, UserID: actor.ID, QuestionID: q.ID})
	slog.InfoContext(ctx, "question posted")

	b.fanOut(ctx, session, q.ID, types.UpdateTypeNewQuestion, actor.ID)
	b.publish(ctx, session.ID, types.EventQuestionCreated, q)
	return q, nil
}

// MarkAnswered flips an unanswered question to answered. Marking an answered
// question returns it unchanged without emitting anything.
func (b *Board) MarkAnswered(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error) {
	session, err := b.authorize(ctx, permission.ActionMarkAnswered, sessionID, actor)
	if err != nil {
		return nil, err
	}
	q, err := b.loadQuestion(ctx, session, questionID)
	if err != nil {
		return nil, err
	}
	if q.Status == types.QuestionStatusAnswered {
		return q, nil
	}

	now := b.now()
	if err := b.questions.UpdateQuestionStatus(ctx, q.ID, types.QuestionStatusAnswered, now); err != nil {
		if errors.Is(err, interfaces.ErrQuestionNotFound) {
			return nil, types.NotFoundf(err, "question %s not found", questionID)
		}
		return nil, fmt.Errorf("failed to mark answered: %w", err)
	}
	q.Status = types.QuestionStatusAnswered
	q.UpdatedAt = now

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: session.ID, UserID: actor.ID, QuestionID: q.ID})
	slog.InfoContext(ctx, "question marked answered")

	b.fanOut(ctx, session, q.ID, types.UpdateTypeStatusChange, actor.ID)
	b.publish(ctx, session.ID, types.EventQuestionAnswered, q)
	return q, nil
}

// ToggleImportant sets the importance flag to value. Every call writes,
// fans out statusChange and publishes, even when the value is unchanged.
func (b *Board) ToggleImportant(ctx context.Context, sessionID, questionID string, actor *types.Participant, value bool) (*types.Question, error) {
	session, err := b.authorize(ctx, permission.ActionToggleImportant, sessionID, actor)
	if err != nil {
		return nil, err
	}
	q, err := b.loadQuestion(ctx, session, questionID)
	if err != nil {
		return nil, err
	}
	now := b.now()
	if err := b.questions.SetImportant(ctx, q.ID, value, now); err != nil {
		if errors.Is(err, interfaces.ErrQuestionNotFound) {
			return nil, types.NotFoundf(err, "question %s not found", questionID)
		}
		return nil, fmt.Errorf("failed to set importance: %w", err)
	}
	q.Important = value
	q.UpdatedAt = now

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: session.ID, UserID: actor.ID, QuestionID: q.ID})
	slog.InfoContext(ctx, "question importance changed", "important", value)

	b.fanOut(ctx, session, q.ID, types.UpdateTypeStatusChange, actor.ID)
	b.publish(ctx, session.ID, types.EventQuestionUpdated, q)
	return q, nil
}

// PostReply attaches a reply to a question, or to one of its replies when
// parentReplyID is set.
func (b *Board) PostReply(ctx context.Context, sessionID, questionID string, actor *types.Participant, text string, parentReplyID *string) (*types.Reply, error) {
	session, err := b.authorize(ctx, permission.ActionReply, sessionID, actor)
	if err != nil {
		return nil, err
	}
	if err := types.ValidatePostText(text, b.opts.MaxReplyLength); err != nil {
		return nil, err
	}
	q, err := b.loadQuestion(ctx, session, questionID)
	if err != nil {
		return nil, err
	}

	if parentReplyID != nil && *parentReplyID == "" {
		parentReplyID = nil
	}
	if parentReplyID != nil && !hasReply(q, *parentReplyID) {
		return nil, types.Validationf(types.CodeBadParent, "reply %s is not part of question %s", *parentReplyID, q.ID)
	}

	now := b.now()
	reply := &types.Reply{
		ID:            id.New(),
		QuestionID:    q.ID,
		ParentReplyID: parentReplyID,
		Author:        actor.Identity(),
		Text:          strings.TrimSpace(text),
		CreatedAt:     now,
	}

	if err := b.questions.CreateReply(ctx, reply, now); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrReplyNotFound):
			return nil, types.Validationf(types.CodeBadParent, "reply %s is not part of question %s", *parentReplyID, q.ID)
		case errors.Is(err, interfaces.ErrQuestionNotFound):
			return nil, types.NotFoundf(err, "question %s not found", questionID)
		default:
			return nil, fmt.Errorf("failed to create reply: %w", err)
		}
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: session.ID, UserID: actor.ID, QuestionID: q.ID})
	slog.InfoContext(ctx, "reply posted", "reply_id", reply.ID)

	b.fanOut(ctx, session, q.ID, types.UpdateTypeNewReply, actor.ID)
	b.publish(ctx, session.ID, types.EventReplyCreated, reply)
	return reply, nil
}

func hasReply(q *types.Question, replyID string) bool {
	for _, r := range q.Replies {
		if r.ID == replyID {
			return true
		}
	}
	return false
}

// DeletedQuestion is the payload of question:deleted.
type DeletedQuestion struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
}

// DeleteQuestion removes a question and its replies.
func (b *Board) DeleteQuestion(ctx context.Context, sessionID, questionID string, actor *types.Participant) error {
	session, err := b.authorize(ctx, permission.ActionDeleteQuestion, sessionID, actor)
	if err != nil {
		return err
	}
	q, err := b.loadQuestion(ctx, session, questionID)
	if err != nil {
		return err
	}

	if err := b.questions.DeleteQuestion(ctx, q.ID); err != nil {
		if errors.Is(err, interfaces.ErrQuestionNotFound) {
			return types.NotFoundf(err, "question %s not found", questionID)
		}
		return fmt.Errorf("failed to delete question: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: session.ID, UserID: actor.ID, QuestionID: q.ID})
	slog.InfoContext(ctx, "question deleted")

	b.publish(ctx, session.ID, types.EventQuestionDeleted, &DeletedQuestion{ID: q.ID, SessionID: session.ID})
	return nil
}

// ListQuestions returns the session's questions, important first then
// newest, with current author names.
func (b *Board) ListQuestions(ctx context.Context, sessionID string, actor *types.Participant, filter types.QuestionFilter) ([]*types.Question, error) {
	if !types.IsValidStatusFilter(filter.Status) {
		return nil, types.Validationf("invalid_filter", "unknown status filter %q", filter.Status)
	}
	if filter.Limit < 0 {
		return nil, types.Validationf("invalid_filter", "limit must not be negative")
	}
	session, err := b.authorize(ctx, permission.ActionViewSession, sessionID, actor)
	if err != nil {
		return nil, err
	}

	questions, err := b.questions.ListQuestionsWithAuthors(ctx, session.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// GetQuestion returns one question with its full reply list.
func (b *Board) GetQuestion(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error) {
	session, err := b.authorize(ctx, permission.ActionViewSession, sessionID, actor)
	if err != nil {
		return nil, err
	}
	return b.loadQuestion(ctx, session, questionID)
}

// fanOut records updateType for every course participant except the actor.
// Failures are logged; the mutation has already committed.
func (b *Board) fanOut(ctx context.Context, session *types.Session, questionID, updateType, actorID string) {
	if b.recorder == nil || b.directory == nil {
		return
	}

	participants, err := b.directory.ListCourseParticipants(ctx, session.CourseName)
	if err != nil {
		slog.WarnContext(ctx, "failed to list course participants for ledger", "course", session.CourseName, "error", err)
		return
	}

	recipients := make([]string, 0, len(participants))
	for _, p := range participants {
		if p != actorID {
			recipients = append(recipients, p)
		}
	}
	if len(recipients) == 0 {
		return
	}

	if err := b.recorder.RecordUpdate(ctx, session.ID, questionID, updateType, recipients); err != nil {
		slog.WarnContext(ctx, "failed to record ledger update", "update_type", updateType, "error", err)
	}
}

func (b *Board) publish(ctx context.Context, room, eventType string, payload any) {
	if b.publisher == nil {
		return
	}
	event := &types.Event{
		Type:      eventType,
		Room:      room,
		Payload:   payload,
		Timestamp: b.now(),
	}
	if err := b.publisher.Publish(ctx, room, event); err != nil {
		slog.WarnContext(ctx, "failed to publish board event", "event", eventType, "room", room, "error", err)
	}
}
