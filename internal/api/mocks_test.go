package api

import (
	"context"
	"time"

	"classboard/pkg/types"
)

type mockSessions struct {
	createFn func(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error)
	endFn    func(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error)
	activeFn func(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error)
	viewFn   func(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error)
	listFn   func(ctx context.Context, actor *types.Participant) ([]*types.Session, error)
}

func (m *mockSessions) CreateSession(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error) {
	return m.createFn(ctx, courseName, actor)
}

func (m *mockSessions) EndSession(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error) {
	return m.endFn(ctx, sessionID, actor)
}

func (m *mockSessions) GetActiveSession(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error) {
	return m.activeFn(ctx, courseName, actor)
}

func (m *mockSessions) ViewSession(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error) {
	return m.viewFn(ctx, sessionID, actor)
}

func (m *mockSessions) ListSessions(ctx context.Context, actor *types.Participant) ([]*types.Session, error) {
	return m.listFn(ctx, actor)
}

type mockQuestions struct {
	postFn      func(ctx context.Context, sessionID string, actor *types.Participant, text string) (*types.Question, error)
	answerFn    func(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error)
	importantFn func(ctx context.Context, sessionID, questionID string, actor *types.Participant, value bool) (*types.Question, error)
	replyFn     func(ctx context.Context, sessionID, questionID string, actor *types.Participant, text string, parentReplyID *string) (*types.Reply, error)
	deleteFn    func(ctx context.Context, sessionID, questionID string, actor *types.Participant) error
	listFn      func(ctx context.Context, sessionID string, actor *types.Participant, filter types.QuestionFilter) ([]*types.Question, error)
	getFn       func(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error)
}

func (m *mockQuestions) PostQuestion(ctx context.Context, sessionID string, actor *types.Participant, text string) (*types.Question, error) {
	return m.postFn(ctx, sessionID, actor, text)
}

func (m *mockQuestions) MarkAnswered(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error) {
	return m.answerFn(ctx, sessionID, questionID, actor)
}

func (m *mockQuestions) ToggleImportant(ctx context.Context, sessionID, questionID string, actor *types.Participant, value bool) (*types.Question, error) {
	return m.importantFn(ctx, sessionID, questionID, actor, value)
}

func (m *mockQuestions) PostReply(ctx context.Context, sessionID, questionID string, actor *types.Participant, text string, parentReplyID *string) (*types.Reply, error) {
	return m.replyFn(ctx, sessionID, questionID, actor, text, parentReplyID)
}

func (m *mockQuestions) DeleteQuestion(ctx context.Context, sessionID, questionID string, actor *types.Participant) error {
	return m.deleteFn(ctx, sessionID, questionID, actor)
}

func (m *mockQuestions) ListQuestions(ctx context.Context, sessionID string, actor *types.Participant, filter types.QuestionFilter) ([]*types.Question, error) {
	return m.listFn(ctx, sessionID, actor, filter)
}

func (m *mockQuestions) GetQuestion(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error) {
	return m.getFn(ctx, sessionID, questionID, actor)
}

type mockUpdates struct {
	seenFn   func(ctx context.Context, sessionID string, actor *types.Participant) (time.Time, error)
	unseenFn func(ctx context.Context, sessionID string, actor *types.Participant) (*types.UpdateRecord, error)
}

func (m *mockUpdates) MarkSeen(ctx context.Context, sessionID string, actor *types.Participant) (time.Time, error) {
	return m.seenFn(ctx, sessionID, actor)
}

func (m *mockUpdates) GetUnseen(ctx context.Context, sessionID string, actor *types.Participant) (*types.UpdateRecord, error) {
	return m.unseenFn(ctx, sessionID, actor)
}

type mockDirectory struct {
	upserted []string
	err      error
}

func (m *mockDirectory) UpsertParticipant(ctx context.Context, p *types.Participant) error {
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, p.ID)
	return nil
}

func (m *mockDirectory) ListCourseParticipants(ctx context.Context, courseName string) ([]string, error) {
	return nil, nil
}

type mockRooms map[string]int

func (m mockRooms) RoomSize(room string) int { return m[room] }

type mockHealth struct {
	err error
}

func (m *mockHealth) HealthCheck(ctx context.Context) error { return m.err }

type mockStats map[string]interface{}

func (m mockStats) GetStats() map[string]interface{} { return m }
