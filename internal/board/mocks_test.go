package board_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"classboard/internal/board"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

type mockQuestionStore struct {
	createFn       func(ctx context.Context, q *types.Question) error
	getFn          func(ctx context.Context, id string) (*types.Question, error)
	listFn         func(ctx context.Context, sessionID string, filter types.QuestionFilter) ([]*types.Question, error)
	updateStatusFn func(ctx context.Context, id, status string, at time.Time) error
	setImportantFn func(ctx context.Context, id string, important bool, at time.Time) error
	deleteFn       func(ctx context.Context, id string) error
	createReplyFn  func(ctx context.Context, r *types.Reply, at time.Time) error
}

func (m *mockQuestionStore) CreateQuestion(ctx context.Context, q *types.Question) error {
	if m.createFn != nil {
		return m.createFn(ctx, q)
	}
	return nil
}

func (m *mockQuestionStore) GetQuestion(ctx context.Context, id string) (*types.Question, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, interfaces.ErrQuestionNotFound
}

func (m *mockQuestionStore) ListQuestionsWithAuthors(ctx context.Context, sessionID string, filter types.QuestionFilter) ([]*types.Question, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sessionID, filter)
	}
	return []*types.Question{}, nil
}

func (m *mockQuestionStore) UpdateQuestionStatus(ctx context.Context, id, status string, at time.Time) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, status, at)
	}
	return nil
}

func (m *mockQuestionStore) SetImportant(ctx context.Context, id string, important bool, at time.Time) error {
	if m.setImportantFn != nil {
		return m.setImportantFn(ctx, id, important, at)
	}
	return nil
}

func (m *mockQuestionStore) DeleteQuestion(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockQuestionStore) CreateReply(ctx context.Context, r *types.Reply, at time.Time) error {
	if m.createReplyFn != nil {
		return m.createReplyFn(ctx, r, at)
	}
	return nil
}

type mockSessions struct {
	getFn func(ctx context.Context, id string) (*types.Session, error)
}

func (m *mockSessions) GetSession(ctx context.Context, id string) (*types.Session, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, types.NotFoundf(interfaces.ErrSessionNotFound, "session %s not found", id)
}

type mockDirectory struct {
	listFn func(ctx context.Context, course string) ([]string, error)
}

func (m *mockDirectory) UpsertParticipant(ctx context.Context, p *types.Participant) error {
	return nil
}

func (m *mockDirectory) ListCourseParticipants(ctx context.Context, course string) ([]string, error) {
	if m.listFn != nil {
		return m.listFn(ctx, course)
	}
	return nil, nil
}

type mockRecorder struct {
	recordFn func(ctx context.Context, sessionID, questionID, updateType string, recipients []string) error
}

func (m *mockRecorder) RecordUpdate(ctx context.Context, sessionID, questionID, updateType string, recipients []string) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, sessionID, questionID, updateType, recipients)
	}
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, room string, event *types.Event) error {
	return errors.New("transport down")
}

var _ = Describe("Board with stubbed collaborators", func() {
	var (
		ctx       context.Context
		questions *mockQuestionStore
		sessions  *mockSessions
		directory *mockDirectory
		recorder  *mockRecorder
		b         *board.Board
		liveOne   *types.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		liveOne = &types.Session{ID: "s1", CourseName: course, CreatedBy: prof.Identity(), Status: types.SessionStatusLive}
		questions = &mockQuestionStore{}
		sessions = &mockSessions{getFn: func(ctx context.Context, id string) (*types.Session, error) {
			if id != liveOne.ID {
				return nil, types.NotFoundf(interfaces.ErrSessionNotFound, "session %s not found", id)
			}
			s := *liveOne
			return &s, nil
		}}
		directory = &mockDirectory{}
		recorder = &mockRecorder{}
		b = board.NewBoard(questions, sessions, directory, recorder, failingPublisher{}, board.DefaultOptions())
	})

	It("excludes the author from ledger recipients", func() {
		directory.listFn = func(ctx context.Context, c string) ([]string, error) {
			return []string{"alice", "bob", "prof"}, nil
		}
		var got []string
		recorder.recordFn = func(ctx context.Context, sid, qid, ut string, recipients []string) error {
			got = recipients
			return nil
		}

		_, err := b.PostQuestion(ctx, "s1", alice, "Who gets this?")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(ConsistOf("bob", "prof"))
	})

	It("skips the recorder when nobody else is in the course", func() {
		directory.listFn = func(ctx context.Context, c string) ([]string, error) {
			return []string{"alice"}, nil
		}
		called := false
		recorder.recordFn = func(ctx context.Context, sid, qid, ut string, recipients []string) error {
			called = true
			return nil
		}

		_, err := b.PostQuestion(ctx, "s1", alice, "Anyone?")
		Expect(err).NotTo(HaveOccurred())
		Expect(called).To(BeFalse())
	})

	It("does not fail the mutation when fan-out or publishing fails", func() {
		directory.listFn = func(ctx context.Context, c string) ([]string, error) {
			return nil, errors.New("directory unavailable")
		}
		_, err := b.PostQuestion(ctx, "s1", alice, "Still ok?")
		Expect(err).NotTo(HaveOccurred())

		directory.listFn = func(ctx context.Context, c string) ([]string, error) {
			return []string{"bob"}, nil
		}
		recorder.recordFn = func(ctx context.Context, sid, qid, ut string, recipients []string) error {
			return errors.New("ledger full")
		}
		_, err = b.PostQuestion(ctx, "s1", alice, "Still ok again?")
		Expect(err).NotTo(HaveOccurred())
	})

	It("denies a question that lost the race with the end of the session", func() {
		questions.createFn = func(ctx context.Context, q *types.Question) error {
			return interfaces.ErrSessionNotLive
		}
		_, err := b.PostQuestion(ctx, "s1", alice, "Too late?")
		Expect(types.IsAuthorization(err)).To(BeTrue(), "got %v", err)
	})

	It("wraps unexpected store failures without classifying them", func() {
		boom := errors.New("disk on fire")
		questions.createFn = func(ctx context.Context, q *types.Question) error { return boom }

		_, err := b.PostQuestion(ctx, "s1", alice, "Will this work?")
		Expect(err).To(MatchError(boom))
		Expect(types.KindOf(err)).To(BeEmpty())
	})

	It("maps a parent rejected by the store to a validation error", func() {
		parent := "r1"
		questions.getFn = func(ctx context.Context, id string) (*types.Question, error) {
			return &types.Question{ID: id, SessionID: "s1", Replies: []*types.Reply{{ID: parent, QuestionID: id}}}, nil
		}
		questions.createReplyFn = func(ctx context.Context, r *types.Reply, at time.Time) error {
			return interfaces.ErrReplyNotFound
		}

		_, err := b.PostReply(ctx, "s1", "q1", prof, "Reply", &parent)
		Expect(types.IsValidation(err)).To(BeTrue(), "got %v", err)
	})

	It("treats an empty parent id as a top-level reply", func() {
		questions.getFn = func(ctx context.Context, id string) (*types.Question, error) {
			return &types.Question{ID: id, SessionID: "s1"}, nil
		}
		empty := ""
		reply, err := b.PostReply(ctx, "s1", "q1", prof, "Top level", &empty)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.ParentReplyID).To(BeNil())
	})

	It("reports a vanished question as not found on update", func() {
		questions.getFn = func(ctx context.Context, id string) (*types.Question, error) {
			return &types.Question{ID: id, SessionID: "s1", Status: types.QuestionStatusUnanswered}, nil
		}
		questions.updateStatusFn = func(ctx context.Context, id, status string, at time.Time) error {
			return interfaces.ErrQuestionNotFound
		}

		_, err := b.MarkAnswered(ctx, "s1", "q1", prof)
		Expect(types.IsNotFound(err)).To(BeTrue(), "got %v", err)
	})
})
