package board_test

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"classboard/internal/board"
	"classboard/internal/database"
	"classboard/internal/hub"
	"classboard/internal/session"
	"classboard/internal/tracker"
	dbconfig "classboard/pkg/database"
	"classboard/pkg/types"
)

const course = "CS101"

var (
	prof = &types.Participant{
		ID: "prof", Name: "Prof", Role: types.RoleInstructor,
		CourseMemberships: []types.CourseMembership{{CourseName: course, IsInstructor: true}},
	}
	tia = &types.Participant{
		ID: "tia", Name: "Tia", Role: types.RoleStudent,
		CourseMemberships: []types.CourseMembership{{CourseName: course, Enrolled: true, IsTA: true}},
	}
	alice = &types.Participant{
		ID: "alice", Name: "Alice", Role: types.RoleStudent,
		CourseMemberships: []types.CourseMembership{{CourseName: course, Enrolled: true}},
	}
	bob = &types.Participant{
		ID: "bob", Name: "Bob", Role: types.RoleStudent,
		CourseMemberships: []types.CourseMembership{{CourseName: course, Enrolled: true}},
	}
	zed = &types.Participant{
		ID: "zed", Name: "Zed", Role: types.RoleStudent,
		CourseMemberships: []types.CourseMembership{{CourseName: "MA201", Enrolled: true}},
	}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*types.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, room string, event *types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) Last() *types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

func openStore(ctx context.Context) *database.Manager {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(GinkgoT().TempDir(), "board.db")

	db, err := database.NewManager(cfg)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(db.Close)

	migrations, err := dbconfig.NewMigrationManager(db.GetDB())
	Expect(err).NotTo(HaveOccurred())
	Expect(migrations.ApplyMigrations(ctx)).To(Succeed())

	for _, p := range []*types.Participant{prof, tia, alice, bob, zed} {
		Expect(db.UpsertParticipant(ctx, p)).To(Succeed())
	}
	return db
}

func unseenFor(ctx context.Context, tr *tracker.Tracker, sessionID string, p *types.Participant) []*types.UpdateEntry {
	rec, err := tr.GetUnseen(ctx, sessionID, p)
	Expect(err).NotTo(HaveOccurred())
	return rec.Updates
}

var _ = Describe("Board", func() {
	var (
		ctx      context.Context
		db       *database.Manager
		registry *session.Registry
		tr       *tracker.Tracker
		pub      *recordingPublisher
		b        *board.Board
		live     *types.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openStore(ctx)
		pub = &recordingPublisher{}
		registry = session.NewRegistry(db, pub)
		tr = tracker.NewTracker(db, registry)
		b = board.NewBoard(db, registry, db, tr, pub, board.DefaultOptions())

		var err error
		live, err = registry.CreateSession(ctx, course, prof)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("PostQuestion", func() {
		It("appends an unanswered question and announces it", func() {
			q, err := b.PostQuestion(ctx, live.ID, alice, "  What is TCP?  ")
			Expect(err).NotTo(HaveOccurred())
			Expect(q.Text).To(Equal("What is TCP?"))
			Expect(q.Status).To(Equal(types.QuestionStatusUnanswered))
			Expect(q.Important).To(BeFalse())
			Expect(q.Author).To(Equal(alice.Identity()))

			last := pub.Last()
			Expect(last.Type).To(Equal(types.EventQuestionCreated))
			Expect(last.Room).To(Equal(live.ID))
		})

		It("rejects a normalized duplicate as a conflict", func() {
			_, err := b.PostQuestion(ctx, live.ID, alice, "What is TCP?")
			Expect(err).NotTo(HaveOccurred())

			_, err = b.PostQuestion(ctx, live.ID, bob, "what is   tcp?")
			Expect(types.IsConflict(err)).To(BeTrue(), "got %v", err)
			e, _ := types.AsError(err)
			Expect(e.Code).To(Equal(types.CodeDuplicateQuestion))
		})

		DescribeTable("rejects invalid text",
			func(text, code string) {
				_, err := b.PostQuestion(ctx, live.ID, alice, text)
				Expect(types.IsValidation(err)).To(BeTrue(), "got %v", err)
				e, _ := types.AsError(err)
				Expect(e.Code).To(Equal(code))
			},
			Entry("empty", "", types.CodeEmptyText),
			Entry("whitespace", " \t\n ", types.CodeEmptyText),
			Entry("too long", string(make([]byte, types.MaxQuestionLength+1)), types.CodeTextTooLong),
		)

		DescribeTable("denies non-student actors",
			func(actor *types.Participant) {
				_, err := b.PostQuestion(ctx, live.ID, actor, "Anything?")
				Expect(types.IsAuthorization(err)).To(BeTrue(), "got %v", err)
			},
			Entry("instructor", prof),
			Entry("teaching assistant", tia),
			Entry("outsider", zed),
		)

		It("returns not found for an unknown session", func() {
			_, err := b.PostQuestion(ctx, "nope", alice, "Hello?")
			Expect(types.IsNotFound(err)).To(BeTrue(), "got %v", err)
		})

		It("lets the same text be asked by each author under the author scope", func() {
			opts := board.DefaultOptions()
			opts.DuplicateScope = types.DuplicateScopeAuthor
			perAuthor := board.NewBoard(db, registry, db, tr, pub, opts)

			_, err := perAuthor.PostQuestion(ctx, live.ID, alice, "Define a deadlock")
			Expect(err).NotTo(HaveOccurred())
			_, err = perAuthor.PostQuestion(ctx, live.ID, bob, "define a deadlock")
			Expect(err).NotTo(HaveOccurred())
			_, err = perAuthor.PostQuestion(ctx, live.ID, alice, "DEFINE a deadlock")
			Expect(types.IsConflict(err)).To(BeTrue(), "got %v", err)
		})
	})

	Describe("moderation", func() {
		var q *types.Question

		BeforeEach(func() {
			var err error
			q, err = b.PostQuestion(ctx, live.ID, alice, "Why is the sky blue?")
			Expect(err).NotTo(HaveOccurred())
		})

		It("marks answered once and is a no-op afterwards", func() {
			answered, err := b.MarkAnswered(ctx, live.ID, q.ID, prof)
			Expect(err).NotTo(HaveOccurred())
			Expect(answered.Status).To(Equal(types.QuestionStatusAnswered))
			Expect(answered.UpdatedAt).NotTo(BeTemporally("<", q.UpdatedAt))
			Expect(pub.Last().Type).To(Equal(types.EventQuestionAnswered))

			count := len(pub.Types())
			again, err := b.MarkAnswered(ctx, live.ID, q.ID, prof)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Status).To(Equal(types.QuestionStatusAnswered))
			Expect(pub.Types()).To(HaveLen(count))
		})

		It("sets importance to the given value", func() {
			updated, err := b.ToggleImportant(ctx, live.ID, q.ID, prof, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Important).To(BeTrue())
			Expect(pub.Last().Type).To(Equal(types.EventQuestionUpdated))

			_, err = tr.MarkSeen(ctx, live.ID, bob)
			Expect(err).NotTo(HaveOccurred())
			count := len(pub.Types())

			// repeating the current value still notifies
			updated, err = b.ToggleImportant(ctx, live.ID, q.ID, prof, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Important).To(BeTrue())
			Expect(pub.Types()).To(HaveLen(count + 1))
			Expect(pub.Last().Type).To(Equal(types.EventQuestionUpdated))
			entries := unseenFor(ctx, tr, live.ID, bob)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].UpdateType).To(Equal(types.UpdateTypeStatusChange))

			updated, err = b.ToggleImportant(ctx, live.ID, q.ID, prof, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Important).To(BeFalse())
		})

		It("keeps teaching assistants out of live moderation", func() {
			_, err := b.MarkAnswered(ctx, live.ID, q.ID, tia)
			Expect(types.IsAuthorization(err)).To(BeTrue())
			_, err = b.ToggleImportant(ctx, live.ID, q.ID, tia, true)
			Expect(types.IsAuthorization(err)).To(BeTrue())
			Expect(b.DeleteQuestion(ctx, live.ID, q.ID, tia)).To(Satisfy(types.IsAuthorization))
		})

		It("deletes a question and its replies", func() {
			_, err := b.PostReply(ctx, live.ID, q.ID, prof, "Rayleigh scattering.", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(b.DeleteQuestion(ctx, live.ID, q.ID, prof)).To(Succeed())
			Expect(pub.Last().Type).To(Equal(types.EventQuestionDeleted))

			_, err = b.GetQuestion(ctx, live.ID, q.ID, prof)
			Expect(types.IsNotFound(err)).To(BeTrue())

			// The same text may be asked again once deleted.
			_, err = b.PostQuestion(ctx, live.ID, bob, "why is the sky blue?")
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns not found for a question of another session", func() {
			other, err := registry.CreateSession(ctx, "MA201", &types.Participant{
				ID: "prof-ma", Name: "Prof MA", Role: types.RoleInstructor,
				CourseMemberships: []types.CourseMembership{{CourseName: "MA201", IsInstructor: true}},
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = b.GetQuestion(ctx, other.ID, q.ID, zed)
			Expect(types.IsNotFound(err)).To(BeTrue(), "got %v", err)
		})
	})

	Describe("PostReply", func() {
		var q *types.Question

		BeforeEach(func() {
			var err error
			q, err = b.PostQuestion(ctx, live.ID, alice, "What is a mutex?")
			Expect(err).NotTo(HaveOccurred())
		})

		It("threads replies under a parent of the same question", func() {
			top, err := b.PostReply(ctx, live.ID, q.ID, prof, "A lock.", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(top.ParentReplyID).To(BeNil())
			Expect(pub.Last().Type).To(Equal(types.EventReplyCreated))

			child, err := b.PostReply(ctx, live.ID, q.ID, prof, "More precisely, mutual exclusion.", &top.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*child.ParentReplyID).To(Equal(top.ID))

			full, err := b.GetQuestion(ctx, live.ID, q.ID, alice)
			Expect(err).NotTo(HaveOccurred())
			Expect(full.Replies).To(HaveLen(2))
			Expect(full.Replies[0].ID).To(Equal(top.ID))
		})

		It("rejects a parent reply from another question", func() {
			other, err := b.PostQuestion(ctx, live.ID, bob, "What is a semaphore?")
			Expect(err).NotTo(HaveOccurred())
			foreign, err := b.PostReply(ctx, live.ID, other.ID, prof, "A counter.", nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = b.PostReply(ctx, live.ID, q.ID, prof, "See above.", &foreign.ID)
			Expect(types.IsValidation(err)).To(BeTrue(), "got %v", err)
			e, _ := types.AsError(err)
			Expect(e.Code).To(Equal(types.CodeBadParent))
		})

		It("rejects blank replies", func() {
			_, err := b.PostReply(ctx, live.ID, q.ID, prof, "   ", nil)
			Expect(types.IsValidation(err)).To(BeTrue())
		})

		DescribeTable("enforces who may reply while live",
			func(actor *types.Participant, allowed bool) {
				_, err := b.PostReply(ctx, live.ID, q.ID, actor, "Reply", nil)
				if allowed {
					Expect(err).NotTo(HaveOccurred())
				} else {
					Expect(types.IsAuthorization(err)).To(BeTrue(), "got %v", err)
				}
			},
			Entry("instructor", prof, true),
			Entry("teaching assistant", tia, false),
			Entry("student", bob, false),
			Entry("outsider", zed, false),
		)
	})

	Describe("ListQuestions", func() {
		It("orders important first then newest and applies filters", func() {
			first, err := b.PostQuestion(ctx, live.ID, alice, "First?")
			Expect(err).NotTo(HaveOccurred())
			second, err := b.PostQuestion(ctx, live.ID, bob, "Second?")
			Expect(err).NotTo(HaveOccurred())
			third, err := b.PostQuestion(ctx, live.ID, alice, "Third?")
			Expect(err).NotTo(HaveOccurred())

			_, err = b.ToggleImportant(ctx, live.ID, first.ID, prof, true)
			Expect(err).NotTo(HaveOccurred())
			_, err = b.MarkAnswered(ctx, live.ID, second.ID, prof)
			Expect(err).NotTo(HaveOccurred())

			all, err := b.ListQuestions(ctx, live.ID, bob, types.QuestionFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(all)).To(Equal([]string{first.ID, third.ID, second.ID}))

			answered, err := b.ListQuestions(ctx, live.ID, bob, types.QuestionFilter{Status: types.QuestionStatusAnswered})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(answered)).To(Equal([]string{second.ID}))

			important, err := b.ListQuestions(ctx, live.ID, bob, types.QuestionFilter{ImportantOnly: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(important)).To(Equal([]string{first.ID}))
		})

		It("rejects unknown filters and outsiders", func() {
			_, err := b.ListQuestions(ctx, live.ID, bob, types.QuestionFilter{Status: "pending"})
			Expect(types.IsValidation(err)).To(BeTrue())

			_, err = b.ListQuestions(ctx, live.ID, zed, types.QuestionFilter{})
			Expect(types.IsAuthorization(err)).To(BeTrue())
		})

		It("shows the current directory name of the author", func() {
			_, err := b.PostQuestion(ctx, live.ID, alice, "Renamed?")
			Expect(err).NotTo(HaveOccurred())

			renamed := *alice
			renamed.Name = "Alice Liddell"
			Expect(db.UpsertParticipant(ctx, &renamed)).To(Succeed())

			qs, err := b.ListQuestions(ctx, live.ID, prof, types.QuestionFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(qs[0].Author.Name).To(Equal("Alice Liddell"))
		})
	})

	Describe("update ledger", func() {
		It("records a new question for every other participant", func() {
			for _, p := range []*types.Participant{prof, tia, alice, bob} {
				_, err := tr.MarkSeen(ctx, live.ID, p)
				Expect(err).NotTo(HaveOccurred())
				Expect(unseenFor(ctx, tr, live.ID, p)).To(BeEmpty())
			}

			q, err := b.PostQuestion(ctx, live.ID, alice, "Is this recorded?")
			Expect(err).NotTo(HaveOccurred())

			for _, p := range []*types.Participant{prof, tia, bob} {
				entries := unseenFor(ctx, tr, live.ID, p)
				Expect(entries).To(HaveLen(1), "participant %s", p.ID)
				Expect(entries[0].QuestionID).To(Equal(q.ID))
				Expect(entries[0].UpdateType).To(Equal(types.UpdateTypeNewQuestion))
			}
			Expect(unseenFor(ctx, tr, live.ID, alice)).To(BeEmpty())
		})

		It("records status changes and replies for everyone but the actor", func() {
			q, err := b.PostQuestion(ctx, live.ID, alice, "Status?")
			Expect(err).NotTo(HaveOccurred())
			_, err = tr.MarkSeen(ctx, live.ID, bob)
			Expect(err).NotTo(HaveOccurred())

			_, err = b.MarkAnswered(ctx, live.ID, q.ID, prof)
			Expect(err).NotTo(HaveOccurred())
			_, err = b.PostReply(ctx, live.ID, q.ID, prof, "Done.", nil)
			Expect(err).NotTo(HaveOccurred())

			entries := unseenFor(ctx, tr, live.ID, bob)
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].UpdateType).To(Equal(types.UpdateTypeStatusChange))
			Expect(entries[1].UpdateType).To(Equal(types.UpdateTypeNewReply))

			for _, e := range unseenFor(ctx, tr, live.ID, prof) {
				Expect(e.UpdateType).To(Equal(types.UpdateTypeNewQuestion))
			}
		})

		It("fans out asynchronously through the hub", func() {
			h := hub.NewHub(tr, 16)
			Expect(h.Start(ctx)).To(Succeed())
			DeferCleanup(h.Stop)
			async := board.NewBoard(db, registry, db, h, pub, board.DefaultOptions())

			_, err := tr.MarkSeen(ctx, live.ID, bob)
			Expect(err).NotTo(HaveOccurred())

			_, err = async.PostQuestion(ctx, live.ID, alice, "Eventually recorded?")
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() []*types.UpdateEntry {
				return unseenFor(ctx, tr, live.ID, bob)
			}).WithTimeout(2 * time.Second).Should(HaveLen(1))
		})
	})

	Describe("classroom scenario", func() {
		It("runs a session from first question to after the end", func() {
			q, err := b.PostQuestion(ctx, live.ID, alice, "Define a deadlock")
			Expect(err).NotTo(HaveOccurred())

			_, err = b.PostQuestion(ctx, live.ID, bob, "  define A   DEADLOCK ")
			Expect(types.IsConflict(err)).To(BeTrue(), "got %v", err)

			_, err = b.MarkAnswered(ctx, live.ID, q.ID, prof)
			Expect(err).NotTo(HaveOccurred())
			Expect(pub.Last().Type).To(Equal(types.EventQuestionAnswered))
			Expect(unseenFor(ctx, tr, live.ID, bob)).To(ContainElement(
				HaveField("UpdateType", types.UpdateTypeStatusChange)))

			ended, err := registry.EndSession(ctx, live.ID, prof)
			Expect(err).NotTo(HaveOccurred())
			Expect(ended.Status).To(Equal(types.SessionStatusCompleted))
			Expect(pub.Last().Type).To(Equal(types.EventSessionEnded))

			_, err = registry.EndSession(ctx, live.ID, prof)
			Expect(types.IsConflict(err)).To(BeTrue())

			reply, err := b.PostReply(ctx, live.ID, q.ID, tia, "A cycle of waits.", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Author).To(Equal(tia.Identity()))

			_, err = b.PostReply(ctx, live.ID, q.ID, bob, "Me too", nil)
			Expect(types.IsAuthorization(err)).To(BeTrue())

			_, err = b.PostQuestion(ctx, live.ID, alice, "One more thing?")
			Expect(types.IsAuthorization(err)).To(BeTrue(), "got %v", err)
		})
	})
})

func ids(qs []*types.Question) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ID)
	}
	return out
}
