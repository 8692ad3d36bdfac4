package permission_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"classboard/internal/permission"
	"classboard/pkg/types"
)

const course = "CS101"

var (
	instructor = &types.Participant{
		ID: "prof", Name: "Prof", Role: types.RoleInstructor,
		CourseMemberships: []types.CourseMembership{{CourseName: course, IsInstructor: true}},
	}
	coInstructor = &types.Participant{
		ID: "prof2", Name: "Prof Two", Role: types.RoleInstructor,
		CourseMemberships: []types.CourseMembership{{CourseName: course, IsInstructor: true}},
	}
	enrolledInstructor = &types.Participant{
		ID: "guest", Name: "Guest Prof", Role: types.RoleInstructor,
		CourseMemberships: []types.CourseMembership{{CourseName: course, Enrolled: true}},
	}
	ta = &types.Participant{
		ID: "tia", Name: "Tia", Role: types.RoleStudent,
		CourseMemberships: []types.CourseMembership{{CourseName: course, Enrolled: true, IsTA: true}},
	}
	student = &types.Participant{
		ID: "alice", Name: "Alice", Role: types.RoleStudent,
		CourseMemberships: []types.CourseMembership{{CourseName: course, Enrolled: true}},
	}
	outsider = &types.Participant{
		ID: "zed", Name: "Zed", Role: types.RoleStudent,
		CourseMemberships: []types.CourseMembership{{CourseName: "MA201", Enrolled: true}},
	}
	foreignInstructor = &types.Participant{
		ID: "other", Name: "Other", Role: types.RoleInstructor,
		CourseMemberships: []types.CourseMembership{{CourseName: "MA201", IsInstructor: true}},
	}
)

func session(status string) *types.Session {
	return &types.Session{
		ID:         "s1",
		CourseName: course,
		CreatedBy:  instructor.Identity(),
		Status:     status,
	}
}

const (
	live      = types.SessionStatusLive
	completed = types.SessionStatusCompleted
)

var _ = Describe("Check", func() {
	DescribeTable("decision matrix",
		func(action permission.Action, actor *types.Participant, status string, allowed bool) {
			err := permission.Check(action, actor, session(status))
			if allowed {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(types.IsAuthorization(err)).To(BeTrue(), "expected authorization error, got %v", err)
			}
			Expect(permission.Allowed(action, actor, session(status))).To(Equal(allowed))
		},

		Entry("student posts while live", permission.ActionPostQuestion, student, live, true),
		Entry("student posts after end", permission.ActionPostQuestion, student, completed, false),
		Entry("TA posts while live", permission.ActionPostQuestion, ta, live, false),
		Entry("instructor posts while live", permission.ActionPostQuestion, instructor, live, false),
		Entry("enrolled instructor-role posts while live", permission.ActionPostQuestion, enrolledInstructor, live, false),
		Entry("outsider posts while live", permission.ActionPostQuestion, outsider, live, false),

		Entry("instructor replies while live", permission.ActionReply, instructor, live, true),
		Entry("enrolled instructor-role replies while live", permission.ActionReply, enrolledInstructor, live, true),
		Entry("TA replies while live", permission.ActionReply, ta, live, false),
		Entry("student replies while live", permission.ActionReply, student, live, false),
		Entry("outsider replies while live", permission.ActionReply, outsider, live, false),
		Entry("instructor replies after end", permission.ActionReply, instructor, completed, true),
		Entry("TA replies after end", permission.ActionReply, ta, completed, true),
		Entry("student replies after end", permission.ActionReply, student, completed, false),
		Entry("foreign instructor replies after end", permission.ActionReply, foreignInstructor, completed, false),

		Entry("instructor marks answered while live", permission.ActionMarkAnswered, instructor, live, true),
		Entry("TA marks answered while live", permission.ActionMarkAnswered, ta, live, false),
		Entry("TA marks answered after end", permission.ActionMarkAnswered, ta, completed, true),
		Entry("student marks answered after end", permission.ActionMarkAnswered, student, completed, false),

		Entry("instructor deletes while live", permission.ActionDeleteQuestion, instructor, live, true),
		Entry("instructor deletes after end", permission.ActionDeleteQuestion, instructor, completed, true),
		Entry("TA deletes after end", permission.ActionDeleteQuestion, ta, completed, false),
		Entry("student deletes while live", permission.ActionDeleteQuestion, student, live, false),

		Entry("instructor toggles while live", permission.ActionToggleImportant, instructor, live, true),
		Entry("TA toggles while live", permission.ActionToggleImportant, ta, live, false),
		Entry("TA toggles after end", permission.ActionToggleImportant, ta, completed, true),
		Entry("student toggles after end", permission.ActionToggleImportant, student, completed, false),

		Entry("student views", permission.ActionViewSession, student, completed, true),
		Entry("outsider views", permission.ActionViewSession, outsider, live, false),

		Entry("creator ends", permission.ActionEndSession, instructor, live, true),
		Entry("co-instructor ends", permission.ActionEndSession, coInstructor, live, false),
		Entry("student ends", permission.ActionEndSession, student, live, false),
	)

	It("denies without a session", func() {
		Expect(types.IsAuthorization(permission.Check(permission.ActionReply, instructor, nil))).To(BeTrue())
	})

	It("denies a nil actor", func() {
		Expect(types.IsAuthorization(permission.Check(permission.ActionViewSession, nil, session(live)))).To(BeTrue())
	})

	It("denies unknown actions", func() {
		Expect(types.IsAuthorization(permission.Check("archive", instructor, session(live)))).To(BeTrue())
	})
})

var _ = Describe("CheckCreate", func() {
	It("allows only instructors of the course", func() {
		Expect(permission.CheckCreate(instructor, course)).To(Succeed())
		Expect(types.IsAuthorization(permission.CheckCreate(ta, course))).To(BeTrue())
		Expect(types.IsAuthorization(permission.CheckCreate(student, course))).To(BeTrue())
		Expect(types.IsAuthorization(permission.CheckCreate(foreignInstructor, course))).To(BeTrue())
		Expect(types.IsAuthorization(permission.CheckCreate(nil, course))).To(BeTrue())
	})

	It("requires the course instructor flag, not the global role", func() {
		err := permission.CheckCreate(enrolledInstructor, course)
		Expect(types.IsAuthorization(err)).To(BeTrue())

		// the same actor still acts as instructor on an existing session
		Expect(permission.Check(permission.ActionReply, enrolledInstructor, session(live))).To(Succeed())
	})
})

var _ = Describe("CheckMember", func() {
	It("allows any course member", func() {
		for _, p := range []*types.Participant{instructor, ta, student} {
			Expect(permission.CheckMember(p, course)).To(Succeed())
		}
		Expect(types.IsAuthorization(permission.CheckMember(outsider, course))).To(BeTrue())
	})
})
