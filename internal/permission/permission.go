// Package permission is the single authorization decision point. Every
// mutating operation asks Check before touching storage.
package permission

import (
	"classboard/pkg/types"
)

type Action string

const (
	ActionEndSession      Action = "endSession"
	ActionViewSession     Action = "viewSession"
	ActionPostQuestion    Action = "postQuestion"
	ActionReply           Action = "replyToQuestion"
	ActionMarkAnswered    Action = "markAnswered"
	ActionDeleteQuestion  Action = "deleteQuestion"
	ActionToggleImportant Action = "toggleImportant"
)

// standing is the actor's position in one course.
type standing int

const (
	standingNone standing = iota
	standingStudent
	standingTA
	standingInstructor
)

func (s standing) String() string {
	switch s {
	case standingStudent:
		return "student"
	case standingTA:
		return "teaching assistant"
	case standingInstructor:
		return "instructor"
	default:
		return "non-member"
	}
}

type allowSet map[standing]bool

func allow(standings ...standing) allowSet {
	set := make(allowSet, len(standings))
	for _, s := range standings {
		set[s] = true
	}
	return set
}

// matrix maps (action, session status) to the standings that may act.
// A missing entry denies.
var matrix = map[Action]map[string]allowSet{
	ActionPostQuestion: {
		types.SessionStatusLive: allow(standingStudent),
	},
	ActionReply: {
		types.SessionStatusLive:      allow(standingInstructor),
		types.SessionStatusCompleted: allow(standingInstructor, standingTA),
	},
	ActionMarkAnswered: {
		types.SessionStatusLive:      allow(standingInstructor),
		types.SessionStatusCompleted: allow(standingInstructor, standingTA),
	},
	ActionDeleteQuestion: {
		types.SessionStatusLive:      allow(standingInstructor),
		types.SessionStatusCompleted: allow(standingInstructor),
	},
	ActionToggleImportant: {
		types.SessionStatusLive:      allow(standingInstructor),
		types.SessionStatusCompleted: allow(standingInstructor, standingTA),
	},
	ActionViewSession: {
		types.SessionStatusLive:      allow(standingStudent, standingTA, standingInstructor),
		types.SessionStatusCompleted: allow(standingStudent, standingTA, standingInstructor),
	},
}

// standingIn ranks the actor in a course for actions on an existing
// session. Instructor outranks TA, which outranks a plain enrollment. A
// globally instructor-role actor enrolled in the course counts as its
// instructor here, but not for CheckCreate.
func standingIn(actor *types.Participant, courseName string) standing {
	if actor == nil {
		return standingNone
	}
	m, ok := actor.Membership(courseName)
	if !ok {
		return standingNone
	}
	switch {
	case m.IsInstructor:
		return standingInstructor
	case m.IsTA:
		return standingTA
	case m.Enrolled && actor.Role == types.RoleInstructor:
		return standingInstructor
	case m.Enrolled:
		return standingStudent
	default:
		return standingNone
	}
}

// Allowed reports the decision for an action on an existing session.
func Allowed(action Action, actor *types.Participant, session *types.Session) bool {
	return Check(action, actor, session) == nil
}

// Check returns nil when the actor may perform action on session, or an
// authorization error describing why not.
func Check(action Action, actor *types.Participant, session *types.Session) error {
	if session == nil {
		return types.Unauthorizedf("%s requires a session", action)
	}

	st := standingIn(actor, session.CourseName)
	if st == standingNone {
		return types.Unauthorizedf("not enrolled in course %s", session.CourseName)
	}

	if action == ActionEndSession {
		if actor.ID != session.CreatedBy.ID {
			return types.Unauthorizedf("only the session creator can end it")
		}
		return nil
	}

	if action == ActionPostQuestion && actor.Role != types.RoleStudent {
		return types.Unauthorizedf("only students can post questions")
	}

	byStatus, ok := matrix[action]
	if !ok {
		return types.Unauthorizedf("unknown action %s", action)
	}
	if !byStatus[session.Status][st] {
		return types.Unauthorizedf("%s cannot %s while session is %s", st, action, session.Status)
	}
	return nil
}

// CheckCreate decides session creation, which happens before a session
// exists. Only the course's own instructor flag counts; an instructor-role
// guest enrolled in the course cannot start one.
func CheckCreate(actor *types.Participant, courseName string) error {
	if actor == nil {
		return types.Unauthorizedf("only an instructor of %s can start a session", courseName)
	}
	if m, ok := actor.Membership(courseName); !ok || !m.IsInstructor {
		return types.Unauthorizedf("only an instructor of %s can start a session", courseName)
	}
	return nil
}

// CheckMember decides course-scoped reads such as the active session lookup.
func CheckMember(actor *types.Participant, courseName string) error {
	if standingIn(actor, courseName) == standingNone {
		return types.Unauthorizedf("not enrolled in course %s", courseName)
	}
	return nil
}
