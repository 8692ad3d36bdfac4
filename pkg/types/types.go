package types

import (
	"time"
)

// Session lifecycle states. Completed is terminal.
const (
	SessionStatusLive      = "live"
	SessionStatusCompleted = "completed"
)

// Question answer states. Importance is tracked separately.
const (
	QuestionStatusUnanswered = "unanswered"
	QuestionStatusAnswered   = "answered"
)

// Participant roles as issued by the identity provider.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// Ledger entry kinds recorded by the update tracker.
const (
	UpdateTypeNewQuestion  = "newQuestion"
	UpdateTypeStatusChange = "statusChange"
	UpdateTypeNewReply     = "newReply"
)

// Push event types delivered to room subscribers.
const (
	EventQuestionCreated  = "question:created"
	EventQuestionAnswered = "question:answered"
	EventQuestionUpdated  = "question:updated"
	EventQuestionDeleted  = "question:deleted"
	EventReplyCreated     = "reply:created"
	EventSessionCreated   = "session:created"
	EventSessionEnded     = "session:ended"
)

// Duplicate question scopes.
const (
	DuplicateScopeSession = "session"
	DuplicateScopeAuthor  = "author"
)

// Identity is the id+name snapshot stored on sessions, questions and replies.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is one live-or-completed teaching period bound to a course.
// Only Status and EndAt change after creation.
type Session struct {
	ID            string     `json:"session_id"`
	CourseName    string     `json:"course_name"`
	CreatedBy     Identity   `json:"created_by"`
	Status        string     `json:"status"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         *time.Time `json:"end_at"`
	QuestionCount int        `json:"question_count,omitempty"`
}

// IsLive reports whether the session still accepts live-only actions.
func (s *Session) IsLive() bool {
	return s.Status == SessionStatusLive
}

// Question is a student question posted into a session.
type Question struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Author    Identity  `json:"author"`
	Status    string    `json:"status"`
	Important bool      `json:"important"`
	Replies   []*Reply  `json:"replies"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DedupeKey is the normalized text, prefixed with the author id when
	// duplicates are scoped per author. It is never sent to clients.
	DedupeKey string `json:"-"`
}

// Reply is an immutable answer or clarification attached to a question.
// A nil ParentReplyID attaches the reply to the question itself.
type Reply struct {
	ID            string    `json:"id"`
	QuestionID    string    `json:"question_id"`
	ParentReplyID *string   `json:"parent_reply_id"`
	Author        Identity  `json:"author"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
}

// CourseMembership describes one actor's standing in one course.
type CourseMembership struct {
	CourseName   string `json:"course_name"`
	Enrolled     bool   `json:"enrolled"`
	IsTA         bool   `json:"is_ta"`
	IsInstructor bool   `json:"is_instructor"`
}

// Participant is the identity snapshot supplied by the identity provider on
// every call. The same shape is cached in the participant directory.
type Participant struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Role              string             `json:"role"`
	CourseMemberships []CourseMembership `json:"courses"`
}

// Identity returns the id+name snapshot for storing on authored records.
func (p *Participant) Identity() Identity {
	return Identity{ID: p.ID, Name: p.Name}
}

// Membership returns the actor's membership for a course, if any.
func (p *Participant) Membership(courseName string) (CourseMembership, bool) {
	for _, m := range p.CourseMemberships {
		if m.CourseName == courseName {
			return m, true
		}
	}
	return CourseMembership{}, false
}

// CourseNames lists every course the participant holds a membership in.
func (p *Participant) CourseNames() []string {
	names := make([]string, 0, len(p.CourseMemberships))
	for _, m := range p.CourseMemberships {
		names = append(names, m.CourseName)
	}
	return names
}

// UpdateEntry is one ledger line for one recipient.
type UpdateEntry struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	UpdateType string    `json:"update_type"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UpdateRecord is the ledger of one (session, user) pair.
type UpdateRecord struct {
	SessionID  string         `json:"session_id"`
	UserID     string         `json:"user_id"`
	LastSeenAt time.Time      `json:"last_seen_at"`
	Updates    []*UpdateEntry `json:"updates"`
}

// Event is a push notification delivered to every connection in a room.
// Events are invalidate-and-refetch signals, not authoritative deltas.
type Event struct {
	Type      string    `json:"type"`
	Room      string    `json:"room"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// QuestionFilter narrows question listings.
type QuestionFilter struct {
	Status        string // "", "all", "answered" or "unanswered"
	ImportantOnly bool
	Limit         int
}

// CourseRoom is the room name used for course-wide announcements.
func CourseRoom(courseName string) string {
	return "course:" + courseName
}
