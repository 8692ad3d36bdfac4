package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classboard/internal/auth"
	"classboard/pkg/interfaces"
	"classboard/pkg/types"
)

type SessionService interface {
	CreateSession(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error)
	EndSession(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error)
	GetActiveSession(ctx context.Context, courseName string, actor *types.Participant) (*types.Session, error)
	ViewSession(ctx context.Context, sessionID string, actor *types.Participant) (*types.Session, error)
	ListSessions(ctx context.Context, actor *types.Participant) ([]*types.Session, error)
}

type QuestionService interface {
	PostQuestion(ctx context.Context, sessionID string, actor *types.Participant, text string) (*types.Question, error)
	MarkAnswered(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error)
	ToggleImportant(ctx context.Context, sessionID, questionID string, actor *types.Participant, value bool) (*types.Question, error)
	PostReply(ctx context.Context, sessionID, questionID string, actor *types.Participant, text string, parentReplyID *string) (*types.Reply, error)
	DeleteQuestion(ctx context.Context, sessionID, questionID string, actor *types.Participant) error
	ListQuestions(ctx context.Context, sessionID string, actor *types.Participant, filter types.QuestionFilter) ([]*types.Question, error)
	GetQuestion(ctx context.Context, sessionID, questionID string, actor *types.Participant) (*types.Question, error)
}

type UpdateService interface {
	MarkSeen(ctx context.Context, sessionID string, actor *types.Participant) (time.Time, error)
	GetUnseen(ctx context.Context, sessionID string, actor *types.Participant) (*types.UpdateRecord, error)
}

// RoomCounter reports how many connections listen to a room.
type RoomCounter interface {
	RoomSize(room string) int
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type StatsProvider interface {
	GetStats() map[string]interface{}
}

type Deps struct {
	Sessions  SessionService
	Questions QuestionService
	Updates   UpdateService
	Directory interfaces.ParticipantDirectory
	Rooms     RoomCounter
	Database  HealthChecker

	// Stats are reported by /health under their map key.
	Stats map[string]StatsProvider
}

// Handler serves the REST surface. It holds no business logic: every call
// is translated to one service operation and its result rendered as JSON.
type Handler struct {
	sessions  SessionService
	questions QuestionService
	updates   UpdateService
	directory interfaces.ParticipantDirectory
	rooms     RoomCounter
	database  HealthChecker
	stats     map[string]StatsProvider
	started   time.Time
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		sessions:  deps.Sessions,
		questions: deps.Questions,
		updates:   deps.Updates,
		directory: deps.Directory,
		rooms:     deps.Rooms,
		database:  deps.Database,
		stats:     deps.Stats,
		started:   time.Now(),
	}
}

// actor returns the authenticated participant or aborts with 401.
func actor(c *gin.Context) (*types.Participant, bool) {
	p, ok := auth.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: auth.ErrMissingToken.Error()})
		return nil, false
	}
	return p, true
}
