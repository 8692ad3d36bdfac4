package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classboard/internal/logger"
	"classboard/pkg/types"
)

type CreateSessionRequest struct {
	CourseName string `json:"course_name"`
}

// SessionResponse adds the live connection count to a session.
type SessionResponse struct {
	*types.Session
	ConnectionCount int `json:"connection_count"`
}

type ListSessionsResponse struct {
	Sessions []*types.Session `json:"sessions"`
}

type SeenResponse struct {
	SessionID  string    `json:"session_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// POST /api/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), req.CourseName, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// GET /api/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	c.JSON(http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

// GET /api/courses/:course/active-session
func (h *Handler) GetActiveSession(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	session, err := h.sessions.GetActiveSession(c.Request.Context(), c.Param("course"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /api/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	session, err := h.sessions.ViewSession(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}

	resp := SessionResponse{Session: session}
	if h.rooms != nil {
		resp.ConnectionCount = h.rooms.RoomSize(session.ID)
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/sessions/:id/end
func (h *Handler) EndSession(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	session, err := h.sessions.EndSession(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// POST /api/sessions/:id/join records the caller as present in the course
// so ledger fan-out reaches them.
func (h *Handler) JoinSession(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{SessionID: c.Param("id")})

	session, err := h.sessions.ViewSession(ctx, c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.directory.UpsertParticipant(ctx, p); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// POST /api/sessions/:id/seen
func (h *Handler) MarkSeen(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	at, err := h.updates.MarkSeen(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SeenResponse{SessionID: c.Param("id"), LastSeenAt: at})
}

// GET /api/sessions/:id/updates
func (h *Handler) GetUpdates(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	record, err := h.updates.GetUnseen(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	if record.Updates == nil {
		record.Updates = []*types.UpdateEntry{}
	}
	c.JSON(http.StatusOK, record)
}
