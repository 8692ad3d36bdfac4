package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classboard/pkg/types"
)

type TextRequest struct {
	Text string `json:"text"`
}

type ReplyRequest struct {
	Text          string  `json:"text"`
	ParentReplyID *string `json:"parent_reply_id"`
}

type ImportantRequest struct {
	Important *bool `json:"important" binding:"required"`
}

type ListQuestionsQuery struct {
	Status    string `form:"status"`
	Important bool   `form:"important"`
	Limit     int    `form:"limit"`
}

type ListQuestionsResponse struct {
	Questions []*types.Question `json:"questions"`
}

// GET /api/sessions/:id/questions
func (h *Handler) ListQuestions(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	var q ListQuestionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	filter := types.QuestionFilter{Status: q.Status, ImportantOnly: q.Important, Limit: q.Limit}
	questions, err := h.questions.ListQuestions(c.Request.Context(), c.Param("id"), p, filter)
	if err != nil {
		fail(c, err)
		return
	}
	if questions == nil {
		questions = []*types.Question{}
	}
	c.JSON(http.StatusOK, ListQuestionsResponse{Questions: questions})
}

// POST /api/sessions/:id/questions
func (h *Handler) PostQuestion(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	q, err := h.questions.PostQuestion(c.Request.Context(), c.Param("id"), p, req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

// GET /api/sessions/:id/questions/:qid
func (h *Handler) GetQuestion(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	q, err := h.questions.GetQuestion(c.Request.Context(), c.Param("id"), c.Param("qid"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// POST /api/sessions/:id/questions/:qid/answer
func (h *Handler) MarkAnswered(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	q, err := h.questions.MarkAnswered(c.Request.Context(), c.Param("id"), c.Param("qid"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// PUT /api/sessions/:id/questions/:qid/important
func (h *Handler) SetImportant(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	var req ImportantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	q, err := h.questions.ToggleImportant(c.Request.Context(), c.Param("id"), c.Param("qid"), p, *req.Important)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// POST /api/sessions/:id/questions/:qid/replies
func (h *Handler) PostReply(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	reply, err := h.questions.PostReply(c.Request.Context(), c.Param("id"), c.Param("qid"), p, req.Text, req.ParentReplyID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reply)
}

// DELETE /api/sessions/:id/questions/:qid
func (h *Handler) DeleteQuestion(c *gin.Context) {
	p, ok := actor(c)
	if !ok {
		return
	}

	if err := h.questions.DeleteQuestion(c.Request.Context(), c.Param("id"), c.Param("qid"), p); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
