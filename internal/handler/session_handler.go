package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
	"github.com/stemsi/exstem-portal/internal/validator"
)

// UpdateResponseRequest changes one question's answer and/or review flag.
// SelectedOption and Clear are mutually exclusive.
type UpdateResponseRequest struct {
	SelectedOption  *int  `json:"selected_option" binding:"omitempty,min=0,excluded_with=Clear"`
	Clear           bool  `json:"clear"`
	MarkedForReview *bool `json:"marked_for_review"`
}

// NavigateRequest moves the current question either by direction or to an index.
type NavigateRequest struct {
	Direction string `json:"direction" binding:"omitempty,oneof=next prev"`
	Index     *int   `json:"index" binding:"omitempty,min=0"`
}

// SignalRequest reports one integrity signal.
type SignalRequest struct {
	Kind string `json:"kind" binding:"required,signal_kind"`
}

// SubmitRequest finishes the attempt. Confirmed must be true.
type SubmitRequest struct {
	Confirmed bool `json:"confirmed"`
}

// SessionHandler exposes the exam session over plain HTTP for clients that
// do not hold a WebSocket open.
type SessionHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// Mount godoc
// POST /api/v1/student/exams/:exam_id/session
// Starts or resumes the attempt and returns the full session snapshot.
func (h *SessionHandler) Mount(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID := c.Param("exam_id")

	ctrl, err := h.sessions.Mount(c.Request.Context(), claims.Student(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, ctrl)
}

// GetSession godoc
// GET /api/v1/student/exams/:exam_id/session
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.snapshot(c, ctrl)
}

// UpdateResponse godoc
// PUT /api/v1/student/exams/:exam_id/responses/:question_id
// Persisting happens in the background; the palette reflects the change immediately.
func (h *SessionHandler) UpdateResponse(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req UpdateResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.SelectedOption == nil && !req.Clear && req.MarkedForReview == nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	qid := c.Param("question_id")
	var err error
	switch {
	case req.SelectedOption != nil:
		err = ctrl.Select(qid, *req.SelectedOption)
	case req.Clear:
		err = ctrl.Clear(qid)
	}
	if err == nil && req.MarkedForReview != nil {
		err = ctrl.Mark(qid, *req.MarkedForReview)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, ctrl)
}

// Navigate godoc
// POST /api/v1/student/exams/:exam_id/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.Direction == "" && req.Index == nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	var err error
	switch {
	case req.Index != nil:
		err = ctrl.Jump(*req.Index)
	case req.Direction == "prev":
		err = ctrl.Prev()
	default:
		err = ctrl.Next()
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.snapshot(c, ctrl)
}

// ReportSignal godoc
// POST /api/v1/student/exams/:exam_id/signals
func (h *SessionHandler) ReportSignal(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req SignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.Signal(model.SignalKind(req.Kind)); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"kind": req.Kind})
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades the attempt and returns the stored result.
func (h *SessionHandler) Submit(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := ctrl.Submit(c.Request.Context(), session.SubmitOptions{Confirmed: req.Confirmed})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Unmount godoc
// DELETE /api/v1/student/exams/:exam_id/session
// Leaves the session. The attempt stays resumable.
func (h *SessionHandler) Unmount(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.sessions.Unmount(c.Request.Context(), claims.Student(), c.Param("exam_id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) controller(c *gin.Context) (*session.Controller, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	ctrl, err := h.sessions.Get(claims.Student(), c.Param("exam_id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return ctrl, true
}

func (h *SessionHandler) snapshot(c *gin.Context, ctrl *session.Controller) {
	snap, err := ctrl.Snapshot()
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("exam_id", c.Param("exam_id")).
			Str("code", string(code)).
			Msg("Session request failed")
	}
	response.Fail(c, status, code)
}
