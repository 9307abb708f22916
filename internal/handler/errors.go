package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
)

// classify maps a session or service error onto an HTTP status and error code.
// Both transports use it so REST and WebSocket clients see the same codes.
func classify(err error) (int, response.ErrCode) {
	var serr *session.SubmissionError

	switch {
	case errors.Is(err, session.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, session.ErrExamNotFound):
		return http.StatusNotFound, response.ErrExamNotFound
	case errors.Is(err, session.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions
	case session.IsFatal(err):
		return http.StatusServiceUnavailable, response.ErrSessionUnavailable
	case errors.As(err, &serr):
		return http.StatusInternalServerError, response.ErrSubmissionFailed
	case errors.Is(err, service.ErrNoSession):
		return http.StatusNotFound, response.ErrSessionNotMounted
	case errors.Is(err, session.ErrSubmitInProgress):
		return http.StatusConflict, response.ErrSubmitInProgress
	case errors.Is(err, session.ErrConfirmationRequired):
		return http.StatusBadRequest, response.ErrConfirmationRequired
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusNotFound, response.ErrQuestionNotInExam
	case errors.Is(err, session.ErrInvalidOption):
		return http.StatusUnprocessableEntity, response.ErrInvalidOption
	case errors.Is(err, session.ErrInvalidQuestionIndex):
		return http.StatusUnprocessableEntity, response.ErrValidation
	case errors.Is(err, session.ErrUnknownSignal):
		return http.StatusUnprocessableEntity, response.ErrUnknownSignal
	case errors.Is(err, session.ErrNotActive):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, session.ErrResponsesNotRecorded):
		return http.StatusServiceUnavailable, response.ErrResponsesNotRecorded
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
