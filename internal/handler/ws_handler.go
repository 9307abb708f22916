package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/session"
	"github.com/stemsi/exstem-portal/internal/validator"
	ws "github.com/stemsi/exstem-portal/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{ws.Protocol},
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one exam session over a WebSocket.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamSessionStream godoc
// WS /ws/v1/student/exams/:exam_id/session
// Mounts the session for the lifetime of the connection. The first frame is the
// full state; timer ticks, palette changes, warnings and grading follow as events.
func (h *WSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID := c.Param("exam_id")

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()
	conn := ws.NewConn(raw)

	wsLog := h.log.With().
		Str("student_id", claims.Student()).
		Str("exam_id", examID).
		Logger()

	ctrl, release, err := h.sessions.Acquire(c.Request.Context(), claims.Student(), examID)
	if err != nil {
		_, code := classify(err)
		wsLog.Warn().Err(err).Str("code", string(code)).Msg("Session could not be mounted")
		conn.WriteJSON(ws.EventFatal, ws.ErrorData{Code: string(code), Message: response.GetMessage(code)})
		conn.WriteClose(websocket.ClosePolicyViolation, string(code))
		return
	}
	defer release()

	unobserve := ctrl.Observe(func(n session.Notice) { h.forward(conn, wsLog, n) })
	defer unobserve()

	wsLog.Info().Msg("Student connected")

	if snap, err := ctrl.Snapshot(); err == nil {
		conn.WriteJSON(ws.EventState, snap)
	}

	for {
		var msg ws.RequestPayload
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		if fields := validator.Struct(&msg); fields != nil {
			conn.WriteJSON(ws.EventError, ws.ErrorData{
				Code:    string(response.ErrValidation),
				Message: response.GetMessage(response.ErrValidation),
				Fields:  fields,
			})
			continue
		}

		if err := h.dispatch(c.Request.Context(), conn, ctrl, &msg); err != nil {
			status, code := classify(err)
			if status >= http.StatusInternalServerError {
				wsLog.Error().Err(err).Str("action", string(msg.Action)).Msg("Action failed")
			}
			conn.WriteError(string(code), response.GetMessage(code))
		}
	}
}

// dispatch applies one client action to the controller.
func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, ctrl *session.Controller, msg *ws.RequestPayload) error {
	switch msg.Action {
	case ws.ActionSelect:
		if msg.Option == nil {
			return session.ErrInvalidOption
		}
		return ctrl.Select(msg.QuestionID, *msg.Option)
	case ws.ActionClear:
		return ctrl.Clear(msg.QuestionID)
	case ws.ActionMark:
		marked := true
		if msg.Marked != nil {
			marked = *msg.Marked
		}
		return ctrl.Mark(msg.QuestionID, marked)
	case ws.ActionNavigate:
		switch {
		case msg.Index != nil:
			return ctrl.Jump(*msg.Index)
		case msg.Direction == ws.DirectionPrev:
			return ctrl.Prev()
		default:
			return ctrl.Next()
		}
	case ws.ActionSignal:
		return ctrl.Signal(model.SignalKind(msg.Kind))
	case ws.ActionSubmit:
		// Graded and submission-failed events reach every observer through the notice stream.
		_, err := ctrl.Submit(ctx, session.SubmitOptions{Confirmed: msg.Confirmed})
		var serr *session.SubmissionError
		if errors.As(err, &serr) {
			return nil
		}
		return err
	case ws.ActionPing:
		return conn.WriteJSON(ws.EventPong, nil)
	default:
		return errors.New("unknown action: " + string(msg.Action))
	}
}

// forward translates a controller notice into a WebSocket event.
func (h *WSHandler) forward(conn *ws.Conn, log zerolog.Logger, n session.Notice) {
	var err error
	switch n.Type {
	case session.NoticeTick:
		err = conn.WriteJSON(ws.EventTick, ws.TickData{RemainingSeconds: n.RemainingSeconds})
	case session.NoticePalette:
		err = conn.WriteJSON(ws.EventPalette, ws.PaletteData{Palette: n.Palette})
	case session.NoticeSaved:
		err = conn.WriteJSON(ws.EventSaved, ws.SavedData{QuestionID: n.QuestionID})
	case session.NoticeWarning:
		if n.Warning == nil {
			return
		}
		err = conn.WriteJSON(ws.EventWarning, ws.WarningData{
			Kind:           n.Warning.Kind,
			Count:          n.Warning.Count,
			Total:          n.Warning.Total,
			DismissAfterMS: n.Warning.DismissAfter.Milliseconds(),
		})
	case session.NoticeSuppressed:
		err = conn.WriteJSON(ws.EventSuppressed, ws.SuppressedData{Kind: n.Kind})
	case session.NoticeSaveError:
		_, code := classify(n.Err)
		err = conn.WriteJSON(ws.EventSaveError, ws.ErrorData{
			Code:       string(code),
			Message:    response.GetMessage(code),
			Persistent: n.Persistent,
		})
	case session.NoticeGraded:
		err = conn.WriteJSON(ws.EventGraded, ws.GradedData{Result: n.Result})
	case session.NoticeSubmissionFailed:
		_, code := classify(n.Err)
		err = conn.WriteError(string(code), response.GetMessage(code))
	case session.NoticeClosed:
		err = conn.WriteJSON(ws.EventClosed, ws.ClosedData{RemainingSeconds: n.RemainingSeconds})
	default:
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("notice", string(n.Type)).Msg("Event not delivered")
	}
}
