package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quizhive/proctor-backend/internal/middleware"
	"github.com/quizhive/proctor-backend/internal/model"
	"github.com/quizhive/proctor-backend/internal/proctor"
	"github.com/quizhive/proctor-backend/internal/progress"
	"github.com/quizhive/proctor-backend/internal/quizapi"
	"github.com/quizhive/proctor-backend/internal/repository"
	"github.com/quizhive/proctor-backend/internal/response"
	"github.com/quizhive/proctor-backend/internal/session"
	"github.com/quizhive/proctor-backend/internal/validator"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SessionHandler handles the HTTP (non-stream) session endpoints: the
// readiness probe, the post-submit result hand-off and the violation report.
type SessionHandler struct {
	api           quizapi.API
	results       progress.ResultStore
	violationRepo *repository.ViolationRepository
	manager       *session.Manager
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	api quizapi.API,
	results progress.ResultStore,
	violationRepo *repository.ViolationRepository,
	manager *session.Manager,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		api:           api,
		results:       results,
		violationRepo: violationRepo,
		manager:       manager,
		rdb:           rdb,
		log:           log.With().Str("component", "session_handler").Logger(),
	}
}

// GetStatus godoc
// GET /api/v1/status
// Readiness probe for the pre-quiz "ready" screen: reports whether the quiz
// backend is reachable and serving.
func (h *SessionHandler) GetStatus(c *gin.Context) {
	running, err := h.api.Status(c.Request.Context())
	if err != nil || !running {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrBackendNotReady)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "running"})
}

// GetResult godoc
// GET /api/v1/sessions/:session_id/result
// Returns the graded payload recorded at submission, for the results screen.
func (h *SessionHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	res, err := h.results.LoadResult(c.Request.Context(), claims.SessionID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if res == nil {
		response.Fail(c, http.StatusNotFound, response.ErrResultNotReady)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ListViolations godoc
// GET /api/v1/sessions/:session_id/violations
// Lists the recorded integrity violations for this session, newest last.
func (h *SessionHandler) ListViolations(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	violations, err := h.violationRepo.ListBySession(c.Request.Context(), claims.SessionID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if violations == nil {
		violations = []model.Violation{}
	}

	counts, err := h.violationRepo.CountBySession(c.Request.Context(), claims.SessionID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"violations": violations,
		"counts":     counts,
	})
}

// reportViolationRequest is the beacon body sent on page unload, when the
// WebSocket is already gone.
type reportViolationRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=tab_switch fullscreen_exit"`
	Payload string `json:"payload" binding:"max=512"`
}

// ReportViolation godoc
// POST /api/v1/sessions/:session_id/violations
// Beacon fallback for violation reports. Browsers fire sendBeacon on page
// hide, which cannot ride the WebSocket; this endpoint routes the event to
// the live controller (if any) and the audit queue.
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req reportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var reporter proctor.Reporter
	if ctrl := h.manager.Get(claims.SessionID); ctrl != nil {
		reporter = ctrl
	}
	monitor := proctor.NewMonitor(claims.SessionID, reporter, h.rdb, h.log)
	monitor.Report(c.Request.Context(), proctor.Event{
		Kind:    model.ViolationKind(req.Kind),
		Payload: req.Payload,
	})

	response.Success(c, http.StatusAccepted, gin.H{"recorded": true})
}
