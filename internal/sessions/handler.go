package sessions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/middleware"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/pkg/response"
)

// MaxBatchSamples caps one POST /sessions/:id/samples body.
const MaxBatchSamples = 1000

// ReportLinker presigns report downloads.
type ReportLinker interface {
	PresignReport(ctx context.Context, key string) (string, error)
}

// Handler serves the session HTTP API.
type Handler struct {
	svc     *Service
	reports ReportLinker
	logger  *zap.Logger
}

// NewHandler creates a sessions handler. reports may be nil when S3 is disabled.
func NewHandler(svc *Service, reports ReportLinker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, reports: reports, logger: logger}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(api gin.IRoutes) {
	observers := middleware.RequireRole(models.RoleAdmin, models.RoleInterviewer)

	api.POST("/sessions", h.Create)
	api.GET("/sessions/:id", h.Get)
	api.DELETE("/sessions/:id", observers, h.Close)
	api.GET("/candidates/:id/sessions", h.ListByCandidate)
	api.POST("/sessions/:id/calibration", h.Calibrate)
	api.POST("/sessions/:id/calibration/skip", observers, h.SkipCalibration)
	api.POST("/sessions/:id/start", h.Start)
	api.POST("/sessions/:id/samples", h.Samples)
	api.POST("/sessions/:id/stop", h.Stop)
	api.GET("/sessions/:id/summary", h.Summary)
	api.GET("/sessions/:id/distractions", h.Distractions)
	api.GET("/sessions/:id/history", observers, h.History)
	api.POST("/sessions/:id/final-summary", h.FinalSummary)
	api.GET("/sessions/:id/report-url", observers, h.ReportURL)
}

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	CandidateID    *uuid.UUID `json:"candidate_id"`
	InterviewRef   string     `json:"interview_ref"`
	ViewportWidth  float64    `json:"viewport_width" binding:"required"`
	ViewportHeight float64    `json:"viewport_height" binding:"required"`
	MarginRatio    *float64   `json:"margin_ratio"`
	ResetPolicy    string     `json:"reset_policy"`
}

// CalibrationRequest is the body for POST /sessions/:id/calibration.
type CalibrationRequest struct {
	Point *int `json:"point" binding:"required"`
}

// Create handles POST /sessions. Candidates create their own sessions; observers
// must name the candidate.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _ := middleware.UserID(c)
	candidate := userID
	if middleware.UserRole(c).IsObserver() {
		if req.CandidateID == nil {
			response.BadRequest(c, "candidate_id required")
			return
		}
		candidate = *req.CandidateID
	} else if req.CandidateID != nil && *req.CandidateID != userID {
		response.Forbidden(c, "cannot create a session for another candidate")
		return
	}

	sess, err := h.svc.Create(c.Request.Context(), CreateParams{
		CandidateID:    candidate,
		InterviewRef:   req.InterviewRef,
		ViewportWidth:  req.ViewportWidth,
		ViewportHeight: req.ViewportHeight,
		MarginRatio:    req.MarginRatio,
		ResetPolicy:    req.ResetPolicy,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, sess)
}

// Get handles GET /sessions/:id, including live monitor state when a runner is open.
func (h *Handler) Get(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	live, err := h.svc.Live(c.Request.Context(), sess.ID)
	if err != nil {
		// The stored row is still useful without the live view.
		h.logger.Warn("read live state", zap.String("session_id", sess.ID.String()), zap.Error(err))
	}
	response.OK(c, gin.H{"session": sess, "live": live})
}

// ListByCandidate handles GET /candidates/:id/sessions.
func (h *Handler) ListByCandidate(c *gin.Context) {
	candidateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid candidate id")
		return
	}
	if !canAccess(c, candidateID) {
		response.Forbidden(c, "insufficient permissions")
		return
	}
	list, err := h.svc.ListByCandidate(c.Request.Context(), candidateID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"sessions": list})
}

// Calibrate handles POST /sessions/:id/calibration.
func (h *Handler) Calibrate(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	var req CalibrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	progress, err := h.svc.Calibrate(c.Request.Context(), sess.ID, *req.Point)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, progress)
}

// SkipCalibration handles POST /sessions/:id/calibration/skip.
func (h *Handler) SkipCalibration(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.SkipCalibration(c.Request.Context(), sess.ID); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"calibrated": true})
}

// Start handles POST /sessions/:id/start. 409 when the session is not calibrated.
func (h *Handler) Start(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	started, err := h.svc.Start(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !started {
		c.JSON(409, response.Body{Success: false, Data: gin.H{"started": false}, Error: "session is not calibrated"})
		return
	}
	response.OK(c, gin.H{"started": true})
}

// Samples handles POST /sessions/:id/samples with one sample or an array.
func (h *Handler) Samples(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	samples, err := focus.DecodeSamples(raw)
	if err != nil {
		response.BadRequest(c, "invalid samples: "+err.Error())
		return
	}
	if len(samples) > MaxBatchSamples {
		response.BadRequest(c, "too many samples in one request")
		return
	}
	res, err := h.svc.Ingest(c.Request.Context(), sess.ID, samples)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Accepted(c, res)
}

// Stop handles POST /sessions/:id/stop.
func (h *Handler) Stop(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	sum, err := h.svc.Stop(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, sum)
}

// Summary handles GET /sessions/:id/summary.
func (h *Handler) Summary(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	sum, err := h.svc.Summary(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, sum)
}

// Distractions handles GET /sessions/:id/distractions.
func (h *Handler) Distractions(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	list, err := h.svc.Distractions(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"distractions": list})
}

// History handles GET /sessions/:id/history.
func (h *Handler) History(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	samples, err := h.svc.History(c.Request.Context(), sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"samples": samples})
}

// FinalSummary handles POST /sessions/:id/final-summary.
func (h *Handler) FinalSummary(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if err := h.svc.SubmitClientSummary(c.Request.Context(), sess.ID, json.RawMessage(raw)); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{"stored": true})
}

// ReportURL handles GET /sessions/:id/report-url.
func (h *Handler) ReportURL(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	if h.reports == nil {
		response.ServiceUnavailable(c, "report storage not configured")
		return
	}
	if sess.ReportKey == nil {
		response.NotFound(c, "report not exported yet")
		return
	}
	url, err := h.reports.PresignReport(c.Request.Context(), *sess.ReportKey)
	if err != nil {
		h.logger.Error("presign report", zap.String("session_id", sess.ID.String()), zap.Error(err))
		response.Internal(c, "failed to generate report url")
		return
	}
	response.OK(c, gin.H{"url": url})
}

// Close handles DELETE /sessions/:id.
func (h *Handler) Close(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.svc.Close(c.Request.Context(), sess.ID); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// load parses :id, fetches the session and checks access. It writes the error response itself.
func (h *Handler) load(c *gin.Context) (*models.AttentionSession, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	sess, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if sess.Status == models.SessionClosed && c.Request.Method != "GET" {
		response.NotFound(c, "session closed")
		return nil, false
	}
	if !canAccess(c, sess.CandidateID) {
		response.Forbidden(c, "insufficient permissions")
		return nil, false
	}
	return sess, true
}

func canAccess(c *gin.Context, candidateID uuid.UUID) bool {
	if middleware.UserRole(c).IsObserver() {
		return true
	}
	id, ok := middleware.UserID(c)
	return ok && id == candidateID
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, ErrSessionClosed):
		response.NotFound(c, "session closed")
	case errors.Is(err, ErrInvalidViewport), errors.Is(err, ErrInvalidMargin),
		errors.Is(err, ErrInvalidSummary), errors.Is(err, focus.ErrInvalidResetPolicy):
		response.BadRequest(c, err.Error())
	case errors.Is(err, focus.ErrCalibrationOrder), errors.Is(err, focus.ErrAlreadyCalibrated):
		response.Conflict(c, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(c, "request cancelled")
	default:
		h.logger.Error("session request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}
