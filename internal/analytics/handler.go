package analytics

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/internal/middleware"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/pkg/response"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Source provides attention aggregates.
type Source interface {
	CandidateAttention(ctx context.Context, candidateID uuid.UUID) (*models.CandidateAttention, error)
	LeastAttentive(ctx context.Context, limit int) ([]models.CandidateAttention, error)
}

// Handler serves attention analytics.
type Handler struct {
	source Source
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(source Source, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, logger: logger}
}

// GetByCandidate handles GET /candidates/:id/attention. Candidates may only read their own.
func (h *Handler) GetByCandidate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid candidate id")
		return
	}
	if !middleware.UserRole(c).IsObserver() {
		if self, ok := middleware.UserID(c); !ok || self != id {
			response.Forbidden(c, "insufficient permissions")
			return
		}
	}
	a, err := h.source.CandidateAttention(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("candidate attention", zap.String("candidate_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to load attention analytics")
		return
	}
	response.OK(c, a)
}

// LeastAttentive handles GET /analytics/least-attentive?limit=N. Observers only (route middleware).
func (h *Handler) LeastAttentive(c *gin.Context) {
	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	list, err := h.source.LeastAttentive(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("least attentive", zap.Error(err))
		response.Internal(c, "failed to load attention analytics")
		return
	}
	response.OK(c, gin.H{"candidates": list})
}
