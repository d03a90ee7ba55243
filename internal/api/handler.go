package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/studyware/coursechat/internal/domain"
	"github.com/studyware/coursechat/internal/service"
)

// Handler handles chat API requests
type Handler struct {
	svc      *service.RAGService
	logger   *zap.Logger
	docsPath string
}

// NewHandler creates a new API handler
func NewHandler(svc *service.RAGService, logger *zap.Logger, docsPath string) *Handler {
	return &Handler{svc: svc, logger: logger, docsPath: docsPath}
}

// RegisterRoutes registers public API routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/query", h.Query)
	r.GET("/courses", h.Courses)
	r.POST("/sessions/clear", h.ClearSession)
}

// RegisterAdminRoutes registers routes behind API key auth
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/reindex", h.Reindex)
}

// Query answers one user question, creating a session when none is
// provided.
func (h *Handler) Query(c *gin.Context) {
	var req domain.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.svc.Query(c.Request.Context(), req.Query, req.SessionID)
	if err != nil {
		// Internal detail goes to the log, not to the client.
		h.logger.Error("query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer query"})
		return
	}
	if resp.Sources == nil {
		resp.Sources = []domain.Source{}
	}

	c.JSON(http.StatusOK, resp)
}

// Courses returns course statistics.
func (h *Handler) Courses(c *gin.Context) {
	stats, err := h.svc.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load course stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

type clearSessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// ClearSession discards a session's history. Unknown session ids are
// treated as success.
func (h *Handler) ClearSession(c *gin.Context) {
	var req clearSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.svc.ClearSession(req.SessionID)
	c.Status(http.StatusNoContent)
}

// Reindex destroys the index and re-ingests the docs directory.
func (h *Handler) Reindex(c *gin.Context) {
	courses, chunks, err := h.svc.Reindex(c.Request.Context(), h.docsPath)
	if err != nil {
		h.logger.Error("reindex failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reindex"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"courses": courses, "chunks": chunks})
}
