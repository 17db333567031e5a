package server

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/postshare/internal/service"
	"github.com/ifuryst/postshare/internal/service/share"
)

const (
	defaultErrorLimit = 50
	maxErrorLimit     = 500
	defaultStatsDays  = 30
)

func (s *Server) handleCreatePost(c *gin.Context) {
	var input service.PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := s.posts.Create(c.Request.Context(), input)
	if err != nil {
		s.respondError(c, "Failed to create post", err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleUpdatePost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var input service.PostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := s.posts.Update(c.Request.Context(), id, input)
	if err != nil {
		s.respondError(c, "Failed to update post", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetPost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	post, err := s.posts.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "Failed to get post", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"post":        post,
		"share_state": share.StateOf(post),
	})
}

func (s *Server) handleGetPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": s.platforms.GetAvailablePlatforms()})
}

func (s *Server) handleReconcile(c *gin.Context) {
	count, err := s.reconciler.Reconcile(c.Request.Context())
	if err != nil {
		s.Logger.Error("Manual reconcile failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconcile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requeued": count})
}

// handleExecuteShare runs the handler for one post right away. The handler's
// own checks make this safe against a concurrent queue delivery.
func (s *Server) handleExecuteShare(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	outcome, err := s.shares.Execute(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, share.ErrPostNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		case errors.Is(err, share.ErrPublisher):
			c.JSON(http.StatusBadGateway, gin.H{"outcome": outcome, "error": err.Error()})
		default:
			s.Logger.Error("Manual share execution failed", zap.Uint("post_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"outcome": outcome, "error": "Share execution failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) handleGetErrors(c *gin.Context) {
	limit := queryInt(c, "limit", defaultErrorLimit)
	if limit > maxErrorLimit {
		limit = maxErrorLimit
	}

	logs, err := s.reports.GetRecentErrors(c.Request.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to get error logs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get errors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": logs})
}

func (s *Server) handleGetStats(c *gin.Context) {
	days := queryInt(c, "days", defaultStatsDays)

	stats, err := s.reports.GetShareStats(c.Request.Context(), days)
	if err != nil {
		s.Logger.Error("Failed to get share stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) respondError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, share.ErrInvalidSchedulingIntent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, share.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
	default:
		s.Logger.Error(message, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post id"})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
