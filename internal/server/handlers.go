package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ifuryst/threads-insights/internal/models"
	"github.com/ifuryst/threads-insights/internal/service"
	"github.com/ifuryst/threads-insights/internal/service/threads"
)

type postsQuery struct {
	From      string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To        string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	MediaType string `form:"media_type" binding:"omitempty,oneof=TEXT IMAGE VIDEO CAROUSEL_ALBUM"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}

type runsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=running success failed"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

type refreshRequest struct {
	AccessToken string `json:"access_token"`
}

// bindError answers 400 with the first failing field.
func bindError(c *gin.Context, err error) {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		first := vErrs[0]
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid parameter %s: failed on %s", first.Field(), first.Tag()),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// upstreamError maps Threads client errors onto HTTP statuses.
func (s *Server) upstreamError(c *gin.Context, err error) {
	var authErr *threads.AuthError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Error()})
		return
	}
	s.Logger.Error("Threads API call failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleDatabaseHealth(c *gin.Context) {
	if err := s.Reports.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": s.Config.Database.Type,
		"time":     time.Now().Unix(),
	})
}

func (s *Server) handleStatsSummary(c *gin.Context) {
	summary, err := s.Reports.StatsSummary(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to get stats summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleIngestRun runs one cycle synchronously and always answers with the run's terminal state.
func (s *Server) handleIngestRun(c *gin.Context) {
	run, err := s.Ingest.Run(c.Request.Context(), models.TriggerAPI)
	if errors.Is(err, service.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run ingestion"})
		return
	}

	if run.Status != models.RunStatusSuccess {
		c.JSON(http.StatusInternalServerError, run)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListRuns(c *gin.Context) {
	var q runsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	runs, err := s.Reports.ListRuns(c.Request.Context(), models.RunStatus(q.Status), q.Limit)
	if err != nil {
		s.Logger.Error("Failed to list ingest runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.Reports.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.Logger.Error("Failed to get ingest run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handlePostMetrics(c *gin.Context) {
	var q postsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	page, err := s.Reports.ListPostMetrics(c.Request.Context(), service.PostMetricsFilter{
		From:      models.Date(q.From),
		To:        models.Date(q.To),
		MediaType: models.MediaType(q.MediaType),
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if errors.Is(err, service.ErrInvalidRange) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.Logger.Error("Failed to list post metrics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list post metrics"})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleUserSummary(c *gin.Context) {
	summary, err := s.Reports.UserSummary(c.Request.Context())
	if errors.Is(err, service.ErrNoUserInsights) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.Logger.Error("Failed to get user summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleThreadsMe(c *gin.Context) {
	profile, err := s.Threads.GetProfile(c.Request.Context())
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_info": profile,
		"time":      time.Now().Unix(),
	})
}

func (s *Server) handleOAuthLogin(c *gin.Context) {
	if s.OAuth == nil || !s.OAuth.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Threads OAuth is not configured"})
		return
	}

	authURL, state := s.OAuth.AuthorizeURL(c.Query("state"))
	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, authURL)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auth_url": authURL,
		"state":    state,
		"message":  "Visit the auth_url to authorize the application",
	})
}

// handleOAuthCallback exchanges the code for a long-lived token and verifies it.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	if s.OAuth == nil || !s.OAuth.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Threads OAuth is not configured"})
		return
	}
	if e := c.Query("error"); e != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization failed: " + e})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	ctx := c.Request.Context()
	short, err := s.OAuth.ExchangeCode(ctx, code)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	long, err := s.OAuth.ExchangeLongLived(ctx, short.AccessToken)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	profile, err := s.OAuth.Profile(ctx, long.AccessToken)
	if err != nil {
		s.upstreamError(c, err)
		return
	}

	s.Logger.Info("Threads account authorized", zap.String("user_id", profile.ID), zap.String("username", profile.Username))
	c.JSON(http.StatusOK, gin.H{
		"access_token": long.AccessToken,
		"token_type":   long.TokenType,
		"expires_in":   long.ExpiresIn,
		"user_info":    profile,
		"state":        c.Query("state"),
	})
}

// handleOAuthRefresh refreshes the token in the body, or the configured one when the body has none.
func (s *Server) handleOAuthRefresh(c *gin.Context) {
	if s.OAuth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Threads OAuth is not configured"})
		return
	}

	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	if req.AccessToken == "" {
		req.AccessToken = s.Config.Threads.AccessToken
	}
	if req.AccessToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing access token"})
		return
	}

	token, err := s.OAuth.Refresh(c.Request.Context(), req.AccessToken)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (s *Server) handleMetaCallback(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.Logger.Info("Received Meta callback", zap.String("path", c.FullPath()), zap.Bool("signed", c.PostForm("signed_request") != ""))
		c.JSON(http.StatusOK, gin.H{"status": "received", "message": message})
	}
}
