package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/threads-insights/internal/config"
	"github.com/ifuryst/threads-insights/internal/service"
	"github.com/ifuryst/threads-insights/internal/service/threads"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Threads   service.MetricsClient
	OAuth     *threads.OAuth
	Ingest    *service.IngestService
	Reports   *service.ReportService
	Scheduler *service.Scheduler
	Reaper    *service.RunReaper
}

// NewServer opens the database, migrates it and wires the production Threads client.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := service.NewDatabase(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client := threads.NewClient(&cfg.Threads, logger)
	oauth := threads.NewOAuth(&cfg.Threads, client, logger)

	return New(cfg, db, client, oauth, logger), nil
}

// New builds a server around an existing database and metrics client.
func New(cfg *config.Config, db *gorm.DB, client service.MetricsClient, oauth *threads.OAuth, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)

	store := service.NewStore(db)
	ingest := service.NewIngestService(store, client, cfg, logger)

	srv := &Server{
		Config:    cfg,
		DB:        db,
		Router:    gin.New(),
		Logger:    logger,
		Threads:   client,
		OAuth:     oauth,
		Ingest:    ingest,
		Reports:   service.NewReportService(store, logger),
		Scheduler: service.NewScheduler(&cfg.Scheduler, cfg.Ingest.Location(), logger, ingest),
		Reaper:    service.NewRunReaper(store, logger, cfg.Ingest.StaleAfter, cfg.Ingest.ReaperInterval),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", s.Config.Server.MetricsPath},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", s.handleHealth)
	s.Router.GET("/health/database", s.handleDatabaseHealth)
	s.Router.GET(s.Config.Server.MetricsPath, gin.WrapH(promhttp.Handler()))

	s.Router.GET("/stats/summary", s.handleStatsSummary)

	ingest := s.Router.Group("/ingest")
	{
		ingest.POST("/run", s.handleIngestRun)
		ingest.GET("/runs", s.handleListRuns)
		ingest.GET("/runs/:id", s.handleGetRun)
	}

	metrics := s.Router.Group("/metrics")
	{
		metrics.GET("/posts", s.handlePostMetrics)
		metrics.GET("/user/summary", s.handleUserSummary)
	}

	s.Router.GET("/threads/me", s.handleThreadsMe)

	auth := s.Router.Group("/auth/threads")
	{
		auth.GET("/login", s.handleOAuthLogin)
		auth.GET("/callback", s.handleOAuthCallback)
		auth.POST("/refresh", s.handleOAuthRefresh)
		auth.POST("/uninstall", s.handleMetaCallback("App uninstall callback"))
		auth.POST("/deauthorize", s.handleMetaCallback("Deauthorize callback"))
	}
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.Reaper.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	var err error
	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		err = s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	} else {
		err = s.Server.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background jobs first
	s.Scheduler.Stop()
	s.Reaper.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
