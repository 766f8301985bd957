// Package server exposes the query engine over HTTP and WebSocket: a chat
// endpoint that resolves queries in the background and pushes progress events,
// plus management APIs for documents, sessions and the system prompt.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"docquery/internal/config"
	"docquery/internal/engine"
	"docquery/internal/logging"
)

// Server hosts the HTTP/WebSocket surface on top of an engine.
type Server struct {
	engine     *engine.Engine
	cfg        config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	hub        *hub
	logger     logging.Logger
	startTime  time.Time
}

// New assembles the server, its middleware and routes.
func New(eng *engine.Engine, cfg config.ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowWebSockets = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		engine:    eng,
		cfg:       cfg,
		router:    router,
		hub:       newHub(),
		logger:    logging.NewComponentLogger("server"),
		startTime: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.handle(c.Writer, c.Request)
	})

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)

		chat := api.Group("/chat")
		{
			chat.POST("/send", s.handleChatSend)
			chat.GET("/sessions", s.handleListSessions)
			chat.GET("/sessions/:id", s.handleGetSession)
			chat.DELETE("/sessions/:id", s.handleDeleteSession)
		}

		files := api.Group("/files")
		{
			files.GET("/list", s.handleListFiles)
			files.POST("/upload", s.handleUploadFile)
			files.GET("/:name/download", s.handleDownloadFile)
			files.DELETE("/:name", s.handleDeleteFile)
		}

		api.GET("/system-prompt", s.handleGetSystemPrompt)
		api.PUT("/system-prompt", s.handleUpdateSystemPrompt)
	}
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
