package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/action"
	"github.com/omron-sinicx/robotiq-cri/internal/api/websocket"
	"github.com/omron-sinicx/robotiq-cri/internal/auth"
	"github.com/omron-sinicx/robotiq-cri/internal/config"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
	"github.com/omron-sinicx/robotiq-cri/internal/interfaces"
	"github.com/omron-sinicx/robotiq-cri/internal/storage"
)

// Gripper is the part of *gripper.Driver the API uses directly.
type Gripper interface {
	Snapshot() gripper.Snapshot
	Cancel() bool
	Activate(ctx context.Context, timeout time.Duration) bool
	ActivateAsync() error
}

var _ Gripper = (*gripper.Driver)(nil)

// GoalHistory is implemented by *storage.PostgresClient.
type GoalHistory interface {
	ListGoals(ctx context.Context, limit int) ([]storage.GoalExecution, error)
	GetGoal(ctx context.Context, id uuid.UUID) (*storage.GoalExecution, error)
}

// Deps are the components served by the API. History, JWT and System
// may be nil.
type Deps struct {
	Gripper Gripper
	Actions *action.Server
	History GoalHistory
	Hub     *websocket.Hub
	JWT     *auth.JWTHandler
	System  interfaces.LifecycleManager
}

type Server struct {
	router    *gin.Engine
	logger    *zap.Logger
	server    *http.Server
	gripper   Gripper
	actions   *action.Server
	validator *action.Validator
	history   GoalHistory
	wsHub     *websocket.Hub
	jwt       *auth.JWTHandler
	lm        interfaces.LifecycleManager

	activationTimeout time.Duration
}

func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	validator, err := action.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load goal schemas: %w", err)
	}

	s := &Server{
		router:            gin.New(),
		logger:            logger,
		gripper:           deps.Gripper,
		actions:           deps.Actions,
		validator:         validator,
		history:           deps.History,
		wsHub:             deps.Hub,
		jwt:               deps.JWT,
		lm:                deps.System,
		activationTimeout: cfg.Gripper.ActivationTimeout,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// goal requests stay open until the outcome
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== GRIPPER ====================
		g := v1.Group("/gripper", s.authMiddleware()...)
		{
			// Read: Viewer+
			g.GET("/status", auth.RequirePermission(auth.PermRead), s.getStatus)
			g.GET("/goals", auth.RequirePermission(auth.PermRead), s.listGoals)
			g.GET("/goals/:id", auth.RequirePermission(auth.PermRead), s.getGoal)

			// Motion: Operator+
			g.POST("/goal", auth.RequirePermission(auth.PermCommand), s.executeGoal)
			g.POST("/command", auth.RequirePermission(auth.PermCommand), s.executeCommand)
			g.POST("/cancel", auth.RequirePermission(auth.PermCommand), s.cancelGoal)
			g.POST("/activate", auth.RequirePermission(auth.PermCommand), s.activate)
		}

		// ==================== SYSTEM ====================
		if s.lm != nil {
			v1.GET("/system/status", append(s.authMiddleware(), auth.RequirePermission(auth.PermRead), s.getSystemStatus)...)
		}

		// ==================== WEBSOCKET (Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", append(s.authMiddleware(), auth.RequirePermission(auth.PermRead), s.wsStatus)...)
		}
	}
}

func (s *Server) authMiddleware() []gin.HandlerFunc {
	if s.jwt == nil {
		return nil
	}
	return []gin.HandlerFunc{s.jwt.Middleware()}
}

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
