package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/petmonitor/internal/camera"
	"go.uber.org/zap"
)

// CameraService는 카메라 등록/조회 API가 사용하는 연산입니다
type CameraService interface {
	GetCameras(ctx context.Context) ([]*camera.Camera, error)
	GetCamera(ctx context.Context, id string) (*camera.Camera, error)
	GetCameraByIP(ctx context.Context, address string) (*camera.Camera, error)
	AddCamera(ctx context.Context, cam *camera.Camera) (*camera.Camera, error)
	UpdateCamera(ctx context.Context, cam *camera.Camera) (*camera.Camera, bool, error)
	DeleteCamera(ctx context.Context, id string) (bool, error)
	TestConnection(ctx context.Context, id string) (bool, error)
	GetProfiles(ctx context.Context, id string) ([]camera.Profile, error)
	DiscoverCameras(ctx context.Context, timeout time.Duration) []*camera.Camera
}

// PTZService는 PTZ API가 사용하는 연산입니다
type PTZService interface {
	ExecuteCommand(ctx context.Context, cmd camera.PTZCommand) (bool, error)
	GetCurrentPosition(ctx context.Context, cameraID string) (*camera.PTZPosition, error)
	MoveToPreset(ctx context.Context, cameraID, presetID string) (bool, error)
	SetPreset(ctx context.Context, cameraID, name string) (bool, error)
	GetPresets(ctx context.Context, cameraID string) ([]camera.PTZPreset, error)
}

// StreamService는 스트림 시작/중지 API가 사용하는 연산입니다
type StreamService interface {
	Start(ctx context.Context, cameraID, profileID string) (bool, error)
	Stop(ctx context.Context, cameraID string) (bool, error)
}

// Server는 HTTP API 서버입니다
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	router     *gin.Engine
	port       int

	cameras CameraService
	ptz     PTZService
	streams StreamService

	// 핸들러
	healthHandler    func(ctx context.Context) map[string]interface{}
	websocketHandler func(http.ResponseWriter, *http.Request)
}

// ServerConfig는 API 서버 설정
type ServerConfig struct {
	Port             int
	Production       bool
	AllowedOrigins   []string
	Logger           *zap.Logger
	Cameras          CameraService
	PTZ              PTZService
	Streams          StreamService
	HealthHandler    func(ctx context.Context) map[string]interface{}
	WebSocketHandler func(http.ResponseWriter, *http.Request)
}

// NewServer는 새로운 API 서버를 생성합니다
func NewServer(config ServerConfig) *Server {
	if !config.Production {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(config.AllowedOrigins))
	router.Use(loggerMiddleware(config.Logger))

	server := &Server{
		logger:           config.Logger.Named("api"),
		router:           router,
		port:             config.Port,
		cameras:          config.Cameras,
		ptz:              config.PTZ,
		streams:          config.Streams,
		healthHandler:    config.HealthHandler,
		websocketHandler: config.WebSocketHandler,
	}

	server.setupRoutes()

	return server
}

// Handler는 라우터를 반환합니다 (테스트용)
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes는 라우트를 설정합니다
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		cameras := v1.Group("/cameras")
		cameras.GET("", s.handleListCameras)
		cameras.POST("", s.handleCreateCamera)
		cameras.GET("/lookup", s.handleLookupCamera)
		cameras.GET("/:id", s.handleGetCamera)
		cameras.PUT("/:id", s.handleUpdateCamera)
		cameras.DELETE("/:id", s.handleDeleteCamera)
		cameras.POST("/:id/test", s.handleTestConnection)
		cameras.GET("/:id/profiles", s.handleGetProfiles)

		cameras.POST("/:id/stream/start", s.handleStartStream)
		cameras.POST("/:id/stream/stop", s.handleStopStream)

		cameras.POST("/:id/ptz/move", s.handlePTZMove)
		cameras.GET("/:id/ptz/position", s.handlePTZPosition)
		cameras.GET("/:id/ptz/presets", s.handleListPresets)
		cameras.POST("/:id/ptz/presets", s.handleSetPreset)
		cameras.POST("/:id/ptz/presets/:presetId/goto", s.handleGotoPreset)

		v1.POST("/discovery", s.handleDiscovery)
	}

	// WebSocket hub
	if s.websocketHandler != nil {
		s.router.GET("/ws", gin.WrapF(s.websocketHandler))
	}
}

// Start는 API 서버를 시작합니다
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("Starting API server", zap.String("addr", addr))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop은 진행 중인 요청을 마무리한 뒤 API 서버를 종료합니다
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth는 헬스 체크를 처리합니다
func (s *Server) handleHealth(c *gin.Context) {
	var health map[string]interface{}

	if s.healthHandler != nil {
		health = s.healthHandler(c.Request.Context())
	} else {
		health = map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC(),
		}
	}

	c.JSON(http.StatusOK, health)
}

// corsMiddleware는 CORS 미들웨어입니다
func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
	}

	if allowAll {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}

	return cors.New(config)
}

// loggerMiddleware는 로깅 미들웨어입니다
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
