package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/yourusername/petmonitor/internal/api"
	"github.com/yourusername/petmonitor/internal/core"
	"github.com/yourusername/petmonitor/internal/database"
	"github.com/yourusername/petmonitor/internal/device"
	"github.com/yourusername/petmonitor/internal/directory"
	"github.com/yourusername/petmonitor/internal/hub"
	"github.com/yourusername/petmonitor/internal/ptz"
	"github.com/yourusername/petmonitor/internal/streaming"
	"github.com/yourusername/petmonitor/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/config.yaml"
	version           = "0.1.0"
)

func main() {
	// 커맨드라인 플래그 파싱
	configPath := flag.String("config", defaultConfigPath, "설정 파일 경로")
	showVersion := flag.Bool("version", false, "버전 정보 출력")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Pet Monitor Camera Server v%s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(config.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting Pet Monitor Camera Server",
		zap.String("version", version),
		zap.String("go_version", runtime.Version()),
		zap.Int("num_cpu", runtime.NumCPU()),
	)

	logger.Info("Server configuration",
		zap.Int("http_port", config.Server.HTTPPort),
		zap.Bool("production", config.Server.Production),
		zap.String("database", config.Database.Path),
		zap.Int("device_latency_ms", config.Devices.LatencyMs),
	)

	app, err := initializeApplication(config)
	if err != nil {
		logger.Error("Failed to initialize application", zap.Error(err))
		logger.Close()
		os.Exit(1)
	}

	logger.Info("All components initialized successfully")

	// 종료 시그널 대기
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.cleanup()

	logger.Info("Server stopped gracefully")
}

// Application은 애플리케이션 컴포넌트들을 관리합니다
type Application struct {
	config    *core.Config
	db        *database.DB
	cameras   *database.CameraRepository
	directory *directory.Service
	relay     *streaming.Relay
	hubServer *hub.Server
	apiServer *api.Server
}

// initializeApplication은 애플리케이션을 초기화합니다
func initializeApplication(config *core.Config) (*Application, error) {
	app := &Application{config: config}

	// 1. 데이터베이스
	db, err := database.Open(config.Database.Path, logger.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db
	app.cameras = database.NewCameraRepository(db, logger.Log)
	logger.Info("Camera registry initialized", zap.String("path", config.Database.Path))

	// 2. 장치 커넥터와 카메라 디렉터리
	connector := device.NewSimulator(config.Devices, logger.Log)
	app.directory = directory.NewService(app.cameras, connector, logger.Log)
	app.directory.SetDiscoveryTimeout(config.DiscoveryTimeout())
	// 이전 실행이 남긴 Streaming 상태는 살아 있는 세션이 없으므로 되돌림
	if _, err := app.directory.ResetStreams(context.Background()); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to reset stream state: %w", err)
	}
	gate := ptz.NewGate(app.cameras, connector, logger.Log)
	logger.Info("Camera directory initialized")

	// 3. 이벤트 허브
	app.hubServer = hub.NewServer(hub.ServerConfig{
		Logger:          logger.Log,
		SendBufferSize:  config.Hub.SendBufferSize,
		ReadBufferSize:  config.Hub.ReadBufferSize,
		WriteBufferSize: config.Hub.WriteBufferSize,
		MaxMessageSize:  config.Hub.MaxMessageSize,
	})
	logger.Info("Event hub initialized")

	// 4. RTSP 릴레이와 스트림 컨트롤러
	transport := "udp"
	if config.Streaming.TCPTransport {
		transport = "tcp"
	}
	var controller *streaming.Controller
	app.relay = streaming.NewRelay(streaming.RelayConfig{
		Transport:  transport,
		Timeout:    time.Duration(config.Streaming.Timeout) * time.Second,
		RetryCount: config.Streaming.RetryCount,
		RetryDelay: time.Duration(config.Streaming.RetryDelay) * time.Second,
		Sink:       app.hubServer,
		Logger:     logger.Log,
		OnFailure: func(cameraID string, err error) {
			controller.HandleTransportFailure(cameraID, err)
		},
	})
	controller = streaming.NewController(app.directory, app.relay, app.hubServer, logger.Log)
	app.hubServer.SetStreamHandlers(controller.Start, controller.Stop)
	logger.Info("Stream controller initialized")

	// 5. API 서버
	app.apiServer = api.NewServer(api.ServerConfig{
		Port:             config.Server.HTTPPort,
		Production:       config.Server.Production,
		AllowedOrigins:   config.Server.AllowedOrigins,
		Logger:           logger.Log,
		Cameras:          app.directory,
		PTZ:              gate,
		Streams:          controller,
		HealthHandler:    app.health,
		WebSocketHandler: app.hubServer.HandleWebSocket,
	})

	if err := app.apiServer.Start(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	logger.Info("API server started")

	return app, nil
}

// health는 헬스 체크 응답을 만듭니다
func (app *Application) health(ctx context.Context) map[string]interface{} {
	status := "ok"
	cameras, err := app.cameras.Count(ctx)
	if err != nil {
		logger.Warn("Health check could not count cameras", zap.Error(err))
		status = "degraded"
	}

	return map[string]interface{}{
		"status":  status,
		"version": version,
		"time":    time.Now().UTC(),
		"cameras": cameras,
		"clients": app.hubServer.GetClientCount(),
		"streams": app.relay.Stats(),
	}
}

// cleanup은 애플리케이션 리소스를 정리합니다
func (app *Application) cleanup() {
	logger.Info("Cleaning up application resources")

	timeout := time.Duration(app.config.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if app.apiServer != nil {
		if err := app.apiServer.Stop(ctx); err != nil {
			logger.Warn("API server shutdown incomplete", zap.Error(err))
		}
	}

	if app.relay != nil {
		// 저장된 상태가 Streaming으로 남지 않도록 실행 중인 스트림을 먼저 되돌림
		if app.directory != nil {
			for _, st := range app.relay.Stats() {
				if _, err := app.directory.StopStream(ctx, st.CameraID); err != nil {
					logger.Warn("Failed to reset camera stream state",
						zap.String("camera_id", st.CameraID),
						zap.Error(err),
					)
				}
			}
		}
		app.relay.Close(ctx)
	}

	if app.hubServer != nil {
		app.hubServer.Close()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}

	logger.Info("Cleanup completed")
}
