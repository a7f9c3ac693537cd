package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/petmonitor/internal/core"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log는 전역 로거 인스턴스
	Log = zap.NewNop()

	mutex      sync.Mutex
	logConfig  *core.LoggingConfig
	fileWriter *lumberjack.Logger
	cancel     context.CancelFunc
)

// InitLogger는 설정에 맞게 zap 로거를 초기화합니다
//
// output은 "console", "file", "both" 중 하나이며 파일 출력은 날짜별 파일에
// JSON으로 기록됩니다. 파일 출력일 때는 매일 자정에 새 파일로 넘어갑니다.
func InitLogger(cfg core.LoggingConfig) error {
	mutex.Lock()
	defer mutex.Unlock()

	if cancel != nil {
		cancel()
		cancel = nil
	}
	logConfig = &cfg

	if err := initLoggerCore(cfg, time.Now()); err != nil {
		return err
	}

	if writesFile(cfg.Output) {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		go dailyRotation(ctx)
	}

	return nil
}

func writesFile(output string) bool {
	return output == "file" || output == "both"
}

// initLoggerCore는 로거 코어를 만듭니다. mutex를 잡은 상태에서 호출해야 합니다
func initLoggerCore(cfg core.LoggingConfig, now time.Time) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	consoleConfig := zap.NewProductionEncoderConfig()
	consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	fileConfig := zap.NewProductionEncoderConfig()
	fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(os.Stdout), level)

	var logCore zapcore.Core
	switch cfg.Output {
	case "file", "both":
		writer, err := newFileWriter(cfg, now)
		if err != nil {
			return err
		}
		if fileWriter != nil {
			_ = fileWriter.Close()
		}
		fileWriter = writer

		logCore = zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), zapcore.AddSync(writer), level)
		if cfg.Output == "both" {
			logCore = zapcore.NewTee(consoleCore, logCore)
		}
	default:
		logCore = consoleCore
	}

	Log = zap.New(logCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return nil
}

// newFileWriter는 날짜별 로그 파일 writer를 생성합니다
func newFileWriter(cfg core.LoggingConfig, now time.Time) (*lumberjack.Logger, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("log file_path is required for output %q", cfg.Output)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   DailyFilePath(cfg.FilePath, now),
		MaxSize:    cfg.MaxSize,    // MB
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // 일
		LocalTime:  true,
		Compress:   true,
	}, nil
}

// DailyFilePath는 날짜를 포함한 로그 파일 경로를 만듭니다
// 예: logs/petmonitor.log -> logs/petmonitor-2025-11-17.log
func DailyFilePath(basePath string, day time.Time) string {
	ext := filepath.Ext(basePath)
	name := strings.TrimSuffix(basePath, ext)
	return fmt.Sprintf("%s-%s%s", name, day.Format("2006-01-02"), ext)
}

// untilMidnight는 다음 자정까지 남은 시간입니다
func untilMidnight(now time.Time) time.Duration {
	next := now.AddDate(0, 0, 1)
	midnight := time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, now.Location())
	return midnight.Sub(now)
}

// dailyRotation은 매일 자정에 새 날짜 파일로 로거를 다시 만듭니다
func dailyRotation(ctx context.Context) {
	for {
		timer := time.NewTimer(untilMidnight(time.Now()))

		select {
		case <-timer.C:
			mutex.Lock()
			if logConfig != nil {
				_ = Log.Sync()
				if err := initLoggerCore(*logConfig, time.Now()); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
				}
			}
			mutex.Unlock()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Close는 로거를 종료하고 파일을 닫습니다
func Close() {
	mutex.Lock()
	defer mutex.Unlock()

	if cancel != nil {
		cancel()
		cancel = nil
	}
	_ = Log.Sync()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
}

// Sync는 로거 버퍼를 플러시합니다
func Sync() {
	_ = Log.Sync()
}

// Info는 info 레벨 로그를 출력합니다
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Debug는 debug 레벨 로그를 출력합니다
func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Warn는 warn 레벨 로그를 출력합니다
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// Error는 error 레벨 로그를 출력합니다
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// Fatal는 fatal 레벨 로그를 출력하고 프로그램을 종료합니다
func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}
