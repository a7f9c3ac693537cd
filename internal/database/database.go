package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrStore는 저장소 자체의 실패(I/O, 손상, 닫힌 핸들)를 나타냅니다
	ErrStore = errors.New("camera store fault")
	// ErrDuplicateID는 이미 존재하는 ID로 삽입을 시도했을 때 반환됩니다
	ErrDuplicateID = errors.New("duplicate camera id")
)

// DB는 프로세스 전체에서 공유하는 데이터베이스 핸들입니다
// 시작 시 한 번 열고 종료 시 한 번 닫습니다
type DB struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// Open은 SQLite 데이터베이스를 열고 스키마를 준비합니다
func Open(dbPath string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 데이터베이스 디렉토리 생성
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite는 단일 writer이므로 연결을 하나로 제한 (database is locked 방지)
	conn.SetMaxOpenConns(1)

	db := &DB{
		conn:   conn,
		path:   dbPath,
		logger: logger,
	}

	// 이후 실패 경로에서도 핸들은 반드시 닫는다
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database initialized successfully",
		zap.String("path", dbPath),
	)

	return db, nil
}

// migrate는 데이터베이스 스키마를 초기화합니다
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cameras (
		id TEXT PRIMARY KEY,
		ip_address TEXT NOT NULL DEFAULT '',
		document TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cameras_ip_address ON cameras(ip_address);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	db.logger.Debug("Database schema migrated successfully")
	return nil
}

// Close는 데이터베이스 연결을 닫습니다
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.logger.Info("Database closed", zap.String("path", db.path))
	return err
}

// Conn은 기본 SQL 연결을 반환합니다
func (db *DB) Conn() *sql.DB {
	return db.conn
}
