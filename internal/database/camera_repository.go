package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/petmonitor/internal/camera"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// CameraRepository는 카메라 레지스트리의 데이터 액세스 레이어입니다
//
// 레코드는 JSON 문서 하나로 저장되며 id(기본 키)와 ip_address(보조 인덱스)만
// 별도 컬럼으로 둡니다. 같은 id에 대한 동시 갱신은 직렬화하지 않으며 마지막 쓰기가
// 이깁니다.
type CameraRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

// NewCameraRepository는 새로운 CameraRepository를 생성합니다
func NewCameraRepository(db *DB, logger *zap.Logger) *CameraRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CameraRepository{
		db:     db,
		logger: logger.Named("camera_repo"),
		now:    time.Now,
	}
}

// SetClock은 lastSeen 기록에 사용할 시계를 교체합니다 (테스트용)
func (r *CameraRepository) SetClock(now func() time.Time) {
	r.now = now
}

// GetAll은 저장된 모든 카메라를 저장 순서대로 조회합니다
func (r *CameraRepository) GetAll(ctx context.Context) ([]*camera.Camera, error) {
	ctx = context.WithoutCancel(ctx)

	rows, err := r.db.Conn().QueryContext(ctx, `SELECT document FROM cameras ORDER BY rowid`)
	if err != nil {
		r.logger.Error("Error retrieving all cameras", zap.Error(err))
		return nil, storeFault("query cameras", err)
	}
	defer rows.Close()

	cameras := make([]*camera.Camera, 0)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			r.logger.Error("Error scanning camera", zap.Error(err))
			return nil, storeFault("scan camera", err)
		}
		cam, err := camera.Decode([]byte(doc))
		if err != nil {
			r.logger.Error("Error decoding camera document", zap.Error(err))
			return nil, storeFault("decode camera", err)
		}
		cameras = append(cameras, cam)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating cameras", zap.Error(err))
		return nil, storeFault("iterate cameras", err)
	}

	r.logger.Debug("Retrieved cameras from database", zap.Int("count", len(cameras)))
	return cameras, nil
}

// GetByID는 ID로 카메라를 조회합니다. 없으면 nil을 반환합니다
func (r *CameraRepository) GetByID(ctx context.Context, id string) (*camera.Camera, error) {
	cam, err := r.queryOne(ctx, `SELECT document FROM cameras WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Error retrieving camera", zap.String("camera_id", id), zap.Error(err))
		return nil, err
	}

	r.logger.Debug("Retrieved camera",
		zap.String("camera_id", id),
		zap.Bool("found", cam != nil),
	)
	return cam, nil
}

// GetByIPAddress는 주소가 정확히 일치하는 첫 번째 카메라를 조회합니다
// 중복 주소는 막지 않으므로 여러 건이면 먼저 저장된 것을 반환합니다
func (r *CameraRepository) GetByIPAddress(ctx context.Context, address string) (*camera.Camera, error) {
	cam, err := r.queryOne(ctx,
		`SELECT document FROM cameras WHERE ip_address = ? ORDER BY rowid LIMIT 1`, address)
	if err != nil {
		r.logger.Error("Error retrieving camera by IP", zap.String("ip_address", address), zap.Error(err))
		return nil, err
	}

	r.logger.Debug("Retrieved camera by IP",
		zap.String("ip_address", address),
		zap.Bool("found", cam != nil),
	)
	return cam, nil
}

// Add는 새로운 카메라를 저장합니다
// ID가 비어 있으면 UUID를 발급하고 lastSeen을 현재 시각으로 설정합니다
func (r *CameraRepository) Add(ctx context.Context, cam *camera.Camera) (*camera.Camera, error) {
	ctx = context.WithoutCancel(ctx)

	if cam.ID == "" {
		cam.ID = uuid.NewString()
	}
	cam.ApplyDefaults()
	cam.LastSeen = r.now().UTC()

	doc, err := camera.Encode(cam)
	if err != nil {
		return nil, fmt.Errorf("failed to encode camera: %w", err)
	}

	_, err = r.db.Conn().ExecContext(ctx,
		`INSERT INTO cameras (id, ip_address, document) VALUES (?, ?, ?)`,
		cam.ID, cam.IPAddress, string(doc),
	)
	if err != nil {
		r.logger.Error("Error adding camera",
			zap.String("camera_id", cam.ID),
			zap.String("name", cam.Name),
			zap.Error(err),
		)
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrDuplicateID, cam.ID, storeFault("insert camera", err))
		}
		return nil, storeFault("insert camera", err)
	}

	r.logger.Info("Camera added",
		zap.String("camera_id", cam.ID),
		zap.String("name", cam.Name),
	)
	return cam, nil
}

// Update는 같은 ID의 레코드를 통째로 교체합니다 (부분 병합 없음)
// 레코드가 없으면 아무것도 쓰지 않고 matched=false를 반환합니다
func (r *CameraRepository) Update(ctx context.Context, cam *camera.Camera) (*camera.Camera, bool, error) {
	ctx = context.WithoutCancel(ctx)

	cam.ApplyDefaults()
	cam.LastSeen = r.now().UTC()

	doc, err := camera.Encode(cam)
	if err != nil {
		return cam, false, fmt.Errorf("failed to encode camera: %w", err)
	}

	result, err := r.db.Conn().ExecContext(ctx,
		`UPDATE cameras SET ip_address = ?, document = ? WHERE id = ?`,
		cam.IPAddress, string(doc), cam.ID,
	)
	if err != nil {
		r.logger.Error("Error updating camera", zap.String("camera_id", cam.ID), zap.Error(err))
		return cam, false, storeFault("update camera", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return cam, false, storeFault("rows affected", err)
	}

	if rowsAffected == 0 {
		r.logger.Warn("Camera not found for update", zap.String("camera_id", cam.ID))
		return cam, false, nil
	}

	r.logger.Info("Camera updated",
		zap.String("camera_id", cam.ID),
		zap.String("name", cam.Name),
	)
	return cam, true, nil
}

// Delete는 카메라를 삭제합니다. 실제로 삭제된 경우에만 true입니다
func (r *CameraRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	result, err := r.db.Conn().ExecContext(ctx, `DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Error deleting camera", zap.String("camera_id", id), zap.Error(err))
		return false, storeFault("delete camera", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, storeFault("rows affected", err)
	}

	if rowsAffected == 0 {
		r.logger.Warn("Camera not found for deletion", zap.String("camera_id", id))
		return false, nil
	}

	r.logger.Info("Camera deleted", zap.String("camera_id", id))
	return true, nil
}

// Count는 카메라 개수를 반환합니다
func (r *CameraRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Conn().QueryRowContext(context.WithoutCancel(ctx), `SELECT COUNT(*) FROM cameras`).Scan(&count)
	if err != nil {
		return 0, storeFault("count cameras", err)
	}
	return count, nil
}

// queryOne은 문서 한 건을 조회합니다. 결과가 없으면 (nil, nil)입니다
func (r *CameraRepository) queryOne(ctx context.Context, query string, arg string) (*camera.Camera, error) {
	var doc string
	err := r.db.Conn().QueryRowContext(context.WithoutCancel(ctx), query, arg).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFault("query camera", err)
	}

	cam, err := camera.Decode([]byte(doc))
	if err != nil {
		return nil, storeFault("decode camera", err)
	}
	return cam, nil
}

// storeFault는 드라이버 에러를 ErrStore로 감쌉니다
func storeFault(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// isUniqueViolation은 드라이버의 확장 결과 코드로 기본 키/유니크 제약 위반을 판별합니다
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
