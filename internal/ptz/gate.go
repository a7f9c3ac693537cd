package ptz

import (
	"context"

	"github.com/yourusername/petmonitor/internal/camera"
	"github.com/yourusername/petmonitor/internal/device"
	"go.uber.org/zap"
)

// CameraLookup은 게이트가 카메라 상태를 읽는 저장소 연산입니다
type CameraLookup interface {
	GetByID(ctx context.Context, id string) (*camera.Camera, error)
}

// Gate는 PTZ 명령을 검증한 뒤 장치로 전달합니다
//
// 저장소에 기록된 PTZ 기능이 유일한 판단 기준이며, 지원하지 않는 카메라에 대해서는
// 장치 호출 없이 거부합니다. 게이트는 저장소를 수정하지 않습니다.
type Gate struct {
	cameras   CameraLookup
	connector device.Connector
	logger    *zap.Logger
}

// NewGate는 새로운 PTZ 게이트를 생성합니다
func NewGate(cameras CameraLookup, connector device.Connector, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		cameras:   cameras,
		connector: connector,
		logger:    logger.Named("ptz"),
	}
}

// resolve는 PTZ를 지원하는 카메라만 반환합니다. 거부 사유는 로그로 남깁니다
func (g *Gate) resolve(ctx context.Context, cameraID, op string) (*camera.Camera, error) {
	cam, err := g.cameras.GetByID(ctx, cameraID)
	if err != nil {
		return nil, err
	}
	if cam == nil {
		g.logger.Warn("Camera not found",
			zap.String("camera_id", cameraID),
			zap.String("op", op),
		)
		return nil, nil
	}
	if !cam.SupportsPTZ() {
		g.logger.Warn("Camera does not support PTZ",
			zap.String("camera_id", cameraID),
			zap.String("op", op),
		)
		return nil, nil
	}
	return cam, nil
}

// ExecuteCommand는 상대 이동 명령을 실행합니다
func (g *Gate) ExecuteCommand(ctx context.Context, cmd camera.PTZCommand) (bool, error) {
	cam, err := g.resolve(ctx, cmd.CameraID, "move")
	if err != nil || cam == nil {
		return false, err
	}

	if cmd.Speed < 0 || cmd.Speed > 1 {
		g.logger.Warn("PTZ speed out of range",
			zap.String("camera_id", cmd.CameraID),
			zap.Float32("speed", cmd.Speed),
		)
		return false, nil
	}

	caps := cam.PTZCapabilities
	switch {
	case !cmd.Pan.IsZero() && !caps.CanPan:
		g.logger.Warn("Camera cannot pan", zap.String("camera_id", cmd.CameraID))
		return false, nil
	case !cmd.Tilt.IsZero() && !caps.CanTilt:
		g.logger.Warn("Camera cannot tilt", zap.String("camera_id", cmd.CameraID))
		return false, nil
	case !cmd.Zoom.IsZero() && !caps.CanZoom:
		g.logger.Warn("Camera cannot zoom", zap.String("camera_id", cmd.CameraID))
		return false, nil
	}

	ok, err := g.connector.MoveRelative(ctx, cam, cmd)
	if err != nil {
		g.logger.Error("Error executing PTZ command",
			zap.String("camera_id", cmd.CameraID),
			zap.Error(err),
		)
		return false, nil
	}

	g.logger.Info("PTZ command executed",
		zap.String("camera_id", cmd.CameraID),
		zap.Bool("success", ok),
	)
	return ok, nil
}

// GetCurrentPosition은 장치의 현재 위치를 조회합니다
func (g *Gate) GetCurrentPosition(ctx context.Context, cameraID string) (*camera.PTZPosition, error) {
	cam, err := g.resolve(ctx, cameraID, "position")
	if err != nil || cam == nil {
		return nil, err
	}

	pos, err := g.connector.GetPosition(ctx, cam)
	if err != nil {
		g.logger.Error("Error getting PTZ position",
			zap.String("camera_id", cameraID),
			zap.Error(err),
		)
		return nil, nil
	}
	return pos, nil
}

// MoveToPreset은 저장된 프리셋 위치로 이동합니다
func (g *Gate) MoveToPreset(ctx context.Context, cameraID, presetID string) (bool, error) {
	cam, err := g.resolve(ctx, cameraID, "goto_preset")
	if err != nil || cam == nil {
		return false, err
	}

	if _, ok := cam.FindPreset(presetID); !ok {
		g.logger.Warn("Preset not found",
			zap.String("camera_id", cameraID),
			zap.String("preset_id", presetID),
		)
		return false, nil
	}

	ok, err := g.connector.GotoPreset(ctx, cam, presetID)
	if err != nil {
		g.logger.Error("Error moving camera to preset",
			zap.String("camera_id", cameraID),
			zap.String("preset_id", presetID),
			zap.Error(err),
		)
		return false, nil
	}
	return ok, nil
}

// SetPreset은 현재 위치를 장치에 프리셋으로 저장합니다
// 저장소의 프리셋 목록은 갱신하지 않습니다
func (g *Gate) SetPreset(ctx context.Context, cameraID, name string) (bool, error) {
	if name == "" {
		g.logger.Warn("Preset name is empty", zap.String("camera_id", cameraID))
		return false, nil
	}

	cam, err := g.resolve(ctx, cameraID, "set_preset")
	if err != nil || cam == nil {
		return false, err
	}

	token, err := g.connector.SetPreset(ctx, cam, name)
	if err != nil {
		g.logger.Error("Error setting preset",
			zap.String("camera_id", cameraID),
			zap.String("name", name),
			zap.Error(err),
		)
		return false, nil
	}

	g.logger.Info("Preset set",
		zap.String("camera_id", cameraID),
		zap.String("name", name),
		zap.String("token", token),
	)
	return true, nil
}

// GetPresets는 저장소에 캐시된 프리셋을 반환합니다. 장치에 묻지 않습니다
func (g *Gate) GetPresets(ctx context.Context, cameraID string) ([]camera.PTZPreset, error) {
	cam, err := g.resolve(ctx, cameraID, "presets")
	if err != nil {
		return nil, err
	}
	if cam == nil || len(cam.PTZCapabilities.Presets) == 0 {
		return []camera.PTZPreset{}, nil
	}

	presets := make([]camera.PTZPreset, len(cam.PTZCapabilities.Presets))
	copy(presets, cam.PTZCapabilities.Presets)
	return presets, nil
}
