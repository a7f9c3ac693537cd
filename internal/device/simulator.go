package device

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/petmonitor/internal/camera"
	"github.com/yourusername/petmonitor/internal/core"
	"go.uber.org/zap"
)

var _ Connector = (*Simulator)(nil)

// Simulator는 실제 ONVIF 클라이언트가 없을 때 사용하는 Connector 구현입니다
//
// 호출마다 설정된 지연을 두고 설정 파일의 고정 데이터를 반환합니다.
// dial_check가 켜져 있으면 연결 테스트에서 host:port로 실제 TCP 접속을 시도합니다.
type Simulator struct {
	config core.DevicesConfig
	logger *zap.Logger

	mutex     sync.Mutex
	positions map[string]camera.PTZPosition

	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewSimulator는 새로운 Simulator를 생성합니다
func NewSimulator(config core.DevicesConfig, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: time.Duration(config.DialTimeout) * time.Second}

	return &Simulator{
		config:    config,
		logger:    logger.Named("device"),
		positions: make(map[string]camera.PTZPosition),
		dial:      dialer.DialContext,
	}
}

// wait는 장치 왕복 시간을 흉내 냅니다. 컨텍스트가 먼저 끝나면 에러입니다
func (s *Simulator) wait(ctx context.Context) error {
	latency := s.config.Latency()
	if latency <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TestConnection은 카메라 접속 가능 여부를 확인합니다
func (s *Simulator) TestConnection(ctx context.Context, cam *camera.Camera) (bool, error) {
	s.logger.Info("Testing connection to camera",
		zap.String("camera_id", cam.ID),
		zap.String("ip_address", cam.IPAddress),
	)

	if err := s.wait(ctx); err != nil {
		return false, err
	}

	ok := cam.IPAddress != "" && cam.Username != ""
	if ok && s.config.DialCheck {
		address := net.JoinHostPort(cam.IPAddress, strconv.Itoa(portOrDefault(cam.Port)))
		conn, err := s.dial(ctx, "tcp", address)
		if err != nil {
			s.logger.Warn("TCP dial check failed",
				zap.String("camera_id", cam.ID),
				zap.String("address", address),
				zap.Error(err),
			)
			return false, nil
		}
		_ = conn.Close()
	}

	s.logger.Info("Connection test finished",
		zap.String("camera_id", cam.ID),
		zap.Bool("success", ok),
	)
	return ok, nil
}

// FetchProfiles는 설정된 프로파일을 카메라 주소 기준으로 만들어 반환합니다
func (s *Simulator) FetchProfiles(ctx context.Context, cam *camera.Camera) ([]camera.Profile, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	profiles := make([]camera.Profile, 0, len(s.config.Profiles))
	for i, fixture := range s.config.Profiles {
		profiles = append(profiles, camera.Profile{
			ID:         fmt.Sprintf("profile_%d", i+1),
			Name:       fixture.Name,
			StreamURI:  fmt.Sprintf("rtsp://%s%s", cam.IPAddress, fixture.Path),
			Resolution: camera.Resolution{Width: fixture.Width, Height: fixture.Height},
			FrameRate:  fixture.FrameRate,
			Encoding:   fixture.Encoding,
			Quality:    fixture.Quality,
		})
	}

	s.logger.Info("Found profiles for camera",
		zap.String("camera_id", cam.ID),
		zap.Int("count", len(profiles)),
	)
	return profiles, nil
}

// FetchPTZCapabilities는 모든 축이 가능한 PTZ 기능과 설정된 프리셋을 반환합니다
func (s *Simulator) FetchPTZCapabilities(ctx context.Context, cam *camera.Camera) (*camera.PTZCapabilities, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	presets := make([]camera.PTZPreset, 0, len(s.config.Presets))
	for i, name := range s.config.Presets {
		presets = append(presets, camera.PTZPreset{
			ID:   strconv.Itoa(i + 1),
			Name: name,
		})
	}

	s.logger.Info("PTZ capabilities retrieved", zap.String("camera_id", cam.ID))

	return &camera.PTZCapabilities{
		HasPTZ:     true,
		CanPan:     true,
		CanTilt:    true,
		CanZoom:    true,
		HasPresets: len(presets) > 0,
		Presets:    presets,
	}, nil
}

// EnumerateDevices는 설정된 탐색 결과를 반환합니다
// 지연이 timeout보다 길면 빈 결과 대신 deadline 에러를 반환합니다
func (s *Simulator) EnumerateDevices(ctx context.Context, timeout time.Duration) ([]*camera.Camera, error) {
	s.logger.Info("Starting device discovery", zap.Duration("timeout", timeout))

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	found := make([]*camera.Camera, 0, len(s.config.Discovered))
	for _, fixture := range s.config.Discovered {
		cam := &camera.Camera{
			Name:      fixture.Name,
			IPAddress: fixture.IPAddress,
			Port:      portOrDefault(fixture.Port),
			Profiles:  []camera.Profile{},
			Status:    camera.StatusOnline,
			LastSeen:  now,
		}
		if fixture.Manufacturer != "" {
			cam.Manufacturer = camera.StringPtr(fixture.Manufacturer)
		}
		if fixture.Model != "" {
			cam.Model = camera.StringPtr(fixture.Model)
		}
		found = append(found, cam)
	}

	s.logger.Info("Discovery completed", zap.Int("count", len(found)))
	return found, nil
}

// MoveRelative는 현재 위치에 이동량을 더합니다
func (s *Simulator) MoveRelative(ctx context.Context, cam *camera.Camera, cmd camera.PTZCommand) (bool, error) {
	s.logger.Info("Moving camera",
		zap.String("camera_id", cam.ID),
		zap.Float32("pan", cmd.Pan.X),
		zap.Float32("tilt", cmd.Tilt.Y),
		zap.Float32("zoom", cmd.Zoom.X),
		zap.Float32("speed", cmd.Speed),
	)

	if err := s.wait(ctx); err != nil {
		return false, err
	}

	s.mutex.Lock()
	pos := s.positions[cam.ID]
	pos.Pan = clamp(pos.Pan+cmd.Pan.X, -1, 1)
	pos.Tilt = clamp(pos.Tilt+cmd.Tilt.Y, -1, 1)
	pos.Zoom = clamp(pos.Zoom+cmd.Zoom.X, 0, 1)
	s.positions[cam.ID] = pos
	s.mutex.Unlock()

	return true, nil
}

// GotoPreset은 프리셋 위치로 이동합니다
func (s *Simulator) GotoPreset(ctx context.Context, cam *camera.Camera, presetID string) (bool, error) {
	s.logger.Info("Moving camera to preset",
		zap.String("camera_id", cam.ID),
		zap.String("preset_id", presetID),
	)

	if err := s.wait(ctx); err != nil {
		return false, err
	}

	if preset, ok := cam.FindPreset(presetID); ok {
		s.mutex.Lock()
		s.positions[cam.ID] = preset.Position
		s.mutex.Unlock()
	}
	return true, nil
}

// SetPreset은 새 프리셋 토큰을 발급합니다
func (s *Simulator) SetPreset(ctx context.Context, cam *camera.Camera, name string) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}

	token := uuid.NewString()
	s.logger.Info("Preset set",
		zap.String("camera_id", cam.ID),
		zap.String("name", name),
		zap.String("token", token),
	)
	return token, nil
}

// GetPosition은 마지막으로 기록된 위치를 반환합니다
func (s *Simulator) GetPosition(ctx context.Context, cam *camera.Camera) (*camera.PTZPosition, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	pos := s.positions[cam.ID]
	s.mutex.Unlock()

	return &pos, nil
}

func portOrDefault(port int) int {
	if port == 0 {
		return camera.DefaultPort
	}
	return port
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
