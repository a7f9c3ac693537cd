package directory

import (
	"context"
	"time"

	"github.com/yourusername/petmonitor/internal/camera"
	"github.com/yourusername/petmonitor/internal/device"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultDiscoveryTimeout은 호출자가 제한 시간을 주지 않았을 때의 탐색 시간입니다
const DefaultDiscoveryTimeout = 10 * time.Second

// Registry는 서비스가 사용하는 카메라 저장소 연산입니다
type Registry interface {
	GetAll(ctx context.Context) ([]*camera.Camera, error)
	GetByID(ctx context.Context, id string) (*camera.Camera, error)
	GetByIPAddress(ctx context.Context, address string) (*camera.Camera, error)
	Add(ctx context.Context, cam *camera.Camera) (*camera.Camera, error)
	Update(ctx context.Context, cam *camera.Camera) (*camera.Camera, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Service는 저장소와 장치 협력자 사이에서 카메라 등록과 상태 전이를 담당합니다
//
// 저장소 에러는 그대로 반환하고 장치 협력자의 에러는 false 또는 빈 결과로 바꿉니다.
type Service struct {
	registry  Registry
	connector device.Connector
	logger    *zap.Logger

	discoveryTimeout time.Duration
	discovery        singleflight.Group
}

// NewService는 새로운 디렉토리 서비스를 생성합니다
func NewService(registry Registry, connector device.Connector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:         registry,
		connector:        connector,
		logger:           logger.Named("directory"),
		discoveryTimeout: DefaultDiscoveryTimeout,
	}
}

// SetDiscoveryTimeout은 기본 탐색 제한 시간을 변경합니다
func (s *Service) SetDiscoveryTimeout(timeout time.Duration) {
	if timeout > 0 {
		s.discoveryTimeout = timeout
	}
}

func (s *Service) GetCameras(ctx context.Context) ([]*camera.Camera, error) {
	return s.registry.GetAll(ctx)
}

func (s *Service) GetCamera(ctx context.Context, id string) (*camera.Camera, error) {
	return s.registry.GetByID(ctx, id)
}

func (s *Service) GetCameraByIP(ctx context.Context, address string) (*camera.Camera, error) {
	return s.registry.GetByIPAddress(ctx, address)
}

// UpdateCamera는 레코드 전체를 교체합니다. 대상이 없으면 matched=false입니다
// 상태와 스트림 참조는 스트림 전이로만 바뀌므로 저장된 값을 유지합니다
func (s *Service) UpdateCamera(ctx context.Context, cam *camera.Camera) (*camera.Camera, bool, error) {
	stored, err := s.registry.GetByID(ctx, cam.ID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		s.logger.Warn("Camera not found for update", zap.String("camera_id", cam.ID))
		return nil, false, nil
	}

	cam.Status = stored.Status
	cam.CurrentStreamURL = stored.CurrentStreamURL
	return s.registry.Update(ctx, cam)
}

func (s *Service) DeleteCamera(ctx context.Context, id string) (bool, error) {
	return s.registry.Delete(ctx, id)
}

// AddCamera는 연결을 확인한 뒤 카메라를 등록합니다
//
// 연결에 실패해도 Error 상태로 저장합니다. 성공하면 프로파일과 PTZ 기능을
// 동시에 조회해 채우며, 어느 한쪽 조회가 실패하면 그 필드만 비워 둡니다.
func (s *Service) AddCamera(ctx context.Context, cam *camera.Camera) (*camera.Camera, error) {
	s.logger.Info("Adding camera",
		zap.String("name", cam.Name),
		zap.String("ip_address", cam.IPAddress),
	)

	if s.testConnection(ctx, cam) {
		cam.Status = camera.StatusOnline
		s.enrich(ctx, cam)
	} else {
		s.logger.Warn("Camera unreachable, registering with error status",
			zap.String("name", cam.Name),
			zap.String("ip_address", cam.IPAddress),
		)
		cam.Status = camera.StatusError
	}

	added, err := s.registry.Add(ctx, cam)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Camera registered",
		zap.String("camera_id", added.ID),
		zap.String("status", added.Status.String()),
		zap.Int("profiles", len(added.Profiles)),
		zap.Bool("ptz", added.SupportsPTZ()),
	)
	return added, nil
}

// enrich는 프로파일과 PTZ 기능을 병렬로 조회합니다
func (s *Service) enrich(ctx context.Context, cam *camera.Camera) {
	var (
		g        errgroup.Group
		profiles []camera.Profile
		caps     *camera.PTZCapabilities
	)

	g.Go(func() error {
		result, err := s.connector.FetchProfiles(ctx, cam)
		if err != nil {
			s.logger.Error("Error getting profiles",
				zap.String("ip_address", cam.IPAddress),
				zap.Error(err),
			)
			return nil
		}
		profiles = result
		return nil
	})

	g.Go(func() error {
		result, err := s.connector.FetchPTZCapabilities(ctx, cam)
		if err != nil {
			s.logger.Error("Error getting PTZ capabilities",
				zap.String("ip_address", cam.IPAddress),
				zap.Error(err),
			)
			return nil
		}
		caps = result
		return nil
	})

	_ = g.Wait()

	if profiles == nil {
		profiles = []camera.Profile{}
	}
	cam.Profiles = profiles
	cam.PTZCapabilities = caps
}

// DiscoverCameras는 네트워크의 카메라를 탐색합니다. 결과는 저장하지 않습니다
// 동시에 들어온 탐색 요청은 하나로 합쳐집니다
func (s *Service) DiscoverCameras(ctx context.Context, timeout time.Duration) []*camera.Camera {
	if timeout <= 0 {
		timeout = s.discoveryTimeout
	}

	result, _, shared := s.discovery.Do("discover", func() (interface{}, error) {
		// 합쳐진 다른 호출자가 있으므로 첫 호출자의 취소와 분리
		discoverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		found, err := s.connector.EnumerateDevices(discoverCtx, timeout)
		if err != nil {
			s.logger.Error("Error during camera discovery", zap.Error(err))
			return []*camera.Camera{}, nil
		}
		return found, nil
	})

	found := result.([]*camera.Camera)
	s.logger.Info("Discovery finished",
		zap.Int("count", len(found)),
		zap.Bool("shared", shared),
	)

	// 합쳐진 호출자끼리 같은 레코드를 공유하지 않도록 복사
	out := make([]*camera.Camera, 0, len(found))
	for _, cam := range found {
		out = append(out, cam.Clone())
	}
	return out
}

// TestConnection은 저장된 카메라에 대해 연결을 확인합니다
func (s *Service) TestConnection(ctx context.Context, id string) (bool, error) {
	cam, err := s.registry.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if cam == nil {
		s.logger.Warn("Camera not found for connection test", zap.String("camera_id", id))
		return false, nil
	}
	return s.testConnection(ctx, cam), nil
}

func (s *Service) testConnection(ctx context.Context, cam *camera.Camera) bool {
	ok, err := s.connector.TestConnection(ctx, cam)
	if err != nil {
		s.logger.Error("Connection test failed",
			zap.String("camera_id", cam.ID),
			zap.String("ip_address", cam.IPAddress),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// GetProfiles는 장치에서 프로파일을 다시 조회합니다. 카메라가 없으면 nil입니다
func (s *Service) GetProfiles(ctx context.Context, id string) ([]camera.Profile, error) {
	cam, err := s.registry.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cam == nil {
		s.logger.Warn("Camera not found for profile query", zap.String("camera_id", id))
		return nil, nil
	}

	profiles, err := s.connector.FetchProfiles(ctx, cam)
	if err != nil {
		s.logger.Error("Error getting profiles", zap.String("camera_id", id), zap.Error(err))
		return []camera.Profile{}, nil
	}
	return profiles, nil
}

// StartStream은 카메라를 Streaming 상태로 바꾸고 선택된 프로파일 URI를 기록합니다
// profileID가 비어 있으면 첫 번째 프로파일을 사용합니다
func (s *Service) StartStream(ctx context.Context, id, profileID string) (bool, error) {
	cam, err := s.registry.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if cam == nil {
		s.logger.Warn("Camera not found for stream start", zap.String("camera_id", id))
		return false, nil
	}

	var profile camera.Profile
	if profileID != "" {
		p, ok := cam.FindProfile(profileID)
		if !ok {
			s.logger.Warn("Profile not found for stream start",
				zap.String("camera_id", id),
				zap.String("profile_id", profileID),
			)
			return false, nil
		}
		profile = p
	} else {
		if len(cam.Profiles) == 0 {
			s.logger.Warn("Camera has no profiles to stream", zap.String("camera_id", id))
			return false, nil
		}
		profile = cam.Profiles[0]
	}

	cam.Status = camera.StatusStreaming
	cam.CurrentStreamURL = camera.StringPtr(profile.StreamURI)

	_, matched, err := s.registry.Update(ctx, cam)
	if err != nil {
		return false, err
	}
	if !matched {
		s.logger.Warn("Camera removed before stream start was recorded", zap.String("camera_id", id))
		return false, nil
	}

	s.logger.Info("Stream started",
		zap.String("camera_id", id),
		zap.String("profile_id", profile.ID),
	)
	return true, nil
}

// ResetStreams는 Streaming 상태로 남은 카메라를 모두 Online으로 되돌립니다
// 시작 시점에는 실행 중인 트랜스포트가 없으므로 저장된 Streaming 상태는 유효하지 않습니다
func (s *Service) ResetStreams(ctx context.Context) (int, error) {
	cameras, err := s.registry.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, cam := range cameras {
		if cam.Status != camera.StatusStreaming {
			continue
		}
		ok, err := s.StopStream(ctx, cam.ID)
		if err != nil {
			return reset, err
		}
		if ok {
			reset++
		}
	}

	if reset > 0 {
		s.logger.Info("Reset stale streaming cameras", zap.Int("count", reset))
	}
	return reset, nil
}

// StopStream은 카메라를 Online 상태로 돌리고 스트림 참조를 지웁니다
func (s *Service) StopStream(ctx context.Context, id string) (bool, error) {
	cam, err := s.registry.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if cam == nil {
		s.logger.Warn("Camera not found for stream stop", zap.String("camera_id", id))
		return false, nil
	}

	cam.Status = camera.StatusOnline
	cam.CurrentStreamURL = nil

	_, matched, err := s.registry.Update(ctx, cam)
	if err != nil {
		return false, err
	}
	if !matched {
		s.logger.Warn("Camera removed before stream stop was recorded", zap.String("camera_id", id))
		return false, nil
	}

	s.logger.Info("Stream stopped", zap.String("camera_id", id))
	return true, nil
}
