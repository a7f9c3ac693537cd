package device

import (
	"context"
	"time"

	"github.com/yourusername/petmonitor/internal/camera"
)

// Connector는 실제 장치 통신(ONVIF)을 대신하는 협력자 인터페이스입니다
//
// 모든 호출은 느리거나 실패할 수 있습니다. 호출하는 쪽은 성공을 가정하지 않으며
// 에러는 상위 레이어에서 false 또는 빈 결과로 변환됩니다.
type Connector interface {
	// TestConnection은 카메라에 접속 가능한지 확인합니다
	TestConnection(ctx context.Context, cam *camera.Camera) (bool, error)

	// FetchProfiles는 카메라의 미디어 프로파일 목록을 조회합니다
	FetchProfiles(ctx context.Context, cam *camera.Camera) ([]camera.Profile, error)

	// FetchPTZCapabilities는 PTZ 기능을 조회합니다. PTZ가 없으면 nil입니다
	FetchPTZCapabilities(ctx context.Context, cam *camera.Camera) (*camera.PTZCapabilities, error)

	// EnumerateDevices는 네트워크의 장치를 timeout 안에서 탐색합니다
	EnumerateDevices(ctx context.Context, timeout time.Duration) ([]*camera.Camera, error)

	MoveRelative(ctx context.Context, cam *camera.Camera, cmd camera.PTZCommand) (bool, error)
	GotoPreset(ctx context.Context, cam *camera.Camera, presetID string) (bool, error)

	// SetPreset은 현재 위치를 프리셋으로 저장하고 장치가 발급한 토큰을 반환합니다
	SetPreset(ctx context.Context, cam *camera.Camera, name string) (string, error)

	GetPosition(ctx context.Context, cam *camera.Camera) (*camera.PTZPosition, error)
}
