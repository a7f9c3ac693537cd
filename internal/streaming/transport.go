package streaming

import (
	"context"
	"errors"
)

// ErrSessionNotFound는 실행 중이지 않은 카메라를 중지하려 할 때 반환됩니다
var ErrSessionNotFound = errors.New("stream session not found")

// Target은 트랜스포트가 연결할 스트림 한 개입니다
type Target struct {
	CameraID  string
	ProfileID string
	URI       string
	Username  string
	Password  string
}

// Transport는 실제 미디어 전달을 담당하는 협력자입니다
type Transport interface {
	Start(ctx context.Context, target Target) error
	Stop(ctx context.Context, cameraID string) error
}

// FrameSink는 수신한 프레임을 구독자에게 그대로 전달합니다
// 페이로드는 해석하지 않는 불투명한 바이트입니다
type FrameSink interface {
	RelayFrame(cameraID string, data []byte)
}

// EventType은 스트림 생명주기 이벤트 종류입니다
type EventType string

const (
	EventStreamStarted EventType = "StreamStarted"
	EventStreamStopped EventType = "StreamStopped"
	EventStreamError   EventType = "StreamError"
)

// Event는 카메라 그룹에 알리는 생명주기 이벤트입니다
type Event struct {
	Type     EventType `json:"type"`
	CameraID string    `json:"cameraId"`
	Reason   string    `json:"reason,omitempty"`
}

// Notifier는 카메라별 그룹에 이벤트를 발행합니다
type Notifier interface {
	Publish(cameraID string, event Event)
}
