package streaming

import (
	"context"
	"errors"

	"github.com/yourusername/petmonitor/internal/camera"
	"go.uber.org/zap"
)

// Directory는 컨트롤러가 사용하는 카메라 상태 전이 연산입니다
type Directory interface {
	GetCamera(ctx context.Context, id string) (*camera.Camera, error)
	StartStream(ctx context.Context, id, profileID string) (bool, error)
	StopStream(ctx context.Context, id string) (bool, error)
}

// Controller는 카메라 상태 전이와 미디어 전달을 묶어 처리합니다
//
// 시도 한 번마다 정확히 하나의 생명주기 이벤트를 카메라 그룹에 발행합니다.
type Controller struct {
	directory Directory
	transport Transport
	notifier  Notifier
	logger    *zap.Logger
}

// NewController는 새로운 Controller를 생성합니다
func NewController(directory Directory, transport Transport, notifier Notifier, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		directory: directory,
		transport: transport,
		notifier:  notifier,
		logger:    logger.Named("stream"),
	}
}

// Start는 스트림을 시작합니다
// 트랜스포트가 실패하면 카메라 상태를 되돌리고 false를 반환합니다
func (c *Controller) Start(ctx context.Context, cameraID, profileID string) (bool, error) {
	ok, err := c.directory.StartStream(ctx, cameraID, profileID)
	if err != nil {
		c.fail(cameraID, "Failed to start stream: store error")
		return false, err
	}
	if !ok {
		c.fail(cameraID, "Failed to start stream")
		return false, nil
	}

	cam, err := c.directory.GetCamera(ctx, cameraID)
	if err != nil {
		c.rollback(ctx, cameraID)
		c.fail(cameraID, "Failed to start stream: store error")
		return false, err
	}
	if cam == nil || cam.CurrentStreamURL == nil {
		c.rollback(ctx, cameraID)
		c.fail(cameraID, "Failed to start stream: camera changed")
		return false, nil
	}

	target := Target{
		CameraID:  cameraID,
		ProfileID: profileID,
		URI:       *cam.CurrentStreamURL,
		Username:  cam.Username,
		Password:  cam.Password,
	}

	if err := c.transport.Start(ctx, target); err != nil {
		c.logger.Error("Transport failed to start stream",
			zap.String("camera_id", cameraID),
			zap.Error(err),
		)
		c.rollback(ctx, cameraID)
		c.fail(cameraID, err.Error())
		return false, nil
	}

	c.notifier.Publish(cameraID, Event{Type: EventStreamStarted, CameraID: cameraID})
	c.logger.Info("Stream started", zap.String("camera_id", cameraID))
	return true, nil
}

// Stop은 스트림을 중지합니다
// 트랜스포트 에러는 기록만 하고 상태 전이는 계속 진행합니다
func (c *Controller) Stop(ctx context.Context, cameraID string) (bool, error) {
	if err := c.transport.Stop(ctx, cameraID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			c.logger.Debug("No running transport session", zap.String("camera_id", cameraID))
		} else {
			c.logger.Warn("Transport failed to stop stream",
				zap.String("camera_id", cameraID),
				zap.Error(err),
			)
		}
	}

	ok, err := c.directory.StopStream(ctx, cameraID)
	if err != nil {
		c.fail(cameraID, "Failed to stop stream: store error")
		return false, err
	}
	if !ok {
		c.fail(cameraID, "Failed to stop stream")
		return false, nil
	}

	c.notifier.Publish(cameraID, Event{Type: EventStreamStopped, CameraID: cameraID})
	c.logger.Info("Stream stopped", zap.String("camera_id", cameraID))
	return true, nil
}

func (c *Controller) rollback(ctx context.Context, cameraID string) {
	if _, err := c.directory.StopStream(ctx, cameraID); err != nil {
		c.logger.Error("Failed to roll back stream state",
			zap.String("camera_id", cameraID),
			zap.Error(err),
		)
	}
}

func (c *Controller) fail(cameraID, reason string) {
	c.logger.Warn("Stream operation failed",
		zap.String("camera_id", cameraID),
		zap.String("reason", reason),
	)
	c.notifier.Publish(cameraID, Event{Type: EventStreamError, CameraID: cameraID, Reason: reason})
}

// HandleTransportFailure는 재시도를 모두 소진한 트랜스포트 세션을 정리합니다
// 카메라를 Online으로 되돌리고 StreamError를 발행합니다
func (c *Controller) HandleTransportFailure(cameraID string, err error) {
	ctx := context.Background()
	if _, stopErr := c.directory.StopStream(ctx, cameraID); stopErr != nil {
		c.logger.Error("Failed to reset camera after transport failure",
			zap.String("camera_id", cameraID),
			zap.Error(stopErr),
		)
	}

	reason := "Stream transport failed"
	if err != nil {
		reason = err.Error()
	}
	c.fail(cameraID, reason)
}
