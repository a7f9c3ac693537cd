package streaming

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/petmonitor/internal/camera"
	"go.uber.org/zap/zaptest"
)

// fakeDirectory는 메모리에서 상태 전이를 흉내 냅니다
type fakeDirectory struct {
	cameras  map[string]*camera.Camera
	storeErr error
	stops    int
}

func (d *fakeDirectory) GetCamera(ctx context.Context, id string) (*camera.Camera, error) {
	if d.storeErr != nil {
		return nil, d.storeErr
	}
	cam, ok := d.cameras[id]
	if !ok {
		return nil, nil
	}
	return cam.Clone(), nil
}

func (d *fakeDirectory) StartStream(ctx context.Context, id, profileID string) (bool, error) {
	if d.storeErr != nil {
		return false, d.storeErr
	}
	cam, ok := d.cameras[id]
	if !ok || len(cam.Profiles) == 0 {
		return false, nil
	}
	profile := cam.Profiles[0]
	if profileID != "" {
		p, found := cam.FindProfile(profileID)
		if !found {
			return false, nil
		}
		profile = p
	}
	cam.Status = camera.StatusStreaming
	cam.CurrentStreamURL = camera.StringPtr(profile.StreamURI)
	return true, nil
}

func (d *fakeDirectory) StopStream(ctx context.Context, id string) (bool, error) {
	d.stops++
	if d.storeErr != nil {
		return false, d.storeErr
	}
	cam, ok := d.cameras[id]
	if !ok {
		return false, nil
	}
	cam.Status = camera.StatusOnline
	cam.CurrentStreamURL = nil
	return true, nil
}

type fakeTransport struct {
	startErr error
	stopErr  error
	started  []Target
	stopped  []string
}

func (f *fakeTransport) Start(ctx context.Context, target Target) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, target)
	return nil
}

func (f *fakeTransport) Stop(ctx context.Context, cameraID string) error {
	f.stopped = append(f.stopped, cameraID)
	return f.stopErr
}

type recordingNotifier struct {
	mutex  sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(cameraID string, event Event) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.events = append(n.events, event)
}

func newTestController(t *testing.T) (*Controller, *fakeDirectory, *fakeTransport, *recordingNotifier) {
	t.Helper()

	directory := &fakeDirectory{cameras: map[string]*camera.Camera{
		"cam-1": {
			ID:       "cam-1",
			Username: "admin",
			Password: "secret",
			Status:   camera.StatusOnline,
			Profiles: []camera.Profile{
				{ID: "profile_1", StreamURI: "rtsp://192.168.1.50/main"},
				{ID: "profile_2", StreamURI: "rtsp://192.168.1.50/sub"},
			},
		},
	}}
	transport := &fakeTransport{}
	notifier := &recordingNotifier{}
	return NewController(directory, transport, notifier, zaptest.NewLogger(t)), directory, transport, notifier
}

func TestController_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("success publishes started", func(t *testing.T) {
		ctrl, directory, transport, notifier := newTestController(t)

		ok, err := ctrl.Start(ctx, "cam-1", "profile_2")
		require.NoError(t, err)
		assert.True(t, ok)

		require.Len(t, transport.started, 1)
		assert.Equal(t, Target{
			CameraID:  "cam-1",
			ProfileID: "profile_2",
			URI:       "rtsp://192.168.1.50/sub",
			Username:  "admin",
			Password:  "secret",
		}, transport.started[0])

		require.Len(t, notifier.events, 1)
		assert.Equal(t, Event{Type: EventStreamStarted, CameraID: "cam-1"}, notifier.events[0])
		assert.Equal(t, camera.StatusStreaming, directory.cameras["cam-1"].Status)
	})

	t.Run("transport failure rolls back", func(t *testing.T) {
		ctrl, directory, transport, notifier := newTestController(t)
		transport.startErr = errors.New("camera refused RTSP")

		ok, err := ctrl.Start(ctx, "cam-1", "")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, camera.StatusOnline, directory.cameras["cam-1"].Status)
		assert.Nil(t, directory.cameras["cam-1"].CurrentStreamURL)
		assert.Equal(t, 1, directory.stops)

		require.Len(t, notifier.events, 1)
		assert.Equal(t, EventStreamError, notifier.events[0].Type)
		assert.Equal(t, "camera refused RTSP", notifier.events[0].Reason)
	})

	t.Run("absent camera", func(t *testing.T) {
		ctrl, _, transport, notifier := newTestController(t)

		ok, err := ctrl.Start(ctx, "missing", "")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, transport.started)

		require.Len(t, notifier.events, 1)
		assert.Equal(t, EventStreamError, notifier.events[0].Type)
		assert.Equal(t, "missing", notifier.events[0].CameraID)
	})

	t.Run("store fault", func(t *testing.T) {
		ctrl, directory, _, notifier := newTestController(t)
		directory.storeErr = errors.New("disk gone")

		_, err := ctrl.Start(ctx, "cam-1", "")
		assert.Error(t, err)
		require.Len(t, notifier.events, 1)
		assert.Equal(t, EventStreamError, notifier.events[0].Type)
	})
}

func TestController_Stop(t *testing.T) {
	ctx := context.Background()

	t.Run("success publishes stopped", func(t *testing.T) {
		ctrl, directory, transport, notifier := newTestController(t)

		_, err := ctrl.Start(ctx, "cam-1", "")
		require.NoError(t, err)

		ok, err := ctrl.Stop(ctx, "cam-1")
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, []string{"cam-1"}, transport.stopped)
		assert.Equal(t, camera.StatusOnline, directory.cameras["cam-1"].Status)

		require.Len(t, notifier.events, 2)
		assert.Equal(t, EventStreamStopped, notifier.events[1].Type)
	})

	t.Run("transport error does not block state change", func(t *testing.T) {
		ctrl, _, transport, notifier := newTestController(t)
		transport.stopErr = ErrSessionNotFound

		ok, err := ctrl.Stop(ctx, "cam-1")
		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, notifier.events, 1)
		assert.Equal(t, EventStreamStopped, notifier.events[0].Type)
	})

	t.Run("absent camera", func(t *testing.T) {
		ctrl, _, _, notifier := newTestController(t)

		ok, err := ctrl.Stop(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		require.Len(t, notifier.events, 1)
		assert.Equal(t, EventStreamError, notifier.events[0].Type)
	})
}

func TestController_HandleTransportFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("resets state and publishes error", func(t *testing.T) {
		ctrl, directory, _, notifier := newTestController(t)

		_, err := ctrl.Start(ctx, "cam-1", "")
		require.NoError(t, err)
		require.Equal(t, camera.StatusStreaming, directory.cameras["cam-1"].Status)

		ctrl.HandleTransportFailure("cam-1", errors.New("connection refused"))

		assert.Equal(t, camera.StatusOnline, directory.cameras["cam-1"].Status)
		assert.Nil(t, directory.cameras["cam-1"].CurrentStreamURL)

		require.Len(t, notifier.events, 2)
		assert.Equal(t, Event{Type: EventStreamError, CameraID: "cam-1", Reason: "connection refused"}, notifier.events[1])
	})

	t.Run("store fault still publishes error", func(t *testing.T) {
		ctrl, directory, _, notifier := newTestController(t)
		directory.storeErr = errors.New("disk gone")

		ctrl.HandleTransportFailure("cam-1", nil)

		assert.Equal(t, 1, directory.stops)
		require.Len(t, notifier.events, 1)
		assert.Equal(t, EventStreamError, notifier.events[0].Type)
		assert.Equal(t, "Stream transport failed", notifier.events[0].Reason)
	})
}
