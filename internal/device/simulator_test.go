package device

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/petmonitor/internal/camera"
	"github.com/yourusername/petmonitor/internal/core"
	"go.uber.org/zap/zaptest"
)

func newTestSimulator(t *testing.T, mutate func(*core.DevicesConfig)) *Simulator {
	t.Helper()
	cfg := core.DefaultConfig().Devices
	cfg.LatencyMs = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return NewSimulator(cfg, zaptest.NewLogger(t))
}

func TestSimulator_TestConnection(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator(t, nil)

	tests := []struct {
		name string
		cam  *camera.Camera
		want bool
	}{
		{"host and user", &camera.Camera{IPAddress: "192.168.1.50", Username: "admin"}, true},
		{"missing user", &camera.Camera{IPAddress: "192.168.1.50"}, false},
		{"missing host", &camera.Camera{Username: "admin"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := sim.TestConnection(ctx, tt.cam)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestSimulator_DialCheck(t *testing.T) {
	ctx := context.Background()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	sim := newTestSimulator(t, func(c *core.DevicesConfig) {
		c.DialCheck = true
		c.DialTimeout = 1
	})

	t.Run("reachable", func(t *testing.T) {
		ok, err := sim.TestConnection(ctx, &camera.Camera{IPAddress: "127.0.0.1", Port: port, Username: "admin"})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unreachable", func(t *testing.T) {
		closed, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		deadPort := closed.Addr().(*net.TCPAddr).Port
		require.NoError(t, closed.Close())

		ok, err := sim.TestConnection(ctx, &camera.Camera{IPAddress: "127.0.0.1", Port: deadPort, Username: "admin"})
		require.NoError(t, err)
		assert.False(t, ok, "port %s should refuse", strconv.Itoa(deadPort))
	})
}

func TestSimulator_FetchProfiles(t *testing.T) {
	sim := newTestSimulator(t, nil)

	profiles, err := sim.FetchProfiles(context.Background(), &camera.Camera{IPAddress: "10.0.0.9"})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	assert.Equal(t, "Main Stream", profiles[0].Name)
	assert.Equal(t, "rtsp://10.0.0.9/main", profiles[0].StreamURI)
	assert.Equal(t, "1920x1080", profiles[0].Resolution.String())
	assert.Equal(t, 30, profiles[0].FrameRate)

	assert.Equal(t, "rtsp://10.0.0.9/sub", profiles[1].StreamURI)
	assert.Equal(t, "640x480", profiles[1].Resolution.String())
	assert.NotEqual(t, profiles[0].ID, profiles[1].ID)
}

func TestSimulator_FetchPTZCapabilities(t *testing.T) {
	sim := newTestSimulator(t, nil)

	caps, err := sim.FetchPTZCapabilities(context.Background(), &camera.Camera{ID: "cam-1"})
	require.NoError(t, err)
	require.NotNil(t, caps)

	assert.True(t, caps.HasPTZ)
	assert.True(t, caps.HasPresets)
	require.Len(t, caps.Presets, 3)
	assert.Equal(t, "1", caps.Presets[0].ID)
	assert.Equal(t, "Home", caps.Presets[0].Name)
	assert.Equal(t, "Garden", caps.Presets[2].Name)
}

func TestSimulator_EnumerateDevices(t *testing.T) {
	t.Run("returns fixtures", func(t *testing.T) {
		sim := newTestSimulator(t, nil)

		found, err := sim.EnumerateDevices(context.Background(), time.Second)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "192.168.1.100", found[0].IPAddress)
		assert.Equal(t, "Hikvision", *found[0].Manufacturer)
		assert.Empty(t, found[0].ID)
	})

	t.Run("bounded by timeout", func(t *testing.T) {
		sim := newTestSimulator(t, func(c *core.DevicesConfig) { c.LatencyMs = 500 })

		start := time.Now()
		_, err := sim.EnumerateDevices(context.Background(), 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 400*time.Millisecond)
	})
}

func TestSimulator_Motion(t *testing.T) {
	ctx := context.Background()
	sim := newTestSimulator(t, nil)
	cam := &camera.Camera{
		ID: "cam-1",
		PTZCapabilities: &camera.PTZCapabilities{
			HasPTZ:  true,
			Presets: []camera.PTZPreset{{ID: "1", Name: "Home", Position: camera.PTZPosition{Pan: 0.25, Tilt: -0.5}}},
		},
	}

	ok, err := sim.MoveRelative(ctx, cam, camera.PTZCommand{Pan: camera.PTZVector{X: 0.5}, Speed: 0.5})
	require.NoError(t, err)
	assert.True(t, ok)

	pos, err := sim.GetPosition(ctx, cam)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pos.Pan, 0.0001)

	ok, err = sim.GotoPreset(ctx, cam, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	pos, err = sim.GetPosition(ctx, cam)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, pos.Pan, 0.0001)
	assert.InDelta(t, -0.5, pos.Tilt, 0.0001)

	token, err := sim.SetPreset(ctx, cam, "Sofa")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestSimulator_HonoursCancellation(t *testing.T) {
	sim := newTestSimulator(t, func(c *core.DevicesConfig) { c.LatencyMs = 1000 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.FetchProfiles(ctx, &camera.Camera{})
	assert.ErrorIs(t, err, context.Canceled)
}
