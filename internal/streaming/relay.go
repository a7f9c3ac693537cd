package streaming

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
	"go.uber.org/zap"
)

var _ Transport = (*Relay)(nil)

// RelayConfig는 RTSP 릴레이 설정
type RelayConfig struct {
	Transport  string // "tcp" or "udp"
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	Sink       FrameSink
	Logger     *zap.Logger

	// OnFailure는 재시도를 모두 소진해 세션이 끝났을 때 호출됩니다. Stop/Close로 끝난 세션은 호출하지 않습니다
	OnFailure func(cameraID string, err error)
}

// Relay는 카메라마다 RTSP 풀 클라이언트를 하나씩 띄워 RTP 패킷을 FrameSink로 넘깁니다
//
// 패킷은 다시 직렬화만 하고 내용은 보지 않습니다. 연결이 끊기면 설정된 횟수만큼
// 고정 간격으로 재연결합니다.
type Relay struct {
	config RelayConfig
	logger *zap.Logger

	mutex    sync.Mutex
	sessions map[string]*session
	closed   bool
}

// session은 카메라 한 대의 RTSP 연결 상태
type session struct {
	target    Target
	url       string
	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}

	mutex           sync.Mutex
	client          *gortsplib.Client
	connected       bool
	packetsReceived uint64
	bytesReceived   uint64
}

// SessionStats는 세션 통계
type SessionStats struct {
	CameraID        string `json:"cameraId"`
	Connected       bool   `json:"connected"`
	PacketsReceived uint64 `json:"packetsReceived"`
	BytesReceived   uint64 `json:"bytesReceived"`
}

// NewRelay는 새로운 Relay를 생성합니다
func NewRelay(config RelayConfig) *Relay {
	// 기본값 설정
	if config.Transport == "" {
		config.Transport = "tcp"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Relay{
		config:   config,
		logger:   config.Logger.Named("relay"),
		sessions: make(map[string]*session),
	}
}

// Start는 카메라의 RTSP 스트림 수신을 시작합니다
// 이미 실행 중인 세션이 있으면 교체합니다
func (r *Relay) Start(ctx context.Context, target Target) error {
	streamURL, err := buildURL(target)
	if err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		target:    target,
		url:       streamURL,
		ctx:       sessionCtx,
		ctxCancel: cancel,
		done:      make(chan struct{}),
	}

	// 이전 세션 제거와 새 세션 등록은 한 번의 잠금 안에서 처리해야 세션이 고아가 되지 않음
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		cancel()
		return fmt.Errorf("relay is closed")
	}
	previous := r.sessions[target.CameraID]
	r.sessions[target.CameraID] = s
	r.mutex.Unlock()

	if previous != nil {
		r.logger.Info("Replacing running stream session", zap.String("camera_id", target.CameraID))
		if err := previous.stop(ctx); err != nil {
			r.logger.Warn("Previous stream session did not stop cleanly",
				zap.String("camera_id", target.CameraID),
				zap.Error(err),
			)
		}
	}

	r.logger.Info("Starting RTSP relay",
		zap.String("camera_id", target.CameraID),
		zap.String("url", maskURL(streamURL)),
		zap.String("transport", r.config.Transport),
	)

	go r.runWithRetry(s)

	return nil
}

// Stop은 카메라의 RTSP 세션을 종료하고 수신 고루틴이 끝날 때까지 기다립니다
func (r *Relay) Stop(ctx context.Context, cameraID string) error {
	r.mutex.Lock()
	s, ok := r.sessions[cameraID]
	if ok {
		delete(r.sessions, cameraID)
	}
	r.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, cameraID)
	}

	r.logger.Info("Stopping RTSP relay", zap.String("camera_id", cameraID))
	return s.stop(ctx)
}

// Close는 모든 세션을 종료합니다
func (r *Relay) Close(ctx context.Context) {
	r.mutex.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.mutex.Unlock()

	for id, s := range sessions {
		if err := s.stop(ctx); err != nil {
			r.logger.Warn("Stream session did not stop cleanly",
				zap.String("camera_id", id),
				zap.Error(err),
			)
		}
	}
}

// Stats는 실행 중인 세션의 통계를 반환합니다
func (r *Relay) Stats() []SessionStats {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stats := make([]SessionStats, 0, len(r.sessions))
	for id, s := range r.sessions {
		s.mutex.Lock()
		stats = append(stats, SessionStats{
			CameraID:        id,
			Connected:       s.connected,
			PacketsReceived: s.packetsReceived,
			BytesReceived:   s.bytesReceived,
		})
		s.mutex.Unlock()
	}
	return stats
}

// runWithRetry는 재연결 로직과 함께 실행합니다
func (r *Relay) runWithRetry(s *session) {
	err := retry.Do(
		func() error {
			return r.run(s)
		},
		retry.Attempts(uint(r.config.RetryCount)),
		retry.Delay(r.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// 중지 요청으로 끊긴 경우는 재시도하지 않음
			return s.ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			s.setConnected(false)
			r.logger.Warn("RTSP connection failed, retrying",
				zap.String("camera_id", s.target.CameraID),
				zap.Uint("attempt", n+1),
				zap.Duration("delay", r.config.RetryDelay),
				zap.Error(err),
			)
		}),
	)

	s.setConnected(false)

	if s.ctx.Err() != nil {
		close(s.done)
		r.logger.Info("RTSP relay stopped", zap.String("camera_id", s.target.CameraID))
		return
	}

	// 포기한 세션은 목록에서 빼야 이후 Start/Stop이 새 세션으로 동작함
	// 그 사이 Stop이나 교체로 이미 빠졌다면 실패를 알리지 않음
	r.mutex.Lock()
	owned := r.sessions[s.target.CameraID] == s
	if owned {
		delete(r.sessions, s.target.CameraID)
	}
	r.mutex.Unlock()
	s.ctxCancel()
	close(s.done)

	r.logger.Error("Max retry attempts reached, giving up",
		zap.String("camera_id", s.target.CameraID),
		zap.Int("attempts", r.config.RetryCount),
		zap.Error(err),
	)

	if owned && r.config.OnFailure != nil {
		r.config.OnFailure(s.target.CameraID, err)
	}
}

// run은 실제 RTSP 연결 및 스트림 수신을 처리합니다
func (r *Relay) run(s *session) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	client := &gortsplib.Client{
		Transport:    r.transport(),
		ReadTimeout:  r.config.Timeout,
		WriteTimeout: r.config.Timeout,
	}

	// RTSP 서버 연결
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	// 시작된 클라이언트만 등록해야 stop에서 Close할 수 있음
	if err := s.attach(client); err != nil {
		return err
	}
	defer s.detach()

	baseURL, err := base.ParseURL(s.url)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}

	// DESCRIBE: 스트림 정보 획득
	desc, _, err := client.Describe(baseURL)
	if err != nil {
		return fmt.Errorf("failed to describe: %w", err)
	}

	for i, media := range desc.Medias {
		for _, forma := range media.Formats {
			r.logger.Debug("Media format detected",
				zap.String("camera_id", s.target.CameraID),
				zap.Int("media_index", i),
				zap.String("codec", forma.Codec()),
				zap.Uint8("payload_type", forma.PayloadType()),
			)
		}
	}

	// SETUP: 모든 미디어 트랙 설정
	if err := client.SetupAll(baseURL, desc.Medias); err != nil {
		return fmt.Errorf("failed to setup: %w", err)
	}

	// PLAY 호출 전에 콜백을 등록해야 함
	client.OnPacketRTPAny(func(medi *description.Media, forma format.Format, pkt *rtp.Packet) {
		r.handleRTPPacket(s, pkt)
	})

	if _, err := client.Play(nil); err != nil {
		return fmt.Errorf("failed to play: %w", err)
	}

	s.setConnected(true)
	r.logger.Info("RTSP playback started",
		zap.String("camera_id", s.target.CameraID),
		zap.Int("media_count", len(desc.Medias)),
	)

	return client.Wait()
}

// handleRTPPacket은 패킷을 직렬화해 그대로 전달합니다
func (r *Relay) handleRTPPacket(s *session, pkt *rtp.Packet) {
	data, err := pkt.Marshal()
	if err != nil {
		r.logger.Debug("Failed to marshal RTP packet",
			zap.String("camera_id", s.target.CameraID),
			zap.Error(err),
		)
		return
	}

	s.mutex.Lock()
	s.packetsReceived++
	s.bytesReceived += uint64(len(data))
	s.mutex.Unlock()

	if r.config.Sink != nil {
		r.config.Sink.RelayFrame(s.target.CameraID, data)
	}
}

// transport는 전송 프로토콜을 반환합니다
func (r *Relay) transport() *gortsplib.Transport {
	if r.config.Transport == "udp" {
		transport := gortsplib.TransportUDP
		return &transport
	}
	transport := gortsplib.TransportTCP
	return &transport
}

// attach는 현재 연결 중인 클라이언트를 기록합니다. 이미 중지된 세션이면 에러입니다
func (s *session) attach(client *gortsplib.Client) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	s.client = client
	return nil
}

func (s *session) detach() {
	s.mutex.Lock()
	s.client = nil
	s.mutex.Unlock()
}

func (s *session) setConnected(connected bool) {
	s.mutex.Lock()
	s.connected = connected
	s.mutex.Unlock()
}

// stop은 세션을 취소하고 종료를 기다립니다
func (s *session) stop(ctx context.Context) error {
	s.mutex.Lock()
	s.ctxCancel()
	client := s.client
	s.mutex.Unlock()

	if client != nil {
		client.Close()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for stream session: %w", ctx.Err())
	}
}

// buildURL은 자격 증명을 포함한 RTSP URL을 만듭니다
func buildURL(target Target) (string, error) {
	if target.URI == "" {
		return "", fmt.Errorf("stream URI is empty for camera %s", target.CameraID)
	}

	u, err := url.Parse(target.URI)
	if err != nil {
		return "", fmt.Errorf("invalid RTSP URL: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return "", fmt.Errorf("unsupported stream scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stream URI has no host: %s", target.URI)
	}

	if target.Username != "" && u.User == nil {
		u.User = url.UserPassword(target.Username, target.Password)
	}
	return u.String(), nil
}

// maskURL은 자격 증명을 마스킹한 URL을 반환합니다
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}

	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}

	return u.String()
}
