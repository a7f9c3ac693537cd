package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yourusername/petmonitor/internal/streaming"
	"go.uber.org/zap"
)

// 클라이언트 → 서버 메시지 타입
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypeStart = "start"
	TypeStop  = "stop"
	TypeFrame = "frame"
)

// 서버 → 클라이언트 메시지 타입 (생명주기 이벤트는 streaming.EventType을 그대로 사용)
const (
	TypeFrameReceived = "FrameReceived"
	TypeError         = "error"
)

var _ streaming.Notifier = (*Server)(nil)
var _ streaming.FrameSink = (*Server)(nil)

// Server는 카메라 ID로 묶인 그룹에 이벤트와 프레임을 전달하는 WebSocket 허브입니다
type Server struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients map[*Client]bool
	groups  map[string]map[*Client]bool
	mutex   sync.RWMutex

	sendBufferSize int
	maxMessageSize int64

	// 콜백
	onStartStream func(ctx context.Context, cameraID, profileID string) (bool, error)
	onStopStream  func(ctx context.Context, cameraID string) (bool, error)
}

// Client는 WebSocket 클라이언트를 나타냅니다
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	logger *zap.Logger
	groups map[string]bool // server.mutex로 보호
}

// Message는 허브 메시지를 나타냅니다
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CameraPayload는 join/leave/start/stop 페이로드입니다
type CameraPayload struct {
	CameraID  string `json:"cameraId"`
	ProfileID string `json:"profileId,omitempty"`
}

// FramePayload는 프레임 페이로드입니다. Data는 JSON에서 base64로 인코딩됩니다
type FramePayload struct {
	CameraID string `json:"cameraId"`
	Data     []byte `json:"data"`
}

// EventPayload는 생명주기 이벤트 페이로드입니다
type EventPayload struct {
	CameraID string `json:"cameraId"`
	Reason   string `json:"reason,omitempty"`
}

// ServerConfig는 허브 설정
type ServerConfig struct {
	Logger          *zap.Logger
	SendBufferSize  int
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int
	OnStartStream   func(ctx context.Context, cameraID, profileID string) (bool, error)
	OnStopStream    func(ctx context.Context, cameraID string) (bool, error)
}

// NewServer는 새로운 허브를 생성합니다
func NewServer(config ServerConfig) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = 256
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = 1 << 20
	}

	return &Server{
		logger: config.Logger.Named("hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS는 API 레이어에서 처리
			},
		},
		clients:        make(map[*Client]bool),
		groups:         make(map[string]map[*Client]bool),
		sendBufferSize: config.SendBufferSize,
		maxMessageSize: int64(config.MaxMessageSize),
		onStartStream:  config.OnStartStream,
		onStopStream:   config.OnStopStream,
	}
}

// SetStreamHandlers는 start/stop 요청을 처리할 콜백을 설정합니다
func (s *Server) SetStreamHandlers(
	onStart func(ctx context.Context, cameraID, profileID string) (bool, error),
	onStop func(ctx context.Context, cameraID string) (bool, error),
) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onStartStream = onStart
	s.onStopStream = onStop
}

// HandleWebSocket은 WebSocket 연결을 처리합니다
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.NewString()
	client := &Client{
		id:     clientID,
		conn:   conn,
		send:   make(chan []byte, s.sendBufferSize),
		server: s,
		logger: s.logger.With(zap.String("client_id", clientID)),
		groups: make(map[string]bool),
	}

	s.registerClient(client)

	// 읽기/쓰기 고루틴 시작
	go client.writePump()
	go client.readPump()

	client.logger.Info("WebSocket client connected",
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// registerClient는 클라이언트를 등록합니다
func (s *Server) registerClient(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[client] = true

	s.logger.Info("Client registered",
		zap.String("client_id", client.id),
		zap.Int("total_clients", len(s.clients)),
	)
}

// unregisterClient는 클라이언트를 모든 그룹에서 빼고 등록 해제합니다
func (s *Server) unregisterClient(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.clients[client]; !exists {
		return
	}

	for cameraID := range client.groups {
		s.removeFromGroupLocked(client, cameraID)
	}
	delete(s.clients, client)
	close(client.send)

	s.logger.Info("Client unregistered",
		zap.String("client_id", client.id),
		zap.Int("total_clients", len(s.clients)),
	)
}

// join은 클라이언트를 카메라 그룹에 추가합니다
func (s *Server) join(client *Client, cameraID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.clients[client]; !exists {
		return
	}

	members, ok := s.groups[cameraID]
	if !ok {
		members = make(map[*Client]bool)
		s.groups[cameraID] = members
	}
	members[client] = true
	client.groups[cameraID] = true

	client.logger.Info("Client joined camera group",
		zap.String("camera_id", cameraID),
		zap.Int("members", len(members)),
	)
}

// leave는 클라이언트를 카메라 그룹에서 제거합니다
func (s *Server) leave(client *Client, cameraID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.removeFromGroupLocked(client, cameraID)
	client.logger.Info("Client left camera group", zap.String("camera_id", cameraID))
}

func (s *Server) removeFromGroupLocked(client *Client, cameraID string) {
	delete(client.groups, cameraID)

	members, ok := s.groups[cameraID]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(s.groups, cameraID)
	}
}

func (s *Server) isMember(client *Client, cameraID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return client.groups[cameraID]
}

// Publish는 생명주기 이벤트를 해당 카메라 그룹에만 전달합니다
func (s *Server) Publish(cameraID string, event streaming.Event) {
	data, err := encode(string(event.Type), EventPayload{CameraID: cameraID, Reason: event.Reason})
	if err != nil {
		s.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	delivered := s.broadcast(cameraID, data)
	s.logger.Debug("Event published",
		zap.String("camera_id", cameraID),
		zap.String("type", string(event.Type)),
		zap.Int("delivered", delivered),
	)
}

// RelayFrame은 프레임을 해석하지 않고 해당 카메라 그룹에 그대로 전달합니다
func (s *Server) RelayFrame(cameraID string, data []byte) {
	msg, err := encode(TypeFrameReceived, FramePayload{CameraID: cameraID, Data: data})
	if err != nil {
		s.logger.Error("Failed to marshal frame", zap.Error(err))
		return
	}
	s.broadcast(cameraID, msg)
}

// broadcast는 그룹 구성원에게 메시지를 보냅니다
// 송신 버퍼가 가득 찬 클라이언트는 메시지를 버립니다
func (s *Server) broadcast(cameraID string, data []byte) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	delivered := 0
	for client := range s.groups[cameraID] {
		select {
		case client.send <- data:
			delivered++
		default:
			client.logger.Warn("Send channel full, dropping message",
				zap.String("camera_id", cameraID),
			)
		}
	}
	return delivered
}

// readPump은 WebSocket에서 메시지를 읽습니다
func (c *Client) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.server.maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump은 WebSocket으로 메시지를 씁니다
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Error("Failed to write message", zap.Error(err))
			break
		}
	}
}

// handleMessage는 클라이언트 메시지를 처리합니다
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error("Failed to parse message", zap.Error(err))
		c.SendError("invalid message")
		return
	}

	c.logger.Debug("Received message", zap.String("type", msg.Type))

	switch msg.Type {
	case TypeJoin, TypeLeave, TypeStart, TypeStop:
		var payload CameraPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.CameraID == "" {
			c.logger.Warn("Invalid camera payload", zap.String("type", msg.Type))
			c.SendError("cameraId is required")
			return
		}
		c.handleCameraMessage(msg.Type, payload)
	case TypeFrame:
		var payload FramePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.CameraID == "" {
			c.logger.Warn("Invalid frame payload")
			c.SendError("invalid frame")
			return
		}
		c.server.RelayFrame(payload.CameraID, payload.Data)
	default:
		c.logger.Warn("Unknown message type", zap.String("type", msg.Type))
	}
}

func (c *Client) handleCameraMessage(msgType string, payload CameraPayload) {
	switch msgType {
	case TypeJoin:
		c.server.join(c, payload.CameraID)
	case TypeLeave:
		c.server.leave(c, payload.CameraID)
	case TypeStart:
		c.handleStart(payload)
	case TypeStop:
		c.handleStop(payload)
	}
}

// handleStart는 스트림 시작을 요청합니다
// 결과 이벤트는 그룹으로 발행되므로, 그룹 밖의 요청자에게만 실패를 직접 알립니다
func (c *Client) handleStart(payload CameraPayload) {
	c.server.mutex.RLock()
	onStart := c.server.onStartStream
	c.server.mutex.RUnlock()

	if onStart == nil {
		c.logger.Error("No stream start handler configured")
		c.SendError("streaming is not available")
		return
	}

	ok, err := onStart(context.Background(), payload.CameraID, payload.ProfileID)
	if err != nil {
		c.logger.Error("Failed to start stream",
			zap.String("camera_id", payload.CameraID),
			zap.Error(err),
		)
	}
	if (!ok || err != nil) && !c.server.isMember(c, payload.CameraID) {
		c.sendEvent(streaming.EventStreamError, payload.CameraID, "Failed to start stream")
	}
}

// handleStop은 스트림 중지를 요청합니다
func (c *Client) handleStop(payload CameraPayload) {
	c.server.mutex.RLock()
	onStop := c.server.onStopStream
	c.server.mutex.RUnlock()

	if onStop == nil {
		c.logger.Error("No stream stop handler configured")
		c.SendError("streaming is not available")
		return
	}

	if _, err := onStop(context.Background(), payload.CameraID); err != nil {
		c.logger.Error("Failed to stop stream",
			zap.String("camera_id", payload.CameraID),
			zap.Error(err),
		)
	}
}

func (c *Client) sendEvent(eventType streaming.EventType, cameraID, reason string) {
	data, err := encode(string(eventType), EventPayload{CameraID: cameraID, Reason: reason})
	if err != nil {
		c.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}
	c.enqueue(data)
}

// SendError는 에러 메시지를 전송합니다
func (c *Client) SendError(errorMsg string) {
	data, err := encode(TypeError, errorMsg)
	if err != nil {
		c.logger.Error("Failed to marshal error message", zap.Error(err))
		return
	}
	c.enqueue(data)
}

// enqueue는 등록된 클라이언트에게만 보냅니다 (닫힌 채널 보호)
func (c *Client) enqueue(data []byte) {
	c.server.mutex.RLock()
	defer c.server.mutex.RUnlock()

	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Error("Send channel full, dropping message")
	}
}

// GetID는 클라이언트 ID를 반환합니다
func (c *Client) GetID() string {
	return c.id
}

// GetClientCount는 연결된 클라이언트 수를 반환합니다
func (s *Server) GetClientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

// GroupSize는 카메라 그룹의 구성원 수를 반환합니다
func (s *Server) GroupSize(cameraID string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.groups[cameraID])
}

// Close는 모든 클라이언트 연결을 종료합니다
// 각 readPump가 종료되면서 등록 해제가 이어집니다
func (s *Server) Close() {
	s.logger.Info("Closing hub")

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for client := range s.clients {
		client.conn.Close()
	}
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}
