package camera

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultPort는 포트가 지정되지 않은 카메라의 기본 ONVIF 포트입니다
const DefaultPort = 80

// Status는 카메라 상태를 나타냅니다
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusConnecting
	StatusStreaming
	StatusError
)

var statusNames = map[Status]string{
	StatusOffline:    "Offline",
	StatusOnline:     "Online",
	StatusConnecting: "Connecting",
	StatusStreaming:  "Streaming",
	StatusError:      "Error",
}

// String은 상태 이름을 반환합니다
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText는 상태를 이름 문자열로 인코딩합니다
func (s Status) MarshalText() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown camera status: %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText는 이름 문자열에서 상태를 복원합니다
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown camera status: %q", string(text))
}

// Camera는 관리 대상 카메라 한 대를 나타냅니다
type Camera struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	IPAddress        string           `json:"ipAddress"`
	Port             int              `json:"port"`
	Username         string           `json:"username"`
	Password         string           `json:"password"`
	Profiles         []Profile        `json:"profiles"`
	PTZCapabilities  *PTZCapabilities `json:"ptzCapabilities,omitempty"`
	Status           Status           `json:"status"`
	CurrentStreamURL *string          `json:"currentStreamUrl,omitempty"`
	LastSeen         time.Time        `json:"lastSeen"`
	Manufacturer     *string          `json:"manufacturer,omitempty"`
	Model            *string          `json:"model,omitempty"`
	FirmwareVersion  *string          `json:"firmwareVersion,omitempty"`
}

// Profile은 카메라가 제공하는 미디어 설정(메인/서브 스트림)입니다
type Profile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	StreamURI  string     `json:"streamUri"`
	Resolution Resolution `json:"resolution"`
	FrameRate  int        `json:"frameRate"`
	Encoding   string     `json:"encoding"`
	Quality    int        `json:"quality"`
}

// Resolution은 영상 해상도입니다
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// PTZCapabilities는 카메라의 PTZ 지원 여부와 프리셋 목록입니다
type PTZCapabilities struct {
	HasPTZ     bool        `json:"hasPtz"`
	CanPan     bool        `json:"canPan"`
	CanTilt    bool        `json:"canTilt"`
	CanZoom    bool        `json:"canZoom"`
	HasPresets bool        `json:"hasPresets"`
	Presets    []PTZPreset `json:"presets"`
}

type PTZPreset struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Position PTZPosition `json:"position"`
}

type PTZPosition struct {
	Pan  float32 `json:"pan"`
	Tilt float32 `json:"tilt"`
	Zoom float32 `json:"zoom"`
}

// PTZVector는 한 축의 이동량입니다
type PTZVector struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// IsZero는 이동량이 없는지 확인합니다
func (v PTZVector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// PTZCommand는 저장되지 않는 일회성 PTZ 요청입니다
type PTZCommand struct {
	CameraID string    `json:"cameraId"`
	Pan      PTZVector `json:"pan"`
	Tilt     PTZVector `json:"tilt"`
	Zoom     PTZVector `json:"zoom"`
	Speed    float32   `json:"speed"`
}

// DefaultSpeed는 요청에 속도가 없을 때 사용하는 값입니다
const DefaultSpeed float32 = 0.5

// SupportsPTZ는 PTZ 명령을 받을 수 있는 카메라인지 확인합니다
func (c *Camera) SupportsPTZ() bool {
	return c != nil && c.PTZCapabilities != nil && c.PTZCapabilities.HasPTZ
}

// FindProfile은 ID로 프로파일을 찾습니다
func (c *Camera) FindProfile(id string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// FindPreset은 캐시된 프리셋 중 ID가 일치하는 것을 찾습니다
func (c *Camera) FindPreset(id string) (PTZPreset, bool) {
	if c.PTZCapabilities == nil {
		return PTZPreset{}, false
	}
	for _, p := range c.PTZCapabilities.Presets {
		if p.ID == id {
			return p, true
		}
	}
	return PTZPreset{}, false
}

// Clone은 슬라이스와 포인터 필드까지 복사한 사본을 반환합니다
func (c *Camera) Clone() *Camera {
	if c == nil {
		return nil
	}

	out := *c
	if c.Profiles != nil {
		out.Profiles = make([]Profile, len(c.Profiles))
		copy(out.Profiles, c.Profiles)
	}
	if c.PTZCapabilities != nil {
		caps := *c.PTZCapabilities
		if c.PTZCapabilities.Presets != nil {
			caps.Presets = make([]PTZPreset, len(c.PTZCapabilities.Presets))
			copy(caps.Presets, c.PTZCapabilities.Presets)
		}
		out.PTZCapabilities = &caps
	}
	out.CurrentStreamURL = cloneString(c.CurrentStreamURL)
	out.Manufacturer = cloneString(c.Manufacturer)
	out.Model = cloneString(c.Model)
	out.FirmwareVersion = cloneString(c.FirmwareVersion)
	return &out
}

// ApplyDefaults는 비어 있는 필드에 기본값을 채웁니다
func (c *Camera) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Profiles == nil {
		c.Profiles = []Profile{}
	}
}

// Encode는 저장용 JSON 문서로 직렬화합니다
func Encode(c *Camera) ([]byte, error) {
	return json.Marshal(c)
}

// Decode는 저장된 JSON 문서를 Camera로 복원합니다
func Decode(raw []byte) (*Camera, error) {
	var c Camera
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// StringPtr은 문자열 포인터를 만드는 헬퍼입니다
func StringPtr(s string) *string {
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
