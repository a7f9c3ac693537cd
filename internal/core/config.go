package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config는 전체 애플리케이션 설정을 담는 구조체
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Devices   DevicesConfig   `yaml:"devices"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Streaming StreamingConfig `yaml:"streaming"`
	Hub       HubConfig       `yaml:"hub"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	HTTPPort        int      `yaml:"http_port"`
	Production      bool     `yaml:"production"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownTimeout int      `yaml:"shutdown_timeout"` // 초
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DevicesConfig는 장치 연결 시뮬레이터 설정입니다
type DevicesConfig struct {
	LatencyMs   int              `yaml:"latency_ms"`
	DialCheck   bool             `yaml:"dial_check"`
	DialTimeout int              `yaml:"dial_timeout"` // 초
	Profiles    []ProfileFixture `yaml:"profiles"`
	Presets     []string         `yaml:"presets"`
	Discovered  []DeviceFixture  `yaml:"discovered"`
}

// ProfileFixture는 시뮬레이터가 돌려줄 프로파일 한 개입니다
// Path는 rtsp://<host> 뒤에 붙습니다
type ProfileFixture struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	FrameRate int    `yaml:"frame_rate"`
	Encoding  string `yaml:"encoding"`
	Quality   int    `yaml:"quality"`
}

// DeviceFixture는 탐색 결과로 보고될 장치입니다
type DeviceFixture struct {
	Name         string `yaml:"name"`
	IPAddress    string `yaml:"ip_address"`
	Port         int    `yaml:"port"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

type DiscoveryConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// StreamingConfig는 RTSP 릴레이 설정입니다
type StreamingConfig struct {
	Timeout      int  `yaml:"timeout"` // 초
	RetryCount   int  `yaml:"retry_count"`
	RetryDelay   int  `yaml:"retry_delay"` // 초
	TCPTransport bool `yaml:"tcp_transport"`
}

type HubConfig struct {
	SendBufferSize  int `yaml:"send_buffer_size"`
	ReadBufferSize  int `yaml:"read_buffer_size"`
	WriteBufferSize int `yaml:"write_buffer_size"`
	MaxMessageSize  int `yaml:"max_message_size"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// DefaultConfig는 설정 파일이 비어 있어도 동작하는 기본값입니다
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10,
		},
		Database: DatabaseConfig{
			Path: "./data/cameras.db",
		},
		Devices: DevicesConfig{
			LatencyMs:   100,
			DialTimeout: 3,
			Profiles: []ProfileFixture{
				{Name: "Main Stream", Path: "/main", Width: 1920, Height: 1080, FrameRate: 30, Encoding: "H264", Quality: 5},
				{Name: "Sub Stream", Path: "/sub", Width: 640, Height: 480, FrameRate: 15, Encoding: "H264", Quality: 3},
			},
			Presets: []string{"Home", "Entrance", "Garden"},
			Discovered: []DeviceFixture{
				{Name: "Discovered Camera 1", IPAddress: "192.168.1.100", Port: 80, Manufacturer: "Hikvision", Model: "DS-2CD2142FWD-I"},
				{Name: "Discovered Camera 2", IPAddress: "192.168.1.101", Port: 80, Manufacturer: "Dahua", Model: "IPC-HFW4431R-Z"},
			},
		},
		Discovery: DiscoveryConfig{
			TimeoutSeconds: 10,
		},
		Streaming: StreamingConfig{
			Timeout:      10,
			RetryCount:   3,
			RetryDelay:   2,
			TCPTransport: true,
		},
		Hub: HubConfig{
			SendBufferSize:  256,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxMessageSize:  1 << 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "console",
			FilePath:   "logs/petmonitor.log",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
	}
}

// LoadConfig는 YAML 파일에서 설정을 로드합니다
// 파일에 없는 항목은 DefaultConfig 값이 유지됩니다
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 설정 검증
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Validate는 설정값의 유효성을 검증합니다
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Devices.LatencyMs < 0 {
		return fmt.Errorf("latency_ms must not be negative")
	}

	for i, p := range c.Devices.Profiles {
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("invalid resolution for profile %d: %dx%d", i, p.Width, p.Height)
		}
	}

	if c.Discovery.TimeoutSeconds <= 0 {
		return fmt.Errorf("discovery timeout_seconds must be positive")
	}

	if c.Streaming.RetryCount <= 0 {
		return fmt.Errorf("retry_count must be positive")
	}

	if c.Hub.SendBufferSize <= 0 {
		return fmt.Errorf("send_buffer_size must be positive")
	}

	return nil
}

// DiscoveryTimeout은 기본 탐색 제한 시간입니다
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutSeconds) * time.Second
}

// Latency는 시뮬레이터의 호출당 지연입니다
func (c DevicesConfig) Latency() time.Duration {
	return time.Duration(c.LatencyMs) * time.Millisecond
}
