package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Presence  PresenceConfig  `yaml:"presence"`
	Log       LogConfig       `yaml:"log"`
	Mock      MockConfig      `yaml:"mock"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"CURSORSHARE_PORT" validate:"min=1,max=65535"`
	Host           string   `yaml:"host" env:"CURSORSHARE_HOST"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TransportConfig struct {
	SendBuffer      int           `yaml:"send_buffer" env:"CURSORSHARE_SEND_BUFFER" validate:"min=1"`
	MaxConnections  int           `yaml:"max_connections" env:"CURSORSHARE_MAX_CONNECTIONS" validate:"min=0"`
	MaxMessageBytes int64         `yaml:"max_message_bytes" env:"CURSORSHARE_MAX_MESSAGE_BYTES" validate:"min=64"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"CURSORSHARE_WRITE_TIMEOUT" validate:"gt=0"`
	PongTimeout     time.Duration `yaml:"pong_timeout" env:"CURSORSHARE_PONG_TIMEOUT" validate:"gt=0"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"CURSORSHARE_PING_INTERVAL" validate:"gt=0,ltfield=PongTimeout"`
}

type PresenceConfig struct {
	ColorPolicy string   `yaml:"color_policy" env:"CURSORSHARE_COLOR_POLICY" validate:"oneof=palette hash"`
	Palette     []string `yaml:"palette" validate:"dive,hexcolor"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"CURSORSHARE_LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

type MockConfig struct {
	Bots int           `yaml:"bots" env:"CURSORSHARE_MOCK_BOTS" validate:"min=0"`
	Tick time.Duration `yaml:"tick" env:"CURSORSHARE_MOCK_TICK" validate:"gt=0"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Transport: TransportConfig{
			SendBuffer:      64,
			MaxConnections:  0,
			MaxMessageBytes: 1024,
			WriteTimeout:    10 * time.Second,
			PongTimeout:     60 * time.Second,
			PingInterval:    30 * time.Second,
		},
		Presence: PresenceConfig{
			ColorPolicy: "palette",
		},
		Log: LogConfig{
			Level: "INFO",
		},
		Mock: MockConfig{
			Bots: 4,
			Tick: 100 * time.Millisecond,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error: the defaults are returned as-is.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays any CURSORSHARE_* variables present in the environment.
// Unset variables leave the current value alone.
func (c *Config) ApplyEnv() error {
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
