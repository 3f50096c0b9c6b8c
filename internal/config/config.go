package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Storage backends.
const (
	BackendS3   = "s3"
	BackendFS   = "fs"
	BackendBolt = "bolt"
)

// Config represents the smprofiler configuration
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Sessions  SessionsConfig  `json:"sessions" mapstructure:"sessions"`
	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
	Data      DataConfig      `json:"data" mapstructure:"data"`
	Events    EventsConfig    `json:"events" mapstructure:"events"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`

	// Data directory for the PID file and default fs/bolt locations
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"min=0"`
	// CORS origin for the browser front-end, empty disables CORS headers
	AllowOrigin string `json:"allow_origin" mapstructure:"allow_origin"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SessionsConfig holds session registry settings
type SessionsConfig struct {
	// Scheme of generated session locations, e.g. s3://<id>/
	Scheme string `json:"scheme" mapstructure:"scheme" validate:"required,alphanum"`
}

// StorageConfig selects and configures the blob backend
type StorageConfig struct {
	Backend string     `json:"backend" mapstructure:"backend" validate:"oneof=s3 fs bolt"`
	S3      S3Config   `json:"s3" mapstructure:"s3"`
	FS      FSConfig   `json:"fs" mapstructure:"fs"`
	Bolt    BoltConfig `json:"bolt" mapstructure:"bolt"`
}

// S3Config holds S3 client settings; credentials come from the AWS default chain
type S3Config struct {
	Region    string `json:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	PathStyle bool   `json:"path_style" mapstructure:"path_style"`
}

// FSConfig holds the local directory backend settings
type FSConfig struct {
	Root string `json:"root" mapstructure:"root"`
}

// BoltConfig holds the bbolt backend settings
type BoltConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DataConfig bounds dataset fetches
type DataConfig struct {
	FetchTimeout   time.Duration `json:"fetch_timeout" mapstructure:"fetch_timeout" validate:"min=0"`
	MaxObjectBytes int64         `json:"max_object_bytes" mapstructure:"max_object_bytes" validate:"min=0"` // 0 = unlimited
}

// EventsConfig controls the websocket event stream
type EventsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Heartbeat string `json:"heartbeat" mapstructure:"heartbeat" validate:"required_if=Enabled true"` // cron spec
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size" validate:"min=0"` // MB
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" validate:"min=0"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age" validate:"min=0"` // days
	Compress   bool   `json:"compress" mapstructure:"compress"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
	// Session lifecycle audit log, JSON lines
	Audit     bool   `json:"audit" mapstructure:"audit"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// TelemetryConfig holds tracing and metrics settings
type TelemetryConfig struct {
	ServiceName string  `json:"service_name" mapstructure:"service_name" validate:"required"`
	Tracing     bool    `json:"tracing" mapstructure:"tracing"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio" validate:"min=0,max=1"`
	Metrics     bool    `json:"metrics" mapstructure:"metrics"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8888,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Sessions: SessionsConfig{
			Scheme: "s3",
		},
		Storage: StorageConfig{
			Backend: BackendS3,
		},
		Data: DataConfig{
			FetchTimeout:   30 * time.Second,
			MaxObjectBytes: 256 << 20,
		},
		Events: EventsConfig{
			Enabled:   true,
			Heartbeat: "@every 30s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Pretty:     true,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     7,
			Compress:   true,
			Redaction:  true,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "smprofiler",
			Tracing:     true,
			SampleRatio: 1,
			Metrics:     true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := NewValidator().Validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
