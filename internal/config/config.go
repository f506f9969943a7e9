package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents the main fieldrec configuration
type Config struct {
	// Recorder
	Recorder RecorderConfig `json:"recorder" mapstructure:"recorder"`

	// Transcoder
	Transcoder TranscoderConfig `json:"transcoder" mapstructure:"transcoder"`

	// Scratch space for the concatenation pipeline
	Scratch ScratchConfig `json:"scratch" mapstructure:"scratch"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Catalog
	Catalog CatalogConfig `json:"catalog" mapstructure:"catalog"`

	// Permissions
	Permissions PermissionsConfig `json:"permissions" mapstructure:"permissions"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RecorderConfig holds capture settings
type RecorderConfig struct {
	SampleRate int    `json:"sample_rate" mapstructure:"sample_rate" validate:"gt=0"`
	Bitrate    int    `json:"bitrate" mapstructure:"bitrate" validate:"gt=0"`
	Codec      string `json:"codec" mapstructure:"codec" validate:"required"`
	// InputFormat is the ffmpeg input device format: pulse, alsa, avfoundation, dshow
	InputFormat string `json:"input_format" mapstructure:"input_format" validate:"required"`
	Device      string `json:"device" mapstructure:"device" validate:"required"`

	TickIntervalMs int `json:"tick_interval_ms" mapstructure:"tick_interval_ms" validate:"gt=0"`
	JoinTimeoutMs  int `json:"join_timeout_ms" mapstructure:"join_timeout_ms" validate:"gt=0"`
	StopTimeoutMs  int `json:"stop_timeout_ms" mapstructure:"stop_timeout_ms" validate:"gt=0"`
}

// TranscoderConfig holds transcoder binary settings
type TranscoderConfig struct {
	Binary         string   `json:"binary" mapstructure:"binary" validate:"required"`
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds" validate:"gte=0"` // 0 = no limit
	EncodeArgs     []string `json:"encode_args" mapstructure:"encode_args"`
}

// ScratchConfig holds pipeline scratch directory settings
type ScratchConfig struct {
	Dir           string `json:"dir" mapstructure:"dir"`
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule" validate:"required"`
	MaxAgeMinutes int    `json:"max_age_minutes" mapstructure:"max_age_minutes" validate:"gt=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	File       string `json:"file" mapstructure:"file"`
	Console    bool   `json:"console" mapstructure:"console"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size" validate:"gte=0"`       // MB
	MaxAge     int    `json:"max_age" mapstructure:"max_age" validate:"gte=0"`         // days
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" validate:"gte=0"` // files
	Compress   bool   `json:"compress" mapstructure:"compress"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port                int    `json:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	Host                string `json:"host" mapstructure:"host"`
	SharedSecret        string `json:"shared_secret" mapstructure:"shared_secret"`
	RequestsPerMinute   int    `json:"requests_per_minute" mapstructure:"requests_per_minute" validate:"gte=0"`
	MaxConcurrent       int    `json:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=0"`
	StartTimeoutSeconds int    `json:"start_timeout_seconds" mapstructure:"start_timeout_seconds" validate:"gte=0"`
}

// CatalogConfig holds the recordings catalog settings
type CatalogConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// PermissionsConfig holds capability grant settings
type PermissionsConfig struct {
	Path string `json:"path" mapstructure:"path"`
	// Prompt asks on the terminal when a capability is missing
	Prompt bool `json:"prompt" mapstructure:"prompt"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Recorder: RecorderConfig{
			SampleRate:     32000,
			Bitrate:        32000,
			Codec:          "aac",
			InputFormat:    defaultInputFormat(),
			Device:         defaultDevice(),
			TickIntervalMs: 100,
			JoinTimeoutMs:  1000,
			StopTimeoutMs:  5000,
		},
		Transcoder: TranscoderConfig{
			Binary:         "ffmpeg",
			TimeoutSeconds: 0,
			EncodeArgs:     []string{},
		},
		Scratch: ScratchConfig{
			SweepSchedule: "@every 30m",
			MaxAgeMinutes: 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
			Redaction:  true,
		},
		Gateway: GatewayConfig{
			Port:                7788,
			Host:                "127.0.0.1",
			SharedSecret:        "",
			RequestsPerMinute:   120,
			MaxConcurrent:       10,
			StartTimeoutSeconds: 120,
		},
		Permissions: PermissionsConfig{
			Prompt: true,
		},
		DataDir: "",
	}
}

// Durations

func (r RecorderConfig) TickInterval() time.Duration {
	return time.Duration(r.TickIntervalMs) * time.Millisecond
}

func (r RecorderConfig) JoinTimeout() time.Duration {
	return time.Duration(r.JoinTimeoutMs) * time.Millisecond
}

func (r RecorderConfig) StopTimeout() time.Duration {
	return time.Duration(r.StopTimeoutMs) * time.Millisecond
}

func (t TranscoderConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (s ScratchConfig) MaxAge() time.Duration {
	return time.Duration(s.MaxAgeMinutes) * time.Minute
}

func (g GatewayConfig) StartTimeout() time.Duration {
	return time.Duration(g.StartTimeoutSeconds) * time.Second
}

// Addr returns host:port
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

var structValidator = validator.New()

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	v := NewValidator()
	if err := v.ValidateCodec(c.Recorder.Codec); err != nil {
		return err
	}
	if err := v.ValidateSampleRate(c.Recorder.SampleRate); err != nil {
		return err
	}
	if err := v.ValidateSchedule(c.Scratch.SweepSchedule); err != nil {
		return err
	}
	if c.Scratch.Dir != "" {
		if err := v.ValidatePath(c.Scratch.Dir); err != nil {
			return fmt.Errorf("scratch dir: %w", err)
		}
	}

	return nil
}

// Validate checks the settings the gateway needs to start
func (g GatewayConfig) Validate() error {
	return NewValidator().ValidateSharedSecret(g.SharedSecret)
}
