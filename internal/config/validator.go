package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

// MinSharedSecretLength is the shortest gateway secret accepted
const MinSharedSecretLength = 16

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCodec validates an audio codec name
func (v *Validator) ValidateCodec(codec string) error {
	if codec == "" {
		return fmt.Errorf("codec cannot be empty")
	}

	validCodecs := []string{"aac", "libfdk_aac", "libopus", "opus", "libmp3lame", "flac", "pcm_s16le"}
	for _, valid := range validCodecs {
		if codec == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid codec: %s (must be one of: %s)", codec, strings.Join(validCodecs, ", "))
}

// ValidateSampleRate validates a capture sample rate in Hz
func (v *Validator) ValidateSampleRate(rate int) error {
	if rate < 8000 || rate > 192000 {
		return fmt.Errorf("sample rate must be between 8000 and 192000, got %d", rate)
	}
	return nil
}

// ValidateSchedule validates a cron expression or descriptor
func (v *Validator) ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidatePath validates a filesystem path from the config
func (v *Validator) ValidatePath(path string) error {
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSharedSecret validates the gateway shared secret
func (v *Validator) ValidateSharedSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("gateway shared secret cannot be empty")
	}
	if len(secret) < MinSharedSecretLength {
		return fmt.Errorf("gateway shared secret must be at least %d characters", MinSharedSecretLength)
	}
	return nil
}

// ValidateConfig performs comprehensive validation and reports every problem
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateCodec(cfg.Recorder.Codec); err != nil {
		errors = append(errors, fmt.Errorf("recorder: %w", err))
	}
	if err := v.ValidateSampleRate(cfg.Recorder.SampleRate); err != nil {
		errors = append(errors, fmt.Errorf("recorder: %w", err))
	}
	if cfg.Recorder.Bitrate <= 0 {
		errors = append(errors, fmt.Errorf("recorder: bitrate must be positive"))
	}
	if cfg.Recorder.TickIntervalMs <= 0 {
		errors = append(errors, fmt.Errorf("recorder: tick_interval_ms must be positive"))
	}

	if strings.TrimSpace(cfg.Transcoder.Binary) == "" {
		errors = append(errors, fmt.Errorf("transcoder: binary is required"))
	}
	if cfg.Transcoder.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("transcoder: timeout_seconds must be >= 0"))
	}

	if err := v.ValidateSchedule(cfg.Scratch.SweepSchedule); err != nil {
		errors = append(errors, fmt.Errorf("scratch: %w", err))
	}
	if cfg.Scratch.MaxAgeMinutes <= 0 {
		errors = append(errors, fmt.Errorf("scratch: max_age_minutes must be positive"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		errors = append(errors, fmt.Errorf("gateway: invalid port %d", cfg.Gateway.Port))
	}

	return errors
}
