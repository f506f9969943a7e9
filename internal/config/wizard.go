package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard on stdin and stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard reading answers from r
func NewWizardWithIO(r io.Reader, w io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(r),
		out:    w,
	}
}

// Run runs the interactive configuration wizard starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== fieldrec Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}
	validator := NewValidator()

	// Capture device
	fmt.Fprintln(w.out, "Capture device:")
	format, err := w.ask("Input format", cfg.Recorder.InputFormat)
	if err != nil {
		return nil, err
	}
	cfg.Recorder.InputFormat = format

	device, err := w.ask("Device", cfg.Recorder.Device)
	if err != nil {
		return nil, err
	}
	cfg.Recorder.Device = device

	for {
		codec, err := w.ask("Codec", cfg.Recorder.Codec)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateCodec(codec); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Recorder.Codec = codec
		break
	}

	fmt.Fprintln(w.out)

	// Gateway
	fmt.Fprintln(w.out, "Gateway:")
	for {
		port, err := w.ask("Port", strconv.Itoa(cfg.Gateway.Port))
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			fmt.Fprintf(w.out, "Error: invalid port %q\n", port)
			continue
		}
		cfg.Gateway.Port = n
		break
	}

	for {
		secret, err := w.ask("Shared secret (press Enter to generate)", "")
		if err != nil {
			return nil, err
		}
		if secret == "" {
			if cfg.Gateway.SharedSecret != "" {
				break
			}
			generated, err := GenerateSecret()
			if err != nil {
				return nil, err
			}
			cfg.Gateway.SharedSecret = generated
			fmt.Fprintln(w.out, "Generated a new shared secret.")
			break
		}
		if err := validator.ValidateSharedSecret(secret); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Gateway.SharedSecret = secret
		break
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		level = "info"
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// ask prints a prompt with its default and returns the answer or the default
func (w *Wizard) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}

	line, err := w.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GenerateSecret returns a random gateway shared secret
func GenerateSecret() (string, error) {
	return gonanoid.New(32)
}
