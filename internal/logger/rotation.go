package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newFileWriter opens the rotating log file described by cfg
func newFileWriter(cfg Config) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}

	// lumberjack opens lazily; fail here rather than on the first write
	if _, err := w.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return w, nil
}
