package logger

import (
	"io"
	"regexp"
	"sync"
)

// Redactor redacts sensitive information from logs
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Gateway secret header and config key
			regexp.MustCompile(`(?i)X-Fieldrec-Secret["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`shared_secret["\s:=]+[^\s",}]+`),

			// HMAC challenge signatures
			regexp.MustCompile(`signature["\s:=]+[0-9a-fA-F]{64}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Passwords
			regexp.MustCompile(`password["\s:=]+[^\s"]+`),

			// Generic secrets
			regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.patterns = append(r.patterns, re)
	r.mu.Unlock()
	return nil
}

// AddLiteral masks every occurrence of value. Literals run before the
// patterns so that a partial pattern match cannot leave part of value
// visible. Empty values are ignored.
func (r *Redactor) AddLiteral(value string) {
	if value == "" {
		return
	}
	re := regexp.MustCompile(regexp.QuoteMeta(value))
	r.mu.Lock()
	r.patterns = append([]*regexp.Regexp{re}, r.patterns...)
	r.mu.Unlock()
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so that callers do not treat the
// redacted length as a short write
func (w *redactingWriter) Write(p []byte) (n int, err error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
