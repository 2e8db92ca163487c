package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks secrets before log lines reach their writer
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for bridge secrets and common credentials
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// bridge upgrade header
			regexp.MustCompile(`(?i)X-Tagqueue-Secret["\s:=]+[^\s",}]+`),
			// config keys, as JSON or key=value
			regexp.MustCompile(`(?i)"?shared_secret"?\s*[:=]\s*"[^"]*"`),
			regexp.MustCompile(`(?i)shared_secret=[^\s&]+`),
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/-]+=*`),
			// secrets embedded in bridge URLs
			regexp.MustCompile(`(?i)([?&](?:secret|token|key)=)[^\s&"]+`),
			regexp.MustCompile(`(?i)password["\s:=]+[^\s"]+"?`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		if pattern.NumSubexp() > 0 {
			s = pattern.ReplaceAllString(s, "${1}"+redacted)
			continue
		}
		s = pattern.ReplaceAllString(s, redacted)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers do not treat a shorter redacted line as a
// short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
