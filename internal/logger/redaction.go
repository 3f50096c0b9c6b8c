package logger

import (
	"io"
	"regexp"
)

// Redactor masks credentials before log lines reach a sink
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor covering AWS credentials and presigned URL parameters
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// AWS access key ids (long-term and STS)
			regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),

			// AWS secret keys and session tokens in key=value or JSON form
			regexp.MustCompile(`(?i)aws_secret_access_key["\s:=]+[^\s",]+`),
			regexp.MustCompile(`(?i)aws_session_token["\s:=]+[^\s",]+`),

			// Presigned URL query parameters
			regexp.MustCompile(`X-Amz-(?:Signature|Credential|Security-Token)=[^&\s"]+`),

			// SigV4 authorization header
			regexp.MustCompile(`AWS4-HMAC-SHA256\s+[^"\n]+`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Generic secrets
			regexp.MustCompile(`(?i)(?:password|secret)["\s:=]+[^\s",]+`),
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

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// Wrap wraps an io.Writer to redact sensitive information
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

// Write reports len(p) on success so zerolog does not flag a short write when
// redaction changes the line length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
